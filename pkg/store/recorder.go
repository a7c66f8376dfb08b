package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-fatigue/internal/log"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
)

// Defaults.
const (
	DefaultSampleEvery  = 30
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Recorder writes sessions and selected detections. It is registered on
// the monitor hub as a sink and session observer.
type Recorder struct {
	store       *Store
	sampleEvery uint64
	now         func() time.Time
	log         *slog.Logger
}

// Ensure Recorder can be registered on the monitor hub
var (
	_ monitor.Sink            = (*Recorder)(nil)
	_ monitor.SessionObserver = (*Recorder)(nil)
)

// NewRecorder creates a recorder. sampleEvery <= 0 uses DefaultSampleEvery.
func NewRecorder(s *Store, sampleEvery int) *Recorder {
	if sampleEvery <= 0 {
		sampleEvery = DefaultSampleEvery
	}
	return &Recorder{
		store:       s,
		sampleEvery: uint64(sampleEvery),
		now:         time.Now,
		log:         log.Component("store"),
	}
}

func (r *Recorder) Name() string { return "store" }

// recordReason decides whether an event is stored, and why
func recordReason(e monitor.Event, sampleEvery uint64) (string, bool) {
	switch {
	case e.LevelChanged():
		return ReasonLevelChange, true
	case e.Result.TriggeredSpray:
		return ReasonSpray, true
	case sampleEvery > 0 && e.Frame%sampleEvery == 0:
		return ReasonSample, true
	}
	return "", false
}

// Handle implements monitor.Sink
func (r *Recorder) Handle(ctx context.Context, e monitor.Event) error {
	reason, ok := recordReason(e, r.sampleEvery)
	if !ok {
		return nil
	}
	rec := detectionFromEvent(e, reason, r.now())
	if err := r.store.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// SessionOpened implements monitor.SessionObserver
func (r *Recorder) SessionOpened(ctx context.Context, info monitor.SessionInfo) error {
	rec := sessionFromInfo(info)
	if err := r.store.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	r.log.Debug("session recorded", "subject", info.SubjectID, "session", info.SessionID)
	return nil
}

// SessionClosed implements monitor.SessionObserver
func (r *Recorder) SessionClosed(ctx context.Context, info monitor.SessionInfo) error {
	ended := r.now()
	err := r.store.db.WithContext(ctx).
		Model(&SessionRecord{}).
		Where("id = ?", info.SessionID).
		Updates(map[string]any{
			"ended_at":   ended,
			"frames":     info.Frames,
			"last_level": info.Level.String(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// RecentDetections returns the newest stored detections of a subject, oldest first
func (s *Store) RecentDetections(ctx context.Context, subjectID string, limit int) ([]DetectionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var records []DetectionRecord
	if err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}

	// Oldest -> newest
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// SubjectSessions returns the sessions of a subject, newest first
func (s *Store) SubjectSessions(ctx context.Context, subjectID string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var records []SessionRecord
	if err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return records, nil
}

// RegisterAPIRoutes registers history routes next to the monitor's
func (r *Recorder) RegisterAPIRoutes(api fiber.Router) {
	subjects := api.Group("/subjects")

	subjects.Get("/:id/history", func(c *fiber.Ctx) error {
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		records, err := r.store.RecentDetections(c.UserContext(), c.Params("id"), limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"subject_id": c.Params("id"),
			"detections": records,
			"count":      len(records),
		})
	})

	subjects.Get("/:id/sessions", func(c *fiber.Ctx) error {
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		records, err := r.store.SubjectSessions(c.UserContext(), c.Params("id"), limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"subject_id": c.Params("id"),
			"sessions":   records,
			"count":      len(records),
		})
	})
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	if n > MaxHistoryLimit {
		n = MaxHistoryLimit
	}
	return n, nil
}
