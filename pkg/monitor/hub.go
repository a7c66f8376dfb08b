// Package monitor runs one fatigue classifier per monitored subject and
// exposes them over WebSocket and REST.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-fatigue/internal/log"
	"github.com/teslashibe/go-fatigue/pkg/fatigue"
)

// Defaults.
const (
	DefaultQueueSize   = 256
	DefaultSinkTimeout = 5 * time.Second
	maxSubjectIDLength = 128
)

// PoseEstimator fills in head tilt from a camera frame
type PoseEstimator interface {
	HeadTilt(jpeg []byte) (x, y, z float64, err error)
}

// Options configures a Hub
type Options struct {
	Config      fatigue.Config // Zero value means fatigue.DefaultConfig()
	Pose        PoseEstimator  // Optional, enables image frames
	QueueSize   int            // Per-sink queue length
	SinkTimeout time.Duration  // Per-event deadline handed to sinks
	IdleTimeout time.Duration  // Close sessions without connections after this; 0 keeps them
	Tracer      func(subjectID string, tr fatigue.Trace)
	Clock       func() time.Time
}

// Hub manages the sessions of all monitored subjects
type Hub struct {
	cfg  fatigue.Config
	opts Options
	now  func() time.Time
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	sinksMu sync.RWMutex
	sinks   []*sinkWorker
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc

	// Stats
	framesProcessed  atomic.Uint64
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	sprayTriggers    atomic.Uint64
	rejected         atomic.Uint64
	sessionsOpened   atomic.Uint64
}

// NewHub validates the classifier configuration and creates a hub
func NewHub(opts Options) (*Hub, error) {
	if opts.Config == (fatigue.Config{}) {
		opts.Config = fatigue.DefaultConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = DefaultSinkTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:      opts.Config,
		opts:     opts,
		now:      opts.Clock,
		log:      log.Component("monitor"),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Config returns the classifier thresholds used for new sessions
func (h *Hub) Config() fatigue.Config {
	return h.cfg
}

// AddSink registers a sink and starts its worker
func (h *Hub) AddSink(s Sink) error {
	h.sinksMu.Lock()
	defer h.sinksMu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	w := newSinkWorker(s, h.opts.QueueSize, h.opts.SinkTimeout, h.log)
	h.sinks = append(h.sinks, w)
	go w.run(h.ctx)
	h.log.Info("sink registered", "sink", s.Name(), "observer", w.observer != nil)
	return nil
}

// Open starts a session for subjectID, or returns the running one
func (h *Hub) Open(subjectID string) (SessionInfo, error) {
	s, err := h.openSession(subjectID)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.info(false), nil
}

func (h *Hub) openSession(subjectID string) (*Session, error) {
	if err := validateSubjectID(subjectID); err != nil {
		return nil, err
	}

	h.mu.RLock()
	s, ok := h.sessions[subjectID]
	h.mu.RUnlock()
	if ok {
		return s, nil
	}

	if h.isClosed() {
		return nil, ErrHubClosed
	}

	opts := []fatigue.Option{fatigue.WithClock(h.now)}
	if h.opts.Tracer != nil {
		tracer := h.opts.Tracer
		opts = append(opts, fatigue.WithTracer(func(tr fatigue.Trace) { tracer(subjectID, tr) }))
	}
	classifier, err := fatigue.NewClassifier(h.cfg, opts...)
	if err != nil {
		return nil, err
	}

	now := h.now()
	created := &Session{
		id:         uuid.NewString(),
		subjectID:  subjectID,
		startedAt:  now,
		classifier: classifier,
		lastSeen:   now,
	}

	// Hold the new session until observers are notified, so no event
	// for it can overtake SessionOpened.
	created.mu.Lock()
	defer created.mu.Unlock()

	h.mu.Lock()
	if s, ok := h.sessions[subjectID]; ok {
		h.mu.Unlock()
		return s, nil
	}
	h.sessions[subjectID] = created
	count := len(h.sessions)
	h.mu.Unlock()

	h.sessionsOpened.Add(1)
	h.log.Info("session opened", "subject", subjectID, "session", created.id, "sessions", count)
	h.notify(sinkJob{kind: jobOpened, session: created.infoLocked(false)})
	return created, nil
}

// Close ends the session of subjectID
func (h *Hub) Close(subjectID string) error {
	h.mu.Lock()
	s, ok := h.sessions[subjectID]
	if ok {
		delete(h.sessions, subjectID)
	}
	count := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, subjectID)
	}

	info := s.close()
	h.log.Info("session closed", "subject", subjectID, "session", info.SessionID, "frames", info.Frames, "sessions", count)
	h.notify(sinkJob{kind: jobClosed, session: info})
	return nil
}

// Process classifies one frame for subjectID, opening a session on first use
func (h *Hub) Process(ctx context.Context, subjectID string, m fatigue.Measurement) (Event, error) {
	return h.process(ctx, subjectID, m, 0)
}

func (h *Hub) process(ctx context.Context, subjectID string, m fatigue.Measurement, frameID uint64) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s, err := h.openSession(subjectID)
	if err != nil {
		return Event{}, err
	}
	ev, err := s.process(m, frameID, h.now(), h.dispatch)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s", err, subjectID)
	}

	h.framesProcessed.Add(1)
	if ev.Result.TriggeredSpray {
		h.sprayTriggers.Add(1)
	}
	if ev.LevelChanged() {
		h.log.Info("level changed",
			"subject", subjectID,
			"from", ev.PreviousLevel,
			"to", ev.Result.Level,
			"confidence", ev.Result.Confidence,
			"score", ev.Result.DrowsinessScore,
		)
	}
	return ev, nil
}

// ProcessImage estimates head tilt from jpeg for the axes m lacks, then
// classifies the frame.
func (h *Hub) ProcessImage(ctx context.Context, subjectID string, jpeg []byte, m fatigue.Measurement) (Event, error) {
	return h.processImage(ctx, subjectID, jpeg, m, 0)
}

func (h *Hub) processImage(ctx context.Context, subjectID string, jpeg []byte, m fatigue.Measurement, frameID uint64) (Event, error) {
	if h.opts.Pose == nil {
		return Event{}, ErrNoPoseEstimator
	}
	if !m.HasFullHeadPose() {
		x, y, z, err := h.opts.Pose.HeadTilt(jpeg)
		if err != nil {
			return Event{}, fmt.Errorf("estimate head pose: %w", err)
		}
		if m.HeadTiltX == nil {
			m.HeadTiltX = fatigue.Float(x)
		}
		if m.HeadTiltY == nil {
			m.HeadTiltY = fatigue.Float(y)
		}
		if m.HeadTiltZ == nil {
			m.HeadTiltZ = fatigue.Float(z)
		}
	}
	return h.process(ctx, subjectID, m, frameID)
}

// Reset re-initializes the classifier of subjectID
func (h *Hub) Reset(subjectID string) error {
	s := h.lookup(subjectID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, subjectID)
	}
	if err := s.reset(h.now()); err != nil {
		return fmt.Errorf("%w: %s", err, subjectID)
	}
	h.log.Info("session reset", "subject", subjectID)
	return nil
}

// Session returns detailed info for one subject
func (h *Hub) Session(subjectID string) (SessionInfo, error) {
	s := h.lookup(subjectID)
	if s == nil {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, subjectID)
	}
	return s.info(true), nil
}

// Sessions returns all open sessions ordered by subject
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info(false))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SubjectID < infos[j].SubjectID })
	return infos
}

// SessionCount returns the number of open sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) lookup(subjectID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[subjectID]
}

// dispatch hands an event to every sink without blocking
func (h *Hub) dispatch(ev Event) {
	h.sinksMu.RLock()
	defer h.sinksMu.RUnlock()
	if h.closed {
		return
	}
	for _, w := range h.sinks {
		w.offer(sinkJob{kind: jobEvent, event: ev})
	}
}

// notify hands a lifecycle change to every observer sink
func (h *Hub) notify(job sinkJob) {
	h.sinksMu.RLock()
	defer h.sinksMu.RUnlock()
	if h.closed {
		return
	}
	for _, w := range h.sinks {
		w.offerLifecycle(job)
	}
}

func (h *Hub) isClosed() bool {
	h.sinksMu.RLock()
	defer h.sinksMu.RUnlock()
	return h.closed
}

// Run closes idle sessions until ctx is done. Without an IdleTimeout it
// just waits.
func (h *Hub) Run(ctx context.Context) {
	if h.opts.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(h.opts.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ReapIdle()
		}
	}
}

// ReapIdle closes sessions with no connection and no frame within IdleTimeout
func (h *Hub) ReapIdle() int {
	if h.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := h.now().Add(-h.opts.IdleTimeout)

	h.mu.RLock()
	var idle []string
	for id, s := range h.sessions {
		if s.idleSince(cutoff) {
			idle = append(idle, id)
		}
	}
	h.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if h.Close(id) == nil {
			closed++
		}
	}
	if closed > 0 {
		h.log.Info("idle sessions closed", "count", closed)
	}
	return closed
}

// Shutdown closes every session, drains sink queues and stops the workers.
// Events still queued when ctx expires are abandoned.
func (h *Hub) Shutdown(ctx context.Context) error {
	for _, info := range h.Sessions() {
		_ = h.Close(info.SubjectID)
	}

	h.sinksMu.Lock()
	if h.closed {
		h.sinksMu.Unlock()
		return nil
	}
	h.closed = true
	workers := h.sinks
	for _, w := range workers {
		close(w.queue)
	}
	h.sinksMu.Unlock()

	defer h.cancel()
	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("drain sink %s: %w", w.sink.Name(), ctx.Err())
		}
	}
	return nil
}

// Stats contains hub statistics
type Stats struct {
	Sessions         int         `json:"sessions"`
	SessionsOpened   uint64      `json:"sessions_opened"`
	FramesProcessed  uint64      `json:"frames_processed"`
	SprayTriggers    uint64      `json:"spray_triggers"`
	MessagesReceived uint64      `json:"messages_received"`
	MessagesSent     uint64      `json:"messages_sent"`
	Rejected         uint64      `json:"rejected"`
	Sinks            []SinkStats `json:"sinks"`
}

// Stats returns hub statistics
func (h *Hub) Stats() Stats {
	h.sinksMu.RLock()
	sinks := make([]SinkStats, 0, len(h.sinks))
	for _, w := range h.sinks {
		sinks = append(sinks, w.stats())
	}
	h.sinksMu.RUnlock()

	return Stats{
		Sessions:         h.SessionCount(),
		SessionsOpened:   h.sessionsOpened.Load(),
		FramesProcessed:  h.framesProcessed.Load(),
		SprayTriggers:    h.sprayTriggers.Load(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		Rejected:         h.rejected.Load(),
		Sinks:            sinks,
	}
}

func validateSubjectID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > maxSubjectIDLength || strings.ContainsAny(id, "/?#") {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, id)
	}
	return nil
}
