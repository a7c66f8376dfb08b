package monitor

import (
	"sync"
	"time"

	"github.com/teslashibe/go-fatigue/pkg/fatigue"
)

// Session owns the classifier of one subject.
// The mutex serializes frames, so HTTP and WebSocket input for the same
// subject are processed strictly one after the other.
type Session struct {
	id        string
	subjectID string
	startedAt time.Time

	mu         sync.Mutex
	classifier *fatigue.Classifier
	lastSeen   time.Time
	last       *fatigue.DetectionResult
	conns      int
	closed     bool
}

// process runs one frame through the classifier. emit runs under the
// session lock so events reach sinks in frame order.
func (s *Session) process(m fatigue.Measurement, frameID uint64, now time.Time, emit func(Event)) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Event{}, ErrSessionNotFound
	}

	prev := fatigue.Alert
	if s.last != nil {
		prev = s.last.Level
	}

	result := s.classifier.ProcessFrame(m)
	state := s.classifier.State()
	s.last = &result
	s.lastSeen = now

	ev := Event{
		SessionID:     s.id,
		SubjectID:     s.subjectID,
		Frame:         state.Frames,
		FrameID:       frameID,
		Result:        result,
		PreviousLevel: prev,
		BlinkCount:    state.BlinkCount,
		YawnCount:     state.YawnCount,
		Measurement:   m,
	}
	emit(ev)
	return ev, nil
}

func (s *Session) reset(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionNotFound
	}
	s.classifier.Reset()
	s.last = nil
	s.lastSeen = now
	return nil
}

// attach and detach count live WebSocket connections
func (s *Session) attach(now time.Time) {
	s.mu.Lock()
	s.conns++
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) detach() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns > 0 {
		s.conns--
	}
	return s.conns
}

// close stops further processing and returns the final info.
// Frames racing with it fail with ErrSessionNotFound.
func (s *Session) close() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.infoLocked(false)
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns == 0 && s.lastSeen.Before(cutoff)
}

func (s *Session) info(detail bool) SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked(detail)
}

func (s *Session) infoLocked(detail bool) SessionInfo {
	state := s.classifier.State()
	info := SessionInfo{
		SessionID:   s.id,
		SubjectID:   s.subjectID,
		StartedAt:   s.startedAt,
		LastSeen:    s.lastSeen,
		Frames:      state.Frames,
		Connections: s.conns,
		Level:       fatigue.Alert,
	}
	if s.last != nil {
		last := *s.last
		info.LastResult = &last
		info.Level = last.Level
	}
	if detail {
		ear := s.classifier.EARStats()
		info.State = &state
		info.EAR = &ear
	}
	return info
}
