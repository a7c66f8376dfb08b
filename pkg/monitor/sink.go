package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// lifecycleWait bounds how long Open/Close wait for room in a full sink queue
const lifecycleWait = 2 * time.Second

type jobKind int

const (
	jobEvent jobKind = iota
	jobOpened
	jobClosed
)

type sinkJob struct {
	kind    jobKind
	event   Event
	session SessionInfo
}

// sinkWorker drains one sink's queue on its own goroutine
type sinkWorker struct {
	sink     Sink
	observer SessionObserver // nil unless sink implements it
	queue    chan sinkJob
	timeout  time.Duration
	log      *slog.Logger
	done     chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func newSinkWorker(s Sink, queueSize int, timeout time.Duration, logger *slog.Logger) *sinkWorker {
	w := &sinkWorker{
		sink:    s,
		queue:   make(chan sinkJob, queueSize),
		timeout: timeout,
		log:     logger.With("sink", s.Name()),
		done:    make(chan struct{}),
	}
	if obs, ok := s.(SessionObserver); ok {
		w.observer = obs
	}
	return w
}

func (w *sinkWorker) run(ctx context.Context) {
	defer close(w.done)
	for job := range w.queue {
		w.handle(ctx, job)
	}
}

func (w *sinkWorker) handle(ctx context.Context, job sinkJob) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var err error
	switch job.kind {
	case jobEvent:
		err = w.sink.Handle(ctx, job.event)
	case jobOpened:
		err = w.observer.SessionOpened(ctx, job.session)
	case jobClosed:
		err = w.observer.SessionClosed(ctx, job.session)
	}

	if err != nil {
		w.failed.Add(1)
		w.log.Warn("sink failed", "subject", subjectOf(job), "error", err)
		return
	}
	w.delivered.Add(1)
}

// offer enqueues without blocking; a full queue drops the event
func (w *sinkWorker) offer(job sinkJob) {
	select {
	case w.queue <- job:
	default:
		if w.dropped.Add(1)%100 == 1 {
			w.log.Warn("sink queue full, dropping events", "dropped", w.dropped.Load())
		}
	}
}

// offerLifecycle waits briefly for room; lifecycle jobs are rare and
// losing one leaves an observer with a dangling session.
func (w *sinkWorker) offerLifecycle(job sinkJob) {
	if w.observer == nil {
		return
	}
	timer := time.NewTimer(lifecycleWait)
	defer timer.Stop()
	select {
	case w.queue <- job:
	case <-timer.C:
		w.dropped.Add(1)
		w.log.Warn("sink queue full, dropping session notification", "subject", job.session.SubjectID)
	}
}

func (w *sinkWorker) stats() SinkStats {
	return SinkStats{
		Name:      w.sink.Name(),
		Queued:    len(w.queue),
		Delivered: w.delivered.Load(),
		Dropped:   w.dropped.Load(),
		Failed:    w.failed.Load(),
	}
}

func subjectOf(job sinkJob) string {
	if job.kind == jobEvent {
		return job.event.SubjectID
	}
	return job.session.SubjectID
}

// SinkStats contains per-sink delivery counters
type SinkStats struct {
	Name      string `json:"name"`
	Queued    int    `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}
