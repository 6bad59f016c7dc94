package presence

import (
	"context"
	"sync"
	"time"

	"social-realtime/model"

	"github.com/zishang520/engine.io/v2/log"
)

var writerLog = log.NewLog("realtime:presence-writer")

// Store persists presence state on the user records.
type Store interface {
	ApplyPresence(ctx context.Context, updates map[string]model.PresenceUpdate) error
	MarkOffline(ctx context.Context, userIDs []string, at time.Time) error
}

// Writer batches presence mutations per user and writes them on a fixed
// interval, so a user costs at most one write per interval no matter how
// many heartbeats arrive.
type Writer struct {
	store    Store
	interval time.Duration

	mu      sync.Mutex
	pending map[string]model.PresenceUpdate

	// flushMu keeps two flushes from racing each other to the database.
	flushMu sync.Mutex

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func NewWriter(store Store, interval time.Duration) *Writer {
	return &Writer{
		store:    store,
		interval: interval,
		pending:  make(map[string]model.PresenceUpdate),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue merges update into the pending batch of userID.
func (w *Writer) Enqueue(userID string, update model.PresenceUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if current, ok := w.pending[userID]; ok {
		w.pending[userID] = current.Merge(update)
		return
	}
	w.pending[userID] = update
}

func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Start runs the flush loop until Close.
func (w *Writer) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

func (w *Writer) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			if err := w.Flush(ctx); err != nil {
				writerLog.Error("presence flush failed: %v", err)
			}
			cancel()
		case <-w.stop:
			return
		}
	}
}

// Flush writes the current batch. Updates enqueued while the write is in
// flight go into a fresh batch. A failed batch is put back underneath any
// newer updates.
func (w *Writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.pending
	w.pending = make(map[string]model.PresenceUpdate)
	w.mu.Unlock()

	if err := w.store.ApplyPresence(ctx, batch); err != nil {
		w.requeue(batch)
		return err
	}
	writerLog.Debug("flushed presence for %d users", len(batch))
	return nil
}

func (w *Writer) requeue(batch map[string]model.PresenceUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for userID, old := range batch {
		if newer, ok := w.pending[userID]; ok {
			w.pending[userID] = old.Merge(newer)
			continue
		}
		w.pending[userID] = old
	}
}

// Close stops the loop, flushes what is pending and marks every user in
// online as offline.
func (w *Writer) Close(ctx context.Context, online []string) error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		w.startOnce.Do(func() { close(w.done) })
		<-w.done

		if err = w.Flush(ctx); err != nil {
			writerLog.Error("final presence flush failed: %v", err)
		}
		if markErr := w.store.MarkOffline(ctx, online, time.Now()); markErr != nil {
			writerLog.Error("marking %d users offline failed: %v", len(online), markErr)
			if err == nil {
				err = markErr
			}
		}
	})
	return err
}
