package reaction

import (
	"context"
	"sync"
	"time"

	"social-realtime/apperror"
	"social-realtime/model"

	"github.com/pkg/errors"
	"github.com/zishang520/engine.io/v2/log"
)

var batcherLog = log.NewLog("realtime:reaction")

const (
	EventForumLike = "forum-like-update"
	EventWinkPost  = "wink-post"
	EventUnwink    = "unwink-post"
)

const (
	spamWindow = time.Minute
	spamLimit  = 10
)

type Broadcaster interface {
	Broadcast(event string, payload any)
}

type ToggleStore interface {
	HasReaction(ctx context.Context, kind model.ReactionKind, contentID, userID string) (bool, error)
	SetReaction(ctx context.Context, kind model.ReactionKind, contentID, userID string, on bool) (bool, error)
}

type LikeEvent struct {
	PostID  string `json:"postId"`
	UserID  string `json:"userId"`
	IsLiked bool   `json:"isLiked"`
}

type WinkEvent struct {
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

type intentKey struct {
	kind      model.ReactionKind
	contentID string
	userID    string
}

type window struct {
	last  time.Time
	count int
}

// Batcher coalesces rapid like and wink toggles. Clients see every toggle
// right away; the store sees at most one flip of each (kind, content, user)
// per interval.
type Batcher struct {
	store    ToggleStore
	emitter  Broadcaster
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	pending map[intentKey]struct{}
	spam    map[string]*window

	flushMu sync.Mutex

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func NewBatcher(store ToggleStore, emitter Broadcaster, interval time.Duration) *Batcher {
	return &Batcher{
		store:    store,
		emitter:  emitter,
		interval: interval,
		now:      time.Now,
		pending:  make(map[intentKey]struct{}),
		spam:     make(map[string]*window),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Toggle marks the reaction of userID on contentID for a flip at the next
// flush and broadcasts on as the new state. Only forum likes and post winks
// are batched.
func (b *Batcher) Toggle(kind model.ReactionKind, contentID, userID string, on bool) error {
	if kind != model.ForumLike && kind != model.PostWink {
		return apperror.ErrInvalidReaction
	}
	if contentID == "" {
		return apperror.ErrMissingContent
	}
	if userID == "" {
		return apperror.ErrMissingUser
	}

	b.mu.Lock()
	throttled := b.countAction(userID)
	b.pending[intentKey{kind: kind, contentID: contentID, userID: userID}] = struct{}{}
	b.mu.Unlock()

	if throttled {
		batcherLog.Warning("user %s is toggling reactions faster than %d per %s", userID, spamLimit, spamWindow)
	}

	switch {
	case kind == model.ForumLike:
		b.emitter.Broadcast(EventForumLike, LikeEvent{PostID: contentID, UserID: userID, IsLiked: on})
	case on:
		b.emitter.Broadcast(EventWinkPost, WinkEvent{PostID: contentID, UserID: userID})
	default:
		b.emitter.Broadcast(EventUnwink, WinkEvent{PostID: contentID, UserID: userID})
	}
	return nil
}

// countAction must be called with mu held.
func (b *Batcher) countAction(userID string) bool {
	now := b.now()
	w, ok := b.spam[userID]
	if !ok || now.Sub(w.last) > spamWindow {
		w = &window{}
		b.spam[userID] = w
	}
	w.last = now
	w.count++
	return w.count > spamLimit
}

func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) Start() {
	b.startOnce.Do(func() {
		go b.run()
	})
}

func (b *Batcher) run() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), b.interval)
			if err := b.Flush(ctx); err != nil {
				batcherLog.Error("reaction flush failed: %v", err)
			}
			cancel()
		case <-b.stop:
			return
		}
	}
}

// Flush flips the stored reaction of every pending key once: an existing
// row is deleted, a missing one created. Keys whose write fails are retried
// on the next flush.
func (b *Batcher) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[intentKey]struct{})
	now := b.now()
	for userID, w := range b.spam {
		if now.Sub(w.last) > spamWindow {
			delete(b.spam, userID)
		}
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var (
		firstErr error
		failed   []intentKey
		created  int
	)
	for k := range batch {
		exists, err := b.store.HasReaction(ctx, k.kind, k.contentID, k.userID)
		if err == nil {
			_, err = b.store.SetReaction(ctx, k.kind, k.contentID, k.userID, !exists)
		}
		if err != nil {
			failed = append(failed, k)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !exists {
			created++
		}
	}

	if len(failed) > 0 {
		b.mu.Lock()
		for _, k := range failed {
			b.pending[k] = struct{}{}
		}
		b.mu.Unlock()
		return errors.Wrapf(firstErr, "%d of %d reactions not written", len(failed), len(batch))
	}
	batcherLog.Debug("flipped %d reactions, %d created", len(batch), created)
	return nil
}

func (b *Batcher) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stop)
		b.startOnce.Do(func() { close(b.done) })
		<-b.done
		err = b.Flush(ctx)
	})
	return err
}
