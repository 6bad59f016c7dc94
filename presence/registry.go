package presence

import (
	"sort"
	"sync"
	"time"

	"social-realtime/model"

	"github.com/zishang520/engine.io/v2/log"
)

var registryLog = log.NewLog("realtime:presence")

const (
	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"
	EventOnlineCount = "online-count-update"
)

type Broadcaster interface {
	Broadcast(event string, payload any)
}

type Enqueuer interface {
	Enqueue(userID string, update model.PresenceUpdate)
}

// Session is the metadata of one live connection.
type Session struct {
	ConnID       string    `json:"connId"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

type StatusEvent struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

type CountEvent struct {
	Count int `json:"count"`
}

// Registry is the in-memory source of truth for who is online. The
// is_online column of the user record lags behind it by up to one
// Writer interval.
type Registry struct {
	writer           Enqueuer
	emitter          Broadcaster
	activityInterval time.Duration
	now              func() time.Time

	mu       sync.Mutex
	users    map[string]map[string]*Session
	conns    map[string]string
	activity map[string]time.Time
}

func NewRegistry(writer Enqueuer, emitter Broadcaster, activityInterval time.Duration) *Registry {
	return &Registry{
		writer:           writer,
		emitter:          emitter,
		activityInterval: activityInterval,
		now:              time.Now,
		users:            make(map[string]map[string]*Session),
		conns:            make(map[string]string),
		activity:         make(map[string]time.Time),
	}
}

// Join binds connID to userID. Repeating the same join is a no-op and
// reports false.
func (r *Registry) Join(connID, userID string) bool {
	if connID == "" || userID == "" {
		return false
	}

	r.mu.Lock()
	previous, bound := r.conns[connID]
	if bound && previous == userID {
		r.mu.Unlock()
		return false
	}
	previousOffline := bound && r.detach(connID, previous)

	now := r.now()
	sessions, online := r.users[userID]
	if !online {
		sessions = make(map[string]*Session)
		r.users[userID] = sessions
	}
	sessions[connID] = &Session{ConnID: connID, JoinedAt: now, LastActivity: now}
	r.conns[connID] = userID
	r.activity[userID] = now
	count := len(r.users)
	r.mu.Unlock()

	if previousOffline {
		r.wentOffline(previous, now)
	}

	isOnline := true
	r.writer.Enqueue(userID, model.PresenceUpdate{IsOnline: &isOnline, LastSeen: now})
	if !online {
		r.emitter.Broadcast(EventUserOnline, StatusEvent{UserID: userID, IsOnline: true, LastSeen: now})
	}
	r.emitter.Broadcast(EventOnlineCount, CountEvent{Count: count})
	registryLog.Debug("user %s joined on %s (%d online)", userID, connID, count)
	return true
}

// Activity records a heartbeat. Heartbeats closer together than the
// activity interval, and heartbeats of users that never joined, are ignored.
func (r *Registry) Activity(userID string) bool {
	r.mu.Lock()
	sessions, online := r.users[userID]
	now := r.now()
	if !online || now.Sub(r.activity[userID]) < r.activityInterval {
		r.mu.Unlock()
		return false
	}
	r.activity[userID] = now
	for _, s := range sessions {
		s.LastActivity = now
	}
	r.mu.Unlock()

	r.writer.Enqueue(userID, model.PresenceUpdate{LastSeen: now})
	return true
}

// Disconnect forgets connID. The user goes offline once their last
// connection is gone.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	userID, bound := r.conns[connID]
	if !bound {
		r.mu.Unlock()
		return
	}
	offline := r.detach(connID, userID)
	count := len(r.users)
	r.mu.Unlock()

	if offline {
		r.wentOffline(userID, r.now())
	}
	r.emitter.Broadcast(EventOnlineCount, CountEvent{Count: count})
	registryLog.Debug("connection %s of user %s closed (%d online)", connID, userID, count)
}

// detach must be called with mu held. It reports whether userID has no
// connection left.
func (r *Registry) detach(connID, userID string) bool {
	delete(r.conns, connID)
	sessions := r.users[userID]
	delete(sessions, connID)
	if len(sessions) > 0 {
		return false
	}
	delete(r.users, userID)
	delete(r.activity, userID)
	return true
}

func (r *Registry) wentOffline(userID string, at time.Time) {
	isOnline := false
	r.writer.Enqueue(userID, model.PresenceUpdate{IsOnline: &isOnline, LastSeen: at})
	r.emitter.Broadcast(EventUserOffline, StatusEvent{UserID: userID, IsOnline: false, LastSeen: at})
}

// UserOf returns the user a connection joined as.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.conns[connID]
	return userID, ok
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Online returns the ids of every online user, sorted.
func (r *Registry) Online() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Sessions returns a copy of the live connections of userID.
func (r *Registry) Sessions(userID string) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.users[userID]))
	for _, s := range r.users[userID] {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}
