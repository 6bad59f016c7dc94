// Package sockettest provides an in-memory emitter that records what the
// real-time core pushes, for use in tests.
package sockettest

import "sync"

// Emit is one recorded push. Target is empty for broadcasts.
type Emit struct {
	Target  string
	Event   string
	Payload any
}

type Recorder struct {
	mu    sync.Mutex
	emits []Emit
}

func (r *Recorder) ToUser(userID, event string, payload any) {
	r.record(Emit{Target: "user-" + userID, Event: event, Payload: payload})
}

func (r *Recorder) ToConnection(connID, event string, payload any) {
	r.record(Emit{Target: connID, Event: event, Payload: payload})
}

func (r *Recorder) Broadcast(event string, payload any) {
	r.record(Emit{Event: event, Payload: payload})
}

func (r *Recorder) record(e Emit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, e)
}

func (r *Recorder) All() []Emit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emit(nil), r.emits...)
}

// Events returns every recorded emit with the given event name.
func (r *Recorder) Events(event string) []Emit {
	var out []Emit
	for _, e := range r.All() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// To returns every emit addressed to target (a room or connection id).
func (r *Recorder) To(target, event string) []Emit {
	var out []Emit
	for _, e := range r.Events(event) {
		if e.Target == target {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = nil
}
