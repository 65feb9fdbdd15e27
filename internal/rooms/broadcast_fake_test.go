package rooms

import (
	"encoding/json"
	"sync"
)

// fakeBroadcaster records everything the service emits, standing in for
// the realtime hub.
type fakeBroadcaster struct {
	mu      sync.Mutex
	events  []sentEvent
	members map[string]map[string]Role
	closed  []string
}

type sentEvent struct {
	target string // "room", "teacher", "students", "client"
	id     string // room ID or client ID depending on target
	event  string
	data   any
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{members: make(map[string]map[string]Role)}
}

func (f *fakeBroadcaster) AddToRoom(roomID, clientID string, role Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[roomID] == nil {
		f.members[roomID] = make(map[string]Role)
	}
	f.members[roomID][clientID] = role
}

func (f *fakeBroadcaster) RemoveFromRoom(roomID, clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[roomID], clientID)
}

func (f *fakeBroadcaster) ToRoom(roomID, event string, data any) {
	f.record(sentEvent{target: "room", id: roomID, event: event, data: data})
}

func (f *fakeBroadcaster) ToTeacher(roomID, event string, data any) {
	f.record(sentEvent{target: "teacher", id: roomID, event: event, data: data})
}

func (f *fakeBroadcaster) ToStudents(roomID, event string, data any) {
	f.record(sentEvent{target: "students", id: roomID, event: event, data: data})
}

func (f *fakeBroadcaster) ToClient(clientID, event string, data any) {
	f.record(sentEvent{target: "client", id: clientID, event: event, data: data})
}

func (f *fakeBroadcaster) CloseClient(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, clientID)
}

func (f *fakeBroadcaster) record(e sentEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

// sent returns all recorded events matching target/id/event; empty
// strings match anything.
func (f *fakeBroadcaster) sent(target, id, event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.events {
		if (target == "" || e.target == target) &&
			(id == "" || e.id == id) &&
			(event == "" || e.event == event) {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeBroadcaster) last(target, id, event string) (sentEvent, bool) {
	matches := f.sent(target, id, event)
	if len(matches) == 0 {
		return sentEvent{}, false
	}
	return matches[len(matches)-1], true
}

func (f *fakeBroadcaster) closedClients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

// payloadJSON renders an event's data the way the hub would put it on
// the wire.
func payloadJSON(e sentEvent) string {
	b, err := json.Marshal(e.data)
	if err != nil {
		return ""
	}
	return string(b)
}
