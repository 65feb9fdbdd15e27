package rooms

import (
	"sync"
	"time"
	"unicode/utf8"
)

// Role of a connection inside a room.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Student name length limits, counted in runes. Uniqueness is
// case-sensitive per room.
const (
	minNameLen = 2
	maxNameLen = 30
)

// Student is a connected student in a room. HasAnswered is relative to
// the current poll only and is reset by every new poll.
type Student struct {
	ClientID    string
	Name        string
	HasAnswered bool
	JoinedAt    time.Time
}

// Room is an isolated session: one teacher, many students, at most one
// active poll, append-only poll history and chat log.
//
// All fields are guarded by mu. Every service entry point and timer
// callback locks the room for its full run, which serializes the two
// completion signals (deadline timer, answer/removal events) that
// converge on activePoll.
type Room struct {
	mu sync.Mutex

	id            string
	teacherID     string
	teacherName   string
	teacherOnline bool

	students  map[string]*Student
	joinOrder []string // client IDs, student join order

	activePoll *Poll
	history    []*PollRecord
	chat       []ChatMessage

	pollTimer  *time.Timer // poll deadline, nil when no poll armed
	graceTimer *time.Timer // teacher session grace window, nil when teacher online

	// closed marks the room as torn down. Handlers that raced teardown
	// see it and treat the room as already gone.
	closed bool
}

func newRoom(id, teacherID, teacherName string) *Room {
	return &Room{
		id:            id,
		teacherID:     teacherID,
		teacherName:   teacherName,
		teacherOnline: true,
		students:      make(map[string]*Student),
	}
}

// addStudentLocked validates and inserts a student. Caller holds r.mu.
func (r *Room) addStudentLocked(clientID, name string) error {
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return invalid("name", "must be 2-30 characters")
	}
	for _, s := range r.students {
		if s.Name == name {
			return ErrNameTaken
		}
	}
	r.students[clientID] = &Student{
		ClientID: clientID,
		Name:     name,
		JoinedAt: time.Now(),
	}
	r.joinOrder = append(r.joinOrder, clientID)
	return nil
}

// dropStudentLocked removes a student from the roster and, if a poll is
// in progress, shrinks the active-students snapshot so the student no
// longer gates completion. Caller holds r.mu.
func (r *Room) dropStudentLocked(clientID string) {
	delete(r.students, clientID)
	for i, id := range r.joinOrder {
		if id == clientID {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}
	if r.activePoll != nil {
		delete(r.activePoll.activeStudents, clientID)
	}
}

// rosterLocked builds the teacher-facing roster in join order.
// Caller holds r.mu.
func (r *Room) rosterLocked() []RosterEntry {
	roster := make([]RosterEntry, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		s, ok := r.students[id]
		if !ok {
			continue
		}
		roster = append(roster, RosterEntry{
			ClientID:    s.ClientID,
			Name:        s.Name,
			HasAnswered: s.HasAnswered,
		})
	}
	return roster
}

// participantsLocked lists the teacher first, then students in join
// order. Built from server-side state only. Caller holds r.mu.
func (r *Room) participantsLocked() []Participant {
	out := make([]Participant, 0, len(r.joinOrder)+1)
	out = append(out, Participant{
		ClientID: r.teacherID,
		Name:     r.teacherName,
		Role:     RoleTeacher,
	})
	for _, id := range r.joinOrder {
		s, ok := r.students[id]
		if !ok {
			continue
		}
		out = append(out, Participant{ClientID: s.ClientID, Name: s.Name, Role: RoleStudent})
	}
	return out
}

// stopTimersLocked cancels the poll deadline and grace timers. A timer
// that already fired is harmless: the callbacks re-check room and poll
// state under the lock. Caller holds r.mu.
func (r *Room) stopTimersLocked() {
	if r.pollTimer != nil {
		r.pollTimer.Stop()
		r.pollTimer = nil
	}
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}
