package rooms

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Archiver persists completed polls beyond room lifetime. It is
// optional; a nil archiver keeps the system purely in-memory.
type Archiver interface {
	SavePoll(ctx context.Context, roomID string, rec *PollRecord) error
}

// Identity is the server-asserted (room, role, name) binding of a
// connection, created exactly once at successful join and immutable for
// the connection's lifetime. Every privileged operation and every
// outbound identity stamp reads from it, never from inbound payloads.
type Identity struct {
	ClientID string
	RoomID   string
	Role     Role
	Name     string
}

// Config holds service tunables.
type Config struct {
	// TeacherGraceTTL bounds how long a room awaits a reconnecting
	// teacher before irreversible teardown.
	TeacherGraceTTL time.Duration
}

// Service owns all room state: registry, identity bindings, poll
// lifecycle and teacher session continuity. Each room is serialized by
// its own mutex; the registry map and the identity map have their own
// locks. No lock is held across a broadcast.
type Service struct {
	logger      *zap.Logger
	cfg         Config
	broadcaster Broadcaster
	archiver    Archiver

	mu    sync.RWMutex
	rooms map[string]*Room

	idMu       sync.RWMutex
	identities map[string]*Identity
}

// NewService creates the room service. archiver may be nil.
func NewService(logger *zap.Logger, cfg Config, b Broadcaster, archiver Archiver) *Service {
	if cfg.TeacherGraceTTL <= 0 {
		cfg.TeacherGraceTTL = 5 * time.Minute
	}
	return &Service{
		logger:      logger,
		cfg:         cfg,
		broadcaster: b,
		archiver:    archiver,
		rooms:       make(map[string]*Room),
		identities:  make(map[string]*Identity),
	}
}

// room resolves a live room or nil. Callers must re-check r.closed
// under the room lock: teardown can race any in-flight event.
func (s *Service) room(roomID string) *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

func (s *Service) identity(clientID string) *Identity {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	return s.identities[clientID]
}

func (s *Service) bindIdentity(clientID, roomID string, role Role, name string) {
	s.idMu.Lock()
	s.identities[clientID] = &Identity{ClientID: clientID, RoomID: roomID, Role: role, Name: name}
	s.idMu.Unlock()
}

func (s *Service) unbindIdentity(clientID string) *Identity {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id := s.identities[clientID]
	delete(s.identities, clientID)
	return id
}

// createRoom allocates an empty room owned by the given teacher
// connection. Fails with ErrRoomExists if the id is already present.
func (s *Service) createRoom(roomID, teacherID, teacherName string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return nil, ErrRoomExists
	}
	r := newRoom(roomID, teacherID, teacherName)
	s.rooms[roomID] = r
	return r, nil
}

func (s *Service) removeRoom(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

// JoinTeacher creates the room on first join, or rebinds a returning
// teacher: the grace timer is cancelled and poll state, history and
// chat are untouched. Either way the teacher receives the full room
// snapshot.
func (s *Service) JoinTeacher(clientID, roomID, teacherName string) error {
	if s.identity(clientID) != nil {
		return ErrAlreadyJoined
	}
	if roomID == "" {
		return invalid("room_id", "must not be empty")
	}
	if teacherName == "" {
		teacherName = "Teacher"
	}

	r := s.room(roomID)
	if r == nil {
		created, err := s.createRoom(roomID, clientID, teacherName)
		if err != nil {
			// Lost a create race; fall through to the rebind path.
			r = s.room(roomID)
			if r == nil {
				return err
			}
		} else {
			r = created
			s.logger.Info("room created",
				zap.String("room_id", roomID), zap.String("client_id", clientID))
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	previousID := r.teacherID
	r.teacherID = clientID
	if teacherName != "" {
		r.teacherName = teacherName
	}
	r.teacherOnline = true
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
		s.logger.Info("teacher session grace window cancelled", zap.String("room_id", roomID))
	}
	boundName := r.teacherName
	snapshot := TeacherJoined{
		RoomID:      roomID,
		Students:    r.rosterLocked(),
		CurrentPoll: r.teacherPollLocked(),
		History:     r.historyLocked(),
		Chat:        append([]ChatMessage(nil), r.chat...),
	}
	r.mu.Unlock()

	if previousID != "" && previousID != clientID {
		// A stale teacher connection no longer owns the room.
		s.unbindIdentity(previousID)
		s.broadcaster.RemoveFromRoom(roomID, previousID)
	}
	s.bindIdentity(clientID, roomID, RoleTeacher, boundName)
	s.broadcaster.AddToRoom(roomID, clientID, RoleTeacher)
	s.broadcaster.ToClient(clientID, EventTeacherJoined, snapshot)

	s.logger.Info("teacher joined",
		zap.String("room_id", roomID), zap.String("client_id", clientID))
	return nil
}

// JoinStudent adds a student to an existing room. A join during an
// active poll delivers the current question with the remaining time,
// without adding the student to the completion-gating snapshot.
func (s *Service) JoinStudent(clientID, roomID, name string) error {
	if s.identity(clientID) != nil {
		return ErrAlreadyJoined
	}
	r := s.room(roomID)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if err := r.addStudentLocked(clientID, name); err != nil {
		r.mu.Unlock()
		return err
	}
	var started *PollStarted
	if p := r.activePoll; p != nil && p.IsActive {
		started = studentPollStarted(p)
	}
	roster := r.rosterLocked()
	r.mu.Unlock()

	s.bindIdentity(clientID, roomID, RoleStudent, name)
	s.broadcaster.AddToRoom(roomID, clientID, RoleStudent)
	s.broadcaster.ToClient(clientID, EventJoinSuccess, JoinSuccess{
		ClientID: clientID,
		RoomID:   roomID,
		Name:     name,
	})
	if started != nil {
		s.broadcaster.ToClient(clientID, EventPollStarted, started)
	}
	s.broadcaster.ToTeacher(roomID, EventStudentJoined, RosterUpdate{Students: roster})

	s.logger.Info("student joined",
		zap.String("room_id", roomID), zap.String("client_id", clientID), zap.String("name", name))
	return nil
}

// HandleDisconnect is invoked by the transport when a connection drops.
// Student: leaves the roster, shrinks the snapshot and may complete the
// poll. Teacher: opens the session grace window.
func (s *Service) HandleDisconnect(clientID string) {
	id := s.unbindIdentity(clientID)
	if id == nil {
		return
	}
	r := s.room(id.RoomID)
	if r == nil {
		return
	}
	s.broadcaster.RemoveFromRoom(id.RoomID, clientID)

	if id.Role == RoleTeacher {
		s.teacherDisconnected(r, clientID)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if _, ok := r.students[clientID]; !ok {
		r.mu.Unlock()
		return
	}
	r.dropStudentLocked(clientID)
	roster := r.rosterLocked()
	poll := r.activePoll
	done := poll != nil && poll.IsActive && poll.allAnsweredLocked(r)
	r.mu.Unlock()

	s.broadcaster.ToTeacher(id.RoomID, EventStudentLeft, RosterUpdate{Students: roster})
	s.logger.Info("student disconnected",
		zap.String("room_id", id.RoomID), zap.String("client_id", clientID))

	if done {
		s.completePoll(r, poll, CompletionAllAnswered)
	}
}

// SendChat broadcasts a chat message to the sender's room, with all
// identity fields stamped from the connection's binding.
func (s *Service) SendChat(clientID, text string) error {
	if text == "" {
		return invalid("text", "must not be empty")
	}
	id := s.identity(clientID)
	if id == nil {
		return ErrNotInRoom
	}
	r := s.room(id.RoomID)
	if r == nil {
		return ErrRoomNotFound
	}
	msg := ChatMessage{
		Text:       text,
		SenderID:   id.ClientID,
		SenderName: id.Name,
		SenderRole: id.Role,
		Timestamp:  time.Now().UnixMilli(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	r.chat = append(r.chat, msg)
	r.mu.Unlock()

	s.broadcaster.ToRoom(id.RoomID, EventNewMessage, msg)
	return nil
}

// Participants returns the caller's room participants: teacher first,
// then students in join order.
func (s *Service) Participants(clientID string) ([]Participant, error) {
	id := s.identity(clientID)
	if id == nil {
		return nil, ErrNotInRoom
	}
	r := s.room(id.RoomID)
	if r == nil {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomNotFound
	}
	return r.participantsLocked(), nil
}

// PollHistory returns the caller's room poll history, oldest first.
func (s *Service) PollHistory(clientID string) ([]HistoryEntry, error) {
	id := s.identity(clientID)
	if id == nil {
		return nil, ErrNotInRoom
	}
	r := s.room(id.RoomID)
	if r == nil {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomNotFound
	}
	return r.historyLocked(), nil
}

// RoomStatus is the REST probe of a room, usable before joining.
func (s *Service) RoomStatus(roomID string) (*RoomStatus, error) {
	r := s.room(roomID)
	if r == nil {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomNotFound
	}
	return &RoomStatus{
		RoomID:        r.id,
		StudentCount:  len(r.students),
		TeacherOnline: r.teacherOnline,
		CanCreatePoll: r.canCreatePollLocked(),
	}, nil
}
