package rooms

// Server→client event names.
const (
	EventTeacherJoined  = "teacher_joined"
	EventJoinSuccess    = "join_success"
	EventJoinError      = "join_error"
	EventPollStarted    = "poll_started"
	EventPollError      = "poll_error"
	EventAnswerAck      = "answer_submitted"
	EventAnswerError    = "answer_error"
	EventLiveResults    = "live_results"
	EventPollEnded      = "poll_ended"
	EventKicked         = "kicked"
	EventStudentJoined  = "student_joined"
	EventStudentLeft    = "student_left"
	EventStudentRemoved = "student_removed"
	EventNewMessage     = "new_message"
	EventParticipants   = "participants_list"
	EventPollHistory    = "poll_history"
	EventRoomClosed     = "room_closed"
)

// Broadcaster is the room-scoped delivery surface the service emits
// through: everyone in a room, the teacher of a room, the students of a
// room, or a single connection. The realtime hub implements it; tests
// substitute a recorder.
type Broadcaster interface {
	AddToRoom(roomID, clientID string, role Role)
	RemoveFromRoom(roomID, clientID string)
	ToRoom(roomID, event string, data any)
	ToTeacher(roomID, event string, data any)
	ToStudents(roomID, event string, data any)
	ToClient(clientID, event string, data any)
	// CloseClient force-disconnects a connection after any queued
	// events have been flushed.
	CloseClient(clientID string)
}
