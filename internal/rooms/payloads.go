package rooms

// Wire payloads for server→client events. Timestamps are Unix
// milliseconds so clients can run their own countdown against the
// server-asserted deadline.

// RosterEntry is one student row in the teacher's roster pushes.
type RosterEntry struct {
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	HasAnswered bool   `json:"has_answered"`
}

// Participant is one entry of participants_list: teacher first, then
// students in join order.
type Participant struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// ChatMessage is a room-scoped chat entry. All identity fields are
// stamped by the server from the sender's binding, never taken from
// the inbound payload.
type ChatMessage struct {
	Text       string `json:"text"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	SenderRole Role   `json:"sender_role"`
	Timestamp  int64  `json:"timestamp"`
}

// JoinSuccess acknowledges a student join.
type JoinSuccess struct {
	ClientID string `json:"client_id"`
	RoomID   string `json:"room_id"`
	Name     string `json:"name"`
}

// TeacherJoined is the full room snapshot sent to a (re)joining teacher.
type TeacherJoined struct {
	RoomID      string         `json:"room_id"`
	Students    []RosterEntry  `json:"students"`
	CurrentPoll *TeacherPoll   `json:"current_poll"`
	History     []HistoryEntry `json:"history"`
	Chat        []ChatMessage  `json:"chat"`
}

// PollStarted announces a new question to students. It deliberately has
// no field for the correct option: nothing here can leak correctness
// while the poll is active.
type PollStarted struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	DurationSeconds int      `json:"duration_seconds"`
	StartTime       int64    `json:"start_time"`
	TimeRemainingMS int64    `json:"time_remaining_ms"`
}

// TeacherPoll is the teacher's view of the current poll, including the
// correct option and live counts.
type TeacherPoll struct {
	Question           string           `json:"question"`
	Options            []string         `json:"options"`
	CorrectOptionIndex int              `json:"correct_option_index"`
	Results            []int            `json:"results"`
	TotalVotes         int              `json:"total_votes"`
	TotalStudents      int              `json:"total_students"`
	ActiveStudents     int              `json:"active_students"`
	StartTime          int64            `json:"start_time"`
	DurationSeconds    int              `json:"duration_seconds"`
	TimerEndsAt        int64            `json:"timer_ends_at"`
	IsActive           bool             `json:"is_active"`
	CompletionReason   CompletionReason `json:"completion_reason,omitempty"`
}

// LiveResults is the teacher-only running tally after each accepted
// answer.
type LiveResults struct {
	Results        []int `json:"results"`
	TotalVotes     int   `json:"total_votes"`
	TotalStudents  int   `json:"total_students"`
	ActiveStudents int   `json:"active_students"`
}

// AnswerAck confirms an accepted answer to its submitter. No
// correctness information until the poll closes.
type AnswerAck struct {
	OptionIndex int `json:"option_index"`
}

// PollResults is the aggregate result revealed at close.
type PollResults struct {
	Question           string           `json:"question"`
	Options            []string         `json:"options"`
	CorrectOptionIndex int              `json:"correct_option_index"`
	Results            []int            `json:"results"`
	Percentages        []int            `json:"percentages"`
	TotalVotes         int              `json:"total_votes"`
	TotalStudents      int              `json:"total_students"`
	CompletionReason   CompletionReason `json:"completion_reason"`
	StartTime          int64            `json:"start_time"`
	EndTime            int64            `json:"end_time"`
}

// MyAnswer is the per-student correctness detail, delivered only to
// that student's connection once the poll has closed.
type MyAnswer struct {
	OptionIndex int  `json:"option_index"`
	IsCorrect   bool `json:"is_correct"`
}

// StudentPollEnded pairs the aggregate results with the recipient's own
// answer (null if they never answered).
type StudentPollEnded struct {
	PollResults
	MyAnswer *MyAnswer `json:"my_answer"`
}

// HistoryEntry is one completed poll in poll_history responses.
type HistoryEntry struct {
	ID                 int              `json:"id"`
	Question           string           `json:"question"`
	Options            []string         `json:"options"`
	CorrectOptionIndex int              `json:"correct_option_index"`
	Results            []int            `json:"results"`
	Percentages        []int            `json:"percentages"`
	TotalVotes         int              `json:"total_votes"`
	StartTime          int64            `json:"start_time"`
	EndTime            int64            `json:"end_time"`
	CompletionReason   CompletionReason `json:"completion_reason"`
}

// RosterUpdate carries the refreshed roster on student_joined,
// student_left and student_removed.
type RosterUpdate struct {
	Students []RosterEntry `json:"students"`
}

// Notice is a human-readable server notification (kicked, room_closed,
// *_error events).
type Notice struct {
	Message string `json:"message"`
}

// RoomStatus is the REST view of a room used by clients before joining.
type RoomStatus struct {
	RoomID        string `json:"room_id"`
	StudentCount  int    `json:"student_count"`
	TeacherOnline bool   `json:"teacher_online"`
	CanCreatePoll bool   `json:"can_create_poll"`
}

// CreatePollRequest is the teacher's create_poll payload.
type CreatePollRequest struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	DurationSeconds    int      `json:"duration_seconds"`
	CorrectOptionIndex int      `json:"correct_option_index"`
}
