package rooms

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(ttl time.Duration) (*Service, *fakeBroadcaster) {
	fb := newFakeBroadcaster()
	s := NewService(zap.NewNop(), Config{TeacherGraceTTL: ttl}, fb, nil)
	return s, fb
}

func TestJoinTeacherCreatesRoom(t *testing.T) {
	s, fb := newTestService(time.Minute)

	require.NoError(t, s.JoinTeacher("t1", "R1", "Ms. Smith"))

	status, err := s.RoomStatus("R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", status.RoomID)
	assert.True(t, status.TeacherOnline)
	assert.True(t, status.CanCreatePoll)
	assert.Equal(t, 0, status.StudentCount)

	joined, ok := fb.last("client", "t1", EventTeacherJoined)
	require.True(t, ok)
	snapshot := joined.data.(TeacherJoined)
	assert.Equal(t, "R1", snapshot.RoomID)
	assert.Empty(t, snapshot.Students)
	assert.Nil(t, snapshot.CurrentPoll)
}

func TestJoinStudentValidation(t *testing.T) {
	s, _ := newTestService(time.Minute)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))

	assert.ErrorIs(t, s.JoinStudent("s1", "nope", "Alice"), ErrRoomNotFound)

	var verr *ValidationError
	assert.ErrorAs(t, s.JoinStudent("s1", "R1", "A"), &verr)
	assert.ErrorAs(t, s.JoinStudent("s1", "R1", ""), &verr)

	require.NoError(t, s.JoinStudent("s1", "R1", "Alice"))
	assert.ErrorIs(t, s.JoinStudent("s2", "R1", "Alice"), ErrNameTaken)

	// Names are case-sensitive: "alice" is a different student.
	require.NoError(t, s.JoinStudent("s2", "R1", "alice"))

	// Length limits count runes, not bytes.
	require.NoError(t, s.JoinStudent("s3", "R1", "Валентина Петрова"))
	assert.ErrorAs(t, s.JoinStudent("s4", "R1", strings.Repeat("я", 31)), &verr)
}

func TestJoinBindsConnectionOnce(t *testing.T) {
	s, fb := newTestService(time.Minute)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))
	require.NoError(t, s.JoinTeacher("t2", "R2", "Teacher"))
	require.NoError(t, s.JoinStudent("s1", "R1", "Alice"))

	// A live binding is immutable: no second join in any direction.
	assert.ErrorIs(t, s.JoinStudent("s1", "R2", "Alice"), ErrAlreadyJoined)
	assert.ErrorIs(t, s.JoinStudent("s1", "R1", "Alice2"), ErrAlreadyJoined)
	assert.ErrorIs(t, s.JoinTeacher("s1", "R3", "Imposter"), ErrAlreadyJoined)
	assert.ErrorIs(t, s.JoinStudent("t1", "R2", "Teach"), ErrAlreadyJoined)

	list, err := s.Participants("t1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[1].Name)

	status, err := s.RoomStatus("R2")
	require.NoError(t, err)
	assert.Equal(t, 0, status.StudentCount)

	// The rejected joins left the original binding intact, so the
	// disconnect cleans up R1 and leaves no ghost behind.
	s.HandleDisconnect("s1")
	status, err = s.RoomStatus("R1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.StudentCount)

	require.NoError(t, s.CreatePoll("t1", francePoll()))
	end, ok := fb.last("teacher", "R1", EventPollEnded)
	require.True(t, ok)
	assert.Equal(t, CompletionAllAnswered, end.data.(PollResults).CompletionReason)
}

func TestParticipantsTeacherFirstThenJoinOrder(t *testing.T) {
	s, _ := newTestService(time.Minute)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))
	require.NoError(t, s.JoinStudent("s1", "R1", "Alice"))
	require.NoError(t, s.JoinStudent("s2", "R1", "Bob"))
	require.NoError(t, s.JoinStudent("s3", "R1", "Cara"))

	list, err := s.Participants("s2")
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, RoleTeacher, list[0].Role)
	assert.Equal(t, "Teacher", list[0].Name)
	assert.Equal(t, []string{"Alice", "Bob", "Cara"},
		[]string{list[1].Name, list[2].Name, list[3].Name})

	_, err = s.Participants("stranger")
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestChatIdentityStampedFromBinding(t *testing.T) {
	s, fb := newTestService(time.Minute)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))
	require.NoError(t, s.JoinStudent("s1", "R1", "Alice"))

	require.NoError(t, s.SendChat("s1", "hello"))

	e, ok := fb.last("room", "R1", EventNewMessage)
	require.True(t, ok)
	msg := e.data.(ChatMessage)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "s1", msg.SenderID)
	assert.Equal(t, "Alice", msg.SenderName)
	assert.Equal(t, RoleStudent, msg.SenderRole)
	assert.NotZero(t, msg.Timestamp)

	assert.ErrorIs(t, s.SendChat("stranger", "hi"), ErrNotInRoom)
}

func TestChatHistoryDeliveredOnTeacherRejoin(t *testing.T) {
	s, fb := newTestService(time.Minute)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))
	require.NoError(t, s.JoinStudent("s1", "R1", "Alice"))
	require.NoError(t, s.SendChat("s1", "first"))
	require.NoError(t, s.SendChat("t1", "second"))

	s.HandleDisconnect("t1")
	require.NoError(t, s.JoinTeacher("t2", "R1", "Teacher"))

	joined, ok := fb.last("client", "t2", EventTeacherJoined)
	require.True(t, ok)
	snapshot := joined.data.(TeacherJoined)
	require.Len(t, snapshot.Chat, 2)
	assert.Equal(t, "first", snapshot.Chat[0].Text)
	assert.Equal(t, RoleTeacher, snapshot.Chat[1].SenderRole)
}

func TestStudentDisconnectUpdatesRoster(t *testing.T) {
	s, fb := newTestService(time.Minute)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))
	require.NoError(t, s.JoinStudent("s1", "R1", "Alice"))
	require.NoError(t, s.JoinStudent("s2", "R1", "Bob"))

	s.HandleDisconnect("s1")

	e, ok := fb.last("teacher", "R1", EventStudentLeft)
	require.True(t, ok)
	roster := e.data.(RosterUpdate)
	require.Len(t, roster.Students, 1)
	assert.Equal(t, "Bob", roster.Students[0].Name)

	// The dropped binding is gone: further events are no-ops.
	s.HandleDisconnect("s1")
	assert.Len(t, fb.sent("teacher", "R1", EventStudentLeft), 1)
}

func TestRoomStatusUnknownRoom(t *testing.T) {
	s, _ := newTestService(time.Minute)
	_, err := s.RoomStatus("nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
