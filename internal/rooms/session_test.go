package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTeacherReconnectKeepsRoomIntact(t *testing.T) {
	s, fb := newTestService(60 * time.Millisecond)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))
	require.NoError(t, s.JoinStudent("s1", "R1", "Alice"))
	require.NoError(t, s.CreatePoll("t1", francePoll()))

	s.HandleDisconnect("t1")
	require.NoError(t, s.JoinTeacher("t2", "R1", "Teacher"))

	time.Sleep(120 * time.Millisecond)

	status, err := s.RoomStatus("R1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.StudentCount)
	assert.Empty(t, fb.sent("room", "R1", EventRoomClosed))

	// Poll state survived the disconnect.
	joined, ok := fb.last("client", "t2", EventTeacherJoined)
	require.True(t, ok)
	snapshot := joined.data.(TeacherJoined)
	require.NotNil(t, snapshot.CurrentPoll)
	assert.True(t, snapshot.CurrentPoll.IsActive)
	assert.Equal(t, "Capital of France?", snapshot.CurrentPoll.Question)
}

func TestTeacherTimeoutDestroysRoom(t *testing.T) {
	s, fb := newTestService(40 * time.Millisecond)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))
	require.NoError(t, s.JoinStudent("s1", "R1", "Alice"))
	require.NoError(t, s.JoinStudent("s2", "R1", "Bob"))

	s.HandleDisconnect("t1")
	time.Sleep(120 * time.Millisecond)

	_, err := s.RoomStatus("R1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	closedEvents := fb.sent("room", "R1", EventRoomClosed)
	require.Len(t, closedEvents, 1)
	assert.ElementsMatch(t, []string{"s1", "s2"}, fb.closedClients())

	// The id is free again only through a fresh teacher join.
	assert.ErrorIs(t, s.JoinStudent("s3", "R1", "Cara"), ErrRoomNotFound)
	require.NoError(t, s.JoinTeacher("t2", "R1", "Teacher"))
	joined, ok := fb.last("client", "t2", EventTeacherJoined)
	require.True(t, ok)
	assert.Empty(t, joined.data.(TeacherJoined).Students)
}

func TestRepeatedDisconnectKeepsSingleWindow(t *testing.T) {
	s, fb := newTestService(60 * time.Millisecond)
	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))

	s.HandleDisconnect("t1")
	require.NoError(t, s.JoinTeacher("t2", "R1", "Teacher"))
	s.HandleDisconnect("t2")
	require.NoError(t, s.JoinTeacher("t3", "R1", "Teacher"))

	time.Sleep(150 * time.Millisecond)

	_, err := s.RoomStatus("R1")
	assert.NoError(t, err)
	assert.Empty(t, fb.sent("room", "R1", EventRoomClosed))
}

type captureArchiver struct {
	calls chan string
}

func (a *captureArchiver) SavePoll(_ context.Context, roomID string, rec *PollRecord) error {
	a.calls <- roomID
	return nil
}

func TestCompletedPollReachesArchiver(t *testing.T) {
	fb := newFakeBroadcaster()
	arch := &captureArchiver{calls: make(chan string, 1)}
	s := NewService(zap.NewNop(), Config{TeacherGraceTTL: time.Minute}, fb, arch)

	require.NoError(t, s.JoinTeacher("t1", "R1", "Teacher"))
	require.NoError(t, s.CreatePoll("t1", francePoll())) // zero students, closes instantly

	select {
	case roomID := <-arch.calls:
		assert.Equal(t, "R1", roomID)
	case <-time.After(time.Second):
		t.Fatal("archiver was not invoked")
	}
}
