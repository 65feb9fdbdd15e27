package rooms

import (
	"time"

	"go.uber.org/zap"
)

// teacherDisconnected opens the session grace window for a room. The
// room and everything in it survive until the window expires; a
// reconnecting teacher cancels it. A repeated disconnect replaces the
// running timer so at most one window exists per room.
func (s *Service) teacherDisconnected(r *Room, clientID string) {
	r.mu.Lock()
	if r.closed || r.teacherID != clientID {
		// A newer teacher connection already owns the room.
		r.mu.Unlock()
		return
	}
	r.teacherOnline = false
	if r.graceTimer != nil {
		r.graceTimer.Stop()
	}
	r.graceTimer = time.AfterFunc(s.cfg.TeacherGraceTTL, func() {
		s.expireTeacherSession(r)
	})
	roomID := r.id
	r.mu.Unlock()

	s.logger.Info("teacher disconnected, grace window started",
		zap.String("room_id", roomID),
		zap.Duration("ttl", s.cfg.TeacherGraceTTL))
}

// expireTeacherSession tears the room down after the grace window
// elapsed without a teacher reconnect: every student is notified and
// force-disconnected, then the room is deleted from the registry. The
// teacherOnline re-check makes a racing reconnect win over a timer that
// was cancelled too late.
func (s *Service) expireTeacherSession(r *Room) {
	r.mu.Lock()
	if r.closed || r.teacherOnline {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.stopTimersLocked()
	studentIDs := append([]string(nil), r.joinOrder...)
	roomID := r.id
	r.mu.Unlock()

	s.removeRoom(roomID)

	s.broadcaster.ToRoom(roomID, EventRoomClosed, Notice{
		Message: "Teacher session expired. Room has been closed.",
	})
	for _, cid := range studentIDs {
		s.unbindIdentity(cid)
		s.broadcaster.RemoveFromRoom(roomID, cid)
		s.broadcaster.CloseClient(cid)
	}

	s.logger.Info("teacher session expired, room closed",
		zap.String("room_id", roomID),
		zap.Int("students_disconnected", len(studentIDs)))
}
