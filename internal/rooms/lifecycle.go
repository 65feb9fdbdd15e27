package rooms

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CreatePoll starts a new poll in the caller's room. Only the room's
// teacher (per its binding, not the payload) may create one, and only
// while no poll is active. Creation resets every student's answered
// flag, captures the active-students snapshot, arms the deadline timer
// and immediately re-checks completion so a room with zero students
// closes the poll on the spot.
func (s *Service) CreatePoll(clientID string, req CreatePollRequest) error {
	id := s.identity(clientID)
	if id == nil || id.Role != RoleTeacher {
		return ErrUnauthorized
	}
	if err := validatePollRequest(req); err != nil {
		return err
	}
	r := s.room(id.RoomID)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if r.teacherID != clientID {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	if !r.canCreatePollLocked() {
		r.mu.Unlock()
		return ErrPollInProgress
	}

	poll := newPoll(req.Question, append([]string(nil), req.Options...),
		time.Duration(req.DurationSeconds)*time.Second, req.CorrectOptionIndex)
	for cid, st := range r.students {
		st.HasAnswered = false
		poll.activeStudents[cid] = struct{}{}
	}
	r.activePoll = poll

	if r.pollTimer != nil {
		r.pollTimer.Stop()
	}
	// The deadline races answer/removal events toward completePoll;
	// whichever fires first wins and the other becomes a no-op.
	r.pollTimer = time.AfterFunc(poll.Duration, func() {
		s.completePoll(r, poll, CompletionTimeExpired)
	})

	started := studentPollStarted(poll)
	teacherView := r.teacherPollLocked()
	done := poll.allAnsweredLocked(r)
	activeCount := len(poll.activeStudents)
	r.mu.Unlock()

	s.broadcaster.ToStudents(id.RoomID, EventPollStarted, started)
	s.broadcaster.ToTeacher(id.RoomID, EventPollStarted, teacherView)

	s.logger.Info("poll created",
		zap.String("room_id", id.RoomID),
		zap.String("question", poll.Question),
		zap.Int("active_students", activeCount),
		zap.Duration("duration", poll.Duration))

	if done {
		s.completePoll(r, poll, CompletionAllAnswered)
	}
	return nil
}

// SubmitAnswer records a student's single answer to the active poll and
// re-evaluates the all-answered completion condition.
func (s *Service) SubmitAnswer(clientID string, optionIndex int) error {
	id := s.identity(clientID)
	if id == nil || id.Role != RoleStudent {
		return ErrNotInRoom
	}
	r := s.room(id.RoomID)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	poll := r.activePoll
	if poll == nil || !poll.IsActive {
		r.mu.Unlock()
		return ErrPollNotActive
	}
	st, ok := r.students[clientID]
	if !ok {
		r.mu.Unlock()
		return ErrNotInRoom
	}
	if st.HasAnswered {
		r.mu.Unlock()
		return ErrAlreadyAnswered
	}
	if optionIndex < 0 || optionIndex >= len(poll.Options) {
		r.mu.Unlock()
		return invalid("option_index", "must reference one of the options")
	}
	// Defends against a stale client submitting after the deadline
	// already passed but before the timer callback ran.
	if time.Since(poll.StartTime) > poll.Duration {
		r.mu.Unlock()
		return ErrPollTimeExpired
	}

	poll.answers[clientID] = optionIndex
	st.HasAnswered = true
	live := r.liveResultsLocked(poll)
	done := poll.allAnsweredLocked(r)
	r.mu.Unlock()

	s.broadcaster.ToClient(clientID, EventAnswerAck, AnswerAck{OptionIndex: optionIndex})
	s.broadcaster.ToTeacher(id.RoomID, EventLiveResults, live)

	s.logger.Debug("answer submitted",
		zap.String("room_id", id.RoomID),
		zap.String("client_id", clientID),
		zap.Int("option_index", optionIndex))

	if done {
		s.completePoll(r, poll, CompletionAllAnswered)
	}
	return nil
}

// RemoveStudent kicks a student on the teacher's behalf. The student
// leaves the snapshot too, so a removal can close the poll with no
// further answers.
func (s *Service) RemoveStudent(clientID, targetID string) error {
	id := s.identity(clientID)
	if id == nil || id.Role != RoleTeacher {
		return ErrUnauthorized
	}
	r := s.room(id.RoomID)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if r.teacherID != clientID {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	if _, ok := r.students[targetID]; !ok {
		r.mu.Unlock()
		return ErrNotInRoom
	}
	r.dropStudentLocked(targetID)
	roster := r.rosterLocked()
	poll := r.activePoll
	done := poll != nil && poll.IsActive && poll.allAnsweredLocked(r)
	r.mu.Unlock()

	// Unbind before the forced disconnect so the transport's
	// disconnect callback treats the connection as already gone.
	s.unbindIdentity(targetID)
	s.broadcaster.RemoveFromRoom(id.RoomID, targetID)
	s.broadcaster.ToClient(targetID, EventKicked, Notice{Message: "You have been removed by the teacher"})
	s.broadcaster.CloseClient(targetID)
	s.broadcaster.ToTeacher(id.RoomID, EventStudentRemoved, RosterUpdate{Students: roster})

	s.logger.Info("student removed",
		zap.String("room_id", id.RoomID), zap.String("client_id", targetID))

	if done {
		s.completePoll(r, poll, CompletionAllAnswered)
	}
	return nil
}

// completePoll is the single idempotent close operation both completion
// signals funnel into. The isActive guard makes the losing signal a
// no-op even when its timer cancellation was too late, and the poll
// pointer comparison ignores stale timers from earlier polls.
func (s *Service) completePoll(r *Room, poll *Poll, reason CompletionReason) {
	r.mu.Lock()
	if r.closed || r.activePoll != poll || !poll.IsActive {
		r.mu.Unlock()
		return
	}
	poll.IsActive = false
	poll.CompletionReason = reason
	poll.EndTime = time.Now()
	if r.pollTimer != nil {
		r.pollTimer.Stop()
		r.pollTimer = nil
	}

	rec := poll.record()
	r.history = append(r.history, rec)

	results := r.pollResultsLocked(rec)
	perStudent := make(map[string]*MyAnswer, len(r.students))
	for cid := range r.students {
		if idx, ok := rec.Answers[cid]; ok {
			perStudent[cid] = &MyAnswer{
				OptionIndex: idx,
				IsCorrect:   idx == rec.CorrectOptionIndex,
			}
		} else {
			perStudent[cid] = nil
		}
	}
	roomID := r.id
	r.mu.Unlock()

	// Per-student correctness goes only to that student's connection.
	for cid, mine := range perStudent {
		s.broadcaster.ToClient(cid, EventPollEnded, StudentPollEnded{
			PollResults: results,
			MyAnswer:    mine,
		})
	}
	s.broadcaster.ToTeacher(roomID, EventPollEnded, results)

	s.logger.Info("poll ended",
		zap.String("room_id", roomID),
		zap.String("reason", string(reason)),
		zap.Int("total_votes", rec.TotalVotes))

	if s.archiver != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.archiver.SavePoll(ctx, roomID, rec); err != nil {
				s.logger.Warn("poll archive failed",
					zap.String("room_id", roomID), zap.Error(err))
			}
		}()
	}
}

// canCreatePollLocked: a new poll is allowed when none exists or the
// existing one has ended. Caller holds r.mu.
func (r *Room) canCreatePollLocked() bool {
	return r.activePoll == nil || !r.activePoll.IsActive
}

func studentPollStarted(p *Poll) *PollStarted {
	remaining := time.Until(p.TimerEndsAt)
	if remaining < 0 {
		remaining = 0
	}
	return &PollStarted{
		Question:        p.Question,
		Options:         append([]string(nil), p.Options...),
		DurationSeconds: int(p.Duration / time.Second),
		StartTime:       p.StartTime.UnixMilli(),
		TimeRemainingMS: remaining.Milliseconds(),
	}
}

// teacherPollLocked is the teacher's live view of the current poll, or
// nil when the room has never run one. Caller holds r.mu.
func (r *Room) teacherPollLocked() *TeacherPoll {
	p := r.activePoll
	if p == nil {
		return nil
	}
	return &TeacherPoll{
		Question:           p.Question,
		Options:            append([]string(nil), p.Options...),
		CorrectOptionIndex: p.CorrectOptionIndex,
		Results:            p.tally(),
		TotalVotes:         len(p.answers),
		TotalStudents:      len(r.students),
		ActiveStudents:     len(p.activeStudents),
		StartTime:          p.StartTime.UnixMilli(),
		DurationSeconds:    int(p.Duration / time.Second),
		TimerEndsAt:        p.TimerEndsAt.UnixMilli(),
		IsActive:           p.IsActive,
		CompletionReason:   p.CompletionReason,
	}
}

func (r *Room) liveResultsLocked(p *Poll) LiveResults {
	return LiveResults{
		Results:        p.tally(),
		TotalVotes:     len(p.answers),
		TotalStudents:  len(r.students),
		ActiveStudents: len(p.activeStudents),
	}
}

func (r *Room) pollResultsLocked(rec *PollRecord) PollResults {
	return PollResults{
		Question:           rec.Question,
		Options:            rec.Options,
		CorrectOptionIndex: rec.CorrectOptionIndex,
		Results:            rec.Tally,
		Percentages:        percentages(rec.Tally, rec.TotalVotes),
		TotalVotes:         rec.TotalVotes,
		TotalStudents:      len(r.students),
		CompletionReason:   rec.CompletionReason,
		StartTime:          rec.StartTime.UnixMilli(),
		EndTime:            rec.EndTime.UnixMilli(),
	}
}

// historyLocked formats the room's completed polls, oldest first, with
// 1-based sequence ids. Caller holds r.mu.
func (r *Room) historyLocked() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(r.history))
	for i, rec := range r.history {
		out = append(out, HistoryEntry{
			ID:                 i + 1,
			Question:           rec.Question,
			Options:            rec.Options,
			CorrectOptionIndex: rec.CorrectOptionIndex,
			Results:            rec.Tally,
			Percentages:        percentages(rec.Tally, rec.TotalVotes),
			TotalVotes:         rec.TotalVotes,
			StartTime:          rec.StartTime.UnixMilli(),
			EndTime:            rec.EndTime.UnixMilli(),
			CompletionReason:   rec.CompletionReason,
		})
	}
	return out
}
