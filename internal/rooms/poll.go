package rooms

import (
	"math"
	"time"
)

// CompletionReason records why a poll closed, exactly once per poll.
type CompletionReason string

const (
	CompletionTimeExpired CompletionReason = "TIME_EXPIRED"
	CompletionAllAnswered CompletionReason = "ALL_ANSWERED"
)

// Poll duration and option limits.
const (
	MinPollDuration = 10 * time.Second
	MaxPollDuration = 300 * time.Second
	MinPollOptions  = 2
	MaxPollOptions  = 6
)

// Poll is the single in-progress poll of a room. The correct option
// index is held server-side and never serialized toward students while
// the poll is active.
type Poll struct {
	Question           string
	Options            []string
	CorrectOptionIndex int
	StartTime          time.Time
	Duration           time.Duration
	TimerEndsAt        time.Time
	IsActive           bool
	CompletionReason   CompletionReason
	EndTime            time.Time

	// answers maps client ID to chosen option index.
	answers map[string]int

	// activeStudents is the snapshot of student connections present at
	// poll creation. It only shrinks (disconnect, removal); students
	// joining mid-poll are never added and so never gate completion.
	activeStudents map[string]struct{}
}

func newPoll(question string, options []string, duration time.Duration, correctIndex int) *Poll {
	now := time.Now()
	return &Poll{
		Question:           question,
		Options:            options,
		CorrectOptionIndex: correctIndex,
		StartTime:          now,
		Duration:           duration,
		TimerEndsAt:        now.Add(duration),
		IsActive:           true,
		answers:            make(map[string]int),
		activeStudents:     make(map[string]struct{}),
	}
}

func validatePollRequest(req CreatePollRequest) error {
	if req.Question == "" {
		return invalid("question", "must not be empty")
	}
	if len(req.Options) < MinPollOptions || len(req.Options) > MaxPollOptions {
		return invalid("options", "must have 2-6 entries")
	}
	for _, o := range req.Options {
		if o == "" {
			return invalid("options", "must not contain empty entries")
		}
	}
	if req.CorrectOptionIndex < 0 || req.CorrectOptionIndex >= len(req.Options) {
		return invalid("correct_option_index", "must reference one of the options")
	}
	d := time.Duration(req.DurationSeconds) * time.Second
	if d < MinPollDuration || d > MaxPollDuration {
		return invalid("duration_seconds", "must be between 10 and 300")
	}
	return nil
}

// allAnsweredLocked reports whether every member of the snapshot has
// answered or is no longer present in the room. An empty snapshot is
// vacuously complete. Caller holds the room lock.
func (p *Poll) allAnsweredLocked(r *Room) bool {
	for id := range p.activeStudents {
		s, ok := r.students[id]
		if !ok {
			continue // disconnected members never block completion
		}
		if !s.HasAnswered {
			return false
		}
	}
	return true
}

// tally counts votes per option.
func (p *Poll) tally() []int {
	counts := make([]int, len(p.Options))
	for _, idx := range p.answers {
		if idx >= 0 && idx < len(counts) {
			counts[idx]++
		}
	}
	return counts
}

// PollRecord is a frozen copy of a completed poll, immutable once
// appended to a room's history.
type PollRecord struct {
	Question           string
	Options            []string
	CorrectOptionIndex int
	Answers            map[string]int
	Tally              []int
	TotalVotes         int
	StartTime          time.Time
	EndTime            time.Time
	CompletionReason   CompletionReason
}

// record freezes the poll for history. Called once, at close.
func (p *Poll) record() *PollRecord {
	answers := make(map[string]int, len(p.answers))
	for id, idx := range p.answers {
		answers[id] = idx
	}
	return &PollRecord{
		Question:           p.Question,
		Options:            append([]string(nil), p.Options...),
		CorrectOptionIndex: p.CorrectOptionIndex,
		Answers:            answers,
		Tally:              p.tally(),
		TotalVotes:         len(p.answers),
		StartTime:          p.StartTime,
		EndTime:            p.EndTime,
		CompletionReason:   p.CompletionReason,
	}
}

func percentages(tally []int, totalVotes int) []int {
	out := make([]int, len(tally))
	if totalVotes == 0 {
		return out
	}
	for i, c := range tally {
		out[i] = int(math.Round(float64(c) / float64(totalVotes) * 100))
	}
	return out
}
