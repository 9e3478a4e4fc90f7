package domain

// PlayerProgress is owned and mutated by one side only. The copy a player
// holds of its opponent is a mirror written solely by inbound PROGRESS.
//
// Invariants: IsFinished == (CurrentQuestionIndex >= question count); Score
// grows by exactly one, and only when the attempt count of the current
// question reaches one on a correct answer.
type PlayerProgress struct {
	Score                int            `json:"score"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	Attempts             map[string]int `json:"attempts"`
	IsFinished           bool           `json:"isFinished"`
	IsWaiting            bool           `json:"isWaiting"`
}

// NewProgress returns the progress of a player at quiz start.
func NewProgress() PlayerProgress {
	return PlayerProgress{Attempts: map[string]int{}}
}

// Clone copies the attempts map so the result can be handed out safely.
func (p PlayerProgress) Clone() PlayerProgress {
	attempts := make(map[string]int, len(p.Attempts))
	for id, n := range p.Attempts {
		attempts[id] = n
	}
	p.Attempts = attempts
	return p
}

// Answer applies one answer to question q of a quiz with total questions.
// A wrong answer records the attempt and keeps the index so the player can
// retry. A correct answer advances; it scores only on the first attempt.
// The caller guarantees q is the current question.
func (p PlayerProgress) Answer(q Question, answer string, total int) (PlayerProgress, bool) {
	next := p.Clone()
	next.Attempts[q.ID]++

	if !q.Accepts(answer) {
		return next, false
	}

	if next.Attempts[q.ID] == 1 {
		next.Score++
	}
	next.CurrentQuestionIndex++
	next.IsFinished = next.CurrentQuestionIndex >= total
	next.IsWaiting = !next.IsFinished
	return next, true
}

// Release ends the settle delay.
func (p PlayerProgress) Release() PlayerProgress {
	next := p.Clone()
	next.IsWaiting = false
	return next
}
