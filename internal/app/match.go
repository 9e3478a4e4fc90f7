package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quizsnap/internal/domain"
	"quizsnap/internal/protocol"
	"quizsnap/internal/transport/p2p"
)

// DefaultSettleDelay is the pause after a correct answer before the next question.
const DefaultSettleDelay = 800 * time.Millisecond

// Role is the part a player takes in a match.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
	RoleSolo  Role = "solo"
)

// State is a step of the match lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateGenerating    State = "generating"
	StateHosting       State = "hosting"
	StateJoining       State = "joining"
	StateAwaitingQuiz  State = "awaiting_quiz"
	StateQuizDelivered State = "quiz_delivered"
	StateInProgress    State = "in_progress"
	StateFinished      State = "finished"
)

// Outcome is the result shown on the finish screen.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeDraw Outcome = "draw"
	OutcomeLoss Outcome = "loss"
	OutcomeSolo Outcome = "solo"
)

// AnswerResult summarizes one answer for the submitting player.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
	Finished   bool   `json:"finished"`
}

// Snapshot is a read-only view of a match for rendering.
type Snapshot struct {
	Role          Role
	State         State
	RoomID        string
	Questions     []domain.Question
	Config        domain.QuizConfig
	Local         domain.PlayerProgress
	Opponent      domain.PlayerProgress
	PeerConnected bool
	Err           error
}

// CurrentQuestion returns the question the local player is on.
func (s Snapshot) CurrentQuestion() (domain.Question, bool) {
	idx := s.Local.CurrentQuestionIndex
	if idx < 0 || idx >= len(s.Questions) {
		return domain.Question{}, false
	}
	return s.Questions[idx], true
}

// Option configures a Match.
type Option func(*Match)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Match) { m.settleDelay = d }
}

// WithTimer replaces time.AfterFunc; the returned func stops the timer.
func WithTimer(afterFunc func(time.Duration, func()) func() bool) Option {
	return func(m *Match) { m.afterFunc = afterFunc }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Match) { m.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(m *Match) { m.log = log }
}

// Match drives one player's side of a quiz: room setup, quiz delivery,
// answering, and the mirror of the opponent's progress. Each side runs its
// own Match; the two only meet through INIT_QUIZ and PROGRESS messages.
type Match struct {
	generator   QuizGenerator
	network     Network
	history     HistoryStore
	log         zerolog.Logger
	settleDelay time.Duration
	afterFunc   func(time.Duration, func()) func() bool
	now         func() time.Time

	mu            sync.Mutex
	role          Role
	state         State
	roomID        string
	questions     []domain.Question
	config        domain.QuizConfig
	local         domain.PlayerProgress
	mirror        domain.PlayerProgress
	channel       Channel
	peerConnected bool
	lastErr       error
	unhosted      *pendingQuiz
	stopSettle    func() bool
	settleSeq     int
	closed        bool
	subscribers   map[chan Snapshot]struct{}
}

// pendingQuiz is a generated quiz whose room could not be registered.
type pendingQuiz struct {
	questions []domain.Question
	config    domain.QuizConfig
}

// NewMatch builds an idle match. network and history may be nil for solo play
// without persistence.
func NewMatch(generator QuizGenerator, network Network, history HistoryStore, opts ...Option) *Match {
	m := &Match{
		generator:   generator,
		network:     network,
		history:     history,
		log:         zerolog.Nop(),
		settleDelay: DefaultSettleDelay,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		now:         time.Now,
		state:       StateIdle,
		local:       domain.NewProgress(),
		mirror:      domain.NewProgress(),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Host generates a quiz from src and opens a room for a guest. It returns
// the room code to share. INIT_QUIZ is sent once the guest connects.
func (m *Match) Host(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) (string, error) {
	if m.network == nil {
		return "", fmt.Errorf("%w: no peer network configured", domain.ErrInvalidState)
	}
	if err := m.generate(ctx, RoleHost, src, cfg); err != nil {
		return "", err
	}
	return m.openRoom(ctx)
}

// RetryHost opens a room for the quiz kept from a Host call that failed
// with domain.ErrSignallingUnavailable, without generating it again.
func (m *Match) RetryHost(ctx context.Context) (string, error) {
	if m.network == nil {
		return "", fmt.Errorf("%w: no peer network configured", domain.ErrInvalidState)
	}

	m.mu.Lock()
	kept := m.unhosted
	if kept == nil {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: no quiz waiting for a room", domain.ErrInvalidState)
	}
	if err := m.beginLocked(RoleHost, StateGenerating); err != nil {
		m.mu.Unlock()
		return "", err
	}
	m.questions = kept.questions
	m.config = kept.config
	m.broadcastLocked()
	m.mu.Unlock()

	return m.openRoom(ctx)
}

func (m *Match) openRoom(ctx context.Context) (string, error) {
	ch, err := m.network.OpenRoom(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return "", domain.ErrSessionClosed
	}
	if err != nil {
		kept := &pendingQuiz{questions: m.questions, config: m.config}
		m.resetLocked(err)
		if errors.Is(err, domain.ErrSignallingUnavailable) {
			m.unhosted = kept
		}
		m.mu.Unlock()
		m.log.Warn().Err(err).Msg("open room failed")
		return "", err
	}
	m.channel = ch
	m.roomID = ch.RoomID()
	m.state = StateHosting
	m.broadcastLocked()
	roomID := m.roomID
	m.mu.Unlock()

	go m.run(ch)
	m.log.Info().Str("room", roomID).Int("questions", len(m.Snapshot().Questions)).Msg("hosting match")
	return roomID, nil
}

// Join connects to the host registered under roomID and waits for INIT_QUIZ.
// On failure the match stays idle and no channel is retained.
func (m *Match) Join(ctx context.Context, roomID string) error {
	if m.network == nil {
		return fmt.Errorf("%w: no peer network configured", domain.ErrInvalidState)
	}

	m.mu.Lock()
	if err := m.beginLocked(RoleGuest, StateJoining); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	ch, err := m.network.JoinRoom(ctx, roomID)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return domain.ErrSessionClosed
	}
	if err != nil {
		m.resetLocked(err)
		m.mu.Unlock()
		m.log.Info().Err(err).Str("room", roomID).Msg("join failed")
		return err
	}
	m.channel = ch
	m.roomID = roomID
	m.peerConnected = true
	m.state = StateAwaitingQuiz
	m.broadcastLocked()
	m.mu.Unlock()

	go m.run(ch)
	return nil
}

// Solo generates a quiz for single-player mastery mode.
func (m *Match) Solo(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) error {
	if err := m.generate(ctx, RoleSolo, src, cfg); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrSessionClosed
	}
	m.state = StateQuizDelivered
	m.broadcastLocked()
	return nil
}

// Replay loads a quiz from history for solo play.
func (m *Match) Replay(summary domain.MatchSummary) error {
	questions, err := ValidateQuiz(summary.Questions, summary.Config)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(RoleSolo, StateQuizDelivered); err != nil {
		return err
	}
	m.questions = questions
	m.config = summary.Config
	m.broadcastLocked()
	return nil
}

// Start begins answering a delivered quiz.
func (m *Match) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrSessionClosed
	}
	if m.state != StateQuizDelivered {
		return fmt.Errorf("%w: start from %s", domain.ErrInvalidState, m.state)
	}
	m.local = domain.NewProgress()
	m.state = StateInProgress
	m.broadcastLocked()
	return nil
}

// Answer submits an answer to the current question. A wrong answer can be
// retried; only a first-try correct answer scores. Every change is pushed to
// the peer as PROGRESS without waiting for delivery.
func (m *Match) Answer(ctx context.Context, answer string) (AnswerResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return AnswerResult{}, domain.ErrSessionClosed
	}
	if m.state != StateInProgress {
		state := m.state
		m.mu.Unlock()
		return AnswerResult{}, fmt.Errorf("%w: answer in %s", domain.ErrInvalidState, state)
	}
	if m.local.IsWaiting {
		m.mu.Unlock()
		return AnswerResult{}, domain.ErrSettling
	}

	question := m.questions[m.local.CurrentQuestionIndex]
	next, correct := m.local.Answer(question, answer, len(m.questions))
	result := AnswerResult{
		QuestionID: question.ID,
		Correct:    correct,
		Awarded:    next.Score - m.local.Score,
		TotalScore: next.Score,
		Finished:   next.IsFinished,
	}
	m.local = next
	m.sendLocked(protocol.NewProgress(next))

	var summary *domain.MatchSummary
	switch {
	case next.IsFinished:
		m.state = StateFinished
		s := m.summaryLocked()
		summary = &s
	case correct:
		m.scheduleSettleLocked()
	}
	m.broadcastLocked()
	m.mu.Unlock()

	if summary != nil && m.history != nil {
		if err := m.history.Append(ctx, *summary); err != nil {
			m.log.Warn().Err(err).Msg("record match history")
		}
	}
	return result, nil
}

// Outcome compares the final local score with the latest opponent mirror.
// The mirror may not yet hold the opponent's final PROGRESS.
func (m *Match) Outcome() (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFinished {
		return "", fmt.Errorf("%w: outcome in %s", domain.ErrInvalidState, m.state)
	}
	if m.role == RoleSolo {
		return OutcomeSolo, nil
	}
	switch {
	case m.local.Score > m.mirror.Score:
		return OutcomeWin, nil
	case m.local.Score < m.mirror.Score:
		return OutcomeLoss, nil
	default:
		return OutcomeDraw, nil
	}
}

// Snapshot returns the current view of the match.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Updates returns a channel receiving a snapshot after every change. The
// latest snapshot replaces an unread one. Call cancel to unsubscribe.
func (m *Match) Updates() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	if m.closed {
		ch <- m.snapshotLocked()
		close(ch)
		m.mu.Unlock()
		return ch, func() {}
	}
	m.subscribers[ch] = struct{}{}
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// Close ends the session: the settle timer is stopped, the channel is
// released, and late network events or generation results are ignored.
func (m *Match) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancelSettleLocked()
	ch := m.channel
	m.channel = nil
	m.peerConnected = false
	for sub := range m.subscribers {
		close(sub)
	}
	m.subscribers = map[chan Snapshot]struct{}{}
	m.mu.Unlock()

	if ch != nil {
		return ch.Close()
	}
	return nil
}

func (m *Match) generate(ctx context.Context, role Role, src domain.LessonSource, cfg domain.QuizConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.beginLocked(role, StateGenerating); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	questions, err := m.generator.GenerateQuiz(ctx, src, cfg)
	if err == nil {
		questions, err = ValidateQuiz(questions, cfg)
	}
	if err != nil && !errors.Is(err, domain.ErrGenerationFailed) {
		err = fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrSessionClosed
	}
	if err != nil {
		m.resetLocked(err)
		m.log.Warn().Err(err).Msg("quiz generation failed")
		return err
	}
	m.questions = questions
	m.config = cfg
	m.broadcastLocked()
	return nil
}

func (m *Match) beginLocked(role Role, state State) error {
	if m.closed {
		return domain.ErrSessionClosed
	}
	if m.state != StateIdle {
		return fmt.Errorf("%w: already %s", domain.ErrInvalidState, m.state)
	}
	m.role = role
	m.state = state
	m.lastErr = nil
	m.unhosted = nil
	m.broadcastLocked()
	return nil
}

// resetLocked returns to idle and drops any partial quiz.
func (m *Match) resetLocked(err error) {
	m.cancelSettleLocked()
	m.role = ""
	m.state = StateIdle
	m.roomID = ""
	m.questions = nil
	m.config = domain.QuizConfig{}
	m.local = domain.NewProgress()
	m.mirror = domain.NewProgress()
	m.channel = nil
	m.peerConnected = false
	m.lastErr = err
	m.broadcastLocked()
}

func (m *Match) run(ch Channel) {
	for {
		select {
		case ev := <-ch.Events():
			m.handleEvent(ch, ev)
		case <-ch.Done():
			return
		}
	}
}

func (m *Match) handleEvent(ch Channel, ev p2p.Event) {
	m.mu.Lock()
	if m.closed || m.channel != ch {
		m.mu.Unlock()
		return
	}

	var release Channel
	switch ev.Kind {
	case p2p.EventConnected:
		m.peerConnected = true
		if m.role == RoleHost && m.state == StateHosting {
			m.sendLocked(protocol.InitQuiz{Questions: m.questions, Config: m.config})
			m.mirror = domain.NewProgress()
			m.state = StateQuizDelivered
			m.log.Info().Str("room", m.roomID).Msg("guest connected, quiz sent")
		}
	case p2p.EventData:
		if err := m.receiveLocked(ev.Data); err != nil {
			// The host sends INIT_QUIZ once; a rejected quiz ends the wait.
			m.log.Warn().Err(err).Str("room", m.roomID).Msg("rejected quiz from host")
			release = m.channel
			m.resetLocked(err)
		}
	case p2p.EventClosed:
		m.peerConnected = false
		if m.state == StateAwaitingQuiz {
			release = m.channel
			m.resetLocked(domain.ErrConnectionLost)
		}
		m.log.Info().Err(ev.Err).Str("room", m.roomID).Msg("peer disconnected")
	}
	m.broadcastLocked()
	m.mu.Unlock()

	if release != nil {
		_ = release.Close()
	}
}

// receiveLocked applies one inbound message. It returns an error only when
// the awaited quiz fails validation.
func (m *Match) receiveLocked(data []byte) error {
	msg, err := protocol.Decode(data)
	if err != nil {
		m.log.Warn().Err(err).Str("room", m.roomID).Msg("ignoring inbound message")
		return nil
	}

	switch msg := msg.(type) {
	case protocol.InitQuiz:
		err := m.acceptQuizLocked(msg)
		if errors.Is(err, domain.ErrInvalidQuiz) {
			return err
		}
		if err != nil {
			m.log.Warn().Err(err).Str("room", m.roomID).Msg("ignoring INIT_QUIZ")
		}
	case protocol.Progress:
		// Last write wins; an older index is applied as-is.
		m.mirror = msg.PlayerProgress.Clone()
	}
	return nil
}

func (m *Match) acceptQuizLocked(msg protocol.InitQuiz) error {
	if m.role != RoleGuest {
		return fmt.Errorf("%w: only guests accept a quiz", domain.ErrInvalidState)
	}
	if m.state != StateAwaitingQuiz {
		return domain.ErrQuizAlreadyDelivered
	}
	questions, err := ValidateQuiz(msg.Questions, msg.Config)
	if err != nil {
		return err
	}
	m.questions = questions
	m.config = msg.Config
	m.mirror = domain.NewProgress()
	m.state = StateQuizDelivered
	return nil
}

func (m *Match) sendLocked(msg protocol.Message) {
	if m.channel == nil {
		return
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		m.log.Error().Err(err).Str("kind", string(msg.Kind())).Msg("encode message")
		return
	}
	if !m.channel.Send(data) {
		m.log.Debug().Str("kind", string(msg.Kind())).Msg("message not sent, peer unavailable")
	}
}

func (m *Match) scheduleSettleLocked() {
	m.cancelSettleLocked()
	m.settleSeq++
	seq := m.settleSeq
	m.stopSettle = m.afterFunc(m.settleDelay, func() { m.releaseSettle(seq) })
}

func (m *Match) cancelSettleLocked() {
	if m.stopSettle != nil {
		m.stopSettle()
		m.stopSettle = nil
	}
	m.settleSeq++
}

func (m *Match) releaseSettle(seq int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || seq != m.settleSeq || m.state != StateInProgress || !m.local.IsWaiting {
		return
	}
	m.stopSettle = nil
	m.local = m.local.Release()
	m.sendLocked(protocol.NewProgress(m.local))
	m.broadcastLocked()
}

func (m *Match) summaryLocked() domain.MatchSummary {
	return domain.MatchSummary{
		ID:        uuid.NewString(),
		Timestamp: m.now(),
		Title:     domain.SummaryTitle(m.questions),
		Questions: m.questions,
		Config:    m.config,
		BestScore: m.local.Score,
	}
}

func (m *Match) snapshotLocked() Snapshot {
	return Snapshot{
		Role:          m.role,
		State:         m.state,
		RoomID:        m.roomID,
		Questions:     m.questions,
		Config:        m.config,
		Local:         m.local.Clone(),
		Opponent:      m.mirror.Clone(),
		PeerConnected: m.peerConnected,
		Err:           m.lastErr,
	}
}

func (m *Match) broadcastLocked() {
	if len(m.subscribers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot so a slow reader never blocks the match
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
