package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"quizsnap/internal/app"
	"quizsnap/internal/domain"
)

// Room registration retries reuse the generated quiz.
const (
	hostRetries    = 3
	hostRetryDelay = 2 * time.Second
)

type quizFlags struct {
	text       string
	textFile   string
	image      string
	count      int
	difficulty string
	language   string
	types      []string
	demo       bool
}

func (f *quizFlags) register(cmd *cobra.Command) {
	def := domain.DefaultQuizConfig()
	cmd.Flags().StringVar(&f.text, "text", "", "lesson text to build the quiz from")
	cmd.Flags().StringVar(&f.textFile, "text-file", "", "read lesson text from a file")
	cmd.Flags().StringVar(&f.image, "image", "", "photo of the lesson page")
	cmd.Flags().IntVar(&f.count, "count", def.QuestionCount, "number of questions")
	cmd.Flags().StringVar(&f.difficulty, "difficulty", string(def.Difficulty), "easy, medium or hard")
	cmd.Flags().StringVar(&f.language, "language", string(def.Language), "ar, en or de")
	cmd.Flags().StringSliceVar(&f.types, "types", []string{string(domain.MultipleChoice)}, "allowed question types")
	cmd.Flags().BoolVar(&f.demo, "demo", false, "use built-in questions instead of Gemini")
}

func (f *quizFlags) config() domain.QuizConfig {
	return domain.QuizConfig{
		QuestionCount: f.count,
		Difficulty:    domain.Difficulty(strings.ToLower(f.difficulty)),
		Language:      domain.Language(strings.ToLower(f.language)),
		AllowedTypes: lo.Map(f.types, func(t string, _ int) domain.QuestionType {
			return domain.QuestionType(strings.ToUpper(strings.TrimSpace(t)))
		}),
	}
}

func (f *quizFlags) source() (domain.LessonSource, error) {
	switch {
	case f.image != "":
		data, err := os.ReadFile(f.image)
		if err != nil {
			return domain.LessonSource{}, err
		}
		return domain.LessonSource{Image: data, MIMEType: http.DetectContentType(data)}, nil
	case f.textFile != "":
		data, err := os.ReadFile(f.textFile)
		if err != nil {
			return domain.LessonSource{}, err
		}
		return domain.LessonSource{Text: string(data)}, nil
	case strings.TrimSpace(f.text) != "":
		return domain.LessonSource{Text: f.text}, nil
	case f.demo:
		return domain.LessonSource{Text: "demo"}, nil
	default:
		return domain.LessonSource{}, errors.New("provide --text, --text-file or --image")
	}
}

// NewHostCmd generates a quiz and waits for a guest to join.
func NewHostCmd(configPath *string) *cobra.Command {
	var flags quizFlags
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Generate a quiz and host a head-to-head match",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, func(ctx context.Context, m *app.Match, s playSession) error {
				src, err := flags.source()
				if err != nil {
					return err
				}
				fmt.Fprintln(s.out, "Generating quiz...")
				code, err := m.Host(ctx, src, flags.config())
				for attempt := 1; errors.Is(err, domain.ErrSignallingUnavailable) && attempt <= hostRetries; attempt++ {
					fmt.Fprintf(s.out, "Signalling server unavailable, retrying (%d/%d)...\n", attempt, hostRetries)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(hostRetryDelay):
					}
					code, err = m.RetryHost(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Room code: %s\nWaiting for your opponent to join...\n", code)
				return nil
			}, &flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

// NewJoinCmd joins a hosted match by room code.
func NewJoinCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join ROOM",
		Short: "Join a match with the host's room code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, func(ctx context.Context, m *app.Match, s playSession) error {
				fmt.Fprintf(s.out, "Joining room %s...\n", args[0])
				return m.Join(ctx, strings.TrimSpace(args[0]))
			}, nil, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// NewSoloCmd plays a fresh or replayed quiz alone.
func NewSoloCmd(configPath *string) *cobra.Command {
	var (
		flags  quizFlags
		replay int
	)
	cmd := &cobra.Command{
		Use:   "solo",
		Short: "Practise a quiz alone, or replay one from history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, func(ctx context.Context, m *app.Match, s playSession) error {
				if replay > 0 {
					return replayFromHistory(ctx, m, s.history, replay)
				}
				src, err := flags.source()
				if err != nil {
					return err
				}
				fmt.Fprintln(s.out, "Generating quiz...")
				return m.Solo(ctx, src, flags.config())
			}, &flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&replay, "replay", 0, "replay entry N from `quizsnap history`")
	return cmd
}

func replayFromHistory(ctx context.Context, m *app.Match, history app.HistoryStore, n int) error {
	entries, err := history.List(ctx)
	if err != nil {
		return err
	}
	if n > len(entries) {
		return fmt.Errorf("history has %d entries", len(entries))
	}
	return m.Replay(entries[n-1])
}

// playSession carries what a command needs to put a match into play.
type playSession struct {
	out     io.Writer
	history app.HistoryStore
}

type setupFunc func(ctx context.Context, m *app.Match, s playSession) error

func runPlay(ctx context.Context, configPath string, setup setupFunc, flags *quizFlags, in io.Reader, out io.Writer) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := ossignal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	var generator app.QuizGenerator
	if flags != nil && (flags.demo || flags.text != "" || flags.textFile != "" || flags.image != "") {
		gen, closeGen, err := newGenerator(ctx, cfg, flags.demo, log)
		if err != nil {
			return err
		}
		defer closeGen()
		generator = gen
	}

	m := app.NewMatch(generator, newPeerNetwork(cfg, log), history, matchOptions(cfg, log)...)
	defer m.Close()

	if err := setup(ctx, m, playSession{out: out, history: history}); err != nil {
		return err
	}
	return newTerminal(in, out).play(ctx, m)
}

// terminal drives a match from line-based input.
type terminal struct {
	lines <-chan string
	out   io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &terminal{lines: lines, out: out}
}

func (t *terminal) play(ctx context.Context, m *app.Match) error {
	updates, cancel := m.Updates()
	defer cancel()

	snap, err := t.waitFor(ctx, updates, func(s app.Snapshot) bool { return s.State == app.StateQuizDelivered })
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Quiz ready: %d questions. Press Enter to start.\n", len(snap.Questions))
	if _, err := t.readLine(ctx); err != nil {
		return err
	}
	if err := m.Start(); err != nil {
		return err
	}

	for {
		snap = m.Snapshot()
		if snap.State == app.StateFinished {
			break
		}
		if snap.Local.IsWaiting {
			if _, err := t.waitFor(ctx, updates, func(s app.Snapshot) bool { return !s.Local.IsWaiting }); err != nil {
				return err
			}
			continue
		}

		q, ok := snap.CurrentQuestion()
		if !ok {
			return fmt.Errorf("no current question at index %d", snap.Local.CurrentQuestionIndex)
		}
		t.renderQuestion(snap, q)

		line, err := t.readLine(ctx)
		if err != nil {
			return err
		}
		res, err := m.Answer(ctx, resolveAnswer(q, line))
		if errors.Is(err, domain.ErrSettling) {
			continue
		}
		if err != nil {
			return err
		}
		if res.Correct {
			fmt.Fprintf(t.out, "Correct! (+%d) Score: %d\n", res.Awarded, res.TotalScore)
		} else {
			fmt.Fprintln(t.out, "Not quite, try again.")
		}
	}

	return t.finish(ctx, m, updates)
}

func (t *terminal) finish(ctx context.Context, m *app.Match, updates <-chan app.Snapshot) error {
	snap := m.Snapshot()
	if snap.Role != app.RoleSolo && !snap.Opponent.IsFinished && snap.PeerConnected {
		fmt.Fprintln(t.out, "Waiting for your opponent to finish...")
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		_, _ = t.waitFor(waitCtx, updates, func(s app.Snapshot) bool { return s.Opponent.IsFinished || !s.PeerConnected })
		cancel()
		snap = m.Snapshot()
	}

	outcome, err := m.Outcome()
	if err != nil {
		return err
	}
	switch outcome {
	case app.OutcomeWin:
		fmt.Fprintf(t.out, "You win! %d : %d\n", snap.Local.Score, snap.Opponent.Score)
	case app.OutcomeLoss:
		fmt.Fprintf(t.out, "Your opponent wins. %d : %d\n", snap.Local.Score, snap.Opponent.Score)
	case app.OutcomeDraw:
		fmt.Fprintf(t.out, "Draw! %d : %d\n", snap.Local.Score, snap.Opponent.Score)
	case app.OutcomeSolo:
		fmt.Fprintf(t.out, "Finished! Score: %d / %d\n", snap.Local.Score, len(snap.Questions))
	}
	return nil
}

func (t *terminal) renderQuestion(snap app.Snapshot, q domain.Question) {
	fmt.Fprintf(t.out, "\nQuestion %d/%d", snap.Local.CurrentQuestionIndex+1, len(snap.Questions))
	if snap.Role != app.RoleSolo {
		status := "connected"
		if !snap.PeerConnected {
			status = "disconnected"
		}
		fmt.Fprintf(t.out, "  |  You %d : %d Opponent (q%d, %s)", snap.Local.Score, snap.Opponent.Score, snap.Opponent.CurrentQuestionIndex+1, status)
	}
	fmt.Fprintf(t.out, "\n%s\n", q.Question)
	for i, opt := range q.Options {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprint(t.out, "> ")
}

func (t *terminal) readLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *terminal) waitFor(ctx context.Context, updates <-chan app.Snapshot, cond func(app.Snapshot) bool) (app.Snapshot, error) {
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return snap, domain.ErrSessionClosed
			}
			if snap.State == app.StateIdle && snap.Err != nil {
				return snap, snap.Err
			}
			if cond(snap) {
				return snap, nil
			}
		case <-ctx.Done():
			return app.Snapshot{}, ctx.Err()
		}
	}
}

// resolveAnswer lets players pick an option by its number.
func resolveAnswer(q domain.Question, input string) string {
	if lo.Contains(q.Options, input) {
		return input
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1]
	}
	return input
}
