package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/quizbank"
	"github.com/wfunc/partygame/state"
)

const (
	OrderSequential = "sequential"
	OrderRandom     = "random"

	DefaultPoints       = 10
	DefaultCountdown    = 10 * time.Second
	DefaultQuizDuration = 20 * time.Second
)

// Limiter throttles player submissions. *ratelimit.Limiter satisfies it.
type Limiter interface {
	AllowTap(playerID string, delta int, now time.Time) error
	AllowAnswer(playerID, quizID string, now time.Time) error
}

type Config struct {
	Bank    quizbank.Bank
	Limiter Limiter
	Rand    *rand.Rand
	Now     func() time.Time

	Points                int
	QuizDuration          time.Duration
	DefaultCountdown      time.Duration
	QuizOrder             string
	RepresentativeByTable bool
	RemoveOnDisconnect    bool
}

func (c *Config) setDefaults() {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Points <= 0 {
		c.Points = DefaultPoints
	}
	if c.QuizDuration <= 0 {
		c.QuizDuration = DefaultQuizDuration
	}
	if c.DefaultCountdown <= 0 {
		c.DefaultCountdown = DefaultCountdown
	}
	if c.QuizOrder == "" {
		c.QuizOrder = OrderSequential
	}
}

// Output is what handling one event produced. Broadcasts go to the whole room
// in order, Replies only to the sender. Changed marks state worth persisting.
type Output struct {
	Broadcasts []network.Outbound
	Replies    []network.Outbound
	Changed    bool
}

// Engine applies events to one room. Every mutation of the room goes through it.
type Engine struct {
	room    *Room
	machine state.Machine
	cfg     Config
}

func NewEngine(roomID string, cfg Config) *Engine {
	cfg.setDefaults()
	room := NewRoom(roomID)
	return &Engine{
		room:    room,
		machine: state.NewModeMachine(state.NewModeState(room, models.ModeIdle)),
		cfg:     cfg,
	}
}

// Restore replaces the room with a persisted snapshot.
func (e *Engine) Restore(snap *models.RoomSnapshot) {
	room := NewRoom(e.room.ID)
	mode := snap.Mode
	if !mode.Valid() {
		mode = models.ModeIdle
	}
	e.machine = state.NewModeMachine(state.NewModeState(room, mode))
	room.restore(snap)
	e.room = room
}

// Room exposes the room for read-only inspection.
func (e *Engine) Room() *Room {
	return e.room
}

func (e *Engine) Now() time.Time {
	return e.cfg.Now()
}

// State builds a state:update for now.
func (e *Engine) State() network.StateUpdate {
	return BuildState(e.room, e.cfg.Now())
}

func (e *Engine) Snapshot() *models.RoomSnapshot {
	return e.room.Snapshot()
}

// Tick advances timers and reports whether state changed.
func (e *Engine) Tick(now time.Time) bool {
	return e.machine.Current().OnUpdate(now)
}

func (e *Engine) allows(eventType string) bool {
	return e.machine.Current().Allows(eventType)
}

func (e *Engine) stateOutput(now time.Time) Output {
	return Output{
		Broadcasts: []network.Outbound{BuildState(e.room, now)},
		Changed:    true,
	}
}

// Handle applies one inbound event from connID. Events are assumed to be authorized already.
func (e *Engine) Handle(ctx context.Context, connID string, ev network.Inbound) (Output, error) {
	now := e.cfg.Now()

	switch ev := ev.(type) {
	case *network.Hello:
		return e.hello(connID, ev, now), nil
	case *network.TapDelta:
		return e.tap(connID, ev.Delta, now)
	case *network.QuizAnswer:
		return e.answer(connID, ev, now)
	case *network.ModeSwitch:
		return e.switchMode(ev.To, now), nil
	case *network.GameStart:
		return e.start(ev, now), nil
	case *network.GameStop:
		return e.stop(now), nil
	case *network.QuizNext:
		return e.nextQuiz(ctx, ev, now)
	case *network.QuizShowRequest:
		return e.showQuizByID(ctx, ev, now)
	case *network.QuizReveal:
		return e.reveal(ev, now)
	case *network.SuddenDeath:
		return e.suddenDeath(ev), nil
	case *network.LotteryDraw:
		return e.draw(ev.Kind)
	default:
		return Output{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.EventType())
	}
}

// Disconnect handles a connection leaving the room.
func (e *Engine) Disconnect(connID string) Output {
	p, ok := e.room.PlayerByConn(connID)
	if !ok {
		return Output{}
	}
	if e.cfg.RemoveOnDisconnect {
		e.room.removePlayer(p.ID)
		return e.stateOutput(e.cfg.Now())
	}
	e.room.unbind(p)
	return Output{}
}

func (e *Engine) hello(connID string, h *network.Hello, now time.Time) Output {
	p, _ := e.room.EnsurePlayer(connID, h)
	out := e.stateOutput(now)
	out.Replies = []network.Outbound{network.HelloAck{
		PlayerID:    p.ID,
		DisplayName: p.DisplayName,
		TableNo:     p.TableNo,
		SeatNo:      p.SeatNo,
	}}
	return out
}

func (e *Engine) tap(connID string, delta int, now time.Time) (Output, error) {
	if !e.allows(network.TypeTapDelta) {
		return Output{}, ErrWrongMode
	}
	p, ok := e.room.PlayerByConn(connID)
	if !ok {
		return Output{}, ErrUnknownPlayer
	}
	if e.cfg.Limiter != nil {
		if err := e.cfg.Limiter.AllowTap(p.ID, delta, now); err != nil {
			return Output{}, err
		}
	}
	p.TotalPoints += delta
	p.LastDelta = delta
	return e.stateOutput(now), nil
}

func (e *Engine) answer(connID string, a *network.QuizAnswer, now time.Time) (Output, error) {
	if !e.allows(network.TypeQuizAnswer) {
		return Output{}, ErrWrongMode
	}
	p, ok := e.room.PlayerByConn(connID)
	if !ok {
		return Output{}, ErrUnknownPlayer
	}
	q := e.room.Quiz
	if q == nil || q.ID != a.QuizID {
		return Output{}, ErrNoActiveQuiz
	}
	if q.Revealed {
		return Output{}, ErrQuizClosed
	}
	if now.After(q.Deadline) {
		return Output{}, ErrDeadlinePassed
	}
	if err := q.check(p); err != nil {
		return Output{}, err
	}
	if e.cfg.Limiter != nil {
		if err := e.cfg.Limiter.AllowAnswer(p.ID, q.ID, now); err != nil {
			return Output{}, err
		}
	}
	q.record(p, *a.ChoiceIndex)
	return Output{}, nil
}

func (e *Engine) switchMode(to models.Mode, now time.Time) Output {
	e.machine.Change(state.NewModeState(e.room, to))
	return e.stateOutput(now)
}

func (e *Engine) start(g *network.GameStart, now time.Time) Output {
	countdown := e.cfg.DefaultCountdown
	if g.CountdownMs != nil {
		countdown = time.Duration(*g.CountdownMs) * time.Millisecond
	}
	e.room.Phase = models.PhaseRunning
	e.room.Deadline = now.Add(countdown)
	return e.stateOutput(now)
}

func (e *Engine) stop(now time.Time) Output {
	e.room.Phase = models.PhaseEnded
	e.room.Deadline = time.Time{}
	return e.stateOutput(now)
}

func (e *Engine) nextQuiz(ctx context.Context, n *network.QuizNext, now time.Time) (Output, error) {
	if e.cfg.Bank == nil {
		return Output{}, ErrQuizNotFound
	}
	list, err := e.cfg.Bank.List(ctx)
	if err != nil {
		return Output{}, fmt.Errorf("load quiz bank: %w", err)
	}
	if len(list) == 0 {
		return Output{}, ErrQuizNotFound
	}

	candidates := make([]models.QuizQuestion, 0, len(list))
	for _, q := range list {
		if !e.room.shown[q.ID] {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return Output{}, ErrAllQuizzesRevealed
	}

	pick := candidates[0]
	if e.cfg.QuizOrder == OrderRandom {
		pick = candidates[e.cfg.Rand.Intn(len(candidates))]
	}
	return e.showQuiz(pick, n.Representative, now), nil
}

func (e *Engine) showQuizByID(ctx context.Context, s *network.QuizShowRequest, now time.Time) (Output, error) {
	if e.cfg.Bank == nil {
		return Output{}, ErrQuizNotFound
	}
	q, err := e.cfg.Bank.Get(ctx, s.QuizID)
	if err != nil {
		if errors.Is(err, quizbank.ErrNotFound) {
			return Output{}, ErrQuizNotFound
		}
		return Output{}, fmt.Errorf("load quiz %s: %w", s.QuizID, err)
	}
	return e.showQuiz(q, s.Representative, now), nil
}

func (e *Engine) showQuiz(question models.QuizQuestion, representative *bool, now time.Time) Output {
	if e.room.Mode != models.ModeQuiz {
		e.machine.Change(state.NewModeState(e.room, models.ModeQuiz))
	}

	rep := e.cfg.RepresentativeByTable
	if representative != nil {
		rep = *representative
	}
	q := newQuiz(uuid.NewString(), question, now.Add(e.cfg.QuizDuration), rep)
	q.applyFilter(e.room.takeFilter(), e.room.players)

	e.room.Quiz = q
	e.room.Phase = models.PhaseRunning
	e.room.Deadline = q.Deadline
	e.room.markShown(question.ID)

	return Output{
		Broadcasts: []network.Outbound{
			network.QuizShow{
				QuizID:     q.ID,
				Question:   q.Question,
				Choices:    q.Choices,
				DeadlineTs: q.Deadline.UnixMilli(),
			},
			BuildState(e.room, now),
		},
		Changed: true,
	}
}

func (e *Engine) reveal(r *network.QuizReveal, now time.Time) (Output, error) {
	q := e.room.Quiz
	if q == nil || (r.QuizID != "" && r.QuizID != q.ID) {
		return Output{}, ErrQuizNotFound
	}
	if q.Revealed {
		return Output{}, ErrQuizAlreadyRevealed
	}

	points := e.cfg.Points
	if r.Points != nil {
		points = *r.Points
	}
	res := Reveal(q, points)
	for _, a := range res.Awards {
		if p, ok := e.room.byID[a.PlayerID]; ok {
			p.TotalPoints += a.Delta
			p.LastDelta = a.Delta
		}
	}

	q.Revealed = true
	e.room.Phase = models.PhaseEnded
	e.room.Deadline = time.Time{}

	return Output{
		Broadcasts: []network.Outbound{res.message(), BuildState(e.room, now)},
		Changed:    true,
	}, nil
}

func (e *Engine) suddenDeath(f *network.SuddenDeath) Output {
	if f.Empty() {
		e.room.filter = nil
		return Output{}
	}
	cp := *f
	cp.PlayerIDs = append([]string(nil), f.PlayerIDs...)
	cp.TableNos = append([]string(nil), f.TableNos...)
	e.room.filter = &cp
	return Output{}
}

func (e *Engine) draw(kind string) (Output, error) {
	winner, err := e.room.Draw(e.cfg.Rand, kind)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Broadcasts: []network.Outbound{network.LotteryResult{
			Kind: kind,
			Player: network.LotteryWinner{
				ID:      winner.ID,
				Name:    winner.DisplayName,
				TableNo: winner.TableNo,
				SeatNo:  winner.SeatNo,
			},
		}},
		Changed: true,
	}, nil
}
