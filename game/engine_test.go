package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/quizbank"
	"github.com/wfunc/partygame/ratelimit"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var t0 = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func testQuestions() []models.QuizQuestion {
	return []models.QuizQuestion{
		{ID: "q-1", Ord: 1, Question: "First?", Choices: [4]string{"a", "b", "c", "d"}, CorrectIndex: 1},
		{ID: "q-2", Ord: 2, Question: "Second?", Choices: [4]string{"e", "f", "g", "h"}, CorrectIndex: 3},
	}
}

func newTestEngine(t *testing.T, mutate func(c *Config)) (*Engine, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: t0}
	cfg := Config{
		Bank: quizbank.NewMemoryBank(testQuestions()),
		Rand: rand.New(rand.NewSource(42)),
		Now:  clk.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewEngine("room-1", cfg), clk
}

func mustHandle(t *testing.T, e *Engine, connID string, ev network.Inbound) Output {
	t.Helper()
	out, err := e.Handle(context.Background(), connID, ev)
	require.NoError(t, err, "handling %s", ev.EventType())
	return out
}

func hello(t *testing.T, e *Engine, connID, name string) *models.Player {
	t.Helper()
	out := mustHandle(t, e, connID, &network.Hello{DisplayName: name})
	require.Len(t, out.Replies, 1)
	ack := out.Replies[0].(network.HelloAck)
	p, ok := e.Room().Player(ack.PlayerID)
	require.True(t, ok)
	return p
}

func choice(i int) *int { return &i }

func lastState(t *testing.T, out Output) network.StateUpdate {
	t.Helper()
	require.NotEmpty(t, out.Broadcasts)
	s, ok := out.Broadcasts[len(out.Broadcasts)-1].(network.StateUpdate)
	require.True(t, ok, "last broadcast should be state:update, got %T", out.Broadcasts[len(out.Broadcasts)-1])
	return s
}

func showNext(t *testing.T, e *Engine) string {
	t.Helper()
	out := mustHandle(t, e, "admin", &network.QuizNext{})
	require.Len(t, out.Broadcasts, 2)
	show, ok := out.Broadcasts[0].(network.QuizShow)
	require.True(t, ok)
	return show.QuizID
}

func TestScenario_FullEvening(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	a := hello(t, e, "conn-a", "Sam")
	b := hello(t, e, "conn-b", "Sam")
	assert.Equal(t, "Sam", a.DisplayName)
	assert.Equal(t, "Sam(2)", b.DisplayName)

	mustHandle(t, e, "admin", &network.ModeSwitch{To: models.ModeCountup})
	mustHandle(t, e, "admin", &network.GameStart{})
	var out Output
	for i := 0; i < 3; i++ {
		out = mustHandle(t, e, "conn-a", &network.TapDelta{Delta: 5})
	}
	assert.Equal(t, 15, a.TotalPoints)

	lb := lastState(t, out).Leaderboard
	require.Len(t, lb, 2)
	assert.Equal(t, network.LeaderboardEntry{PlayerID: a.ID, DisplayName: "Sam", TotalPoints: 15, Rank: 1, Delta: 5}, lb[0])
	assert.Equal(t, network.LeaderboardEntry{PlayerID: b.ID, DisplayName: "Sam(2)", TotalPoints: 0, Rank: 2, Delta: 0}, lb[1])

	mustHandle(t, e, "admin", &network.ModeSwitch{To: models.ModeQuiz})
	quizID := showNext(t, e)
	mustHandle(t, e, "conn-a", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	mustHandle(t, e, "conn-b", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(0)})

	out = mustHandle(t, e, "admin", &network.QuizReveal{})
	require.Len(t, out.Broadcasts, 2)
	result := out.Broadcasts[0].(network.QuizResult)
	assert.Equal(t, [4]int{1, 1, 0, 0}, result.PerChoiceCounts)
	assert.Equal(t, 1, result.CorrectIndex)
	assert.Equal(t, []network.Award{{PlayerID: a.ID, Delta: 10}}, result.Awarded)
	assert.Equal(t, 25, a.TotalPoints)

	mustHandle(t, e, "admin", &network.ModeSwitch{To: models.ModeLottery})
	first := mustHandle(t, e, "admin", &network.LotteryDraw{Kind: "all"})
	second := mustHandle(t, e, "admin", &network.LotteryDraw{Kind: "all"})
	w1 := first.Broadcasts[0].(network.LotteryResult).Player.ID
	w2 := second.Broadcasts[0].(network.LotteryResult).Player.ID
	assert.ElementsMatch(t, []string{a.ID, b.ID}, []string{w1, w2})

	third, err := e.Handle(context.Background(), "admin", &network.LotteryDraw{Kind: "all"})
	assert.ErrorIs(t, err, ErrNoEligiblePlayers)
	assert.True(t, Silent(err))
	assert.Empty(t, third.Broadcasts)
}

func TestHello_NameDedupIsDeterministic(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	names := []string{"", "  ", "Guest", "Ann", "Guest(2)", "Ann"}
	var got []string
	for i, n := range names {
		got = append(got, hello(t, e, fmt.Sprintf("c%d", i), n).DisplayName)
	}
	assert.Equal(t, []string{"Guest", "Guest(2)", "Guest(3)", "Ann", "Guest(2)(2)", "Ann(2)"}, got)

	seen := map[string]bool{}
	for _, p := range e.Room().Players() {
		assert.False(t, seen[p.DisplayName], "duplicate name %s", p.DisplayName)
		seen[p.DisplayName] = true
	}
}

func TestHello_SameConnectionIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	p1 := hello(t, e, "c1", "Kim")
	p2 := hello(t, e, "c1", "Someone Else")
	assert.Same(t, p1, p2)
	assert.Equal(t, "Kim", p2.DisplayName)
	assert.Len(t, e.Room().Players(), 1)
}

func TestHello_FingerprintReusesIdentity(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	first := mustHandle(t, e, "c1", &network.Hello{DisplayName: "Lee", TableNo: "4", DeviceID: "device-1"})
	id := first.Replies[0].(network.HelloAck).PlayerID
	p, _ := e.Room().Player(id)
	p.TotalPoints = 40

	e.Disconnect("c1")
	hello(t, e, "c2", "Lee")

	again := mustHandle(t, e, "c3", &network.Hello{DisplayName: "Lee", SeatNo: "7", DeviceID: "device-1"})
	ack := again.Replies[0].(network.HelloAck)
	assert.Equal(t, id, ack.PlayerID)
	assert.Equal(t, "Lee", ack.DisplayName)
	assert.Equal(t, "4", ack.TableNo)
	assert.Equal(t, "7", ack.SeatNo)
	assert.Equal(t, 40, p.TotalPoints)
	assert.Len(t, e.Room().Players(), 2)

	bound, ok := e.Room().PlayerByConn("c3")
	require.True(t, ok)
	assert.Equal(t, id, bound.ID)
}

func TestTap_OutsideCountupIsIgnored(t *testing.T) {
	for _, mode := range []models.Mode{models.ModeIdle, models.ModeQuiz, models.ModeLottery} {
		t.Run(string(mode), func(t *testing.T) {
			e, _ := newTestEngine(t, nil)
			p := hello(t, e, "c1", "Pat")
			mustHandle(t, e, "admin", &network.ModeSwitch{To: mode})

			out, err := e.Handle(context.Background(), "c1", &network.TapDelta{Delta: 10})
			assert.ErrorIs(t, err, ErrWrongMode)
			assert.True(t, Silent(err))
			assert.Empty(t, out.Broadcasts)
			assert.Equal(t, 0, p.TotalPoints)
		})
	}
}

func TestTap_UnknownConnectionIsIgnored(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustHandle(t, e, "admin", &network.ModeSwitch{To: models.ModeCountup})

	_, err := e.Handle(context.Background(), "stranger", &network.TapDelta{Delta: 3})
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestTap_RateLimited(t *testing.T) {
	e, clk := newTestEngine(t, func(c *Config) { c.Limiter = ratelimit.New(ratelimit.DefaultPolicy()) })
	p := hello(t, e, "c1", "Pat")
	mustHandle(t, e, "admin", &network.ModeSwitch{To: models.ModeCountup})

	mustHandle(t, e, "c1", &network.TapDelta{Delta: 5})
	clk.Advance(50 * time.Millisecond)
	_, err := e.Handle(context.Background(), "c1", &network.TapDelta{Delta: 5})
	assert.ErrorIs(t, err, ratelimit.ErrRateLimited)
	assert.False(t, Silent(err))
	assert.Equal(t, 5, p.TotalPoints)

	clk.Advance(100 * time.Millisecond)
	mustHandle(t, e, "c1", &network.TapDelta{Delta: 5})
	assert.Equal(t, 10, p.TotalPoints)
}

func TestModeSwitch_ResetsDeltasAndQuiz(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	p := hello(t, e, "c1", "Pat")

	mustHandle(t, e, "admin", &network.ModeSwitch{To: models.ModeCountup})
	mustHandle(t, e, "admin", &network.GameStart{})
	mustHandle(t, e, "c1", &network.TapDelta{Delta: 7})
	require.Equal(t, 7, p.LastDelta)

	showNext(t, e)
	require.NotNil(t, e.Room().Quiz)

	for _, to := range []models.Mode{models.ModeQuiz, models.ModeCountup, models.ModeIdle} {
		p.LastDelta = 3
		out := mustHandle(t, e, "admin", &network.ModeSwitch{To: to})
		s := lastState(t, out)
		assert.Equal(t, to, s.Mode)
		assert.Equal(t, models.PhaseIdle, s.Phase)
		assert.Equal(t, int64(0), s.CountdownMs)
		assert.Equal(t, 0, p.LastDelta)
		assert.Nil(t, e.Room().Quiz)
	}
	assert.Equal(t, 7, p.TotalPoints)
}

func TestGameStartStop_Countdown(t *testing.T) {
	e, clk := newTestEngine(t, nil)

	out := mustHandle(t, e, "admin", &network.GameStart{})
	s := lastState(t, out)
	assert.Equal(t, models.PhaseRunning, s.Phase)
	assert.Equal(t, int64(10000), s.CountdownMs)

	ms := int64(3000)
	out = mustHandle(t, e, "admin", &network.GameStart{CountdownMs: &ms})
	assert.Equal(t, int64(3000), lastState(t, out).CountdownMs)

	clk.Advance(time.Second)
	assert.Equal(t, int64(2000), e.State().CountdownMs)

	out = mustHandle(t, e, "admin", &network.GameStop{})
	s = lastState(t, out)
	assert.Equal(t, models.PhaseEnded, s.Phase)
	assert.Equal(t, int64(0), s.CountdownMs)
}

func TestTick_EndsExpiredCountdown(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	ms := int64(2000)
	mustHandle(t, e, "admin", &network.GameStart{CountdownMs: &ms})

	assert.False(t, e.Tick(clk.Now().Add(1999*time.Millisecond)))
	assert.Equal(t, models.PhaseRunning, e.Room().Phase)

	assert.True(t, e.Tick(clk.Now().Add(2*time.Second)))
	assert.Equal(t, models.PhaseEnded, e.Room().Phase)
	assert.False(t, e.Tick(clk.Now().Add(3*time.Second)))
}

func TestQuizNext_SequentialThenExhausted(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	out := mustHandle(t, e, "admin", &network.QuizNext{})
	assert.Equal(t, "First?", out.Broadcasts[0].(network.QuizShow).Question)
	s := lastState(t, out)
	assert.Equal(t, models.ModeQuiz, s.Mode)
	assert.Equal(t, models.PhaseRunning, s.Phase)
	assert.Equal(t, int64(20000), s.CountdownMs)

	out = mustHandle(t, e, "admin", &network.QuizNext{})
	assert.Equal(t, "Second?", out.Broadcasts[0].(network.QuizShow).Question)

	_, err := e.Handle(context.Background(), "admin", &network.QuizNext{})
	assert.ErrorIs(t, err, ErrAllQuizzesRevealed)
	assert.False(t, Silent(err))
}

func TestQuizNext_RandomOrderCoversBank(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.QuizOrder = OrderRandom })

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		out := mustHandle(t, e, "admin", &network.QuizNext{})
		seen[out.Broadcasts[0].(network.QuizShow).Question] = true
	}
	assert.Len(t, seen, 2)
}

func TestQuizShow_UnknownID(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, err := e.Handle(context.Background(), "admin", &network.QuizShowRequest{QuizID: "missing"})
	assert.ErrorIs(t, err, ErrQuizNotFound)

	out := mustHandle(t, e, "admin", &network.QuizShowRequest{QuizID: "q-2"})
	assert.Equal(t, "Second?", out.Broadcasts[0].(network.QuizShow).Question)
}

func TestQuizNext_EmptyBank(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.Bank = quizbank.NewMemoryBank(nil) })
	_, err := e.Handle(context.Background(), "admin", &network.QuizNext{})
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestQuizAnswer_Preconditions(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	p := hello(t, e, "c1", "Pat")
	quizID := showNext(t, e)

	_, err := e.Handle(context.Background(), "c1", &network.QuizAnswer{QuizID: "other", ChoiceIndex: choice(1)})
	assert.ErrorIs(t, err, ErrNoActiveQuiz)

	out := mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(2)})
	assert.Empty(t, out.Broadcasts)
	// resubmission overwrites
	mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	assert.Equal(t, map[string]int{p.ID: 1}, e.Room().Quiz.Answers())

	clk.Advance(20*time.Second + time.Millisecond)
	_, err = e.Handle(context.Background(), "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(0)})
	assert.ErrorIs(t, err, ErrDeadlinePassed)
	assert.Equal(t, 1, e.Room().Quiz.Answers()[p.ID])
}

func TestQuizAnswer_AtDeadlineAccepted(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	hello(t, e, "c1", "Pat")
	quizID := showNext(t, e)

	clk.Advance(20 * time.Second)
	mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
}

func TestQuizReveal_SecondRevealRejected(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	p := hello(t, e, "c1", "Pat")
	quizID := showNext(t, e)
	mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})

	points := 25
	mustHandle(t, e, "admin", &network.QuizReveal{QuizID: quizID, Points: &points})
	assert.Equal(t, 25, p.TotalPoints)
	assert.Equal(t, 25, p.LastDelta)

	out, err := e.Handle(context.Background(), "admin", &network.QuizReveal{QuizID: quizID})
	assert.ErrorIs(t, err, ErrQuizAlreadyRevealed)
	assert.Empty(t, out.Broadcasts)
	assert.Equal(t, 25, p.TotalPoints)

	// the revealed quiz stays visible but closed
	_, err = e.Handle(context.Background(), "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	assert.ErrorIs(t, err, ErrQuizClosed)
}

func TestQuizReveal_NoQuiz(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.Handle(context.Background(), "admin", &network.QuizReveal{})
	assert.ErrorIs(t, err, ErrQuizNotFound)

	showNext(t, e)
	_, err = e.Handle(context.Background(), "admin", &network.QuizReveal{QuizID: "stale"})
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestQuizReveal_CountsMatchAnswers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		e, _ := newTestEngine(t, nil)
		n := 1 + rng.Intn(12)
		for i := 0; i < n; i++ {
			hello(t, e, fmt.Sprintf("c%d", i), "P")
		}
		quizID := showNext(t, e)

		answered := 0
		for i := 0; i < n; i++ {
			if rng.Intn(3) == 0 {
				continue
			}
			answered++
			mustHandle(t, e, fmt.Sprintf("c%d", i), &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(rng.Intn(4))})
		}

		out := mustHandle(t, e, "admin", &network.QuizReveal{})
		res := out.Broadcasts[0].(network.QuizResult)
		sum := 0
		for _, c := range res.PerChoiceCounts {
			sum += c
		}
		assert.Equal(t, answered, sum)
		assert.Equal(t, res.PerChoiceCounts[res.CorrectIndex], len(res.Awarded))
	}
}

func TestReveal_IsPure(t *testing.T) {
	q := newQuiz("quiz", testQuestions()[0], t0, false)
	for i, c := range []int{1, 0, 1, 3} {
		q.record(&models.Player{ID: fmt.Sprintf("p%d", i)}, c)
	}
	first := Reveal(q, 10)
	second := Reveal(q, 10)
	assert.Equal(t, first, second)
	assert.Equal(t, [4]int{1, 2, 0, 1}, first.PerChoiceCounts)
	assert.Equal(t, []network.Award{{PlayerID: "p0", Delta: 10}, {PlayerID: "p2", Delta: 10}}, first.Awards)
}

func TestQuizReveal_DepartedPlayersStillCounted(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.RemoveOnDisconnect = true })
	gone := hello(t, e, "c1", "Gone")
	stay := hello(t, e, "c2", "Stay")
	quizID := showNext(t, e)
	mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	mustHandle(t, e, "c2", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})

	out := e.Disconnect("c1")
	require.Len(t, lastState(t, out).Leaderboard, 1)

	out = mustHandle(t, e, "admin", &network.QuizReveal{})
	res := out.Broadcasts[0].(network.QuizResult)
	assert.Equal(t, 2, res.PerChoiceCounts[1])
	assert.Len(t, res.Awarded, 2)
	assert.Equal(t, 10, stay.TotalPoints)
	_, present := e.Room().Player(gone.ID)
	assert.False(t, present)
}

func TestRepresentativeByTable(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.RepresentativeByTable = true })
	mustHandle(t, e, "c1", &network.Hello{DisplayName: "A", TableNo: "1"})
	mustHandle(t, e, "c2", &network.Hello{DisplayName: "B", TableNo: "1"})
	mustHandle(t, e, "c3", &network.Hello{DisplayName: "C", TableNo: "2"})
	mustHandle(t, e, "c4", &network.Hello{DisplayName: "D"})
	quizID := showNext(t, e)

	mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	_, err := e.Handle(context.Background(), "c2", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	assert.ErrorIs(t, err, ErrTableAlreadyAnswered)
	assert.False(t, Silent(err))

	// the representative may change their own answer
	mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(2)})
	mustHandle(t, e, "c3", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})

	_, err = e.Handle(context.Background(), "c4", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	assert.ErrorIs(t, err, ErrTableRequired)

	assert.Len(t, e.Room().Quiz.Answers(), 2)
}

func TestRepresentative_PerQuizOverride(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustHandle(t, e, "c1", &network.Hello{DisplayName: "A", TableNo: "1"})
	mustHandle(t, e, "c2", &network.Hello{DisplayName: "B", TableNo: "1"})

	on := true
	out := mustHandle(t, e, "admin", &network.QuizNext{Representative: &on})
	quizID := out.Broadcasts[0].(network.QuizShow).QuizID
	mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(0)})
	_, err := e.Handle(context.Background(), "c2", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(0)})
	assert.ErrorIs(t, err, ErrTableAlreadyAnswered)
}

func TestSuddenDeath_TopNIncludesTies(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	a := hello(t, e, "c1", "A")
	b := hello(t, e, "c2", "B")
	c := hello(t, e, "c3", "C")
	d := hello(t, e, "c4", "D")
	a.TotalPoints, b.TotalPoints, c.TotalPoints, d.TotalPoints = 30, 20, 20, 10

	top := 2
	out := mustHandle(t, e, "admin", &network.SuddenDeath{TopN: &top})
	assert.Empty(t, out.Broadcasts)
	quizID := showNext(t, e)

	for _, conn := range []string{"c1", "c2", "c3"} {
		mustHandle(t, e, conn, &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	}
	_, err := e.Handle(context.Background(), "c4", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	assert.ErrorIs(t, err, ErrNotEligible)

	// the filter only applies to one quiz
	mustHandle(t, e, "admin", &network.QuizReveal{})
	next := showNext(t, e)
	mustHandle(t, e, "c4", &network.QuizAnswer{QuizID: next, ChoiceIndex: choice(3)})
}

func TestSuddenDeath_ByTableAndClear(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustHandle(t, e, "c1", &network.Hello{DisplayName: "A", TableNo: "5"})
	mustHandle(t, e, "c2", &network.Hello{DisplayName: "B", TableNo: "6"})

	mustHandle(t, e, "admin", &network.SuddenDeath{TableNos: []string{"5"}})
	quizID := showNext(t, e)
	mustHandle(t, e, "c1", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	_, err := e.Handle(context.Background(), "c2", &network.QuizAnswer{QuizID: quizID, ChoiceIndex: choice(1)})
	assert.ErrorIs(t, err, ErrNotEligible)

	mustHandle(t, e, "admin", &network.SuddenDeath{PlayerIDs: []string{"nobody"}})
	mustHandle(t, e, "admin", &network.SuddenDeath{})
	next := showNext(t, e)
	mustHandle(t, e, "c2", &network.QuizAnswer{QuizID: next, ChoiceIndex: choice(1)})
}

func TestLottery_NeverRepeatsWinnerPerKind(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		e, _ := newTestEngine(t, func(c *Config) { c.Rand = rand.New(rand.NewSource(seed)) })
		const n = 6
		for i := 0; i < n; i++ {
			hello(t, e, fmt.Sprintf("c%d", i), "P")
		}

		winners := map[string]bool{}
		for i := 0; i < n+3; i++ {
			out, err := e.Handle(context.Background(), "admin", &network.LotteryDraw{Kind: "groom_friends"})
			if i >= n {
				require.ErrorIs(t, err, ErrNoEligiblePlayers)
				continue
			}
			require.NoError(t, err)
			id := out.Broadcasts[0].(network.LotteryResult).Player.ID
			assert.False(t, winners[id], "seed %d: %s won twice", seed, id)
			winners[id] = true
		}
		assert.Len(t, e.Room().Won("groom_friends"), n)
		// other kinds have their own history
		assert.Len(t, e.Room().Eligible("bride_friends"), n)
	}
}

func TestLottery_RoughlyUniform(t *testing.T) {
	counts := map[string]int{}
	rng := rand.New(rand.NewSource(99))
	const trials = 3000
	for i := 0; i < trials; i++ {
		room := NewRoom("r")
		for j := 0; j < 3; j++ {
			room.EnsurePlayer(fmt.Sprintf("c%d", j), &network.Hello{DisplayName: fmt.Sprintf("P%d", j)})
		}
		w, err := room.Draw(rng, "all")
		require.NoError(t, err)
		counts[w.DisplayName]++
	}
	for name, c := range counts {
		assert.InDelta(t, trials/3, c, trials/10, "player %s drawn %d times", name, c)
	}
}

func TestLottery_NoPlayers(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	out, err := e.Handle(context.Background(), "admin", &network.LotteryDraw{Kind: "all"})
	assert.ErrorIs(t, err, ErrNoEligiblePlayers)
	assert.Empty(t, out.Broadcasts)
}

func TestBuildLeaderboard_StableAndPure(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ps := []*models.Player{
		hello(t, e, "c1", "A"),
		hello(t, e, "c2", "B"),
		hello(t, e, "c3", "C"),
		hello(t, e, "c4", "D"),
	}
	ps[0].TotalPoints, ps[1].TotalPoints, ps[2].TotalPoints, ps[3].TotalPoints = 5, 9, 5, 9

	first := BuildLeaderboard(e.Room())
	second := BuildLeaderboard(e.Room())
	assert.Equal(t, first, second)

	var order []string
	for i, entry := range first {
		order = append(order, entry.DisplayName)
		assert.Equal(t, i+1, entry.Rank)
	}
	assert.Equal(t, []string{"B", "D", "A", "C"}, order)
}

func TestDisconnect_KeepOrRemove(t *testing.T) {
	keep, _ := newTestEngine(t, nil)
	p := hello(t, keep, "c1", "Pat")
	out := keep.Disconnect("c1")
	assert.Empty(t, out.Broadcasts)
	_, bound := keep.Room().PlayerByConn("c1")
	assert.False(t, bound)
	_, present := keep.Room().Player(p.ID)
	assert.True(t, present)

	remove, _ := newTestEngine(t, func(c *Config) { c.RemoveOnDisconnect = true })
	hello(t, remove, "c1", "Pat")
	out = remove.Disconnect("c1")
	assert.Empty(t, lastState(t, out).Leaderboard)
	assert.Empty(t, remove.Disconnect("unknown").Broadcasts)
}

func TestSnapshotRestore(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	a := hello(t, e, "c1", "A")
	mustHandle(t, e, "c2", &network.Hello{DisplayName: "B", TableNo: "3", DeviceID: "dev-b"})
	a.TotalPoints = 12
	mustHandle(t, e, "admin", &network.ModeSwitch{To: models.ModeLottery})
	mustHandle(t, e, "admin", &network.LotteryDraw{Kind: "all"})
	showNext(t, e)

	snap := e.Snapshot()

	restored, _ := newTestEngine(t, nil)
	restored.Restore(snap.Clone())
	room := restored.Room()
	assert.Equal(t, models.ModeQuiz, room.Mode)
	require.Len(t, room.Players(), 2)
	assert.Equal(t, "A", room.Players()[0].DisplayName)
	assert.Equal(t, 12, room.Players()[0].TotalPoints)
	assert.Equal(t, snap.LotteryWins["all"], room.Won("all"))

	// the next quiz skips what was already shown
	out := mustHandle(t, restored, "admin", &network.QuizNext{})
	assert.Equal(t, "Second?", out.Broadcasts[0].(network.QuizShow).Question)

	// fingerprints survive, connections do not
	_, bound := room.PlayerByConn("c2")
	assert.False(t, bound)
	back := mustHandle(t, restored, "c9", &network.Hello{DisplayName: "B", DeviceID: "dev-b"})
	assert.Equal(t, "3", back.Replies[0].(network.HelloAck).TableNo)
	assert.Len(t, room.Players(), 2)
}

func TestSnapshotRestore_Countdown(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	hello(t, e, "c1", "A")
	mustHandle(t, e, "admin", &network.ModeSwitch{To: models.ModeCountup})
	mustHandle(t, e, "admin", &network.GameStart{})

	snap := e.Snapshot()
	require.NotNil(t, snap.Deadline)
	assert.Equal(t, t0.Add(DefaultCountdown), *snap.Deadline)

	restored, rclk := newTestEngine(t, nil)
	rclk.now = clk.now.Add(4 * time.Second)
	restored.Restore(snap.Clone())
	state := restored.State()
	assert.Equal(t, models.PhaseRunning, state.Phase)
	assert.Equal(t, int64(6000), state.CountdownMs)

	// the countdown keeps running after a restore and ends on its own
	rclk.Advance(6 * time.Second)
	assert.True(t, restored.Tick(rclk.now))
	assert.Equal(t, models.PhaseEnded, restored.Room().Phase)
}

func TestSnapshotRestore_RunningQuizEnds(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	hello(t, e, "c1", "A")
	showNext(t, e)

	snap := e.Snapshot()
	assert.Equal(t, models.PhaseRunning, snap.Phase)
	assert.Nil(t, snap.Deadline, "a quiz deadline is not a countdown")

	restored, _ := newTestEngine(t, nil)
	restored.Restore(snap.Clone())
	room := restored.Room()
	assert.Equal(t, models.ModeQuiz, room.Mode)
	assert.Equal(t, models.PhaseEnded, room.Phase)
	assert.Nil(t, room.Quiz)
	assert.Equal(t, int64(0), restored.State().CountdownMs)
}

func TestHandle_UnsupportedEvent(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.Handle(context.Background(), "c1", &network.RoomJoin{RoomID: "x"})
	assert.True(t, errors.Is(err, ErrUnsupportedEvent))
}
