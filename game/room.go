package game

import (
	"time"

	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
)

// Room holds the state of one room. It is owned by a single goroutine and is not safe for concurrent use.
type Room struct {
	ID       string
	Mode     models.Mode
	Phase    models.Phase
	Deadline time.Time
	Quiz     *Quiz

	players []*models.Player
	byID    map[string]*models.Player
	byConn  map[string]string

	won    map[string][]string
	wonSet map[string]map[string]bool

	shown      map[string]bool
	shownOrder []string

	filter *network.SuddenDeath
}

func NewRoom(id string) *Room {
	return &Room{
		ID:     id,
		Mode:   models.ModeIdle,
		Phase:  models.PhaseIdle,
		byID:   make(map[string]*models.Player),
		byConn: make(map[string]string),
		won:    make(map[string][]string),
		wonSet: make(map[string]map[string]bool),
		shown:  make(map[string]bool),
	}
}

func (r *Room) GetID() string {
	return r.ID
}

// EnterMode resets the round. Called by the mode state on every switch, including to the same mode.
func (r *Room) EnterMode(mode models.Mode) {
	r.Mode = mode
	r.Phase = models.PhaseIdle
	r.Deadline = time.Time{}
	r.Quiz = nil
	for _, p := range r.players {
		p.LastDelta = 0
	}
}

func (r *Room) ExpireCountdown(now time.Time) bool {
	if r.Phase != models.PhaseRunning || r.Deadline.IsZero() || now.Before(r.Deadline) {
		return false
	}
	r.Phase = models.PhaseEnded
	r.Deadline = time.Time{}
	return true
}

// Players returns the players in join order.
func (r *Room) Players() []*models.Player {
	return append([]*models.Player(nil), r.players...)
}

func (r *Room) Player(id string) (*models.Player, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Room) PlayerByConn(connID string) (*models.Player, bool) {
	id, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	p, ok := r.byID[id]
	return p, ok
}

// Won returns the ids that already won kind, in draw order.
func (r *Room) Won(kind string) []string {
	return append([]string(nil), r.won[kind]...)
}

func (r *Room) markWon(kind, playerID string) {
	set, ok := r.wonSet[kind]
	if !ok {
		set = make(map[string]bool)
		r.wonSet[kind] = set
	}
	if set[playerID] {
		return
	}
	set[playerID] = true
	r.won[kind] = append(r.won[kind], playerID)
}

func (r *Room) markShown(questionID string) {
	if r.shown[questionID] {
		return
	}
	r.shown[questionID] = true
	r.shownOrder = append(r.shownOrder, questionID)
}

func (r *Room) takeFilter() *network.SuddenDeath {
	f := r.filter
	r.filter = nil
	return f
}

func (r *Room) bind(p *models.Player, connID string) {
	p.ConnID = connID
	if connID != "" {
		r.byConn[connID] = p.ID
	}
}

func (r *Room) unbind(p *models.Player) {
	if p.ConnID != "" {
		delete(r.byConn, p.ConnID)
	}
	p.ConnID = ""
}

// removePlayer drops a player. Lottery history and quiz answers keep the id.
func (r *Room) removePlayer(id string) {
	p, ok := r.byID[id]
	if !ok {
		return
	}
	r.unbind(p)
	delete(r.byID, id)
	for i, q := range r.players {
		if q.ID == id {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}
}

// Snapshot copies the persistable part of the room.
func (r *Room) Snapshot() *models.RoomSnapshot {
	snap := &models.RoomSnapshot{
		RoomID:       r.ID,
		Mode:         r.Mode,
		Phase:        r.Phase,
		Players:      make([]models.Player, 0, len(r.players)),
		LotteryWins:  make(map[string][]string, len(r.won)),
		ShownQuizzes: append([]string(nil), r.shownOrder...),
	}
	if r.Quiz == nil && !r.Deadline.IsZero() {
		d := r.Deadline
		snap.Deadline = &d
	}
	for _, p := range r.players {
		cp := *p
		cp.ConnID = ""
		snap.Players = append(snap.Players, cp)
	}
	for kind, ids := range r.won {
		snap.LotteryWins[kind] = append([]string(nil), ids...)
	}
	return snap
}

func (r *Room) restore(snap *models.RoomSnapshot) {
	if snap.Mode.Valid() {
		r.Mode = snap.Mode
	}
	if snap.Phase != "" {
		r.Phase = snap.Phase
	}
	if snap.Deadline != nil {
		r.Deadline = *snap.Deadline
	}
	// 题目不落库，没有倒计时的进行中阶段恢复为已结束，到期的倒计时由下一次 tick 结束
	if r.Phase == models.PhaseRunning && r.Deadline.IsZero() {
		r.Phase = models.PhaseEnded
	}
	for i := range snap.Players {
		p := snap.Players[i]
		p.ConnID = ""
		r.players = append(r.players, &p)
		r.byID[p.ID] = &p
	}
	for kind, ids := range snap.LotteryWins {
		for _, id := range ids {
			r.markWon(kind, id)
		}
	}
	for _, id := range snap.ShownQuizzes {
		r.markShown(id)
	}
}
