// models/models.go
package models

import "time"

// Mode 是房间当前进行的游戏
type Mode string

const (
	ModeIdle    Mode = "idle"
	ModeCountup Mode = "countup"
	ModeQuiz    Mode = "quiz"
	ModeLottery Mode = "lottery"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeIdle, ModeCountup, ModeQuiz, ModeLottery:
		return true
	}
	return false
}

// Phase 是某个模式内的生命周期阶段
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseEnded   Phase = "ended"
)

// Player 玩家数据模型，ID 在重连后保持不变
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	TableNo     string `json:"table_no,omitempty"`
	SeatNo      string `json:"seat_no,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	TotalPoints int    `json:"total_points"`
	LastDelta   int    `json:"last_delta"`
	// ConnID is the connection the player is reachable through. Not part of identity.
	ConnID string `json:"-"`
}

// QuizQuestion 题库中的一道题
type QuizQuestion struct {
	ID           string    `json:"id" db:"id"`
	Ord          int       `json:"ord" db:"ord"`
	Question     string    `json:"question" db:"question"`
	Choices      [4]string `json:"choices" db:"-"`
	CorrectIndex int       `json:"correct_index" db:"correct_index"`
}

// RoomSnapshot 房间的可持久化状态。Deadline 只记录倒计时，进行中的题目不落库
type RoomSnapshot struct {
	RoomID       string              `json:"room_id"`
	Mode         Mode                `json:"mode"`
	Phase        Phase               `json:"phase"`
	Deadline     *time.Time          `json:"deadline,omitempty"`
	Players      []Player            `json:"players"`
	LotteryWins  map[string][]string `json:"lottery_wins"`
	ShownQuizzes []string            `json:"shown_quizzes"`
}

// Clone returns a deep copy so a snapshot can leave the room goroutine.
func (s *RoomSnapshot) Clone() *RoomSnapshot {
	out := &RoomSnapshot{
		RoomID:       s.RoomID,
		Mode:         s.Mode,
		Phase:        s.Phase,
		Players:      append([]Player(nil), s.Players...),
		LotteryWins:  make(map[string][]string, len(s.LotteryWins)),
		ShownQuizzes: append([]string(nil), s.ShownQuizzes...),
	}
	if s.Deadline != nil {
		d := *s.Deadline
		out.Deadline = &d
	}
	for kind, ids := range s.LotteryWins {
		out.LotteryWins[kind] = append([]string(nil), ids...)
	}
	return out
}
