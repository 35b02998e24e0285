package network

import (
	"encoding/json"

	"github.com/wfunc/partygame/models"
)

// Outbound is a room-scoped or client-scoped message produced by the engine.
type Outbound interface {
	EventType() string
}

type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	TableNo     string `json:"tableNo"`
	TotalPoints int    `json:"totalPoints"`
	Rank        int    `json:"rank"`
	Delta       int    `json:"delta"`
}

type StateUpdate struct {
	Mode        models.Mode        `json:"mode"`
	Phase       models.Phase       `json:"phase"`
	ServerTime  int64              `json:"serverTime"`
	CountdownMs int64              `json:"countdownMs"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type QuizShow struct {
	QuizID     string    `json:"quizId"`
	Question   string    `json:"question"`
	Choices    [4]string `json:"choices"`
	DeadlineTs int64     `json:"deadlineTs"`
}

type Award struct {
	PlayerID string `json:"playerId"`
	Delta    int    `json:"delta"`
}

type QuizResult struct {
	QuizID          string  `json:"quizId"`
	CorrectIndex    int     `json:"correctIndex"`
	PerChoiceCounts [4]int  `json:"perChoiceCounts"`
	Awarded         []Award `json:"awarded"`
}

type LotteryWinner struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	TableNo string `json:"table_no"`
	SeatNo  string `json:"seat_no"`
}

type LotteryResult struct {
	Kind   string        `json:"kind"`
	Player LotteryWinner `json:"player"`
}

// HelloAck tells a client which identity it was bound to.
type HelloAck struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	TableNo     string `json:"tableNo,omitempty"`
	SeatNo      string `json:"seatNo,omitempty"`
}

// ErrorMessage is sent only to the client whose event was rejected.
type ErrorMessage struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

func (StateUpdate) EventType() string   { return TypeStateUpdate }
func (QuizShow) EventType() string      { return TypeQuizShow }
func (QuizResult) EventType() string    { return TypeQuizResult }
func (LotteryResult) EventType() string { return TypeLotteryResult }
func (HelloAck) EventType() string      { return TypeHelloAck }
func (ErrorMessage) EventType() string  { return TypeError }

// Encode wraps msg in an Envelope and marshals it.
func Encode(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msg.EventType(), Data: data})
}
