package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wfunc/partygame/models"
)

// 入站事件
const (
	TypeHello       = "hello"
	TypeTapDelta    = "tap:delta"
	TypeQuizAnswer  = "quiz:answer"
	TypeModeSwitch  = "mode:switch"
	TypeGameStart   = "game:start"
	TypeGameStop    = "game:stop"
	TypeQuizNext    = "quiz:next"
	TypeQuizShow    = "quiz:show"
	TypeQuizReveal  = "quiz:reveal"
	TypeSuddenDeath = "quiz:sudden_death"
	TypeLotteryDraw = "lottery:draw"
	TypeRoomJoin    = "room:join"
	TypeRoomLeave   = "room:leave"
)

// 出站事件，quiz:show 双向共用
const (
	TypeStateUpdate   = "state:update"
	TypeQuizResult    = "quiz:result"
	TypeLotteryResult = "lottery:result"
	TypeHelloAck      = "hello:ack"
	TypeError         = "error"
)

const (
	MinTapDelta      = 1
	MaxTapDelta      = 30
	MinCountdownMs   = 1000
	MaxCountdownMs   = 3600000
	MaxRevealPoints  = 1000
	maxNameLength    = 40
	maxTagLength     = 16
	maxDeviceIDBytes = 128
	maxKindLength    = 32
)

// ErrInvalidMessage wraps every schema violation.
var ErrInvalidMessage = errors.New("invalid message")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// Envelope 是线上传输的统一格式 {"type": ..., "data": {...}}
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound is the closed set of events a room accepts.
type Inbound interface {
	EventType() string
	validate() error
}

type Hello struct {
	DisplayName string `json:"displayName"`
	TableNo     string `json:"tableNo,omitempty"`
	SeatNo      string `json:"seatNo,omitempty"`
	DeviceID    string `json:"deviceId,omitempty"`
}

type TapDelta struct {
	Delta int `json:"delta"`
}

type QuizAnswer struct {
	QuizID      string `json:"quizId"`
	ChoiceIndex *int   `json:"choiceIndex"`
}

type ModeSwitch struct {
	To models.Mode `json:"to"`
}

type GameStart struct {
	CountdownMs *int64 `json:"countdownMs,omitempty"`
}

type GameStop struct{}

type QuizNext struct {
	Representative *bool `json:"representative,omitempty"`
}

type QuizShowRequest struct {
	QuizID         string `json:"quizId"`
	Representative *bool  `json:"representative,omitempty"`
}

type QuizReveal struct {
	QuizID string `json:"quizId,omitempty"`
	Points *int   `json:"points,omitempty"`
}

// SuddenDeath narrows who may answer the next quiz. All fields empty clears the filter.
type SuddenDeath struct {
	TopN      *int     `json:"topN,omitempty"`
	PlayerIDs []string `json:"playerIds,omitempty"`
	TableNos  []string `json:"tableNos,omitempty"`
}

type LotteryDraw struct {
	Kind string `json:"kind"`
}

type RoomJoin struct {
	RoomID string `json:"roomId"`
}

// RoomLeave 退订当前房间，连接保持
type RoomLeave struct{}

func (Hello) EventType() string           { return TypeHello }
func (TapDelta) EventType() string        { return TypeTapDelta }
func (QuizAnswer) EventType() string      { return TypeQuizAnswer }
func (ModeSwitch) EventType() string      { return TypeModeSwitch }
func (GameStart) EventType() string       { return TypeGameStart }
func (GameStop) EventType() string        { return TypeGameStop }
func (QuizNext) EventType() string        { return TypeQuizNext }
func (QuizShowRequest) EventType() string { return TypeQuizShow }
func (QuizReveal) EventType() string      { return TypeQuizReveal }
func (SuddenDeath) EventType() string     { return TypeSuddenDeath }
func (LotteryDraw) EventType() string     { return TypeLotteryDraw }
func (RoomJoin) EventType() string        { return TypeRoomJoin }
func (RoomLeave) EventType() string       { return TypeRoomLeave }

func (h Hello) validate() error {
	if utf8.RuneCountInString(h.DisplayName) > maxNameLength {
		return invalid("displayName longer than %d characters", maxNameLength)
	}
	if len(h.TableNo) > maxTagLength || len(h.SeatNo) > maxTagLength {
		return invalid("tableNo/seatNo longer than %d bytes", maxTagLength)
	}
	if len(h.DeviceID) > maxDeviceIDBytes {
		return invalid("deviceId longer than %d bytes", maxDeviceIDBytes)
	}
	return nil
}

func (t TapDelta) validate() error {
	if t.Delta < MinTapDelta || t.Delta > MaxTapDelta {
		return invalid("delta must be in [%d,%d], got %d", MinTapDelta, MaxTapDelta, t.Delta)
	}
	return nil
}

func (a QuizAnswer) validate() error {
	if a.QuizID == "" {
		return invalid("quizId is required")
	}
	if a.ChoiceIndex == nil {
		return invalid("choiceIndex is required")
	}
	if *a.ChoiceIndex < 0 || *a.ChoiceIndex > 3 {
		return invalid("choiceIndex must be in [0,3], got %d", *a.ChoiceIndex)
	}
	return nil
}

func (m ModeSwitch) validate() error {
	if !m.To.Valid() {
		return invalid("unknown mode %q", m.To)
	}
	return nil
}

func (g GameStart) validate() error {
	if g.CountdownMs != nil && (*g.CountdownMs < MinCountdownMs || *g.CountdownMs > MaxCountdownMs) {
		return invalid("countdownMs must be in [%d,%d]", MinCountdownMs, MaxCountdownMs)
	}
	return nil
}

func (GameStop) validate() error { return nil }
func (QuizNext) validate() error { return nil }

func (q QuizShowRequest) validate() error {
	if q.QuizID == "" {
		return invalid("quizId is required")
	}
	return nil
}

func (r QuizReveal) validate() error {
	if r.Points != nil && (*r.Points < 1 || *r.Points > MaxRevealPoints) {
		return invalid("points must be in [1,%d]", MaxRevealPoints)
	}
	return nil
}

func (s SuddenDeath) validate() error {
	if s.TopN != nil && *s.TopN < 1 {
		return invalid("topN must be positive")
	}
	return nil
}

// Empty reports whether the filter clears sudden death instead of setting it.
func (s SuddenDeath) Empty() bool {
	return s.TopN == nil && len(s.PlayerIDs) == 0 && len(s.TableNos) == 0
}

func (l *LotteryDraw) validate() error {
	l.Kind = strings.TrimSpace(l.Kind)
	if l.Kind == "" {
		l.Kind = "all"
	}
	if len(l.Kind) > maxKindLength {
		return invalid("kind longer than %d bytes", maxKindLength)
	}
	return nil
}

func (r RoomJoin) validate() error {
	if strings.TrimSpace(r.RoomID) == "" {
		return invalid("roomId is required")
	}
	return nil
}

func (RoomLeave) validate() error { return nil }

// adminEvents 只有管理端可以发送
var adminEvents = map[string]bool{
	TypeModeSwitch:  true,
	TypeGameStart:   true,
	TypeGameStop:    true,
	TypeQuizNext:    true,
	TypeQuizShow:    true,
	TypeQuizReveal:  true,
	TypeSuddenDeath: true,
	TypeLotteryDraw: true,
}

// IsAdminEvent reports whether eventType requires the admin role.
func IsAdminEvent(eventType string) bool {
	return adminEvents[eventType]
}

// Decode validates an envelope against the inbound schema.
func Decode(env Envelope) (Inbound, error) {
	var ev Inbound
	switch env.Type {
	case TypeHello:
		ev = &Hello{}
	case TypeTapDelta:
		ev = &TapDelta{}
	case TypeQuizAnswer:
		ev = &QuizAnswer{}
	case TypeModeSwitch:
		ev = &ModeSwitch{}
	case TypeGameStart:
		ev = &GameStart{}
	case TypeGameStop:
		ev = &GameStop{}
	case TypeQuizNext:
		ev = &QuizNext{}
	case TypeQuizShow:
		ev = &QuizShowRequest{}
	case TypeQuizReveal:
		ev = &QuizReveal{}
	case TypeSuddenDeath:
		ev = &SuddenDeath{}
	case TypeLotteryDraw:
		ev = &LotteryDraw{}
	case TypeRoomJoin:
		ev = &RoomJoin{}
	case TypeRoomLeave:
		ev = &RoomLeave{}
	case "":
		return nil, invalid("missing type")
	default:
		return nil, invalid("unknown type %q", env.Type)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, invalid("%s: %v", env.Type, err)
		}
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeBytes parses a raw frame and validates it.
func DecodeBytes(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, invalid("malformed envelope: %v", err)
	}
	return Decode(env)
}
