package network

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/wfunc/partygame/models"
)

func TestDecodeBytes_Valid(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, ev Inbound)
	}{
		{
			name: "hello",
			raw:  `{"type":"hello","data":{"displayName":"Sam","tableNo":"3","deviceId":"abc"}}`,
			check: func(t *testing.T, ev Inbound) {
				h, ok := ev.(*Hello)
				if !ok {
					t.Fatalf("Expected *Hello, got %T", ev)
				}
				if h.DisplayName != "Sam" || h.TableNo != "3" || h.DeviceID != "abc" {
					t.Errorf("Unexpected hello payload: %+v", h)
				}
			},
		},
		{
			name: "tap",
			raw:  `{"type":"tap:delta","data":{"delta":30}}`,
			check: func(t *testing.T, ev Inbound) {
				if ev.(*TapDelta).Delta != 30 {
					t.Errorf("Expected delta 30, got %d", ev.(*TapDelta).Delta)
				}
			},
		},
		{
			name: "answer zero choice",
			raw:  `{"type":"quiz:answer","data":{"quizId":"q1","choiceIndex":0}}`,
			check: func(t *testing.T, ev Inbound) {
				a := ev.(*QuizAnswer)
				if a.ChoiceIndex == nil || *a.ChoiceIndex != 0 {
					t.Errorf("Expected choiceIndex 0, got %v", a.ChoiceIndex)
				}
			},
		},
		{
			name: "mode switch",
			raw:  `{"type":"mode:switch","data":{"to":"countup"}}`,
			check: func(t *testing.T, ev Inbound) {
				if ev.(*ModeSwitch).To != models.ModeCountup {
					t.Errorf("Expected countup, got %s", ev.(*ModeSwitch).To)
				}
			},
		},
		{
			name: "game stop without data",
			raw:  `{"type":"game:stop"}`,
			check: func(t *testing.T, ev Inbound) {
				if _, ok := ev.(*GameStop); !ok {
					t.Errorf("Expected *GameStop, got %T", ev)
				}
			},
		},
		{
			name: "room leave",
			raw:  `{"type":"room:leave"}`,
			check: func(t *testing.T, ev Inbound) {
				if _, ok := ev.(*RoomLeave); !ok {
					t.Errorf("Expected *RoomLeave, got %T", ev)
				}
			},
		},
		{
			name: "lottery default kind",
			raw:  `{"type":"lottery:draw","data":{}}`,
			check: func(t *testing.T, ev Inbound) {
				if ev.(*LotteryDraw).Kind != "all" {
					t.Errorf("Expected default kind all, got %q", ev.(*LotteryDraw).Kind)
				}
			},
		},
		{
			name: "reveal with points",
			raw:  `{"type":"quiz:reveal","data":{"points":20}}`,
			check: func(t *testing.T, ev Inbound) {
				r := ev.(*QuizReveal)
				if r.Points == nil || *r.Points != 20 {
					t.Errorf("Expected points 20, got %v", r.Points)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeBytes([]byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeBytes failed: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"missing type", `{"data":{}}`},
		{"unknown type", `{"type":"chat","data":{}}`},
		{"tap zero", `{"type":"tap:delta","data":{"delta":0}}`},
		{"tap too big", `{"type":"tap:delta","data":{"delta":31}}`},
		{"tap wrong type", `{"type":"tap:delta","data":{"delta":"five"}}`},
		{"answer missing choice", `{"type":"quiz:answer","data":{"quizId":"q1"}}`},
		{"answer out of range", `{"type":"quiz:answer","data":{"quizId":"q1","choiceIndex":4}}`},
		{"answer missing quiz", `{"type":"quiz:answer","data":{"choiceIndex":1}}`},
		{"bad mode", `{"type":"mode:switch","data":{"to":"karaoke"}}`},
		{"countdown too short", `{"type":"game:start","data":{"countdownMs":10}}`},
		{"show without id", `{"type":"quiz:show","data":{}}`},
		{"reveal zero points", `{"type":"quiz:reveal","data":{"points":0}}`},
		{"sudden death zero", `{"type":"quiz:sudden_death","data":{"topN":0}}`},
		{"join without room", `{"type":"room:join","data":{"roomId":"  "}}`},
		{"long name", `{"type":"hello","data":{"displayName":"` + strings.Repeat("x", 41) + `"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.raw))
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Expected ErrInvalidMessage, got %v", err)
			}
		})
	}
}

func TestIsAdminEvent(t *testing.T) {
	for _, typ := range []string{TypeHello, TypeTapDelta, TypeQuizAnswer, TypeRoomJoin, TypeRoomLeave} {
		if IsAdminEvent(typ) {
			t.Errorf("%s should not require admin", typ)
		}
	}
	for _, typ := range []string{TypeModeSwitch, TypeGameStart, TypeGameStop, TypeQuizNext, TypeQuizShow, TypeQuizReveal, TypeSuddenDeath, TypeLotteryDraw} {
		if !IsAdminEvent(typ) {
			t.Errorf("%s should require admin", typ)
		}
	}
}

func TestEncode_Envelope(t *testing.T) {
	data, err := Encode(LotteryResult{Kind: "all", Player: LotteryWinner{ID: "p1", Name: "Sam", TableNo: "2"}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var env struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeLotteryResult {
		t.Errorf("Expected type %s, got %s", TypeLotteryResult, env.Type)
	}
	player := env.Data["player"].(map[string]interface{})
	if player["table_no"] != "2" || player["name"] != "Sam" {
		t.Errorf("Unexpected player payload: %v", player)
	}
}
