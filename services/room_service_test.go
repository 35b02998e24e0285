package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/wfunc/partygame/game"
	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/quizbank"
	"github.com/wfunc/partygame/room"
)

func newService(t *testing.T) *RoomService {
	t.Helper()
	manager := room.NewRoomManager(context.Background(), room.Options{
		Engine: game.Config{Bank: quizbank.NewMemoryBank(quizbank.DemoQuestions())},
	})
	t.Cleanup(manager.Shutdown)
	return NewRoomService(manager)
}

func TestRoomService_DispatchAndState(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if err := s.Dispatch(ctx, "party", network.TypeModeSwitch, json.RawMessage(`{"to":"countup"}`)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	state, err := s.State(ctx, "party")
	if err != nil {
		t.Fatal(err)
	}
	if state.Mode != models.ModeCountup {
		t.Errorf("mode = %s, want countup", state.Mode)
	}
	if s.RoomCount() != 1 {
		t.Errorf("RoomCount = %d", s.RoomCount())
	}
}

func TestRoomService_DispatchErrors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	err := s.Dispatch(ctx, "party", network.TypeTapDelta, json.RawMessage(`{"delta":3}`))
	if !errors.Is(err, network.ErrInvalidMessage) {
		t.Errorf("player events should be refused, got %v", err)
	}

	err = s.Dispatch(ctx, "party", network.TypeModeSwitch, json.RawMessage(`{"to":"karaoke"}`))
	if !errors.Is(err, network.ErrInvalidMessage) {
		t.Errorf("bad mode should fail validation, got %v", err)
	}

	err = s.Dispatch(ctx, "party", network.TypeQuizReveal, nil)
	if !errors.Is(err, game.ErrQuizNotFound) {
		t.Errorf("reveal without quiz: %v", err)
	}
}

func TestRoomService_Snapshot(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if err := s.Dispatch(ctx, "party", network.TypeQuizNext, nil); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Snapshot(ctx, "party")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Mode != models.ModeQuiz || len(snap.ShownQuizzes) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
