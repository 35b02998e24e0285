package state

import (
	"time"

	"github.com/wfunc/partygame/logger"
	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
)

// ModeState 是房间处于某个游戏模式时的状态
// 进入时重置本轮数据，tick 时检查倒计时是否到期
type ModeState struct {
	room    RoomContext
	mode    models.Mode
	accepts map[string]bool
}

// playerEvents lists the player-originated events each mode accepts.
var playerEvents = map[models.Mode][]string{
	models.ModeIdle:    nil,
	models.ModeCountup: {network.TypeTapDelta},
	models.ModeQuiz:    {network.TypeQuizAnswer},
	models.ModeLottery: nil,
}

// NewModeState creates the state for mode.
func NewModeState(room RoomContext, mode models.Mode) *ModeState {
	accepts := make(map[string]bool)
	for _, t := range playerEvents[mode] {
		accepts[t] = true
	}
	return &ModeState{
		room:    room,
		mode:    mode,
		accepts: accepts,
	}
}

func (s *ModeState) GetID() string {
	return string(s.mode)
}

// Mode returns the game mode this state represents.
func (s *ModeState) Mode() models.Mode {
	return s.mode
}

func (s *ModeState) OnEnter() {
	logger.Log.Debugf("房间 %s 进入模式 %s", s.room.GetID(), s.mode)
	s.room.EnterMode(s.mode)
}

func (s *ModeState) OnExit() {
	logger.Log.Debugf("房间 %s 退出模式 %s", s.room.GetID(), s.mode)
}

func (s *ModeState) OnUpdate(now time.Time) bool {
	return s.room.ExpireCountdown(now)
}

// Allows reports whether a player event is accepted in this mode.
// Admin events are accepted in every mode.
func (s *ModeState) Allows(eventType string) bool {
	if network.IsAdminEvent(eventType) || eventType == network.TypeHello {
		return true
	}
	return s.accepts[eventType]
}
