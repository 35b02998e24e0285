// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"go.uber.org/zap"

	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/room"
	"github.com/wfunc/partygame/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

var (
	_ room.Broadcaster = (*RoomBroadcaster)(nil)
	_ room.Broadcaster = (*RedisChannel)(nil)
	_ room.Broadcaster = (*Fanout)(nil)
	_ Transport        = (*RedisChannel)(nil)
)

// RoomBroadcaster 把房间消息发给本进程内的 websocket 连接
type RoomBroadcaster struct {
	sessionManager *session.Manager
	logger         *zap.Logger
}

func NewRoomBroadcaster(sessionManager *session.Manager, logger *zap.Logger) *RoomBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomBroadcaster{
		sessionManager: sessionManager,
		logger:         logger,
	}
}

// Broadcast 编码一次，发给房间内所有连接。单个连接失败不影响其他连接
func (b *RoomBroadcaster) Broadcast(roomID string, msg network.Outbound) error {
	data, err := network.Encode(msg)
	if err != nil {
		return err
	}

	for _, s := range b.sessionManager.InRoom(roomID) {
		if err := s.Send(data); err != nil {
			// 慢连接或已断开，读循环会负责清理
			b.logger.Debug("send to session failed",
				zap.String("room", roomID),
				zap.String("session", s.ID),
				zap.Error(err))
			continue
		}
	}
	return nil
}

// SendTo 只发给一个连接，连接不在该房间时返回 ErrSessionNotFound
func (b *RoomBroadcaster) SendTo(roomID, clientID string, msg network.Outbound) error {
	s, ok := b.sessionManager.Get(clientID)
	if !ok || s.RoomID() != roomID {
		return ErrSessionNotFound
	}
	data, err := network.Encode(msg)
	if err != nil {
		return err
	}
	return s.Send(data)
}
