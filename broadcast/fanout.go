package broadcast

import (
	"errors"

	"github.com/wfunc/partygame/network"
)

// Transport 是本机以外的下发通道，目前只有 RedisChannel
type Transport interface {
	Broadcast(roomID string, msg network.Outbound) error
	SendTo(roomID, clientID string, msg network.Outbound) error
}

// Fanout 同时走 websocket 和 redis。remote 可以为 nil
type Fanout struct {
	local  *RoomBroadcaster
	remote Transport
}

func NewFanout(local *RoomBroadcaster, remote Transport) *Fanout {
	return &Fanout{local: local, remote: remote}
}

func (f *Fanout) Broadcast(roomID string, msg network.Outbound) error {
	err := f.local.Broadcast(roomID, msg)
	if f.remote != nil {
		err = errors.Join(err, f.remote.Broadcast(roomID, msg))
	}
	return err
}

// SendTo 先找本地连接，找不到再发到 redis
func (f *Fanout) SendTo(roomID, clientID string, msg network.Outbound) error {
	err := f.local.SendTo(roomID, clientID, msg)
	if errors.Is(err, ErrSessionNotFound) && f.remote != nil {
		return f.remote.SendTo(roomID, clientID, msg)
	}
	return err
}
