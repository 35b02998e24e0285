// services/room_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/room"
)

// RoomService 给 HTTP 和 RPC 管理接口使用的房间操作
type RoomService struct {
	rooms *room.Manager
}

func NewRoomService(rooms *room.Manager) *RoomService {
	return &RoomService{rooms: rooms}
}

// State 获取房间当前状态，房间不存在时会创建
func (s *RoomService) State(ctx context.Context, roomID string) (network.StateUpdate, error) {
	return s.rooms.GetOrCreate(ctx, roomID).State(ctx)
}

// Snapshot 获取房间可持久化状态
func (s *RoomService) Snapshot(ctx context.Context, roomID string) (*models.RoomSnapshot, error) {
	return s.rooms.GetOrCreate(ctx, roomID).Snapshot(ctx)
}

// Dispatch 以主持人身份发送一个管理事件，等待房间处理完成
func (s *RoomService) Dispatch(ctx context.Context, roomID, eventType string, data json.RawMessage) error {
	if !network.IsAdminEvent(eventType) {
		return fmt.Errorf("%w: %s is not an admin event", network.ErrInvalidMessage, eventType)
	}
	ev, err := network.Decode(network.Envelope{Type: eventType, Data: data})
	if err != nil {
		return err
	}
	return s.rooms.GetOrCreate(ctx, roomID).Dispatch(ctx, "", true, ev)
}

func (s *RoomService) RoomCount() int {
	return s.rooms.Count()
}
