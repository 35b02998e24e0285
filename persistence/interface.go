// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/partygame/models"
)

// Store 房间快照存储接口
type Store interface {
	// LoadRoom 返回 ErrRecordNotFound 表示房间从未保存过
	LoadRoom(ctx context.Context, roomID string) (*models.RoomSnapshot, error)
	SaveRoom(ctx context.Context, snap *models.RoomSnapshot) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
