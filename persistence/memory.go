// persistence/memory.go
package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/partygame/models"
)

// MemoryStore 进程内存储，重启后数据丢失
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*models.RoomSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*models.RoomSnapshot)}
}

func (m *MemoryStore) LoadRoom(ctx context.Context, roomID string) (*models.RoomSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return snap.Clone(), nil
}

func (m *MemoryStore) SaveRoom(ctx context.Context, snap *models.RoomSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[snap.RoomID] = snap.Clone()
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
