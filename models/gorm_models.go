// models/gorm_models.go
package models

import (
	"time"
)

// GormRoom 房间表
type GormRoom struct {
	ID           uint       `gorm:"primaryKey"`
	RoomID       string     `gorm:"uniqueIndex;not null"`
	Mode         string     `gorm:"not null;default:idle"`
	Phase        string     `gorm:"not null;default:idle"`
	Deadline     *time.Time
	ShownQuizzes []string   `gorm:"serializer:json;type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (GormRoom) TableName() string { return "rooms" }

// GormPlayer 玩家表，Position 保存加入顺序用于排行榜稳定排序
type GormPlayer struct {
	ID          uint   `gorm:"primaryKey"`
	PlayerID    string `gorm:"uniqueIndex;not null"`
	RoomID      string `gorm:"index;not null"`
	Position    int    `gorm:"not null"`
	DisplayName string `gorm:"not null"`
	TableNo     string
	SeatNo      string
	Fingerprint string `gorm:"index"`
	TotalPoints int    `gorm:"default:0"`
	LastDelta   int    `gorm:"default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (GormPlayer) TableName() string { return "players" }

// GormLotteryWin 抽奖记录，同一种奖项每个玩家只能中一次
type GormLotteryWin struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"uniqueIndex:idx_lottery_win;not null"`
	Kind      string `gorm:"uniqueIndex:idx_lottery_win;not null"`
	PlayerID  string `gorm:"uniqueIndex:idx_lottery_win;not null"`
	Position  int    `gorm:"not null"`
	CreatedAt time.Time
}

func (GormLotteryWin) TableName() string { return "lottery_wins" }
