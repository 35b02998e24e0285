// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/partygame/logger"
	"github.com/wfunc/partygame/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志，输出到 zap
	gormLogger := gormlogger.New(
		zap.NewStdLog(logger.L()),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormRoom{},
		&models.GormPlayer{},
		&models.GormLotteryWin{},
	)
}

// LoadRoom 加载房间快照
func (p *GormPostgreSQL) LoadRoom(ctx context.Context, roomID string) (*models.RoomSnapshot, error) {
	db := p.db.WithContext(ctx)

	var room models.GormRoom
	if err := db.Where("room_id = ?", roomID).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	var players []models.GormPlayer
	if err := db.Where("room_id = ?", roomID).Order("position").Find(&players).Error; err != nil {
		return nil, err
	}

	var wins []models.GormLotteryWin
	if err := db.Where("room_id = ?", roomID).Order("kind, position").Find(&wins).Error; err != nil {
		return nil, err
	}

	return fromRows(room, players, wins), nil
}

// SaveRoom 在一个事务里整体替换房间快照
func (p *GormPostgreSQL) SaveRoom(ctx context.Context, snap *models.RoomSnapshot) error {
	room, players, wins := toRows(snap)

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"mode", "phase", "deadline", "shown_quizzes", "updated_at"}),
		}).Create(&room).Error
		if err != nil {
			return err
		}

		if err := tx.Where("room_id = ?", snap.RoomID).Delete(&models.GormPlayer{}).Error; err != nil {
			return err
		}
		if len(players) > 0 {
			if err := tx.Create(&players).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("room_id = ?", snap.RoomID).Delete(&models.GormLotteryWin{}).Error; err != nil {
			return err
		}
		if len(wins) > 0 {
			if err := tx.Create(&wins).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRows(snap *models.RoomSnapshot) (models.GormRoom, []models.GormPlayer, []models.GormLotteryWin) {
	room := models.GormRoom{
		RoomID:       snap.RoomID,
		Mode:         string(snap.Mode),
		Phase:        string(snap.Phase),
		Deadline:     snap.Deadline,
		ShownQuizzes: append([]string{}, snap.ShownQuizzes...),
	}

	players := make([]models.GormPlayer, 0, len(snap.Players))
	for i, pl := range snap.Players {
		players = append(players, models.GormPlayer{
			PlayerID:    pl.ID,
			RoomID:      snap.RoomID,
			Position:    i,
			DisplayName: pl.DisplayName,
			TableNo:     pl.TableNo,
			SeatNo:      pl.SeatNo,
			Fingerprint: pl.Fingerprint,
			TotalPoints: pl.TotalPoints,
			LastDelta:   pl.LastDelta,
		})
	}

	// map 遍历无序，按 kind 排序保证写入稳定
	kinds := make([]string, 0, len(snap.LotteryWins))
	for kind := range snap.LotteryWins {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var wins []models.GormLotteryWin
	for _, kind := range kinds {
		for i, id := range snap.LotteryWins[kind] {
			wins = append(wins, models.GormLotteryWin{
				RoomID:   snap.RoomID,
				Kind:     kind,
				PlayerID: id,
				Position: i,
			})
		}
	}
	return room, players, wins
}

func fromRows(room models.GormRoom, players []models.GormPlayer, wins []models.GormLotteryWin) *models.RoomSnapshot {
	snap := &models.RoomSnapshot{
		RoomID:       room.RoomID,
		Mode:         models.Mode(room.Mode),
		Phase:        models.Phase(room.Phase),
		Deadline:     room.Deadline,
		Players:      make([]models.Player, 0, len(players)),
		LotteryWins:  make(map[string][]string),
		ShownQuizzes: append([]string(nil), room.ShownQuizzes...),
	}
	for _, pl := range players {
		snap.Players = append(snap.Players, models.Player{
			ID:          pl.PlayerID,
			DisplayName: pl.DisplayName,
			TableNo:     pl.TableNo,
			SeatNo:      pl.SeatNo,
			Fingerprint: pl.Fingerprint,
			TotalPoints: pl.TotalPoints,
			LastDelta:   pl.LastDelta,
		})
	}
	for _, w := range wins {
		snap.LotteryWins[w.Kind] = append(snap.LotteryWins[w.Kind], w.PlayerID)
	}
	return snap
}
