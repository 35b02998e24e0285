// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/partygame/models"
)

// RoomContext is what a mode state needs from the room it drives.
// Defined here so game can implement it without state importing game.
type RoomContext interface {
	GetID() string
	// EnterMode sets the mode and resets the per-round state: phase, countdown, active quiz and every lastDelta.
	EnterMode(mode models.Mode)
	// ExpireCountdown ends a running countdown whose deadline has passed.
	ExpireCountdown(now time.Time) bool
}
