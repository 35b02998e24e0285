package game

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
)

// DefaultDisplayName replaces an empty display name.
const DefaultDisplayName = "Guest"

// EnsurePlayer binds connID to a player, creating one if needed.
// A connection that already has a player gets it back unchanged. A known
// device fingerprint reuses the earlier identity. created reports whether a
// new player was added. Nothing is broadcast here.
func (r *Room) EnsurePlayer(connID string, h *network.Hello) (p *models.Player, created bool) {
	if p, ok := r.PlayerByConn(connID); ok {
		return p, false
	}
	delete(r.byConn, connID)

	name := strings.TrimSpace(h.DisplayName)
	if name == "" {
		name = DefaultDisplayName
	}
	tableNo := strings.TrimSpace(h.TableNo)
	seatNo := strings.TrimSpace(h.SeatNo)
	fingerprint := strings.TrimSpace(h.DeviceID)

	if fingerprint != "" {
		if prior := r.findByFingerprint(fingerprint); prior != nil {
			r.unbind(prior)
			prior.DisplayName = r.uniqueName(name, prior.ID)
			if tableNo != "" {
				prior.TableNo = tableNo
			}
			if seatNo != "" {
				prior.SeatNo = seatNo
			}
			r.bind(prior, connID)
			return prior, false
		}
	}

	p = &models.Player{
		ID:          uuid.NewString(),
		DisplayName: r.uniqueName(name, ""),
		TableNo:     tableNo,
		SeatNo:      seatNo,
		Fingerprint: fingerprint,
	}
	r.players = append(r.players, p)
	r.byID[p.ID] = p
	r.bind(p, connID)
	return p, true
}

func (r *Room) findByFingerprint(fingerprint string) *models.Player {
	for _, p := range r.players {
		if p.Fingerprint == fingerprint {
			return p
		}
	}
	return nil
}

// uniqueName returns base, or base(2), base(3)... whichever is free first.
// The player with id exceptID does not count as a collision.
func (r *Room) uniqueName(base, exceptID string) string {
	taken := make(map[string]bool, len(r.players))
	for _, p := range r.players {
		if p.ID != exceptID {
			taken[p.DisplayName] = true
		}
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s(%d)", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}
