package game

import (
	"math/rand"

	"github.com/wfunc/partygame/models"
)

// Eligible returns the current players who have not won kind yet, in join order.
func (r *Room) Eligible(kind string) []*models.Player {
	won := r.wonSet[kind]
	out := make([]*models.Player, 0, len(r.players))
	for _, p := range r.players {
		if !won[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// Draw picks a uniformly random eligible player for kind and records the win.
func (r *Room) Draw(rng *rand.Rand, kind string) (*models.Player, error) {
	eligible := r.Eligible(kind)
	if len(eligible) == 0 {
		return nil, ErrNoEligiblePlayers
	}
	winner := eligible[rng.Intn(len(eligible))]
	r.markWon(kind, winner.ID)
	return winner, nil
}
