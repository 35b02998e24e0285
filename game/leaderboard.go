package game

import (
	"sort"
	"time"

	"github.com/wfunc/partygame/network"
)

// BuildLeaderboard ranks players by total points. Ties keep join order.
func BuildLeaderboard(r *Room) []network.LeaderboardEntry {
	players := r.Players()
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].TotalPoints > players[j].TotalPoints
	})

	out := make([]network.LeaderboardEntry, len(players))
	for i, p := range players {
		out[i] = network.LeaderboardEntry{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			TableNo:     p.TableNo,
			TotalPoints: p.TotalPoints,
			Rank:        i + 1,
			Delta:       p.LastDelta,
		}
	}
	return out
}

// BuildState assembles the state:update payload as of now.
func BuildState(r *Room, now time.Time) network.StateUpdate {
	var countdown int64
	if !r.Deadline.IsZero() {
		if remaining := r.Deadline.Sub(now); remaining > 0 {
			countdown = remaining.Milliseconds()
		}
	}
	return network.StateUpdate{
		Mode:        r.Mode,
		Phase:       r.Phase,
		ServerTime:  now.UnixMilli(),
		CountdownMs: countdown,
		Leaderboard: BuildLeaderboard(r),
	}
}
