// Package score decides when a round is over and who won it.
package score

import (
	"errors"
	"math"
	"sort"

	"github.com/23skdu/field/internal/core"
)

// ErrTooFewTeams is returned when fewer than two teams are scored.
var ErrTooFewTeams = errors.New("score: at least two teams required")

// Snapshot is the derived standing of a round.
type Snapshot struct {
	Scores              []core.TeamScore `json:"scores"`
	Remaining           int64            `json:"remaining"`
	IsOver              bool             `json:"isOver"`
	Winner              *core.Team       `json:"winner,omitempty"`
	RemainingPercentage int              `json:"remainingPercentage"`
}

// Decide ranks scores on a size×size field. The round is over once the lead
// of the first team cannot be caught up with the remaining cells, or nothing
// remains. Equal scores rank the lower team first, so a tie at zero remaining
// still names a winner.
func Decide(scores []core.TeamScore, size int) (Snapshot, error) {
	if len(scores) < 2 {
		return Snapshot{}, ErrTooFewTeams
	}

	ranked := make([]core.TeamScore, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Team < ranked[j].Team
	})

	area := int64(size) * int64(size)
	var claimed int64
	for _, s := range ranked {
		claimed += s.Score
	}
	remaining := area - claimed
	if remaining < 0 {
		remaining = 0
	}

	top, second := ranked[0], ranked[1]
	snap := Snapshot{
		Scores:    ranked,
		Remaining: remaining,
		IsOver:    top.Score-second.Score > remaining || remaining == 0,
	}
	if snap.IsOver {
		winner := top.Team
		snap.Winner = &winner
	}
	if area > 0 {
		snap.RemainingPercentage = int(math.Round(float64(remaining) / float64(area) * 100))
	}
	return snap, nil
}
