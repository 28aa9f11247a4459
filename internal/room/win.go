package room

import (
	"sort"

	"github.com/mintkit/gameroom/internal/game"
)

// Evaluate resolves the outcome of a match from the final stat snapshot.
// Ordering is total and deterministic: primary stat descending, then
// secondary stat descending. A genuine tie on both resolves to an explicit
// draw, never an arbitrary pick. Simultaneous eliminations must feed their
// snapshot through here too rather than branching separately.
func Evaluate(stats map[string]game.Stats, reason string) game.Result {
	uids := make([]string, 0, len(stats))
	for uid := range stats {
		uids = append(uids, uid)
	}
	// uid sort keeps map iteration out of the ordering; ranking itself is
	// decided only by the stats.
	sort.Strings(uids)
	sort.SliceStable(uids, func(i, j int) bool {
		a, b := stats[uids[i]], stats[uids[j]]
		if a.Primary != b.Primary {
			return a.Primary > b.Primary
		}
		return a.Secondary > b.Secondary
	})

	res := game.Result{Reason: reason, Stats: stats}
	if len(uids) == 0 {
		res.Draw = true
		return res
	}
	if len(uids) > 1 {
		top, second := stats[uids[0]], stats[uids[1]]
		if top.Primary == second.Primary && top.Secondary == second.Secondary {
			res.Draw = true
			return res
		}
	}
	res.WinnerUID = uids[0]
	return res
}

// EvaluateForfeit resolves a match after a participant forfeits: the
// forfeiter is excluded and the remaining snapshot is ordered by the same
// comparator.
func EvaluateForfeit(stats map[string]game.Stats, forfeiterUID, reason string) game.Result {
	remaining := make(map[string]game.Stats, len(stats))
	for uid, s := range stats {
		if uid != forfeiterUID {
			remaining[uid] = s
		}
	}
	res := Evaluate(remaining, reason)
	res.Stats = stats
	return res
}
