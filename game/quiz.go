package game

import (
	"sort"
	"time"

	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
)

// Quiz is the active question of a room.
type Quiz struct {
	ID           string
	QuestionID   string
	Question     string
	Choices      [4]string
	CorrectIndex int
	Deadline     time.Time
	Revealed     bool

	// Representative accepts one answer per table.
	Representative bool
	// eligible and eligibleTables restrict answering during sudden death. Both nil means everyone.
	eligible       map[string]bool
	eligibleTables map[string]bool

	answers map[string]int
	order   []string
	tables  map[string]string
}

func newQuiz(id string, q models.QuizQuestion, deadline time.Time, representative bool) *Quiz {
	return &Quiz{
		ID:             id,
		QuestionID:     q.ID,
		Question:       q.Question,
		Choices:        q.Choices,
		CorrectIndex:   q.CorrectIndex,
		Deadline:       deadline,
		Representative: representative,
		answers:        make(map[string]int),
		tables:         make(map[string]string),
	}
}

// Answers returns a copy of playerID -> choice.
func (q *Quiz) Answers() map[string]int {
	out := make(map[string]int, len(q.answers))
	for id, c := range q.answers {
		out[id] = c
	}
	return out
}

// Restricted reports whether a sudden death filter applies.
func (q *Quiz) Restricted() bool {
	return q.eligible != nil || q.eligibleTables != nil
}

// Eligible reports whether p may answer.
func (q *Quiz) Eligible(p *models.Player) bool {
	if !q.Restricted() {
		return true
	}
	return q.eligible[p.ID] || (p.TableNo != "" && q.eligibleTables[p.TableNo])
}

// check validates a submission without recording it.
func (q *Quiz) check(p *models.Player) error {
	if !q.Eligible(p) {
		return ErrNotEligible
	}
	if q.Representative {
		if p.TableNo == "" {
			return ErrTableRequired
		}
		if owner, ok := q.tables[p.TableNo]; ok && owner != p.ID {
			return ErrTableAlreadyAnswered
		}
	}
	return nil
}

// record stores or overwrites the player's choice.
func (q *Quiz) record(p *models.Player, choice int) {
	if _, ok := q.answers[p.ID]; !ok {
		q.order = append(q.order, p.ID)
	}
	q.answers[p.ID] = choice
	if q.Representative {
		q.tables[p.TableNo] = p.ID
	}
}

// applyFilter resolves a sudden death filter against the current standings.
// topN includes everyone tied with the N-th score.
func (q *Quiz) applyFilter(f *network.SuddenDeath, players []*models.Player) {
	if f == nil || f.Empty() {
		return
	}
	q.eligible = make(map[string]bool)
	for _, id := range f.PlayerIDs {
		q.eligible[id] = true
	}
	if len(f.TableNos) > 0 {
		q.eligibleTables = make(map[string]bool)
		for _, t := range f.TableNos {
			q.eligibleTables[t] = true
		}
	}
	if f.TopN != nil && len(players) > 0 {
		ranked := append([]*models.Player(nil), players...)
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].TotalPoints > ranked[j].TotalPoints })
		n := *f.TopN
		if n > len(ranked) {
			n = len(ranked)
		}
		threshold := ranked[n-1].TotalPoints
		for _, p := range ranked {
			if p.TotalPoints < threshold {
				break
			}
			q.eligible[p.ID] = true
		}
	}
}

// RevealResult is what a reveal produces before points are applied.
type RevealResult struct {
	QuizID          string
	CorrectIndex    int
	PerChoiceCounts [4]int
	Awards          []network.Award
}

// Reveal counts answers per choice and lists an award for every correct answer,
// in the order players first answered. It does not touch player totals.
func Reveal(q *Quiz, points int) RevealResult {
	res := RevealResult{
		QuizID:       q.ID,
		CorrectIndex: q.CorrectIndex,
		Awards:       []network.Award{},
	}
	for _, id := range q.order {
		choice := q.answers[id]
		if choice < 0 || choice > 3 {
			continue
		}
		res.PerChoiceCounts[choice]++
		if choice == q.CorrectIndex {
			res.Awards = append(res.Awards, network.Award{PlayerID: id, Delta: points})
		}
	}
	return res
}

func (r RevealResult) message() network.QuizResult {
	return network.QuizResult{
		QuizID:          r.QuizID,
		CorrectIndex:    r.CorrectIndex,
		PerChoiceCounts: r.PerChoiceCounts,
		Awarded:         r.Awards,
	}
}
