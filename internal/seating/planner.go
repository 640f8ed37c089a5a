package seating

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"wedding-seating/internal/models"
)

// Options tune a single arrangement run.
type Options struct {
	// MaxGuestsPerTable caps the seats used per table; 0 means table capacity.
	MaxGuestsPerTable int `json:"max_guests_per_table" validate:"gte=0"`
	// RespectRelationships keeps (side, relationship) groups together.
	RespectRelationships bool `json:"respect_relationships"`
	// BalanceSides alternates bride and groom groups of equal priority.
	BalanceSides bool `json:"balance_sides"`
	// ConsiderDietary favours tables already seating guests with a shared
	// dietary restriction.
	ConsiderDietary bool `json:"consider_dietary"`
	// SplitOversizedGroups seats the members of a group that fits no table
	// as individual parties instead of leaving the whole group unplaced.
	SplitOversizedGroups bool `json:"split_oversized_groups"`
	// Reset clears every unlocked table before arranging.
	Reset bool `json:"reset"`
}

// DefaultOptions keeps families together and changes nothing else.
func DefaultOptions() Options {
	return Options{RespectRelationships: true}
}

// TableState is the planner's running view of one unlocked table.
type TableState struct {
	Table    models.Table
	Capacity int
	Occupied int
	diets    map[string]bool
}

// NewTableState builds a candidate from a table and the guests already
// seated at it. maxSeats > 0 lowers the usable capacity.
func NewTableState(table models.Table, seated []models.Guest, maxSeats int) TableState {
	state := TableState{
		Table:    table,
		Capacity: table.Capacity,
		diets:    make(map[string]bool),
	}
	if maxSeats > 0 && maxSeats < state.Capacity {
		state.Capacity = maxSeats
	}
	for _, g := range seated {
		state.Occupied += g.SeatsNeeded()
		state.addDiets(g.DietaryRestrictions)
	}
	return state
}

// Remaining is the number of free usable seats.
func (t TableState) Remaining() int {
	return t.Capacity - t.Occupied
}

func (t *TableState) addDiets(restrictions []string) {
	for _, r := range restrictions {
		t.diets[strings.ToLower(strings.TrimSpace(r))] = true
	}
}

func (t TableState) sharesDiet(group models.GuestGroup) bool {
	for _, m := range group.Members {
		for _, r := range m.DietaryRestrictions {
			if t.diets[strings.ToLower(strings.TrimSpace(r))] {
				return true
			}
		}
	}
	return false
}

// Assignment is a group placed at a table.
type Assignment struct {
	TableID      string   `json:"table_id"`
	TableName    string   `json:"table_name"`
	Side         string   `json:"side"`
	Relationship string   `json:"relationship"`
	GuestIDs     []string `json:"guest_ids"`
	Seats        int      `json:"seats"`
	Score        float64  `json:"score"`
}

// UnplacedGroup is a group the run could not seat, with the reason.
type UnplacedGroup struct {
	Side         string   `json:"side"`
	Relationship string   `json:"relationship"`
	GuestIDs     []string `json:"guest_ids"`
	Seats        int      `json:"seats"`
	Reason       error    `json:"-"`
}

// Plan greedily assigns groups to tables. Groups are taken in descending
// relationship priority, stable on input order; each goes to the feasible
// table with the best score, ties broken by higher projected utilization and
// then table order. Table states are updated in place. The result is
// deterministic for a given input order and policy.
func Plan(groups []models.GuestGroup, tables []TableState, policy Policy, opts Options) ([]Assignment, []UnplacedGroup) {
	var (
		assignments []Assignment
		unplaced    []UnplacedGroup
	)

	for _, group := range orderGroups(groups, policy, opts.BalanceSides) {
		if a, ok := placeGroup(group, tables, policy, opts); ok {
			assignments = append(assignments, a)
			continue
		}

		if opts.SplitOversizedGroups && len(group.Members) > 1 {
			for _, part := range splitGroup(group) {
				if a, ok := placeGroup(part, tables, policy, opts); ok {
					assignments = append(assignments, a)
				} else {
					unplaced = append(unplaced, unplacedGroup(part, tables))
				}
			}
			continue
		}

		unplaced = append(unplaced, unplacedGroup(group, tables))
	}

	return assignments, unplaced
}

func placeGroup(group models.GuestGroup, tables []TableState, policy Policy, opts Options) (Assignment, bool) {
	seats := group.SeatsNeeded()
	best := -1
	bestScore := math.Inf(-1)
	bestUtilization := 0.0

	for i := range tables {
		t := &tables[i]
		score := policy.Score(seats, t.Occupied, t.Capacity)
		if math.IsInf(score, -1) {
			continue
		}
		if opts.ConsiderDietary && t.sharesDiet(group) {
			score += policy.DietaryBonus
		}
		utilization := float64(t.Occupied+seats) / float64(t.Capacity)
		if best < 0 || score > bestScore || (score == bestScore && utilization > bestUtilization) {
			best, bestScore, bestUtilization = i, score, utilization
		}
	}

	if best < 0 {
		return Assignment{}, false
	}

	t := &tables[best]
	t.Occupied += seats
	for _, m := range group.Members {
		t.addDiets(m.DietaryRestrictions)
	}

	return Assignment{
		TableID:      t.Table.ID,
		TableName:    t.Table.Name,
		Side:         string(group.Side),
		Relationship: group.Relationship,
		GuestIDs:     group.MemberIDs(),
		Seats:        seats,
		Score:        bestScore,
	}, true
}

func unplacedGroup(group models.GuestGroup, tables []TableState) UnplacedGroup {
	seats := group.SeatsNeeded()
	largest := 0
	for _, t := range tables {
		largest = max(largest, t.Capacity)
	}

	var reason error
	switch {
	case len(tables) == 0:
		reason = fmt.Errorf("%w: no unlocked tables", models.ErrInfeasibleGroup)
	case seats > largest:
		reason = fmt.Errorf("%w: needs %d seats, largest unlocked table seats %d", models.ErrInfeasibleGroup, seats, largest)
	default:
		reason = fmt.Errorf("%w: needs %d seats, no unlocked table has that many free", models.ErrInfeasibleGroup, seats)
	}

	return UnplacedGroup{
		Side:         string(group.Side),
		Relationship: group.Relationship,
		GuestIDs:     group.MemberIDs(),
		Seats:        seats,
		Reason:       reason,
	}
}

// orderGroups sorts by descending priority, keeping input order among equals.
// With balanceSides, equal-priority groups alternate between sides.
func orderGroups(groups []models.GuestGroup, policy Policy, balanceSides bool) []models.GuestGroup {
	type ranked struct {
		group    models.GuestGroup
		priority int
		turn     int
	}

	seen := make(map[string]int)
	items := make([]ranked, len(groups))
	for i, g := range groups {
		priority := policy.Priority(g.Relationship)
		items[i] = ranked{group: g, priority: priority}
		if balanceSides {
			key := fmt.Sprintf("%d|%s", priority, g.Side)
			items[i].turn = seen[key]
			seen[key]++
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].priority != items[j].priority {
			return items[i].priority > items[j].priority
		}
		return items[i].turn < items[j].turn
	})

	ordered := make([]models.GuestGroup, len(items))
	for i, it := range items {
		ordered[i] = it.group
	}
	return ordered
}
