package seating

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"wedding-seating/internal/models"
)

// Policy holds the tunable parts of the arrangement heuristic: relationship
// priorities and the utilization bands used to score tables.
type Policy struct {
	Priorities      map[string]int `yaml:"priorities"`
	DefaultPriority int            `yaml:"default_priority"`
	Bands           Bands          `yaml:"bands"`
	// DietaryBonus is added to a table's score when it already seats someone
	// sharing a dietary restriction with the group. Only used with
	// Options.ConsiderDietary.
	DietaryBonus float64 `yaml:"dietary_bonus"`
}

// Bands maps projected utilization to a fit score.
//
//	[IdealMin, IdealMax]  -> Ideal
//	[FairMin, IdealMin)   -> Fair
//	(IdealMax, 1]         -> Crowded
//	below FairMin         -> Sparse
type Bands struct {
	IdealMin float64 `yaml:"ideal_min"`
	IdealMax float64 `yaml:"ideal_max"`
	FairMin  float64 `yaml:"fair_min"`
	Ideal    float64 `yaml:"ideal"`
	Fair     float64 `yaml:"fair"`
	Crowded  float64 `yaml:"crowded"`
	Sparse   float64 `yaml:"sparse"`
}

// DefaultPolicy returns the stock priorities and bands.
func DefaultPolicy() Policy {
	return Policy{
		Priorities: map[string]int{
			"parent":      10,
			"sibling":     9,
			"grandparent": 8,
			"uncle":       7,
			"aunt":        7,
			"uncle/aunt":  7,
			"cousin":      6,
			"friend":      5,
			"colleague":   4,
		},
		DefaultPriority: 3,
		Bands: Bands{
			IdealMin: 0.6,
			IdealMax: 0.9,
			FairMin:  0.4,
			Ideal:    1.0,
			Fair:     0.8,
			Crowded:  0.6,
			Sparse:   0.4,
		},
		DietaryBonus: 0.05,
	}
}

// LoadPolicy reads a YAML policy file on top of DefaultPolicy. Keys that are
// absent keep their default values.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}

	normalized := make(map[string]int, len(policy.Priorities))
	for label, priority := range policy.Priorities {
		normalized[normalizeRelationship(label)] = priority
	}
	policy.Priorities = normalized

	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate checks that the bands are ordered inside (0, 1].
func (p Policy) Validate() error {
	b := p.Bands
	if !(b.FairMin > 0 && b.FairMin <= b.IdealMin && b.IdealMin <= b.IdealMax && b.IdealMax <= 1) {
		return fmt.Errorf("%w: utilization bands must satisfy 0 < fair_min <= ideal_min <= ideal_max <= 1", models.ErrInvalidInput)
	}
	if p.DietaryBonus < 0 {
		return fmt.Errorf("%w: dietary bonus must not be negative", models.ErrInvalidInput)
	}
	return nil
}

// Priority returns the seating priority for a relationship label.
func (p Policy) Priority(relationship string) int {
	if priority, ok := p.Priorities[normalizeRelationship(relationship)]; ok {
		return priority
	}
	return p.DefaultPriority
}

// Score rates seating `required` more seats at a table of the given capacity
// that already has `occupied` seats taken. Infeasible placements score -Inf.
func (p Policy) Score(required, occupied, capacity int) float64 {
	if capacity <= 0 || occupied+required > capacity {
		return math.Inf(-1)
	}

	utilization := float64(occupied+required) / float64(capacity)
	b := p.Bands
	switch {
	case utilization >= b.IdealMin && utilization <= b.IdealMax:
		return b.Ideal
	case utilization >= b.FairMin && utilization < b.IdealMin:
		return b.Fair
	case utilization > b.IdealMax:
		return b.Crowded
	default:
		return b.Sparse
	}
}

func normalizeRelationship(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
