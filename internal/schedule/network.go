package schedule

import (
	"fmt"
	"sort"

	"riskline/internal/config"
)

// Network is the static precedence graph over work categories.
type Network struct {
	preds        map[string][]string
	floatDays    map[string]float64
	defaultFloat float64
	groups       [][]string
}

// NewNetwork builds a network from schedule config and rejects cycles.
func NewNetwork(cfg config.ScheduleConfig) (*Network, error) {
	n := &Network{
		preds:        make(map[string][]string, len(cfg.Dependencies)),
		floatDays:    make(map[string]float64, len(cfg.FloatDays)),
		defaultFloat: cfg.DefaultFloatDays,
	}
	for cat, preds := range cfg.Dependencies {
		n.preds[cat] = append([]string(nil), preds...)
	}
	for cat, days := range cfg.FloatDays {
		if days < 0 {
			return nil, fmt.Errorf("float days for %s must be >= 0", cat)
		}
		n.floatDays[cat] = days
	}
	for _, g := range cfg.ParallelGroups {
		n.groups = append(n.groups, append([]string(nil), g...))
	}
	if err := n.checkAcyclic(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) checkAcyclic() error {
	const (
		unseen = iota
		active
		done
	)
	state := map[string]int{}
	var visit func(cat string, path []string) error
	visit = func(cat string, path []string) error {
		switch state[cat] {
		case active:
			return fmt.Errorf("schedule network has a cycle through %v", append(path, cat))
		case done:
			return nil
		}
		state[cat] = active
		for _, p := range n.preds[cat] {
			if err := visit(p, append(path, cat)); err != nil {
				return err
			}
		}
		state[cat] = done
		return nil
	}
	for _, cat := range n.Categories() {
		if err := visit(cat, nil); err != nil {
			return err
		}
	}
	return nil
}

// Categories lists every category the network knows about, sorted.
func (n *Network) Categories() []string {
	seen := map[string]bool{}
	for cat, preds := range n.preds {
		seen[cat] = true
		for _, p := range preds {
			seen[p] = true
		}
	}
	for cat := range n.floatDays {
		seen[cat] = true
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Predecessors returns the direct predecessors; unknown categories have none.
func (n *Network) Predecessors(cat string) []string {
	return append([]string(nil), n.preds[cat]...)
}

// FloatDays returns the category slack, or the default for unlisted categories.
func (n *Network) FloatDays(cat string) float64 {
	if d, ok := n.floatDays[cat]; ok {
		return d
	}
	return n.defaultFloat
}

// IsCritical reports whether the category has zero float.
func (n *Network) IsCritical(cat string) bool {
	return n.FloatDays(cat) == 0
}

// CriticalPath returns the zero-float categories in sorted order.
func (n *Network) CriticalPath() []string {
	var out []string
	for _, cat := range n.Categories() {
		if n.IsCritical(cat) {
			out = append(out, cat)
		}
	}
	return out
}

// CanRunInParallel reports whether two categories share a parallel group.
// Informational only; the aggregator does not consult it.
func (n *Network) CanRunInParallel(a, b string) bool {
	for _, g := range n.groups {
		var hasA, hasB bool
		for _, c := range g {
			hasA = hasA || c == a
			hasB = hasB || c == b
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}
