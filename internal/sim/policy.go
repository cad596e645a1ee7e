package sim

import (
	"fmt"
	"sort"

	"barsim/internal/domain"
)

// PathPolicy resolves which of several potentially-triggerable orders wins
// when an ambiguous bar could plausibly have executed any of them.
type PathPolicy string

const (
	// PathDeterministic keeps plain submission order.
	PathDeterministic PathPolicy = "DETERMINISTIC"
	// PathWorstCase assumes the adverse outcome: stops before limits.
	PathWorstCase PathPolicy = "WORST_CASE"
	// PathBestCase favors the profitable outcome: limits before stops.
	// Debugging and upper-bound use only.
	PathBestCase PathPolicy = "BEST_CASE"
)

// ParsePathPolicy converts a config string to a PathPolicy.
func ParsePathPolicy(s string) (PathPolicy, error) {
	switch PathPolicy(s) {
	case PathDeterministic, PathWorstCase, PathBestCase:
		return PathPolicy(s), nil
	}
	return "", fmt.Errorf("unknown path policy %q", s)
}

// rank orders candidates within one intrabar pass. Lower ranks fill first.
func (p PathPolicy) rank(o *domain.Order) int {
	switch p {
	case PathWorstCase:
		switch o.Type {
		case domain.OrderTypeStop:
			return 0
		case domain.OrderTypeStopLimit:
			return 1
		default:
			return 2
		}
	case PathBestCase:
		switch o.Type {
		case domain.OrderTypeLimit:
			return 0
		case domain.OrderTypeStopLimit:
			return 1
		default:
			return 2
		}
	}
	return 0
}

// sortCandidates applies the path policy ordering with the submission
// sequence as the final deterministic tie-break.
func (p PathPolicy) sortCandidates(orders []*domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		ri, rj := p.rank(orders[i]), p.rank(orders[j])
		if ri != rj {
			return ri < rj
		}
		return orders[i].SubmitSeq < orders[j].SubmitSeq
	})
}
