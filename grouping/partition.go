// Package grouping splits a class roster into balanced groups and lets a user
// rearrange the result before it is persisted.
package grouping

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"groupwork-server-go/models"
)

// Mode selects the partitioning algorithm.
type Mode string

const (
	ModeRandom     Mode = "random"
	ModeStratified Mode = "stratified"
)

// MaxGroupCount bounds k. Counts above the roster size are allowed up to it
// and leave the surplus groups empty.
const MaxGroupCount = 100

// Partitioner produces groupings from a roster. It is safe for concurrent use;
// the zero value is not usable, use NewPartitioner.
type Partitioner struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPartitioner returns a Partitioner drawing from rng. A nil rng uses a randomly seeded source.
func NewPartitioner(rng *rand.Rand) *Partitioner {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Partitioner{rng: rng}
}

// Partition dispatches to the algorithm named by mode.
func (p *Partitioner) Partition(mode Mode, roster []models.Student, k int) ([]models.Group, error) {
	switch mode {
	case ModeRandom, "":
		return p.PartitionRandom(roster, k)
	case ModeStratified:
		return PartitionStratified(roster, k)
	default:
		return nil, fmt.Errorf("unknown partition mode %q", mode)
	}
}

// PartitionRandom shuffles the roster and deals it round-robin into k groups,
// starting at a random group so the larger groups are not always the first ones.
func (p *Partitioner) PartitionRandom(roster []models.Student, k int) ([]models.Group, error) {
	if err := checkPartitionArgs(roster, k); err != nil {
		return nil, err
	}
	shuffled := append([]models.Student(nil), roster...)
	p.mu.Lock()
	shuffle(p.rng, shuffled)
	start := p.rng.IntN(k)
	p.mu.Unlock()

	groups := newGroups(k, len(roster))
	for idx, s := range shuffled {
		g := (start + idx) % k
		groups[g].Members = append(groups[g].Members, s)
	}
	return groups, nil
}

// PartitionStratified sorts the roster by score, highest first, and deals it
// round-robin into k groups. Equal scores keep their roster order, so the
// result is fully determined by the input.
func PartitionStratified(roster []models.Student, k int) ([]models.Group, error) {
	if err := checkPartitionArgs(roster, k); err != nil {
		return nil, err
	}
	sorted := append([]models.Student(nil), roster...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ScoreOrZero() > sorted[j].ScoreOrZero()
	})

	groups := newGroups(k, len(roster))
	for idx, s := range sorted {
		groups[idx%k].Members = append(groups[idx%k].Members, s)
	}
	return groups, nil
}

func checkPartitionArgs(roster []models.Student, k int) error {
	if len(roster) == 0 {
		return ErrEmptyRoster
	}
	if k <= 0 || k > MaxGroupCount {
		return fmt.Errorf("%w: got %d", ErrInvalidGroupCount, k)
	}
	return nil
}

// newGroups returns k empty groups named group-1..group-k.
func newGroups(k, n int) []models.Group {
	groups := make([]models.Group, k)
	for i := range groups {
		groups[i] = models.Group{
			ID:      GroupID(i),
			Name:    fmt.Sprintf("Group %d", i+1),
			Members: make([]models.Student, 0, n/k+1),
		}
	}
	return groups
}

// GroupID returns the session-local id of the i-th (0-based) group.
func GroupID(i int) string {
	return fmt.Sprintf("group-%d", i+1)
}

// shuffle is a Fisher-Yates shuffle: every permutation is equally likely.
func shuffle(rng *rand.Rand, s []models.Student) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
