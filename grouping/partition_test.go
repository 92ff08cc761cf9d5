package grouping

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupwork-server-go/models"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func makeRoster(n int) []models.Student {
	roster := make([]models.Student, n)
	for i := range roster {
		roster[i] = models.Student{ID: fmt.Sprintf("S%d", i+1), Name: fmt.Sprintf("Student %d", i+1), ClassID: "C1"}
	}
	return roster
}

func scored(scores ...float64) []models.Student {
	roster := makeRoster(len(scores))
	for i := range roster {
		v := scores[i]
		roster[i].Score = &v
	}
	return roster
}

func memberIDs(groups []models.Group) []string {
	var ids []string
	for _, g := range groups {
		for _, m := range g.Members {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func rosterIDs(roster []models.Student) []string {
	ids := make([]string, len(roster))
	for i, s := range roster {
		ids[i] = s.ID
	}
	sort.Strings(ids)
	return ids
}

func sizes(groups []models.Group) []int {
	out := make([]int, len(groups))
	for i, g := range groups {
		out[i] = len(g.Members)
	}
	return out
}

func TestPartition_CoverageAndBalance(t *testing.T) {
	p := NewPartitioner(seeded(1))
	algorithms := map[string]func([]models.Student, int) ([]models.Group, error){
		"random":     p.PartitionRandom,
		"stratified": PartitionStratified,
	}
	for name, partition := range algorithms {
		for n := 1; n <= 25; n++ {
			for k := 1; k <= 8; k++ {
				t.Run(fmt.Sprintf("%s/n=%d/k=%d", name, n, k), func(t *testing.T) {
					roster := makeRoster(n)
					groups, err := partition(roster, k)
					require.NoError(t, err)
					require.Len(t, groups, k)
					assert.Equal(t, rosterIDs(roster), memberIDs(groups))

					sz := sizes(groups)
					sort.Ints(sz)
					assert.LessOrEqual(t, sz[len(sz)-1]-sz[0], 1, "sizes %v", sz)
					for i, g := range groups {
						assert.Equal(t, fmt.Sprintf("group-%d", i+1), g.ID)
						assert.Equal(t, fmt.Sprintf("Group %d", i+1), g.Name)
					}
				})
			}
		}
	}
}

func TestPartitionRandom_TenIntoThree(t *testing.T) {
	p := NewPartitioner(seeded(42))
	roster := makeRoster(10)

	groups, err := p.PartitionRandom(roster, 3)
	require.NoError(t, err)

	sz := sizes(groups)
	sort.Ints(sz)
	assert.Equal(t, []int{3, 3, 4}, sz)
	assert.Equal(t, rosterIDs(roster), memberIDs(groups))
}

func TestPartitionRandom_DoesNotMutateRoster(t *testing.T) {
	p := NewPartitioner(seeded(7))
	roster := makeRoster(12)
	before := append([]models.Student(nil), roster...)

	_, err := p.PartitionRandom(roster, 4)
	require.NoError(t, err)
	assert.Equal(t, before, roster)
}

func TestPartitionRandom_Uniformity(t *testing.T) {
	const (
		trials = 3000
		k      = 3
	)
	p := NewPartitioner(seeded(2024))
	roster := makeRoster(7)

	counts := make([]int, k)
	largest := make([]int, k)
	for i := 0; i < trials; i++ {
		groups, err := p.PartitionRandom(roster, k)
		require.NoError(t, err)
		for gi, g := range groups {
			for _, m := range g.Members {
				if m.ID == "S1" {
					counts[gi]++
				}
			}
			if len(g.Members) == 3 {
				largest[gi]++
			}
		}
	}

	chiSquare := func(observed []int) float64 {
		expected := float64(trials) / float64(len(observed))
		var sum float64
		for _, o := range observed {
			d := float64(o) - expected
			sum += d * d / expected
		}
		return sum
	}
	// Two degrees of freedom; 13.8 is the 0.1% critical value, leave headroom.
	assert.Less(t, chiSquare(counts), 20.0, "student placement %v", counts)
	assert.Less(t, chiSquare(largest), 20.0, "larger-group placement %v", largest)
}

func TestPartitionStratified_SnakeDraft(t *testing.T) {
	roster := scored(95, 90, 85, 80, 75, 70, 65, 60, 55)

	groups, err := PartitionStratified(roster, 3)
	require.NoError(t, err)

	scoresOf := func(g models.Group) []float64 {
		var out []float64
		for _, m := range g.Members {
			out = append(out, m.ScoreOrZero())
		}
		return out
	}
	assert.Equal(t, []float64{95, 80, 65}, scoresOf(groups[0]))
	assert.Equal(t, []float64{90, 75, 60}, scoresOf(groups[1]))
	assert.Equal(t, []float64{85, 70, 55}, scoresOf(groups[2]))
}

func TestPartitionStratified_Deterministic(t *testing.T) {
	roster := scored(40, 88, 88, 12, 67, 88, 91, 50, 3, 77, 66)

	first, err := PartitionStratified(roster, 4)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := PartitionStratified(roster, 4)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPartitionStratified_TiesAndMissingScores(t *testing.T) {
	roster := scored(50, 50, 50, 90)
	roster = append(roster, models.Student{ID: "S5", Name: "No score"})

	groups, err := PartitionStratified(roster, 5)
	require.NoError(t, err)

	var order []string
	for _, g := range groups {
		require.Len(t, g.Members, 1)
		order = append(order, g.Members[0].ID)
	}
	// 90 first, the three 50s in roster order, the unscored student last.
	assert.Equal(t, []string{"S4", "S1", "S2", "S3", "S5"}, order)
}

func TestPartition_MoreGroupsThanStudents(t *testing.T) {
	p := NewPartitioner(seeded(3))
	groups, err := p.PartitionRandom(makeRoster(2), 5)
	require.NoError(t, err)
	require.Len(t, groups, 5)

	empty := 0
	for _, g := range groups {
		if len(g.Members) == 0 {
			empty++
		}
	}
	assert.Equal(t, 3, empty)
}

func TestPartition_Errors(t *testing.T) {
	p := NewPartitioner(seeded(5))
	tests := []struct {
		name    string
		mode    Mode
		roster  []models.Student
		k       int
		wantErr error
	}{
		{name: "empty roster random", mode: ModeRandom, roster: nil, k: 3, wantErr: ErrEmptyRoster},
		{name: "empty roster stratified", mode: ModeStratified, roster: []models.Student{}, k: 3, wantErr: ErrEmptyRoster},
		{name: "zero groups", mode: ModeRandom, roster: makeRoster(4), k: 0, wantErr: ErrInvalidGroupCount},
		{name: "negative groups", mode: ModeStratified, roster: makeRoster(4), k: -2, wantErr: ErrInvalidGroupCount},
		{name: "too many groups", mode: ModeRandom, roster: makeRoster(4), k: MaxGroupCount + 1, wantErr: ErrInvalidGroupCount},
		{name: "huge group count", mode: ModeStratified, roster: makeRoster(4), k: 3000000, wantErr: ErrInvalidGroupCount},
		{name: "default mode is random", mode: "", roster: makeRoster(4), k: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := p.Partition(tt.mode, tt.roster, tt.k)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, groups)
				return
			}
			require.NoError(t, err)
			assert.Len(t, groups, tt.k)
		})
	}

	_, err := p.Partition("alphabetical", makeRoster(3), 2)
	assert.Error(t, err)
}
