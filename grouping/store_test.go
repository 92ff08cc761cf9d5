package grouping

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupwork-server-go/models"
)

type memRecords struct {
	recs map[string]models.GroupingRecord
	err  error
}

func newMemRecords() *memRecords {
	return &memRecords{recs: make(map[string]models.GroupingRecord)}
}

func (m *memRecords) Insert(_ context.Context, rec models.GroupingRecord) error {
	if m.err != nil {
		return m.err
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memRecords) All(context.Context) ([]models.GroupingRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.GroupingRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRecords) Find(_ context.Context, id string) (models.GroupingRecord, error) {
	if m.err != nil {
		return models.GroupingRecord{}, m.err
	}
	r, ok := m.recs[id]
	if !ok {
		return models.GroupingRecord{}, ErrNotFound
	}
	return r, nil
}

func (m *memRecords) Replace(_ context.Context, id string, groups []models.GroupRef) error {
	if m.err != nil {
		return m.err
	}
	r, ok := m.recs[id]
	if !ok {
		return ErrNotFound
	}
	r.Groups = groups
	m.recs[id] = r
	return nil
}

func (m *memRecords) Remove(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

type mapDirectory struct {
	names map[string]string
	err   error
}

func (d mapDirectory) StudentNames(_ context.Context, ids []string) (map[string]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[string]string)
	for _, id := range ids {
		if n, ok := d.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func newTestStore(records Records, dir Directory) *Store {
	s := NewStore(records, dir)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("g-%d", n)
	}
	return s
}

var directory = mapDirectory{names: map[string]string{"S1": "Ann", "S2": "Ben", "S3": "Cid"}}

func TestStore_CreateThenList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemRecords(), directory)

	id, err := s.Create(ctx, testMeta, []models.GroupRef{
		{Name: "Group 1", MemberIDs: []string{"S1", "S3"}},
		{Name: "Group 2", MemberIDs: []string{"S2", "S404"}},
		{Name: "Group 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "g-1", id)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	assert.Equal(t, "g-1", got.ID)
	assert.Equal(t, "Lab 3", got.Title)
	assert.Equal(t, NoSubject, got.SubjectID)
	assert.Equal(t, []models.HydratedGroup{
		{Name: "Group 1", Members: []models.Member{{ID: "S1", Name: "Ann"}, {ID: "S3", Name: "Cid"}}},
		{Name: "Group 2", Members: []models.Member{{ID: "S2", Name: "Ben"}, {ID: "S404", Name: UnknownMemberName}}},
		{Name: "Group 3", Members: []models.Member{}},
	}, got.Groups)
}

func TestStore_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		meta   models.GroupingMeta
		fields []string
	}{
		{name: "missing title", meta: models.GroupingMeta{Title: "  ", ClassID: "C1", Date: "2026-10-17"}, fields: []string{"Title"}},
		{name: "missing class", meta: models.GroupingMeta{Title: "T", Date: "2026-10-17"}, fields: []string{"ClassID"}},
		{name: "bad date", meta: models.GroupingMeta{Title: "T", ClassID: "C1", Date: "17/10/2026"}, fields: []string{"Date"}},
		{name: "everything missing", meta: models.GroupingMeta{}, fields: []string{"Title", "ClassID", "Date"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := newMemRecords()
			s := newTestStore(records, directory)

			_, err := s.Create(context.Background(), tt.meta, nil)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Empty(t, records.recs)
		})
	}
}

func TestStore_KeepsSubject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemRecords(), directory)
	meta := testMeta
	meta.SubjectID = "MATH"

	id, err := s.Create(ctx, meta, nil)
	require.NoError(t, err)
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "MATH", got.SubjectID)
	assert.Empty(t, got.Groups)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemRecords(), directory)
	id, err := s.Create(ctx, testMeta, []models.GroupRef{{Name: "A", MemberIDs: []string{"S1", "S2"}}})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, id, []models.GroupRef{
		{Name: "A", MemberIDs: []string{"S1"}},
		{Name: "B", MemberIDs: []string{"S2"}},
	}))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Groups, 2)
	assert.Equal(t, []models.Member{{ID: "S2", Name: "Ben"}}, got.Groups[1].Members)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Update(ctx, id, nil), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)
}

func TestStore_BackendFailures(t *testing.T) {
	ctx := context.Background()
	down := errors.New("dial tcp: connection refused")
	records := newMemRecords()
	records.err = down
	s := newTestStore(records, directory)

	var perr *PersistenceError
	_, err := s.Create(ctx, testMeta, nil)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create", perr.Op)
	assert.ErrorIs(t, err, down)

	_, err = s.List(ctx)
	assert.ErrorAs(t, err, &perr)
	assert.ErrorAs(t, s.Update(ctx, "g-1", nil), &perr)
	assert.ErrorAs(t, s.Delete(ctx, "g-1"), &perr)
}

func TestStore_DirectoryFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemRecords(), mapDirectory{err: errors.New("redis down")})
	id, err := s.Create(ctx, testMeta, []models.GroupRef{{Name: "A", MemberIDs: []string{"S1"}}})
	require.NoError(t, err)

	_, err = s.Get(ctx, id)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "hydrate", perr.Op)
}

func TestStore_SatisfiesSaver(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemRecords(), directory)
	e := NewEditor(testMeta, fixedGroups(), seeded(1))

	id, err := e.Save(ctx, s)
	require.NoError(t, err)
	e.Move("S1", "group-1", "group-3")
	_, err = e.Save(ctx, s)
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Groups, 3)
	assert.Len(t, got.Groups[0].Members, 3)
	assert.Equal(t, models.Member{ID: "S1", Name: "Ann"}, got.Groups[2].Members[3])
}
