package grouping

import (
	"context"
	"errors"
	"math/rand/v2"

	"groupwork-server-go/models"
)

// Saver is the part of the grouping store an Editor writes through.
type Saver interface {
	Create(ctx context.Context, meta models.GroupingMeta, groups []models.GroupRef) (string, error)
	Update(ctx context.Context, id string, groups []models.GroupRef) error
}

// DragStart begins a drag gesture on a member.
type DragStart struct {
	MemberID    string `json:"memberId"`
	FromGroupID string `json:"fromGroupId"`
}

// DragEnd drops the member of the pending gesture on a group.
type DragEnd struct {
	ToGroupID string `json:"toGroupId"`
}

// Editor holds one grouping being arranged by a user. It is not safe for
// concurrent use; Sessions serializes access to it.
type Editor struct {
	meta       models.GroupingMeta
	persistent string
	groups     []models.Group
	pending    *DragStart
	rng        *rand.Rand
}

// NewEditor wraps freshly partitioned groups. The grouping has no persistent id until saved.
func NewEditor(meta models.GroupingMeta, groups []models.Group, rng *rand.Rand) *Editor {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Editor{meta: meta, groups: groups, rng: rng}
}

// OpenEditor reopens a saved grouping for editing. Group ids are reassigned in stored order.
func OpenEditor(g models.Grouping, rng *rand.Rand) *Editor {
	groups := make([]models.Group, len(g.Groups))
	for i, hg := range g.Groups {
		members := make([]models.Student, 0, len(hg.Members))
		for _, m := range hg.Members {
			members = append(members, models.Student{ID: m.ID, Name: m.Name, ClassID: g.ClassID})
		}
		groups[i] = models.Group{ID: GroupID(i), Name: hg.Name, Members: members}
	}
	e := NewEditor(g.GroupingMeta, groups, rng)
	e.persistent = g.ID
	return e
}

// Meta returns the grouping metadata.
func (e *Editor) Meta() models.GroupingMeta { return e.meta }

// PersistentID returns the store id, or "" before the first successful save.
func (e *Editor) PersistentID() string { return e.persistent }

// Groups returns a deep copy of the current groups.
func (e *Editor) Groups() []models.Group {
	out := make([]models.Group, len(e.groups))
	for i, g := range e.groups {
		members := make([]models.Student, len(g.Members))
		copy(members, g.Members)
		g.Members = members
		out[i] = g
	}
	return out
}

// Pending returns the drag gesture in progress, if any.
func (e *Editor) Pending() (DragStart, bool) {
	if e.pending == nil {
		return DragStart{}, false
	}
	return *e.pending, true
}

func (e *Editor) groupIndex(id string) int {
	for i := range e.groups {
		if e.groups[i].ID == id {
			return i
		}
	}
	return -1
}

// Move moves a member between two different groups. Any invalid move is
// ignored; the return value only tells whether the grouping changed.
func (e *Editor) Move(memberID, fromGroupID, toGroupID string) bool {
	if fromGroupID == toGroupID {
		return false
	}
	from, to := e.groupIndex(fromGroupID), e.groupIndex(toGroupID)
	if from < 0 || to < 0 {
		return false
	}
	members := e.groups[from].Members
	for i, m := range members {
		if m.ID != memberID {
			continue
		}
		e.groups[from].Members = append(members[:i:i], members[i+1:]...)
		e.groups[to].Members = append(e.groups[to].Members, m)
		return true
	}
	return false
}

// HandleDragStart records a pending gesture, replacing any earlier one.
func (e *Editor) HandleDragStart(msg DragStart) {
	e.pending = &msg
}

// HandleDragEnd completes the pending gesture. Without one it does nothing.
func (e *Editor) HandleDragEnd(msg DragEnd) bool {
	if e.pending == nil {
		return false
	}
	start := *e.pending
	e.pending = nil
	return e.Move(start.MemberID, start.FromGroupID, msg.ToGroupID)
}

// ReshuffleAll redistributes every member at random while keeping each
// group's current size. It discards manual arrangement, so it must be confirmed.
func (e *Editor) ReshuffleAll(confirmed bool) error {
	if !confirmed {
		return ErrReshuffleNotConfirmed
	}
	var all []models.Student
	sizes := make([]int, len(e.groups))
	for i, g := range e.groups {
		sizes[i] = len(g.Members)
		all = append(all, g.Members...)
	}
	shuffle(e.rng, all)

	offset := 0
	for i := range e.groups {
		members := make([]models.Student, sizes[i])
		copy(members, all[offset:offset+sizes[i]])
		e.groups[i].Members = members
		offset += sizes[i]
	}
	e.pending = nil
	return nil
}

// Refs reduces the current groups to their persisted form.
func (e *Editor) Refs() []models.GroupRef {
	return Refs(e.groups)
}

// Refs reduces groups to {name, memberIds}.
func Refs(groups []models.Group) []models.GroupRef {
	refs := make([]models.GroupRef, len(groups))
	for i, g := range groups {
		ids := make([]string, len(g.Members))
		for j, m := range g.Members {
			ids[j] = m.ID
		}
		refs[i] = models.GroupRef{Name: g.Name, MemberIDs: ids}
	}
	return refs
}

// Save creates the grouping on first save and replaces its groups afterwards.
// On failure the editor keeps its groups so the user can retry. If the saved
// grouping was deleted elsewhere, Save returns ErrNotFound and forgets the old
// id, so the next Save creates a new grouping.
func (e *Editor) Save(ctx context.Context, store Saver) (string, error) {
	refs := e.Refs()
	if e.persistent == "" {
		id, err := store.Create(ctx, e.meta, refs)
		if err != nil {
			return "", err
		}
		e.persistent = id
		return id, nil
	}
	if err := store.Update(ctx, e.persistent, refs); err != nil {
		if errors.Is(err, ErrNotFound) {
			e.persistent = ""
		}
		return "", err
	}
	return e.persistent, nil
}
