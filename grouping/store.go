package grouping

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"groupwork-server-go/models"
)

const (
	// NoSubject is stored when a grouping is not tied to a subject.
	NoSubject = "-"
	// UnknownMemberName is shown for member ids no longer in the student directory.
	UnknownMemberName = "Unknown"
)

// Records is a backend holding grouping records. Find, Replace and Remove
// return ErrNotFound for an unknown id.
type Records interface {
	Insert(ctx context.Context, rec models.GroupingRecord) error
	All(ctx context.Context) ([]models.GroupingRecord, error)
	Find(ctx context.Context, id string) (models.GroupingRecord, error)
	Replace(ctx context.Context, id string, groups []models.GroupRef) error
	Remove(ctx context.Context, id string) error
}

// Directory resolves student ids to display names. Unknown ids are absent from the result.
type Directory interface {
	StudentNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Store persists groupings and hydrates their members on read.
type Store struct {
	records  Records
	dir      Directory
	validate *validator.Validate
	newID    func() string
}

// NewStore returns a Store over the given backend and student directory.
func NewStore(records Records, dir Directory) *Store {
	return &Store{
		records:  records,
		dir:      dir,
		validate: validator.New(),
		newID:    uuid.NewString,
	}
}

// Create persists a new grouping and returns its id.
func (s *Store) Create(ctx context.Context, meta models.GroupingMeta, groups []models.GroupRef) (string, error) {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.SubjectID = strings.TrimSpace(meta.SubjectID)
	if meta.SubjectID == "" {
		meta.SubjectID = NoSubject
	}
	if err := s.validate.Struct(meta); err != nil {
		return "", toValidationError(err)
	}

	rec := models.GroupingRecord{
		ID:           s.newID(),
		GroupingMeta: meta,
		Groups:       normalizeRefs(groups),
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		log.Printf("Error creating grouping %q for class %s: %v", meta.Title, meta.ClassID, err)
		return "", &PersistenceError{Op: "create", Err: err}
	}
	log.Printf("Created grouping %s (%s) with %d groups", rec.ID, meta.Title, len(rec.Groups))
	return rec.ID, nil
}

// List returns every stored grouping with hydrated members.
func (s *Store) List(ctx context.Context) ([]models.Grouping, error) {
	recs, err := s.records.All(ctx)
	if err != nil {
		log.Printf("Error listing groupings: %v", err)
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	names, err := s.names(ctx, recs...)
	if err != nil {
		return nil, err
	}
	out := make([]models.Grouping, 0, len(recs))
	for _, rec := range recs {
		out = append(out, hydrate(rec, names))
	}
	return out, nil
}

// Get returns one grouping with hydrated members.
func (s *Store) Get(ctx context.Context, id string) (models.Grouping, error) {
	rec, err := s.records.Find(ctx, id)
	if err != nil {
		return models.Grouping{}, wrapStoreErr("get", err)
	}
	names, err := s.names(ctx, rec)
	if err != nil {
		return models.Grouping{}, err
	}
	return hydrate(rec, names), nil
}

// Update replaces the groups of an existing grouping. Concurrent updates are last-write-wins.
func (s *Store) Update(ctx context.Context, id string, groups []models.GroupRef) error {
	if err := s.records.Replace(ctx, id, normalizeRefs(groups)); err != nil {
		return wrapStoreErr("update", err)
	}
	log.Printf("Updated grouping %s", id)
	return nil
}

// Delete removes a grouping.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.records.Remove(ctx, id); err != nil {
		return wrapStoreErr("delete", err)
	}
	log.Printf("Deleted grouping %s", id)
	return nil
}

func (s *Store) names(ctx context.Context, recs ...models.GroupingRecord) (map[string]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, rec := range recs {
		for _, g := range rec.Groups {
			for _, id := range g.MemberIDs {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	names, err := s.dir.StudentNames(ctx, ids)
	if err != nil {
		log.Printf("Error resolving %d member names: %v", len(ids), err)
		return nil, &PersistenceError{Op: "hydrate", Err: err}
	}
	return names, nil
}

func hydrate(rec models.GroupingRecord, names map[string]string) models.Grouping {
	groups := make([]models.HydratedGroup, len(rec.Groups))
	for i, g := range rec.Groups {
		members := make([]models.Member, len(g.MemberIDs))
		for j, id := range g.MemberIDs {
			name, ok := names[id]
			if !ok {
				name = UnknownMemberName
			}
			members[j] = models.Member{ID: id, Name: name}
		}
		groups[i] = models.HydratedGroup{Name: g.Name, Members: members}
	}
	return models.Grouping{ID: rec.ID, GroupingMeta: rec.GroupingMeta, Groups: groups}
}

func normalizeRefs(groups []models.GroupRef) []models.GroupRef {
	out := make([]models.GroupRef, len(groups))
	for i, g := range groups {
		if g.MemberIDs == nil {
			g.MemberIDs = []string{}
		}
		out[i] = g
	}
	return out
}

func wrapStoreErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	log.Printf("Error during grouping %s: %v", op, err)
	return &PersistenceError{Op: op, Err: err}
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
