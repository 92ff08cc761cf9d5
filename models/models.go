package models

// Clazz represents a class
type Clazz struct {
	ID   string `json:"id"`   // Unique class ID
	Name string `json:"name"` // Class name
}

// Student represents a student
type Student struct {
	ID      string   `json:"id"`              // Unique student ID (e.g., student number)
	Name    string   `json:"name"`            // Student name
	ClassID string   `json:"classId"`         // ID of the class the student belongs to
	Score   *float64 `json:"score,omitempty"` // Optional 0-100 score used by stratified grouping
}

// ScoreOrZero returns the student's score, or 0 when none is recorded.
func (s Student) ScoreOrZero() float64 {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}

// Member is a hydrated group member as returned to clients.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Group is one group of a materialized grouping.
type Group struct {
	ID      string    `json:"id"`   // group-1..group-k, stable within one session
	Name    string    `json:"name"` // e.g. "Group 3"
	Members []Student `json:"members"`
}

// GroupRef is the persisted form of a group: names are re-derived from the roster on read.
type GroupRef struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
}

// GroupingMeta holds the activity metadata of a grouping.
type GroupingMeta struct {
	Title     string `json:"title" validate:"required"`
	ClassID   string `json:"classId" validate:"required"`
	SubjectID string `json:"subjectId"` // "-" when the activity has no subject
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
}

// GroupingRecord is a grouping as stored by a backend.
type GroupingRecord struct {
	ID string `json:"id"`
	GroupingMeta
	Groups []GroupRef `json:"groups"`
}

// HydratedGroup is a stored group with member ids joined against the student directory.
type HydratedGroup struct {
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

// Grouping is a persisted grouping with hydrated members.
type Grouping struct {
	ID string `json:"id"`
	GroupingMeta
	Groups []HydratedGroup `json:"groups"`
}
