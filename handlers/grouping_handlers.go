package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"groupwork-server-go/db"
	"groupwork-server-go/grouping"
	"groupwork-server-go/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeGroupingError maps grouping errors to HTTP responses.
func writeGroupingError(c *gin.Context, err error) {
	var verr *grouping.ValidationError
	var perr *grouping.PersistenceError
	switch {
	case errors.Is(err, grouping.ErrEmptyRoster):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No students to group in this class"})
	case errors.Is(err, grouping.ErrInvalidGroupCount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid grouping details", "fields": verr.Fields})
	case errors.Is(err, grouping.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Grouping not found"})
	case errors.Is(err, grouping.ErrReshuffleNotConfirmed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not save groups, please retry"})
	default:
		log.Printf("Unexpected grouping error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type partitionRequest struct {
	GroupCount int           `json:"groupCount"`
	Mode       grouping.Mode `json:"mode" binding:"omitempty,oneof=random stratified"`
}

// partition loads the class roster and splits it, writing the error response itself on failure.
func (h *APIHandler) partition(c *gin.Context, classID string, req partitionRequest) ([]models.Group, bool) {
	roster, ok := h.loadRoster(c, classID)
	if !ok {
		return nil, false
	}
	groups, err := h.Partitioner.Partition(req.Mode, roster, req.GroupCount)
	if err != nil {
		writeGroupingError(c, err)
		return nil, false
	}
	if req.GroupCount > len(roster) {
		log.Printf("Class %s: %d groups requested for %d students, %d groups left empty",
			classID, req.GroupCount, len(roster), req.GroupCount-len(roster))
	}
	return groups, true
}

// PreviewPartition handles POST /api/classes/:classId/partition
func (h *APIHandler) PreviewPartition(c *gin.Context) {
	var req partitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	groups, ok := h.partition(c, c.Param("classId"), req)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// --- Editing sessions ---

type sessionView struct {
	SessionID  string `json:"sessionId"`
	GroupingID string `json:"groupingId,omitempty"`
	models.GroupingMeta
	Groups      []models.Group      `json:"groups"`
	PendingDrag *grouping.DragStart `json:"pendingDrag,omitempty"`
	Changed     *bool               `json:"changed,omitempty"`
}

// view must be called with the session locked.
func view(s *grouping.Session) sessionView {
	v := sessionView{
		SessionID:    s.ID,
		GroupingID:   s.Editor.PersistentID(),
		GroupingMeta: s.Editor.Meta(),
		Groups:       s.Editor.Groups(),
	}
	if p, ok := s.Editor.Pending(); ok {
		v.PendingDrag = &p
	}
	return v
}

func changedView(s *grouping.Session, changed bool) sessionView {
	v := view(s)
	v.Changed = &changed
	return v
}

type openSessionRequest struct {
	partitionRequest
	Title     string `json:"title" binding:"required"`
	ClassID   string `json:"classId" binding:"required"`
	SubjectID string `json:"subjectId"`
	Date      string `json:"date" binding:"required,datetime=2006-01-02"`
}

// OpenSession handles POST /api/sessions: partitions a class and opens an editor on the result.
func (h *APIHandler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	groups, ok := h.partition(c, req.ClassID, req.partitionRequest)
	if !ok {
		return
	}
	meta := models.GroupingMeta{Title: req.Title, ClassID: req.ClassID, SubjectID: req.SubjectID, Date: req.Date}
	s := h.Sessions.Open(grouping.NewEditor(meta, groups, nil))
	log.Printf("Opened grouping session %s for class %s (%d groups)", s.ID, req.ClassID, len(groups))

	s.Lock()
	defer s.Unlock()
	c.JSON(http.StatusCreated, view(s))
}

// ReopenSession handles POST /api/groupings/:groupingId/session
func (h *APIHandler) ReopenSession(c *gin.Context) {
	g, err := h.Groupings.Get(c.Request.Context(), c.Param("groupingId"))
	if err != nil {
		writeGroupingError(c, err)
		return
	}
	s := h.Sessions.Open(grouping.OpenEditor(g, nil))
	log.Printf("Opened grouping session %s on saved grouping %s", s.ID, g.ID)

	s.Lock()
	defer s.Unlock()
	c.JSON(http.StatusCreated, view(s))
}

func (h *APIHandler) session(c *gin.Context) (*grouping.Session, bool) {
	s, ok := h.Sessions.Get(c.Param("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return s, true
}

// GetSession handles GET /api/sessions/:sessionId
func (h *APIHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	c.JSON(http.StatusOK, view(s))
}

type moveRequest struct {
	MemberID    string `json:"memberId" binding:"required"`
	FromGroupID string `json:"fromGroupId" binding:"required"`
	ToGroupID   string `json:"toGroupId" binding:"required"`
}

// MoveMember handles POST /api/sessions/:sessionId/move. Invalid moves leave
// the grouping unchanged and are reported with changed=false, not as errors.
func (h *APIHandler) MoveMember(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	s.Lock()
	defer s.Unlock()
	changed := s.Editor.Move(req.MemberID, req.FromGroupID, req.ToGroupID)
	c.JSON(http.StatusOK, changedView(s, changed))
}

// DragStart handles POST /api/sessions/:sessionId/drag-start
func (h *APIHandler) DragStart(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var msg grouping.DragStart
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	s.Lock()
	defer s.Unlock()
	s.Editor.HandleDragStart(msg)
	c.JSON(http.StatusOK, view(s))
}

// DragEnd handles POST /api/sessions/:sessionId/drag-end
func (h *APIHandler) DragEnd(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var msg grouping.DragEnd
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	s.Lock()
	defer s.Unlock()
	changed := s.Editor.HandleDragEnd(msg)
	c.JSON(http.StatusOK, changedView(s, changed))
}

type reshuffleRequest struct {
	Confirm bool `json:"confirm"`
}

// Reshuffle handles POST /api/sessions/:sessionId/reshuffle
func (h *APIHandler) Reshuffle(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req reshuffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	s.Lock()
	defer s.Unlock()
	if err := s.Editor.ReshuffleAll(req.Confirm); err != nil {
		writeGroupingError(c, err)
		return
	}
	c.JSON(http.StatusOK, view(s))
}

// SaveSession handles POST /api/sessions/:sessionId/save. A failed save keeps
// the session so the client can retry.
func (h *APIHandler) SaveSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	id, err := s.Editor.Save(c.Request.Context(), h.Groupings)
	if err != nil {
		log.Printf("Error saving session %s: %v", s.ID, err)
		writeGroupingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupingId": id, "session": view(s)})
}

// DiscardSession handles DELETE /api/sessions/:sessionId
func (h *APIHandler) DiscardSession(c *gin.Context) {
	if !h.Sessions.Close(c.Param("sessionId")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Saved groupings ---

// ListGroupings handles GET /api/groupings
func (h *APIHandler) ListGroupings(c *gin.Context) {
	groupings, err := h.Groupings.List(c.Request.Context())
	if err != nil {
		writeGroupingError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupings)
}

// GetGrouping handles GET /api/groupings/:groupingId
func (h *APIHandler) GetGrouping(c *gin.Context) {
	g, err := h.Groupings.Get(c.Request.Context(), c.Param("groupingId"))
	if err != nil {
		writeGroupingError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type updateGroupingRequest struct {
	Groups []models.GroupRef `json:"groups" binding:"required,max=100"`
}

// UpdateGrouping handles PUT /api/groupings/:groupingId
func (h *APIHandler) UpdateGrouping(c *gin.Context) {
	var req updateGroupingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	id := c.Param("groupingId")
	if err := h.Groupings.Update(c.Request.Context(), id, req.Groups); err != nil {
		writeGroupingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupingId": id})
}

// DeleteGrouping handles DELETE /api/groupings/:groupingId
func (h *APIHandler) DeleteGrouping(c *gin.Context) {
	if err := h.Groupings.Delete(c.Request.Context(), c.Param("groupingId")); err != nil {
		writeGroupingError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportGrouping handles GET /api/groupings/:groupingId/export
func (h *APIHandler) ExportGrouping(c *gin.Context) {
	g, err := h.Groupings.Get(c.Request.Context(), c.Param("groupingId"))
	if err != nil {
		writeGroupingError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := db.ExportGrouping(g, &buf); err != nil {
		log.Printf("Error exporting grouping %s: %v", g.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export grouping"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="grouping-%s.xlsx"`, g.ID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
