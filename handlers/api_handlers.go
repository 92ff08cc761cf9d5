package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"groupwork-server-go/db"
	"groupwork-server-go/grouping"
	"groupwork-server-go/models"
)

// APIHandler holds the dependencies for API handlers
type APIHandler struct {
	RedisService *db.RedisService
	Groupings    *grouping.Store
	Sessions     *grouping.Sessions
	Partitioner  *grouping.Partitioner
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(service *db.RedisService, store *grouping.Store, sessions *grouping.Sessions, partitioner *grouping.Partitioner) *APIHandler {
	return &APIHandler{
		RedisService: service,
		Groupings:    store,
		Sessions:     sessions,
		Partitioner:  partitioner,
	}
}

// RegisterRoutes mounts every API route on the given group.
func (h *APIHandler) RegisterRoutes(api *gin.RouterGroup) {
	// Class routes
	api.GET("/classes", h.GetAllClasses)
	api.GET("/classes/:classId", h.GetClassByID)
	api.POST("/classes", h.AddClass)

	// Student routes within a class
	api.GET("/classes/:classId/students", h.GetStudentsByClass)
	api.GET("/classes/:classId/random-student", h.GetRandomStudent)
	api.PUT("/classes/:classId/students/:studentId/score", h.SetStudentScore)

	// Grouping preview
	api.POST("/classes/:classId/partition", h.PreviewPartition)

	// Editing sessions
	api.POST("/sessions", h.OpenSession)
	api.POST("/groupings/:groupingId/session", h.ReopenSession)
	api.GET("/sessions/:sessionId", h.GetSession)
	api.POST("/sessions/:sessionId/move", h.MoveMember)
	api.POST("/sessions/:sessionId/drag-start", h.DragStart)
	api.POST("/sessions/:sessionId/drag-end", h.DragEnd)
	api.POST("/sessions/:sessionId/reshuffle", h.Reshuffle)
	api.POST("/sessions/:sessionId/save", h.SaveSession)
	api.DELETE("/sessions/:sessionId", h.DiscardSession)

	// Saved groupings
	api.GET("/groupings", h.ListGroupings)
	api.GET("/groupings/:groupingId", h.GetGrouping)
	api.PUT("/groupings/:groupingId", h.UpdateGrouping)
	api.DELETE("/groupings/:groupingId", h.DeleteGrouping)
	api.GET("/groupings/:groupingId/export", h.ExportGrouping)

	// Import route
	api.POST("/import/students", h.ImportStudents)

	api.GET("/ping", PingHandler)
}

// --- Class Handlers ---

// GetAllClasses handles GET /api/classes
func (h *APIHandler) GetAllClasses(c *gin.Context) {
	classes, err := h.RedisService.GetAllClasses(c.Request.Context())
	if err != nil {
		log.Printf("Error in GetAllClasses handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve classes"})
		return
	}
	if classes == nil {
		c.JSON(http.StatusOK, []models.Clazz{})
		return
	}
	c.JSON(http.StatusOK, classes)
}

// GetClassByID handles GET /api/classes/:classId
func (h *APIHandler) GetClassByID(c *gin.Context) {
	classID := c.Param("classId")
	clazz, err := h.RedisService.GetClassByID(c.Request.Context(), classID)
	if err != nil {
		log.Printf("Error in GetClassByID handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve class details"})
		return
	}
	if clazz == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	c.JSON(http.StatusOK, clazz)
}

// AddClass handles POST /api/classes
func (h *APIHandler) AddClass(c *gin.Context) {
	var newClass models.Clazz
	if err := c.ShouldBindJSON(&newClass); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if newClass.ID == "" || newClass.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Class ID and Name are required"})
		return
	}

	if err := h.RedisService.AddClass(c.Request.Context(), newClass); err != nil {
		log.Printf("Error in AddClass handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add class"})
		return
	}
	c.JSON(http.StatusCreated, newClass)
}

// --- Student Handlers ---

// loadRoster returns the roster of a class, writing the error response itself when it fails.
func (h *APIHandler) loadRoster(c *gin.Context, classID string) ([]models.Student, bool) {
	ctx := c.Request.Context()
	exists, err := h.RedisService.ClassExists(ctx, classID)
	if err != nil {
		log.Printf("Error checking class existence for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify class"})
		return nil, false
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return nil, false
	}

	students, err := h.RedisService.GetStudentsByClassID(ctx, classID)
	if err != nil {
		log.Printf("Error loading roster for class %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve students for the class"})
		return nil, false
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, true
}

// GetStudentsByClass handles GET /api/classes/:classId/students
func (h *APIHandler) GetStudentsByClass(c *gin.Context) {
	students, ok := h.loadRoster(c, c.Param("classId"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, students)
}

// GetRandomStudent handles GET /api/classes/:classId/random-student
func (h *APIHandler) GetRandomStudent(c *gin.Context) {
	classID := c.Param("classId")
	ctx := c.Request.Context()

	exists, err := h.RedisService.ClassExists(ctx, classID)
	if err != nil {
		log.Printf("Error checking class existence for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify class"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}

	student, err := h.RedisService.GetRandomStudent(ctx, classID)
	if err != nil {
		log.Printf("Error in GetRandomStudent handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get random student"})
		return
	}
	if student == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No students found in this class"})
		return
	}
	c.JSON(http.StatusOK, student)
}

type scoreRequest struct {
	Score *float64 `json:"score" binding:"omitempty,min=0,max=100"`
}

// SetStudentScore handles PUT /api/classes/:classId/students/:studentId/score.
// A null score clears it.
func (h *APIHandler) SetStudentScore(c *gin.Context) {
	classID, studentID := c.Param("classId"), c.Param("studentId")
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	student, err := h.RedisService.GetStudentByID(ctx, studentID)
	if err != nil {
		log.Printf("Error loading student %s: %v", studentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load student"})
		return
	}
	if student == nil || student.ClassID != classID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Student not found in this class"})
		return
	}

	if err := h.RedisService.SetStudentScore(ctx, studentID, req.Score); err != nil {
		if errors.Is(err, db.ErrStudentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found in this class"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set score"})
		return
	}
	student.Score = req.Score
	c.JSON(http.StatusOK, student)
}

// --- Import Handler ---

// ImportStudents handles POST /api/import/students
func (h *APIHandler) ImportStudents(c *gin.Context) {
	classID := c.PostForm("classId")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'classId' in form data"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		log.Printf("Error getting form file: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log.Printf("Received file upload: %s for class: %s", header.Filename, classID)

	importedCount, err := h.RedisService.ImportStudentsFromExcel(c.Request.Context(), file, classID)
	if err != nil {
		log.Printf("Error importing students from file %s for class %s: %v", header.Filename, classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import students: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Import successful",
		"importedCount": importedCount,
		"classId":       classID,
	})
}

// --- Ping Handler ---

// PingHandler handles GET /api/ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}
