package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"

	"groupwork-server-go/models"
)

const (
	classesKey          = "classes"  // Set: Stores all class IDs
	classInfoPrefix     = "class:"   // Hash prefix: class:{id} -> stores class details
	classStudentsPrefix = "class:"   // Set prefix: class:{id}:students -> stores student IDs for a class
	studentInfoPrefix   = "student:" // Hash prefix: student:{id} -> stores student details
)

// ErrStudentNotFound is returned when a student id is not in the directory.
var ErrStudentNotFound = errors.New("student not found")

// RedisService handles class and student operations with the Redis database
type RedisService struct {
	Client *redis.Client
}

// NewRedisService creates a new RedisService instance
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{Client: client}
}

// Helper to generate class info key
func getClassInfoKey(classID string) string {
	return classInfoPrefix + classID
}

// Helper to generate class students set key
func getClassStudentsKey(classID string) string {
	return classStudentsPrefix + classID + ":students"
}

// Helper to generate student info key
func getStudentInfoKey(studentID string) string {
	return studentInfoPrefix + studentID
}

// --- Class Operations ---

// AddClass adds a new class to Redis
func (s *RedisService) AddClass(ctx context.Context, clazz models.Clazz) error {
	if clazz.ID == "" || clazz.Name == "" {
		return errors.New("class ID and Name cannot be empty")
	}
	pipe := s.Client.Pipeline()
	// Add class ID to the global set of classes
	pipe.SAdd(ctx, classesKey, clazz.ID)
	// Store class details in a Hash
	pipe.HSet(ctx, getClassInfoKey(clazz.ID), map[string]interface{}{
		"id":   clazz.ID,
		"name": clazz.Name,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Error adding class %s: %v", clazz.ID, err)
		return fmt.Errorf("failed to add class to Redis: %w", err)
	}
	log.Printf("Added class: %s (%s)", clazz.Name, clazz.ID)
	return nil
}

// GetClassByID retrieves a class by its ID. A missing class yields (nil, nil).
func (s *RedisService) GetClassByID(ctx context.Context, classID string) (*models.Clazz, error) {
	data, err := s.Client.HGetAll(ctx, getClassInfoKey(classID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found is not an error for callers
		}
		log.Printf("Error getting class %s: %v", classID, err)
		return nil, fmt.Errorf("failed to get class from Redis: %w", err)
	}
	if len(data) == 0 {
		return nil, nil // HGETALL on a missing key yields an empty map
	}
	return &models.Clazz{ID: data["id"], Name: data["name"]}, nil
}

// GetAllClasses retrieves all classes, ordered by ID
func (s *RedisService) GetAllClasses(ctx context.Context) ([]models.Clazz, error) {
	classIDs, err := s.Client.SMembers(ctx, classesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Clazz{}, nil // No classes found
		}
		log.Printf("Error getting all class IDs: %v", err)
		return nil, fmt.Errorf("failed to get class IDs from Redis: %w", err)
	}
	sort.Strings(classIDs)

	classes := make([]models.Clazz, 0, len(classIDs))
	for _, id := range classIDs {
		clazz, err := s.GetClassByID(ctx, id)
		if err != nil {
			// Log the error but keep fetching the others
			log.Printf("Error fetching details for class %s: %v", id, err)
			continue
		}
		if clazz != nil {
			classes = append(classes, *clazz)
		}
	}
	return classes, nil
}

// ClassExists checks if a class ID exists in the classes set
func (s *RedisService) ClassExists(ctx context.Context, classID string) (bool, error) {
	exists, err := s.Client.SIsMember(ctx, classesKey, classID).Result()
	if err != nil {
		log.Printf("Error checking existence for class %s: %v", classID, err)
		return false, fmt.Errorf("failed to check class existence: %w", err)
	}
	return exists, nil
}

// ensureClass creates the class with a placeholder name when it does not exist yet.
func (s *RedisService) ensureClass(ctx context.Context, classID, name string) error {
	exists, err := s.ClassExists(ctx, classID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	log.Printf("Class %s does not exist. Creating it.", classID)
	if err := s.AddClass(ctx, models.Clazz{ID: classID, Name: name}); err != nil {
		return fmt.Errorf("class %s does not exist and auto-creation failed: %w", classID, err)
	}
	return nil
}

// --- Student Operations ---

// AddStudent adds a student to a class, creating the class if needed
func (s *RedisService) AddStudent(ctx context.Context, student models.Student) error {
	if student.ID == "" || student.Name == "" || student.ClassID == "" {
		return errors.New("student ID, Name, and ClassID cannot be empty")
	}
	if err := s.ensureClass(ctx, student.ClassID, "Class "+student.ClassID); err != nil {
		return err
	}

	studentKey := getStudentInfoKey(student.ID)
	pipe := s.Client.Pipeline()
	// Add student ID to the class's set of students
	pipe.SAdd(ctx, getClassStudentsKey(student.ClassID), student.ID)
	// Store student details in a Hash
	pipe.HSet(ctx, studentKey, map[string]interface{}{
		"id":      student.ID,
		"name":    student.Name,
		"classId": student.ClassID,
	})
	// Score is an optional field; re-adding a student without one clears the old value
	if student.Score != nil {
		pipe.HSet(ctx, studentKey, "score", strconv.FormatFloat(*student.Score, 'f', -1, 64))
	} else {
		pipe.HDel(ctx, studentKey, "score")
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Error adding student %s to class %s: %v", student.ID, student.ClassID, err)
		return fmt.Errorf("failed to add student to Redis: %w", err)
	}
	return nil
}

func studentFromHash(data map[string]string) models.Student {
	st := models.Student{
		ID:      data["id"],
		Name:    data["name"],
		ClassID: data["classId"],
	}
	if raw, ok := data["score"]; ok && raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			st.Score = &v
		} else {
			log.Printf("Ignoring malformed score %q for student %s", raw, st.ID)
		}
	}
	return st
}

// GetStudentByID retrieves a student by their ID. A missing student yields (nil, nil).
func (s *RedisService) GetStudentByID(ctx context.Context, studentID string) (*models.Student, error) {
	data, err := s.Client.HGetAll(ctx, getStudentInfoKey(studentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found
		}
		log.Printf("Error getting student %s: %v", studentID, err)
		return nil, fmt.Errorf("failed to get student from Redis: %w", err)
	}
	if len(data) == 0 {
		return nil, nil // Not found
	}
	st := studentFromHash(data)
	return &st, nil
}

// GetStudentsByClassID retrieves the roster of a class, ordered by student ID
// so that repeated loads hand the partitioner the same sequence.
func (s *RedisService) GetStudentsByClassID(ctx context.Context, classID string) ([]models.Student, error) {
	studentIDs, err := s.Client.SMembers(ctx, getClassStudentsKey(classID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Student{}, nil // No students in this class
		}
		log.Printf("Error getting student IDs for class %s: %v", classID, err)
		return nil, fmt.Errorf("failed to get student IDs from Redis for class %s: %w", classID, err)
	}
	sort.Strings(studentIDs)

	students := make([]models.Student, 0, len(studentIDs))
	for _, id := range studentIDs {
		student, err := s.GetStudentByID(ctx, id)
		if err != nil {
			log.Printf("Error fetching details for student %s in class %s: %v", id, classID, err)
			continue // Skip this student if details can't be fetched
		}
		if student != nil {
			students = append(students, *student)
		}
	}
	return students, nil
}

// SetStudentScore records a score for a student, or clears it when score is nil.
func (s *RedisService) SetStudentScore(ctx context.Context, studentID string, score *float64) error {
	key := getStudentInfoKey(studentID)
	exists, err := s.Client.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("Error checking student %s: %v", studentID, err)
		return fmt.Errorf("failed to check student existence: %w", err)
	}
	if exists == 0 {
		return ErrStudentNotFound
	}
	if score == nil {
		err = s.Client.HDel(ctx, key, "score").Err()
	} else {
		err = s.Client.HSet(ctx, key, "score", strconv.FormatFloat(*score, 'f', -1, 64)).Err()
	}
	if err != nil {
		log.Printf("Error setting score for student %s: %v", studentID, err)
		return fmt.Errorf("failed to set student score: %w", err)
	}
	return nil
}

// StudentNames resolves student IDs to names in one round trip. IDs with no
// stored student are left out of the result.
func (s *RedisService) StudentNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	// One HGET per id, sent as a single pipeline
	pipe := s.Client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, getStudentInfoKey(id), "name")
	}
	// Exec reports redis.Nil when any HGET missed; those are handled per command below
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error resolving %d student names: %v", len(ids), err)
		return nil, fmt.Errorf("failed to resolve student names: %w", err)
	}

	names := make(map[string]string, len(ids))
	for i, cmd := range cmds {
		name, err := cmd.Result()
		if err != nil {
			continue // redis.Nil: unknown student
		}
		names[ids[i]] = name
	}
	return names, nil
}

// GetRandomStudent selects a random student from a class
func (s *RedisService) GetRandomStudent(ctx context.Context, classID string) (*models.Student, error) {
	// Use SRANDMEMBER to get one random member ID
	randomStudentID, err := s.Client.SRandMember(ctx, getClassStudentsKey(classID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No students, or the set key doesn't exist
		}
		log.Printf("Error getting random student ID for class %s: %v", classID, err)
		return nil, fmt.Errorf("failed to get random student ID from Redis for class %s: %w", classID, err)
	}
	if randomStudentID == "" {
		return nil, nil
	}
	// Fetch the details of the randomly selected student
	return s.GetStudentByID(ctx, randomStudentID)
}

// --- Seed Data ---

// HasClasses reports whether any class is stored.
func (s *RedisService) HasClasses(ctx context.Context) (bool, error) {
	count, err := s.Client.SCard(ctx, classesKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to count classes: %w", err)
	}
	return count > 0, nil
}

// SeedData adds two demo classes with scored students. Errors are logged, not returned.
func (s *RedisService) SeedData(ctx context.Context) {
	log.Println("Seeding initial data...")

	class1 := models.Clazz{ID: "C2024_GO01", Name: "2024 Go Backend Class 1"}
	class2 := models.Clazz{ID: "C2024_PY02", Name: "2024 Python Data Science 2"}
	for _, c := range []models.Clazz{class1, class2} {
		if err := s.AddClass(ctx, c); err != nil {
			log.Printf("Error seeding class %s: %v", c.ID, err)
		}
	}

	score := func(v float64) *float64 { return &v }
	students := []models.Student{
		{ID: "S_GO01_001", Name: "Alice", ClassID: class1.ID, Score: score(92)},
		{ID: "S_GO01_002", Name: "Bob", ClassID: class1.ID, Score: score(78)},
		{ID: "S_GO01_003", Name: "Charlie", ClassID: class1.ID, Score: score(85)},
		{ID: "S_GO01_004", Name: "Dana", ClassID: class1.ID, Score: score(64)},
		{ID: "S_GO01_005", Name: "Erin", ClassID: class1.ID},
		{ID: "S_GO01_006", Name: "Frank", ClassID: class1.ID, Score: score(71)},
		{ID: "S_PY02_001", Name: "David", ClassID: class2.ID},
		{ID: "S_PY02_002", Name: "Eve", ClassID: class2.ID},
	}
	for _, st := range students {
		if err := s.AddStudent(ctx, st); err != nil {
			log.Printf("Error seeding student %s: %v", st.ID, err)
		}
	}

	log.Println("Seeding complete.")
}

// --- Utility ---

// InitializeRedisClient creates and tests a Redis client connection
func InitializeRedisClient(addr, password string, db int) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Could not connect to Redis at %s: %v", addr, err)
	}

	log.Printf("Successfully connected to Redis %s (DB %d)", addr, db)
	return rdb
}
