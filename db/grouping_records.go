package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/go-redis/redis/v8"

	"groupwork-server-go/grouping"
	"groupwork-server-go/models"
)

const (
	groupingsKey         = "groupings" // Set: Stores all grouping IDs
	groupingRecordPrefix = "grouping:" // Hash prefix: grouping:{id} -> metadata + JSON-encoded groups
)

func getGroupingKey(id string) string {
	return groupingRecordPrefix + id
}

// RedisGroupingRecords stores grouping records as Redis hashes.
type RedisGroupingRecords struct {
	Client *redis.Client
}

// NewRedisGroupingRecords creates a grouping record backend on the given client.
func NewRedisGroupingRecords(client *redis.Client) *RedisGroupingRecords {
	return &RedisGroupingRecords{Client: client}
}

var _ grouping.Records = (*RedisGroupingRecords)(nil)

// Insert stores a new record.
func (r *RedisGroupingRecords) Insert(ctx context.Context, rec models.GroupingRecord) error {
	groups, err := json.Marshal(rec.Groups)
	if err != nil {
		return fmt.Errorf("failed to encode groups: %w", err)
	}
	pipe := r.Client.TxPipeline()
	pipe.SAdd(ctx, groupingsKey, rec.ID)
	pipe.HSet(ctx, getGroupingKey(rec.ID), map[string]interface{}{
		"id":        rec.ID,
		"title":     rec.Title,
		"classId":   rec.ClassID,
		"subjectId": rec.SubjectID,
		"date":      rec.Date,
		"groups":    string(groups),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store grouping %s in Redis: %w", rec.ID, err)
	}
	return nil
}

func recordFromHash(data map[string]string) (models.GroupingRecord, error) {
	rec := models.GroupingRecord{
		ID: data["id"],
		GroupingMeta: models.GroupingMeta{
			Title:     data["title"],
			ClassID:   data["classId"],
			SubjectID: data["subjectId"],
			Date:      data["date"],
		},
	}
	if err := json.Unmarshal([]byte(data["groups"]), &rec.Groups); err != nil {
		return models.GroupingRecord{}, fmt.Errorf("grouping %s has malformed groups: %w", rec.ID, err)
	}
	return rec, nil
}

// Find loads one record.
func (r *RedisGroupingRecords) Find(ctx context.Context, id string) (models.GroupingRecord, error) {
	data, err := r.Client.HGetAll(ctx, getGroupingKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.GroupingRecord{}, fmt.Errorf("failed to get grouping %s from Redis: %w", id, err)
	}
	if len(data) == 0 {
		return models.GroupingRecord{}, grouping.ErrNotFound
	}
	return recordFromHash(data)
}

// All loads every record, newest date first, then by title.
func (r *RedisGroupingRecords) All(ctx context.Context) ([]models.GroupingRecord, error) {
	ids, err := r.Client.SMembers(ctx, groupingsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get grouping IDs from Redis: %w", err)
	}

	recs := make([]models.GroupingRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Find(ctx, id)
		if err != nil {
			// Skip dangling ids and malformed records rather than failing the whole read.
			log.Printf("Error fetching grouping %s: %v", id, err)
			continue
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	return recs, nil
}

// replaceAttempts bounds retries when a concurrent write touches the watched key.
const replaceAttempts = 3

// Replace overwrites the groups of an existing record. The existence check and
// the write run under WATCH so a concurrent Remove cannot leave a partial hash behind.
func (r *RedisGroupingRecords) Replace(ctx context.Context, id string, groups []models.GroupRef) error {
	encoded, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to encode groups: %w", err)
	}
	key := getGroupingKey(id)

	replace := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check grouping %s: %w", id, err)
		}
		if n == 0 {
			return grouping.ErrNotFound
		}
		// MULTI/EXEC is aborted if key changed since WATCH
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "groups", string(encoded))
			return nil
		})
		return err
	}

	for i := 0; i < replaceAttempts; i++ {
		err = r.Client.Watch(ctx, replace, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		log.Printf("Grouping %s changed during update, retrying", id)
	}
	if err == nil || errors.Is(err, grouping.ErrNotFound) {
		return err
	}
	return fmt.Errorf("failed to update grouping %s in Redis: %w", id, err)
}

// Remove deletes a record.
func (r *RedisGroupingRecords) Remove(ctx context.Context, id string) error {
	pipe := r.Client.TxPipeline()
	del := pipe.Del(ctx, getGroupingKey(id))
	pipe.SRem(ctx, groupingsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete grouping %s from Redis: %w", id, err)
	}
	if del.Val() == 0 {
		return grouping.ErrNotFound
	}
	return nil
}

func sortRecords(recs []models.GroupingRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Date != recs[j].Date {
			return recs[i].Date > recs[j].Date
		}
		return recs[i].Title < recs[j].Title
	})
}
