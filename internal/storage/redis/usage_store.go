package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/goodtune/voicetally/internal/storage"
	"github.com/redis/go-redis/v9"
)

type usageStore struct {
	client *redis.Client
	upsert *redis.Script
}

// Get retrieves a user record by ID
func (s *usageStore) Get(ctx context.Context, userID string) (*storage.UserRecord, error) {
	data, err := s.client.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, storage.Unavailable(err)
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	record, err := parseUserRecord(data)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	return record, nil
}

// Upsert atomically replaces a user record
func (s *usageStore) Upsert(ctx context.Context, record storage.UserRecord) error {
	keys := []string{userKey(record.UserID), usersIndexKey}
	return storage.Unavailable(s.upsert.Run(ctx, s.client, keys, userRecordArgs(record)...).Err())
}

// All returns every user record, ordered by user ID
func (s *usageStore) All(ctx context.Context) ([]storage.UserRecord, error) {
	userIDs, err := s.client.SMembers(ctx, usersIndexKey).Result()
	if err != nil {
		return nil, storage.Unavailable(err)
	}

	if len(userIDs) == 0 {
		return []storage.UserRecord{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))

	for i, id := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, userKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, storage.Unavailable(err)
	}

	records := make([]storage.UserRecord, 0, len(userIDs))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return nil, storage.Unavailable(fmt.Errorf("failed to load user %s: %w", userIDs[i], err))
		}
		// Index entry without a record
		if len(data) == 0 {
			continue
		}

		record, err := parseUserRecord(data)
		if err != nil {
			return nil, storage.Unavailable(fmt.Errorf("failed to parse user %s: %w", userIDs[i], err))
		}
		records = append(records, *record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UserID < records[j].UserID
	})

	return records, nil
}

type reportStateStore struct {
	client *redis.Client
}

// Get retrieves the report scheduler state
func (s *reportStateStore) Get(ctx context.Context) (*storage.ReportState, error) {
	data, err := s.client.HGetAll(ctx, reportStateKey).Result()
	if err != nil {
		return nil, storage.Unavailable(err)
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return &storage.ReportState{LastReportDate: data["last_report_date"]}, nil
}

// Put stores the report scheduler state
func (s *reportStateStore) Put(ctx context.Context, state storage.ReportState) error {
	return storage.Unavailable(s.client.HSet(ctx, reportStateKey, "last_report_date", state.LastReportDate).Err())
}
