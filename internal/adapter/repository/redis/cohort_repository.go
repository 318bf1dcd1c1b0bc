package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/activetime/internal/domain"
)

// CohortRepository keeps the active-subject cohort in a Redis set.
type CohortRepository struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewCohortRepository creates a CohortRepository backed by the set at key.
func NewCohortRepository(client *redis.Client, key string, logger *slog.Logger) *CohortRepository {
	return &CohortRepository{
		client: client,
		key:    key,
		logger: logger.With("component", "redis_cohort"),
	}
}

// LoadSubjects returns every member of the cohort set.
func (r *CohortRepository) LoadSubjects(ctx context.Context) (domain.SubjectSet, error) {
	members, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to SMEMBERS cohort %s: %w", r.key, err)
	}
	r.logger.Debug("Loaded cohort", "key", r.key, "subjects", len(members))
	return domain.NewSubjectSet(members...), nil
}

// ReplaceSubjects atomically swaps the cohort set for ids.
func (r *CohortRepository) ReplaceSubjects(ctx context.Context, ids []string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(ids) > 0 {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SAdd(ctx, r.key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace cohort %s: %w", r.key, err)
	}
	r.logger.Info("Cohort replaced", "key", r.key, "subjects", len(ids))
	return nil
}
