package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "onboarding-gateway/pkg/domain"
)

const completedKeyPrefix = "onboarding:completed:"

// Redis keeps completion markers without expiry; a marker lives until the
// checklist regresses.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func completedKey(providerID id.ProviderID) string {
	return completedKeyPrefix + providerID.String()
}

func (s *Redis) IsCompleted(ctx context.Context, providerID id.ProviderID) (bool, error) {
	n, err := s.client.Exists(ctx, completedKey(providerID)).Result()
	if err != nil {
		return false, fmt.Errorf("read completion marker: %w", err)
	}
	return n > 0, nil
}

func (s *Redis) MarkCompleted(ctx context.Context, providerID id.ProviderID, at time.Time) error {
	if err := s.client.Set(ctx, completedKey(providerID), at.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("save completion marker: %w", err)
	}
	return nil
}

func (s *Redis) ClearCompleted(ctx context.Context, providerID id.ProviderID) error {
	if err := s.client.Del(ctx, completedKey(providerID)).Err(); err != nil {
		return fmt.Errorf("clear completion marker: %w", err)
	}
	return nil
}
