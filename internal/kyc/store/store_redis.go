package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"onboarding-gateway/internal/kyc"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/requestcontext"
)

const sessionKeyPrefix = "kyc:session:"

// fallbackTTL bounds markers for sessions the provider returned without an expiry.
const fallbackTTL = 24 * time.Hour

// Redis stores markers with a TTL that matches the session expiry, so a stale
// marker disappears on its own.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func sessionKey(providerID id.ProviderID) string {
	return sessionKeyPrefix + providerID.String()
}

func (s *Redis) Save(ctx context.Context, session *kyc.Session) error {
	ttl := fallbackTTL
	if !session.ExpiresAt.IsZero() {
		ttl = session.ExpiresAt.Sub(requestcontext.Now(ctx))
		if ttl <= 0 {
			// already expired; nothing worth resuming
			return s.Delete(ctx, session.ProviderID)
		}
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal kyc session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ProviderID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save kyc session: %w", err)
	}
	return nil
}

func (s *Redis) FindActive(ctx context.Context, providerID id.ProviderID) (*kyc.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(providerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find kyc session: %w", err)
	}
	var session kyc.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode kyc session: %w", err)
	}
	if session.Expired(requestcontext.Now(ctx)) {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (s *Redis) Delete(ctx context.Context, providerID id.ProviderID) error {
	if err := s.client.Del(ctx, sessionKey(providerID)).Err(); err != nil {
		return fmt.Errorf("delete kyc session: %w", err)
	}
	return nil
}
