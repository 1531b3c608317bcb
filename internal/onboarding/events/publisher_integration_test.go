//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/events"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda  *containers.RedpandaContainer
	topic     string
	publisher *events.KafkaPublisher
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaPublisherSuite) SetupTest() {
	s.topic = "onboarding-completed-" + uuid.NewString()[:8]
	p, err := events.NewKafkaPublisher(s.redpanda.Brokers, s.topic)
	s.Require().NoError(err)
	s.publisher = p
}

func (s *KafkaPublisherSuite) TearDownTest() {
	s.publisher.Close()
}

func (s *KafkaPublisherSuite) TestEnsureTopicIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.publisher.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(s.publisher.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(s.publisher.Health(ctx))
}

func (s *KafkaPublisherSuite) TestPublishCompletedKeyedByProvider() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(s.publisher.EnsureTopic(ctx, 3, 1))

	providerID := id.ProviderID(uuid.New())
	completedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.publisher.PublishCompleted(ctx, onboarding.CompletedEvent{
		ProviderID:  providerID,
		CompletedAt: completedAt,
		Steps:       []steps.ID{steps.IDProfile, steps.IDIdentity, steps.IDLicense, steps.IDMarketplace},
	}))

	records := s.redpanda.ReadFromStart(s.T(), s.topic, 1, 30*time.Second)

	rec := records[0]
	s.Equal(providerID.String(), string(rec.Key))
	s.Require().Len(rec.Headers, 1)
	s.Equal("event_type", rec.Headers[0].Key)
	s.Equal("onboarding.completed", string(rec.Headers[0].Value))

	var got struct {
		Type string                    `json:"type"`
		Data onboarding.CompletedEvent `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(rec.Value, &got))
	s.Equal("onboarding.completed", got.Type)
	s.Equal(providerID, got.Data.ProviderID)
	s.True(completedAt.Equal(got.Data.CompletedAt))
	s.Len(got.Data.Steps, 4)
}
