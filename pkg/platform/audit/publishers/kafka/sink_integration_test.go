//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "fleetbook/pkg/domain"
	audit "fleetbook/pkg/platform/audit"
	"fleetbook/pkg/testutil/containers"
)

type SinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	sink     *Sink
	topic    string
}

func TestSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	s.topic = "fleetbook.audit.test"

	sink, err := New(Config{Brokers: []string{s.redpanda.Broker}, Topic: s.topic, ClientID: "fleetbook-test"}, nil)
	s.Require().NoError(err)
	s.sink = sink

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(s.sink.Ping(ctx))
	s.Require().NoError(s.sink.EnsureTopic(ctx, 1, 1))
	// second call tolerates an existing topic
	s.Require().NoError(s.sink.EnsureTopic(ctx, 1, 1))
}

func (s *SinkSuite) TearDownSuite() {
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *SinkSuite) TestAppendProducesKeyedRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	event := audit.Event{
		Action:       audit.EventAllocationCreated,
		EmployeeID:   1,
		AllocationID: id.NewAllocationID(),
		VehicleID:    10,
		Date:         id.NewDate(2099, time.January, 10),
		RequestID:    "req-1",
		Timestamp:    time.Date(2099, 1, 9, 8, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())

	var found bool
	fetches.EachRecord(func(r *kgo.Record) {
		if string(r.Key) != event.AllocationID.String() {
			return
		}
		var got audit.Event
		s.Require().NoError(json.Unmarshal(r.Value, &got))
		s.Equal(event.Action, got.Action)
		s.Equal(event.Date, got.Date)
		s.Equal(event.RequestID, got.RequestID)
		found = true
	})
	s.True(found, "produced record not consumed")
}
