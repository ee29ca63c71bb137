package auditbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyemirov/dualauth/internal/authkit"
	"github.com/tyemirov/dualauth/internal/authkit/authkittest"
	"go.uber.org/zap/zaptest"
)

type recordingChannel struct {
	mutex       sync.Mutex
	declared    []string
	published   []amqp.Publishing
	routingKeys []string
	declareErr  error
	publishErr  error
	closed      bool
}

func (channel *recordingChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if channel.declareErr != nil {
		return amqp.Queue{}, channel.declareErr
	}
	channel.declared = append(channel.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (channel *recordingChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	if channel.publishErr != nil {
		return channel.publishErr
	}
	channel.routingKeys = append(channel.routingKeys, key)
	channel.published = append(channel.published, msg)
	return nil
}

func (channel *recordingChannel) Close() error {
	channel.closed = true
	return nil
}

func TestNewPublisherDeclaresDurableQueue(t *testing.T) {
	channel := &recordingChannel{}
	publisher, err := NewPublisher(channel, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultQueue, publisher.Queue())
	assert.Equal(t, []string{DefaultQueue}, channel.declared)

	_, err = NewPublisher(&recordingChannel{declareErr: errors.New("access refused")}, "audit")
	assert.Error(t, err)
	_, err = NewPublisher(nil, "audit")
	assert.ErrorIs(t, err, errNilChannel)
}

func TestDialRequiresURL(t *testing.T) {
	_, err := Dial(" ", DefaultQueue)
	assert.ErrorIs(t, err, errEmptyAMQPURL)
}

func TestPublisherPublishesPersistentJSON(t *testing.T) {
	channel := &recordingChannel{}
	publisher, err := NewPublisher(channel, "audit.events")
	require.NoError(t, err)

	actorID := int64(7)
	clock := authkittest.NewManualClock()
	require.NoError(t, publisher.Publish(context.Background(), Event{
		UserID:     &actorID,
		Action:     "login",
		Details:    map[string]any{"method": "jwt"},
		OccurredAt: clock.Now(),
	}))

	require.Len(t, channel.published, 1)
	message := channel.published[0]
	assert.Equal(t, "audit.events", channel.routingKeys[0])
	assert.Equal(t, amqp.Persistent, message.DeliveryMode)
	assert.Equal(t, "application/json", message.ContentType)
	assert.Equal(t, "login", message.Type)

	var decoded Event
	require.NoError(t, json.Unmarshal(message.Body, &decoded))
	assert.Equal(t, "login", decoded.Action)
	require.NotNil(t, decoded.UserID)
	assert.Equal(t, int64(7), *decoded.UserID)
	assert.True(t, decoded.OccurredAt.Equal(clock.Now()))

	require.NoError(t, publisher.Close())
	assert.True(t, channel.closed)
}

func TestFanoutAuditLogPublishesAfterPrimaryWrite(t *testing.T) {
	users := authkit.NewMemoryCredentialStore(nil)
	primary := authkit.NewMemoryAuditLog(users, nil)
	channel := &recordingChannel{}
	publisher, err := NewPublisher(channel, "")
	require.NoError(t, err)
	fanout := NewFanoutAuditLog(primary, publisher, zaptest.NewLogger(t), nil)

	require.NoError(t, fanout.Append(context.Background(), nil, "error", map[string]any{"action": "login"}))

	entries, total, err := fanout.List(context.Background(), authkit.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "error", entries[0].Action)
	assert.Len(t, channel.published, 1)
}

func TestFanoutAuditLogToleratesBrokerFailure(t *testing.T) {
	primary := authkit.NewMemoryAuditLog(nil, nil)
	channel := &recordingChannel{publishErr: errors.New("channel closed")}
	publisher, err := NewPublisher(channel, "")
	require.NoError(t, err)
	fanout := NewFanoutAuditLog(primary, publisher, zaptest.NewLogger(t), nil)

	require.NoError(t, fanout.Append(context.Background(), nil, "logout", nil))
	_, total, err := primary.List(context.Background(), authkit.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

type failingAuditLog struct {
	authkit.AuditLog
}

func (failingAuditLog) Append(ctx context.Context, actorID *int64, action string, details map[string]any) error {
	return errors.New("database down")
}

func TestFanoutAuditLogSkipsPublishWhenPrimaryFails(t *testing.T) {
	channel := &recordingChannel{}
	publisher, err := NewPublisher(channel, "")
	require.NoError(t, err)
	fanout := NewFanoutAuditLog(failingAuditLog{}, publisher, nil, nil)

	assert.Error(t, fanout.Append(context.Background(), nil, "login", nil))
	assert.Empty(t, channel.published)
}
