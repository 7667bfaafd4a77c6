package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/leasehold/internal/resilience"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockChannel struct {
	mu     sync.Mutex
	sent   []published
	err    error
	closed bool
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func decode(t *testing.T, p published) EmailMessage {
	t.Helper()
	var msg EmailMessage
	require.NoError(t, json.Unmarshal(p.msg.Body, &msg))
	return msg
}

func TestIdleReminder(t *testing.T) {
	ch := &mockChannel{}
	p := newPublisher(ch, "notification.exchange", nil)

	require.NoError(t, p.IdleReminder(context.Background(), Recipient{Email: "a@example.net", Name: "Alice"}, "web", 3))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "notification.exchange", ch.sent[0].exchange)
	assert.Equal(t, RoutingIdleReminder, ch.sent[0].key)
	assert.Equal(t, amqp.Persistent, ch.sent[0].msg.DeliveryMode)

	msg := decode(t, ch.sent[0])
	assert.Equal(t, "idle_reminder", msg.Type)
	assert.Equal(t, "a@example.net", msg.Recipient)
	assert.Contains(t, msg.Content, `"web"`)
	assert.Contains(t, msg.Content, "3 days")
}

func TestBalanceDepleted(t *testing.T) {
	ch := &mockChannel{}
	p := newPublisher(ch, "ex", nil)

	require.NoError(t, p.BalanceDepleted(context.Background(), Recipient{Email: "b@example.net"}, []string{"web", "db"}))

	msg := decode(t, ch.sent[0])
	assert.Equal(t, RoutingBalanceDepleted, ch.sent[0].key)
	assert.Contains(t, msg.Content, "web, db")
}

func TestPublish_RequiresRecipient(t *testing.T) {
	ch := &mockChannel{}
	p := newPublisher(ch, "ex", nil)

	assert.Error(t, p.IdleReminder(context.Background(), Recipient{}, "web", 3))
	assert.Empty(t, ch.sent)
}

func TestPublish_BrokerFailureOpensBreaker(t *testing.T) {
	ch := &mockChannel{err: errors.New("channel closed")}
	pol := resilience.NotificationPolicy()
	pol.Name = "notify-test"
	p := newPublisher(ch, "ex", resilience.New(pol))

	for range 5 {
		assert.Error(t, p.IdleReminder(context.Background(), Recipient{Email: "c@example.net"}, "web", 3))
	}
	err := p.IdleReminder(context.Background(), Recipient{Email: "c@example.net"}, "web", 3)
	assert.ErrorIs(t, err, resilience.ErrOpen)
}

func TestClose(t *testing.T) {
	ch := &mockChannel{}
	p := newPublisher(ch, "ex", nil)
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
