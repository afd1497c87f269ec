package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages [][]byte
	attrs    []map[string]string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, message []byte, attributes map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	p.attrs = append(p.attrs, attributes)
	return p.err
}

func TestSNSNotifier_PublishesChange(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewSNSNotifier(pub, "arn:aws:sns:us-east-1:000000000000:documents")

	n.Notify(context.Background(), Change{Kind: "cart", ID: "c1", Action: ActionUpdated, Backend: "memory"})
	n.Wait()

	require.Len(t, pub.messages, 1)
	var got Change
	require.NoError(t, json.Unmarshal(pub.messages[0], &got))
	assert.Equal(t, "cart", got.Kind)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, ActionUpdated, got.Action)
	assert.False(t, got.At.IsZero())
	assert.Equal(t, "updated", pub.attrs[0]["action"])
}

func TestSNSNotifier_FailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("throttled")}
	n := NewSNSNotifier(pub, "arn")

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Change{Kind: "user", ID: "u1", Action: ActionDeleted})
		n.Wait()
	})
	assert.Len(t, pub.messages, 1)
}
