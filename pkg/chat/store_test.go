package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/ondelive/onde/pkg/errors"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a scripted chat backend.
type fakeAPI struct {
	mu        sync.Mutex
	history   []Message
	sendCalls int
	sendErr   error
	deleted   []string
	deleteErr error
}

func (f *fakeAPI) Messages(context.Context, string, int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.history...), nil
}

func (f *fakeAPI) Send(_ context.Context, _ string, content string) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return Message{}, f.sendErr
	}
	return Message{ID: xid.New().String(), User: "alice", Content: content}, nil
}

func (f *fakeAPI) Delete(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func TestLoadReplacesWholesale(t *testing.T) {
	api := &fakeAPI{history: []Message{
		{ID: "m1", User: "alice", Content: "hi"},
		{ID: "m2", User: "bob", Content: "hey"},
	}}
	s := NewStore(api, nil, nil)
	s.Merge(Message{ID: "stale", Content: "old"})

	require.NoError(t, s.Load(context.Background(), "live-7", 50))

	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
}

func TestMergeDeduplicatesByID(t *testing.T) {
	s := NewStore(&fakeAPI{}, nil, nil)

	assert.True(t, s.Merge(Message{ID: "m1", Content: "hello"}))
	assert.True(t, s.Merge(Message{ID: "m2", Content: "world"}))

	// Same id arriving again, even with different content, changes nothing.
	assert.False(t, s.Merge(Message{ID: "m1", Content: "hello again"}))

	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Content)
}

func TestSendEmptyMessageRejectedLocally(t *testing.T) {
	api := &fakeAPI{}
	s := NewStore(api, nil, nil)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := s.Send(context.Background(), "live-7", content)
		require.Error(t, err, "content %q", content)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	}

	assert.Equal(t, 0, api.sends())
	assert.Empty(t, s.Messages())
}

func TestSendMergesServerMessage(t *testing.T) {
	api := &fakeAPI{}
	s := NewStore(api, nil, nil)

	msg, err := s.Send(context.Background(), "live-7", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	got := s.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)

	// The pushed copy of the same message is a no-op.
	assert.False(t, s.Merge(msg))
	assert.Len(t, s.Messages(), 1)
}

func TestSendFailureLeavesListUntouched(t *testing.T) {
	api := &fakeAPI{sendErr: assert.AnError}
	s := NewStore(api, nil, nil)

	_, err := s.Send(context.Background(), "live-7", "hello")
	require.Error(t, err)
	assert.Empty(t, s.Messages())
	assert.Equal(t, 1, api.sends())
}

func TestDeleteRemovesLocallyOnSuccessOnly(t *testing.T) {
	api := &fakeAPI{}
	s := NewStore(api, nil, nil)
	s.Merge(Message{ID: "m1", Content: "hello"})
	s.Merge(Message{ID: "m2", Content: "world"})

	require.NoError(t, s.Delete(context.Background(), "m1"))
	got := s.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)

	api.deleteErr = assert.AnError
	require.Error(t, s.Delete(context.Background(), "m2"))
	assert.Len(t, s.Messages(), 1, "failed delete keeps the message")
}

func TestRemoveUnknownID(t *testing.T) {
	s := NewStore(&fakeAPI{}, nil, nil)
	s.Merge(Message{ID: "m1"})

	assert.False(t, s.Remove("missing"))
	assert.Len(t, s.Messages(), 1)
}

func TestClear(t *testing.T) {
	s := NewStore(&fakeAPI{}, nil, nil)
	s.Merge(Message{ID: "m1"})
	s.Clear()
	assert.Empty(t, s.Messages())
}
