package features

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whisperlabs/whisperbot/pkg/config"
	"github.com/whisperlabs/whisperbot/pkg/dispatcher"
	"github.com/whisperlabs/whisperbot/pkg/zulip"
)

type sentPrivate struct {
	userID  int64
	content string
}

type sentStream struct {
	stream, topic, content string
}

type reaction struct {
	messageID int64
	emoji     string
}

type subscription struct {
	userID  int64
	streams []string
}

// fakeMessenger records every outbound call and hands out message ids from
// a counter.
type fakeMessenger struct {
	mu         sync.Mutex
	privates   []sentPrivate
	streams    []sentStream
	reactions  []reaction
	subs       []subscription
	selfSubbed [][]string

	users         map[int64]*zulip.User
	selfSubResult *zulip.SubscribeResult
	selfSubErr    error
	streamFail    bool
	nextID        int64
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{users: make(map[int64]*zulip.User), nextID: 1000}
}

func (m *fakeMessenger) SendPrivateMessage(_ context.Context, userID int64, content string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privates = append(m.privates, sentPrivate{userID, content})
	m.nextID++
	return m.nextID, true
}

func (m *fakeMessenger) SendStreamMessage(_ context.Context, stream, topic, content string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streamFail {
		return 0, false
	}
	m.streams = append(m.streams, sentStream{stream, topic, content})
	m.nextID++
	return m.nextID, true
}

func (m *fakeMessenger) ReactToMessage(_ context.Context, messageID int64, emoji string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, reaction{messageID, emoji})
}

func (m *fakeMessenger) AddUserSubscriptions(_ context.Context, userID int64, streams []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, subscription{userID, streams})
}

func (m *fakeMessenger) SubscribeSelf(_ context.Context, streams []string) (*zulip.SubscribeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfSubbed = append(m.selfSubbed, streams)
	if m.selfSubErr != nil {
		return nil, m.selfSubErr
	}
	if m.selfSubResult != nil {
		return m.selfSubResult, nil
	}
	return &zulip.SubscribeResult{}, nil
}

func (m *fakeMessenger) GetUserByID(_ context.Context, userID int64) (*zulip.User, bool) {
	u, ok := m.users[userID]
	return u, ok
}

func (m *fakeMessenger) lastPrivate(t *testing.T) sentPrivate {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.privates)
	return m.privates[len(m.privates)-1]
}

type scheduled struct {
	messageID int64
	delay     time.Duration
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduled
}

func (s *fakeScheduler) Schedule(messageID int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduled{messageID, delay})
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testConfigManager(t *testing.T) *config.Manager {
	t.Helper()
	mgr := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	_, err := mgr.Load()
	require.NoError(t, err)
	return mgr
}

func dm(id, senderID int64, content string) *dispatcher.MessageEvent {
	return &dispatcher.MessageEvent{
		ID:       id,
		SenderID: senderID,
		Content:  content,
		Type:     dispatcher.MessageTypePrivate,
	}
}

func streamMsg(id, senderID int64, stream, topic, content string) *dispatcher.MessageEvent {
	return &dispatcher.MessageEvent{
		ID:       id,
		SenderID: senderID,
		Content:  content,
		Type:     dispatcher.MessageTypeStream,
		Stream:   stream,
		Topic:    topic,
	}
}
