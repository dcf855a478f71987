package features

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnonFeature(t *testing.T) (*AnonymousPosting, *fakeMessenger, *fakeScheduler) {
	client := newFakeMessenger()
	sched := &fakeScheduler{}
	return NewAnonymousPosting(client, testConfigManager(t), sched), client, sched
}

func TestAnonHandlesOnlyEnabledDMs(t *testing.T) {
	client := newFakeMessenger()
	mgr := testConfigManager(t)
	f := NewAnonymousPosting(client, mgr, &fakeScheduler{})
	ctx := context.Background()

	assert.True(t, f.Handles(ctx, dm(1, 7, "hello")))
	assert.False(t, f.Handles(ctx, streamMsg(1, 7, "general", "chat", "hello")))

	cfg := mgr.Get()
	cfg.AnonymousPosting.Enabled = false
	require.NoError(t, mgr.Update(cfg))
	assert.False(t, f.Handles(ctx, dm(1, 7, "hello")))
}

func TestAnonNewDMStartsConfirmationFlow(t *testing.T) {
	f, client, sched := newAnonFeature(t)
	ctx := context.Background()

	require.NoError(t, f.Handle(ctx, dm(50, 7, "my secret confession")))

	prompt := client.lastPrivate(t)
	assert.Equal(t, int64(7), prompt.userID)
	assert.Contains(t, prompt.content, "my secret confession")
	assert.Contains(t, prompt.content, "`SEND`")
	assert.Contains(t, prompt.content, "`CANCEL`")
	assert.Equal(t, 1, f.PendingCount())
	assert.Empty(t, sched.calls)
}

func TestAnonLongContentIsTruncatedInPreview(t *testing.T) {
	f, client, _ := newAnonFeature(t)

	long := strings.Repeat("x", 600)
	require.NoError(t, f.Handle(context.Background(), dm(50, 7, long)))

	prompt := client.lastPrivate(t)
	assert.Contains(t, prompt.content, strings.Repeat("x", 500)+" ...")
	assert.NotContains(t, prompt.content, strings.Repeat("x", 501))
}

func TestAnonSendPostsAndSchedulesThreeDeletions(t *testing.T) {
	f, client, sched := newAnonFeature(t)
	ctx := context.Background()

	require.NoError(t, f.Handle(ctx, dm(50, 7, "the message")))
	require.NoError(t, f.Handle(ctx, dm(51, 7, "SEND")))

	require.Len(t, client.streams, 1)
	posted := client.streams[0]
	assert.Equal(t, "anonymous", posted.stream)
	assert.Equal(t, "general", posted.topic)
	assert.Equal(t, "Anonymous message:\n\nthe message", posted.content)

	// Anonymous copy at the configured delay, original DM and the SEND
	// reply soon after.
	require.Len(t, sched.calls, 3)
	assert.Equal(t, 7*24*time.Hour, sched.calls[0].delay)
	assert.Equal(t, scheduled{50, time.Minute}, sched.calls[1])
	assert.Equal(t, scheduled{51, time.Minute}, sched.calls[2])

	assert.Contains(t, client.lastPrivate(t).content, "posted anonymously")
	assert.Zero(t, f.PendingCount())
}

func TestAnonSendIsCaseInsensitive(t *testing.T) {
	f, client, _ := newAnonFeature(t)
	ctx := context.Background()

	require.NoError(t, f.Handle(ctx, dm(50, 7, "msg")))
	require.NoError(t, f.Handle(ctx, dm(51, 7, "  send \n")))

	assert.Len(t, client.streams, 1)
}

func TestAnonCancelDiscards(t *testing.T) {
	f, client, sched := newAnonFeature(t)
	ctx := context.Background()

	require.NoError(t, f.Handle(ctx, dm(50, 7, "nope")))
	require.NoError(t, f.Handle(ctx, dm(51, 7, "CANCEL")))

	assert.Empty(t, client.streams)
	require.Len(t, sched.calls, 2)
	assert.Equal(t, scheduled{50, time.Minute}, sched.calls[0])
	assert.Equal(t, scheduled{51, time.Minute}, sched.calls[1])
	assert.Contains(t, client.lastPrivate(t).content, "not posted")
	assert.Zero(t, f.PendingCount())
}

func TestAnonUnknownReplyResetsFlow(t *testing.T) {
	f, client, sched := newAnonFeature(t)
	ctx := context.Background()

	require.NoError(t, f.Handle(ctx, dm(50, 7, "first message")))
	require.NoError(t, f.Handle(ctx, dm(51, 7, "wait, actually...")))

	// The slot is cleared without re-registering the new content; the
	// user has to start over.
	assert.Zero(t, f.PendingCount())
	assert.Empty(t, client.streams)
	assert.Empty(t, sched.calls)
	assert.Contains(t, client.lastPrivate(t).content, "start over")

	// The next DM starts a fresh flow.
	require.NoError(t, f.Handle(ctx, dm(52, 7, "second try")))
	assert.Equal(t, 1, f.PendingCount())
}

func TestAnonFailedPostSkipsItsDeletion(t *testing.T) {
	f, client, sched := newAnonFeature(t)
	client.streamFail = true
	ctx := context.Background()

	require.NoError(t, f.Handle(ctx, dm(50, 7, "msg")))
	require.NoError(t, f.Handle(ctx, dm(51, 7, "send")))

	// Only the two DM cleanups are scheduled.
	require.Len(t, sched.calls, 2)
	assert.Equal(t, scheduled{50, time.Minute}, sched.calls[0])
	assert.Equal(t, scheduled{51, time.Minute}, sched.calls[1])
}

func TestAnonPendingSlotsAreIndependentPerSender(t *testing.T) {
	f, client, _ := newAnonFeature(t)
	ctx := context.Background()

	require.NoError(t, f.Handle(ctx, dm(50, 7, "from seven")))
	require.NoError(t, f.Handle(ctx, dm(60, 8, "from eight")))
	assert.Equal(t, 2, f.PendingCount())

	require.NoError(t, f.Handle(ctx, dm(61, 8, "send")))
	require.Len(t, client.streams, 1)
	assert.Contains(t, client.streams[0].content, "from eight")
	assert.Equal(t, 1, f.PendingCount())
}
