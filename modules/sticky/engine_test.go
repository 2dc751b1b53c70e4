package sticky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreated = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t testing.TB) (*Engine, *fakeMessenger, *memoryStore) {
	t.Helper()
	port := newFakeMessenger()
	store := newMemoryStore()
	e := NewEngine(store, port, discardLogger())
	e.now = func() time.Time { return testCreated }
	return e, port, store
}

// seedLive puts a live sticky for channel C (copy M1) into the store and
// the channel, then initialises the engine from the store.
func seedLive(t testing.TB, e *Engine, port *fakeMessenger, store *memoryStore, embed *Embed) Record {
	t.Helper()
	rec := Record{
		ChannelID:     "C",
		GuildID:       "G",
		Content:       "Read the rules",
		Embed:         embed,
		AuthorID:      "userA",
		LastMessageID: "M1",
		CreatedAt:     testCreated,
	}
	store.rows["C"] = rec
	port.live["M1"] = render(rec, Author{})
	require.NoError(t, e.Initialize(context.Background()))
	return rec
}

var userA = Author{ID: "userA", Tag: "alice", AvatarURL: "https://cdn.example/alice.png"}

func TestEngine_SetEmbedOnEmptyChannel(t *testing.T) {
	e, port, store := newTestEngine(t)

	h, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "Welcome!", &Embed{Title: "Rules"}, userA)
	require.NoError(t, err)

	require.Len(t, port.sent, 1)
	sent := port.sent[0]
	require.NotNil(t, sent.Embed)
	assert.Empty(t, sent.Content)
	assert.Equal(t, "Welcome!", sent.Embed.Description)
	assert.Equal(t, "Rules", sent.Embed.Title)
	assert.Equal(t, DefaultColor, sent.Embed.Color)
	assert.Equal(t, "Sticky message set by alice", sent.Embed.Footer.Text)
	assert.Equal(t, userA.AvatarURL, sent.Embed.Footer.IconURL)
	assert.Equal(t, testCreated.Format(time.RFC3339), sent.Embed.Timestamp)

	row, ok := store.row("C")
	require.True(t, ok)
	assert.Equal(t, "G", row.GuildID)
	assert.Equal(t, "Welcome!", row.Content)
	require.NotNil(t, row.Embed)
	assert.Equal(t, "Rules", row.Embed.Title)
	assert.Equal(t, h.ID, row.LastMessageID)
	assert.Equal(t, "userA", row.AuthorID)

	cached, ok := e.Lookup("C")
	require.True(t, ok)
	assert.Equal(t, h.ID, cached.LastMessageID)
	assert.Equal(t, row, cached)
}

func TestEngine_SetReplacesPreviousSticky(t *testing.T) {
	e, port, store := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Set(ctx, Channel{ID: "C", GuildID: "G"}, "one", nil, userA)
	require.NoError(t, err)

	later := testCreated.Add(time.Hour)
	e.now = func() time.Time { return later }

	second, err := e.Set(ctx, Channel{ID: "C", GuildID: "G"}, "two", nil, userA)
	require.NoError(t, err)

	assert.Equal(t, []string{first.ID}, port.deleted)
	assert.ElementsMatch(t, []string{second.ID}, port.liveIDs())

	row, _ := store.row("C")
	assert.Equal(t, "two", row.Content)
	assert.True(t, row.CreatedAt.Equal(later), "set stamps a fresh created_at")
}

func TestEngine_SetRejectsBlankContent(t *testing.T) {
	e, port, store := newTestEngine(t)

	_, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "   ", nil, userA)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	assert.Zero(t, port.callCount(), "no port calls")
	assert.Zero(t, store.writeCount(), "no store writes")
}

func TestEngine_SetPermissionDenied(t *testing.T) {
	e, port, store := newTestEngine(t)
	port.caps = CapView | CapSend

	_, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "hi", &Embed{Title: "T"}, userA)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "EMBED_LINKS")
	assert.Zero(t, port.sentCount())
	assert.Zero(t, store.writeCount())

	// plain text only needs send
	_, err = e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "hi", nil, userA)
	require.NoError(t, err)
}

func TestEngine_SetPermissionLookupFails(t *testing.T) {
	e, port, _ := newTestEngine(t)
	port.capsErr = errors.New("gateway down")

	_, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "hi", nil, userA)
	require.ErrorIs(t, err, ErrSendFailed)
}

func TestEngine_SetSendFailedKeepsPriorRecord(t *testing.T) {
	e, port, store := newTestEngine(t)
	prior := seedLive(t, e, port, store, nil)
	port.sendErr = errors.New("rate limited")

	_, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "new", nil, userA)
	require.ErrorIs(t, err, ErrSendFailed)

	// old copy is gone, nothing was written
	assert.Equal(t, []string{"M1"}, port.deleted)
	assert.Empty(t, port.liveIDs())

	cached, ok := e.Lookup("C")
	require.True(t, ok)
	assert.Equal(t, prior, cached)
	row, _ := store.row("C")
	assert.Equal(t, prior, row)
}

func TestEngine_SetPersistFailedDeletesGhost(t *testing.T) {
	e, port, store := newTestEngine(t)
	store.upsertErr = errors.New("disk full")

	_, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "hello", nil, userA)
	require.ErrorIs(t, err, ErrPersistFailed)

	assert.Equal(t, 1, port.sentCount())
	assert.Equal(t, []string{"sent-1"}, port.deleted)
	assert.Empty(t, port.liveIDs())

	_, ok := e.Lookup("C")
	assert.False(t, ok)
	_, ok = store.row("C")
	assert.False(t, ok)
}

func TestEngine_SetOldCopyDeleteFailureDoesNotAbort(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)
	port.deleteErr = errors.New("forbidden")

	h, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "new", nil, userA)
	require.NoError(t, err)

	cached, _ := e.Lookup("C")
	assert.Equal(t, h.ID, cached.LastMessageID)
	assert.Equal(t, "new", cached.Content)
}

func TestEngine_SetThenRestartRoundTrip(t *testing.T) {
	e, port, store := newTestEngine(t)

	h, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, "hello", nil, userA)
	require.NoError(t, err)

	restarted := NewEngine(store, port, discardLogger())
	require.NoError(t, restarted.Initialize(context.Background()))

	rec, ok := restarted.Lookup("C")
	require.True(t, ok)
	assert.Equal(t, "hello", rec.Content)
	assert.Nil(t, rec.Embed)
	assert.Equal(t, h.ID, rec.LastMessageID)
}

func TestEngine_InitializeLoadError(t *testing.T) {
	e, _, store := newTestEngine(t)
	store.loadErr = errors.New("locked")

	require.Error(t, e.Initialize(context.Background()))
	assert.Zero(t, e.cache.Len())
}

func TestEngine_RemoveWithoutSticky(t *testing.T) {
	e, port, store := newTestEngine(t)

	removed, err := e.Remove(context.Background(), "C")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Zero(t, port.callCount())
	assert.Zero(t, store.writeCount())
}

func TestEngine_Remove(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)

	removed, err := e.Remove(context.Background(), "C")
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Equal(t, []string{"M1"}, port.deleted)
	_, ok := store.row("C")
	assert.False(t, ok)
	_, ok = e.Lookup("C")
	assert.False(t, ok)

	removed, err = e.Remove(context.Background(), "C")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEngine_RemoveStoreFailureKeepsCache(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)
	store.deleteErr = errors.New("locked")

	_, err := e.Remove(context.Background(), "C")
	require.ErrorIs(t, err, ErrPersistFailed)

	_, ok := e.Lookup("C")
	assert.True(t, ok, "a later remove can retry")
}

func TestEngine_HandleNewActivityReposts(t *testing.T) {
	e, port, store := newTestEngine(t)
	port.users["userA"] = userA
	seedLive(t, e, port, store, &Embed{Title: "Rules", Color: 0xFF0000})

	e.HandleNewActivity(context.Background(), "C", Activity{ID: "M2", AuthorID: "userB"})

	assert.Equal(t, []string{"M1"}, port.deleted)
	require.Len(t, port.sent, 1)
	sent := port.sent[0]
	require.NotNil(t, sent.Embed)
	assert.Equal(t, "Read the rules", sent.Embed.Description)
	assert.Equal(t, "Rules", sent.Embed.Title)
	assert.Equal(t, 0xFF0000, sent.Embed.Color)
	assert.Equal(t, "Sticky message set by alice", sent.Embed.Footer.Text)
	assert.Equal(t, testCreated.Format(time.RFC3339), sent.Embed.Timestamp, "created_at is preserved")

	cached, _ := e.Lookup("C")
	assert.Equal(t, "sent-1", cached.LastMessageID)
	assert.True(t, cached.CreatedAt.Equal(testCreated))
	row, _ := store.row("C")
	assert.Equal(t, "sent-1", row.LastMessageID)
	assert.ElementsMatch(t, []string{"sent-1"}, port.liveIDs())
}

func TestEngine_HandleNewActivityUnknownAuthor(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, &Embed{})

	e.HandleNewActivity(context.Background(), "C", Activity{ID: "M2", AuthorID: "userB"})

	require.Len(t, port.sent, 1)
	assert.Equal(t, "Sticky message set by Unknown User", port.sent[0].Embed.Footer.Text)
	assert.Empty(t, port.sent[0].Embed.Footer.IconURL)
	assert.Equal(t, DefaultTitle, port.sent[0].Embed.Title)
}

func TestEngine_HandleNewActivityIgnored(t *testing.T) {
	tests := []struct {
		name      string
		channelID string
		msg       Activity
	}{
		{name: "bot itself", channelID: "C", msg: Activity{ID: "X", AuthorID: testBotID}},
		{name: "no sticky", channelID: "other", msg: Activity{ID: "X", AuthorID: "userB"}},
		{name: "sticky itself", channelID: "C", msg: Activity{ID: "M1", AuthorID: "userB"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, port, store := newTestEngine(t)
			seedLive(t, e, port, store, nil)
			before := port.callCount()

			e.HandleNewActivity(context.Background(), tc.channelID, tc.msg)
			e.HandleNewActivity(context.Background(), tc.channelID, tc.msg)

			assert.Equal(t, before, port.callCount())
			assert.Zero(t, store.writeCount())
		})
	}
}

func TestEngine_HandleNewActivityDuplicateDelivery(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)
	ctx := context.Background()

	e.HandleNewActivity(ctx, "C", Activity{ID: "M2", AuthorID: "userB"})
	require.Equal(t, 1, port.sentCount())

	// the repost itself, delivered any number of times
	e.HandleNewActivity(ctx, "C", Activity{ID: "sent-1", AuthorID: "userB"})
	e.HandleNewActivity(ctx, "C", Activity{ID: "sent-1", AuthorID: "userB"})
	assert.Equal(t, 1, port.sentCount())
}

func TestEngine_HandleNewActivitySendFailureRetriesLater(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)
	ctx := context.Background()
	port.sendErr = errors.New("503")

	e.HandleNewActivity(ctx, "C", Activity{ID: "M2", AuthorID: "userB"})

	cached, _ := e.Lookup("C")
	assert.Equal(t, "M1", cached.LastMessageID, "stale id kept")
	assert.Empty(t, port.liveIDs())

	port.sendErr = nil
	e.HandleNewActivity(ctx, "C", Activity{ID: "M3", AuthorID: "userB"})

	cached, _ = e.Lookup("C")
	assert.Equal(t, "sent-1", cached.LastMessageID)
	assert.Equal(t, []string{"M1"}, port.deleted, "the missing copy is not deleted twice")
}

func TestEngine_HandleNewActivityMissingPermission(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)
	port.caps = CapView

	e.HandleNewActivity(context.Background(), "C", Activity{ID: "M2", AuthorID: "userB"})

	assert.Empty(t, port.deleted)
	assert.Zero(t, port.sentCount())
	cached, _ := e.Lookup("C")
	assert.Equal(t, "M1", cached.LastMessageID)
}

func TestEngine_HandleNewActivityEmbedNeedsEmbedLinks(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, &Embed{Title: "Rules"})
	port.caps = CapView | CapSend

	e.HandleNewActivity(context.Background(), "C", Activity{ID: "M2", AuthorID: "userB"})

	assert.Empty(t, port.deleted, "the live copy stays when the repost cannot be sent")
	assert.Zero(t, port.sentCount())
	assert.ElementsMatch(t, []string{"M1"}, port.liveIDs())
	cached, _ := e.Lookup("C")
	assert.Equal(t, "M1", cached.LastMessageID)

	// A plain sticky needs no Embed Links.
	e2, port2, store2 := newTestEngine(t)
	seedLive(t, e2, port2, store2, nil)
	port2.caps = CapView | CapSend

	e2.HandleNewActivity(context.Background(), "C", Activity{ID: "M2", AuthorID: "userB"})
	assert.Equal(t, []string{"M1"}, port2.deleted)
	assert.Equal(t, 1, port2.sentCount())
}

func TestEngine_HandleNewActivityStoreLagIsTolerated(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)
	store.updateErr = errors.New("busy")

	e.HandleNewActivity(context.Background(), "C", Activity{ID: "M2", AuthorID: "userB"})

	cached, _ := e.Lookup("C")
	assert.Equal(t, "sent-1", cached.LastMessageID)
	row, _ := store.row("C")
	assert.Equal(t, "M1", row.LastMessageID)
}

func TestEngine_ConcurrentActivityLeavesOneLiveCopy(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.HandleNewActivity(context.Background(), "C", Activity{ID: fmt.Sprintf("u-%d", i), AuthorID: "userB"})
		}(i)
	}
	wg.Wait()

	live := port.liveIDs()
	require.Len(t, live, 1)
	cached, _ := e.Lookup("C")
	assert.Equal(t, live[0], cached.LastMessageID)
	assert.Zero(t, e.locks.size())
}

func TestEngine_ConcurrentSetAndActivity(t *testing.T) {
	e, port, store := newTestEngine(t)
	seedLive(t, e, port, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := e.Set(context.Background(), Channel{ID: "C", GuildID: "G"}, fmt.Sprintf("v%d", i), nil, userA)
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			e.HandleNewActivity(context.Background(), "C", Activity{ID: fmt.Sprintf("u-%d", i), AuthorID: "userB"})
		}(i)
	}
	wg.Wait()

	live := port.liveIDs()
	require.Len(t, live, 1)
	cached, _ := e.Lookup("C")
	row, _ := store.row("C")
	assert.Equal(t, live[0], cached.LastMessageID)
	assert.Equal(t, cached.Content, row.Content)
}
