package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nicebartender/starinfo/discord"
	"github.com/nicebartender/starinfo/joincode"
	"github.com/nicebartender/starinfo/starblast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	ChannelID string
	MessageID string
	Content   string
}

type fakeMessenger struct {
	mu       sync.Mutex
	replies  []sentMessage
	edits    []sentMessage
	replyErr error
	nextID   int
}

func (f *fakeMessenger) Reply(_ context.Context, channelID, messageID, content string) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	f.nextID++
	f.replies = append(f.replies, sentMessage{channelID, messageID, content})
	return &discord.Message{ID: fmt.Sprintf("reply-%d", f.nextID), ChannelID: channelID, Content: content}, nil
}

func (f *fakeMessenger) EditMessage(_ context.Context, channelID, messageID, content string) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{channelID, messageID, content})
	return &discord.Message{ID: messageID, ChannelID: channelID, Content: content}, nil
}

type fakeSystems struct {
	calls   atomic.Int32
	lastRef joincode.Ref
	summary *starblast.Summary
	err     error
	panics  bool
}

func (f *fakeSystems) Lookup(_ context.Context, ref joincode.Ref) (*starblast.Summary, error) {
	f.calls.Add(1)
	f.lastRef = ref
	if f.panics {
		panic("boom")
	}
	return f.summary, f.err
}

func userMessage(content string) discord.Message {
	return discord.Message{
		ID:        "m1",
		ChannelID: "c1",
		Author:    discord.User{ID: "u1", Username: "pilot"},
		Content:   content,
	}
}

func TestHandleIgnoresUnrelatedMessages(t *testing.T) {
	messenger := &fakeMessenger{}
	systems := &fakeSystems{}
	router := NewRouter("", messenger, systems)
	router.SelfID = func() string { return "bot" }

	bot := userMessage("!info https://starblast.io/#1")
	bot.Author.Bot = true
	self := userMessage("!info https://starblast.io/#1")
	self.Author.ID = "bot"

	for _, msg := range []discord.Message{
		userMessage("hello there"),
		userMessage(""),
		userMessage("   "),
		userMessage("!information https://starblast.io/#1"),
		userMessage("please !info https://starblast.io/#1"),
		bot,
		self,
	} {
		router.Handle(context.Background(), msg)
	}

	assert.Empty(t, messenger.replies)
	assert.Empty(t, messenger.edits)
	assert.Zero(t, systems.calls.Load())
}

func TestHandleUsage(t *testing.T) {
	messenger := &fakeMessenger{}
	systems := &fakeSystems{}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info"))

	require.Len(t, messenger.replies, 1)
	assert.Equal(t, sentMessage{"c1", "m1", "Please provide a Starblast.io game URL. Usage: `!info https://starblast.io/#123`"}, messenger.replies[0])
	assert.Empty(t, messenger.edits)
	assert.Zero(t, systems.calls.Load())
}

func TestHandleInvalidLink(t *testing.T) {
	messenger := &fakeMessenger{}
	systems := &fakeSystems{}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info nonsense"))

	require.Len(t, messenger.replies, 1)
	assert.Equal(t, "Invalid Starblast.io URL. Please provide a valid URL like: https://starblast.io/#123", messenger.replies[0].Content)
	assert.Empty(t, messenger.edits)
	assert.Zero(t, systems.calls.Load())
}

func TestHandleEditsPlaceholderOnce(t *testing.T) {
	messenger := &fakeMessenger{}
	systems := &fakeSystems{summary: &starblast.Summary{ID: "42", Name: "Alpha", Mode: "ffa", Players: []string{}}}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info   https://starblast.io/#42@eu1 extra"))

	assert.Equal(t, joincode.Ref{ID: "42", Address: "eu1"}, systems.lastRef)
	require.Len(t, messenger.replies, 1)
	assert.Equal(t, "Fetching server information...", messenger.replies[0].Content)
	require.Len(t, messenger.edits, 1)
	assert.Equal(t, "c1", messenger.edits[0].ChannelID)
	assert.Equal(t, "reply-1", messenger.edits[0].MessageID)
	assert.Contains(t, messenger.edits[0].Content, "**Alpha** (ID: 42)")
}

func TestHandleRendersLookupError(t *testing.T) {
	messenger := &fakeMessenger{}
	systems := &fakeSystems{err: starblast.ErrSystemNotFound}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info https://starblast.io/#42"))

	require.Len(t, messenger.edits, 1)
	assert.Equal(t, "❌ Error: System not found", messenger.edits[0].Content)
}

func TestHandleRecoversPanics(t *testing.T) {
	messenger := &fakeMessenger{}
	systems := &fakeSystems{panics: true}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info https://starblast.io/#42"))

	require.Len(t, messenger.edits, 1)
	assert.Equal(t, "❌ An error occurred while fetching server information.", messenger.edits[0].Content)
}

func TestHandlePlaceholderFailureStops(t *testing.T) {
	messenger := &fakeMessenger{replyErr: errors.New("forbidden")}
	systems := &fakeSystems{}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info https://starblast.io/#42"))

	assert.Zero(t, systems.calls.Load())
	assert.Empty(t, messenger.edits)
}

func TestHandleSurvivesCancelledContext(t *testing.T) {
	messenger := &fakeMessenger{}
	systems := &fakeSystems{summary: &starblast.Summary{ID: "1", Name: "n", Mode: "m"}}
	router := NewRouter(DefaultPrefix, messenger, systems)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	router.Handle(ctx, userMessage("!info https://starblast.io/#1"))

	require.Len(t, messenger.edits, 1)
}

func TestHandleCustomPrefix(t *testing.T) {
	messenger := &fakeMessenger{}
	router := NewRouter("?sb", messenger, &fakeSystems{})

	router.Handle(context.Background(), userMessage("?sb"))
	router.Handle(context.Background(), userMessage("!info"))

	require.Len(t, messenger.replies, 1)
	assert.Contains(t, messenger.replies[0].Content, "`?sb https://starblast.io/#123`")
}

// starblastStub serves the directory at /simstatus.json and answers status
// requests with the given handler.
func starblastStub(t *testing.T, status http.HandlerFunc) *starblast.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/simstatus.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"address":"a0","systems":[{"id":7}]},{"address":"a1","systems":[{"id":42}]}]`))
	})
	mux.HandleFunc("/api/status/", status)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return starblast.NewClient(
		starblast.WithHTTPClient(server.Client()),
		starblast.WithDirectoryURL(server.URL+"/simstatus.json"),
		starblast.WithStatusBaseURL(server.URL),
	)
}

func TestInfoEndToEnd(t *testing.T) {
	systems := starblastStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status/42@a1", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Alpha","mode":"ffa","time":120,"players":{"p1":{"player_name":"Bob"}}}`))
	})
	messenger := &fakeMessenger{}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info https://starblast.io/#42"))

	require.Len(t, messenger.replies, 1)
	require.Len(t, messenger.edits, 1)
	assert.Equal(t, "**Alpha** (ID: 42)\n"+
		"Mode: ffa | Time: 2 min\n"+
		"Players: 1 | ECP: 0 | Crimes: 0\n"+
		"Join: https://starblast.io/#42@a1\n\n"+
		"**Players:**\nBob", messenger.edits[0].Content)
}

func TestInfoEndToEndNoHTTPForNonsense(t *testing.T) {
	var hits atomic.Int32
	systems := starblastStub(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	messenger := &fakeMessenger{}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info nonsense"))

	require.Len(t, messenger.replies, 1)
	assert.Equal(t, invalidLinkMessage, messenger.replies[0].Content)
	assert.Empty(t, messenger.edits)
	assert.Zero(t, hits.Load())
}

func TestInfoEndToEndServerError(t *testing.T) {
	systems := starblastStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	messenger := &fakeMessenger{}
	router := NewRouter(DefaultPrefix, messenger, systems)

	router.Handle(context.Background(), userMessage("!info https://starblast.io/#42"))

	require.Len(t, messenger.edits, 1)
	assert.Equal(t, "❌ Error: HTTP error: 500", messenger.edits[0].Content)
}
