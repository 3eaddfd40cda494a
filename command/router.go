package command

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nicebartender/starinfo/discord"
	"github.com/nicebartender/starinfo/joincode"
	"github.com/nicebartender/starinfo/starblast"
)

// DefaultPrefix triggers the info command.
const DefaultPrefix = "!info"

// Messenger posts and edits chat messages.
type Messenger interface {
	Reply(ctx context.Context, channelID, messageID, content string) (*discord.Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) (*discord.Message, error)
}

// Systems looks up game sessions.
type Systems interface {
	Lookup(ctx context.Context, ref joincode.Ref) (*starblast.Summary, error)
}

type Router struct {
	Prefix    string
	Messenger Messenger
	Systems   Systems

	// SelfID returns the bot's own user id. Optional.
	SelfID func() string
}

func NewRouter(prefix string, messenger Messenger, systems Systems) *Router {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Router{Prefix: prefix, Messenger: messenger, Systems: systems}
}

// Handle is the gateway's message handler. Messages from bots, including this
// one, and messages not starting with a known command are dropped silently.
func (r *Router) Handle(ctx context.Context, msg discord.Message) {
	if r.fromBot(msg) {
		return
	}

	fields := strings.Fields(msg.Content)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case r.Prefix:
		slog.Debug("command", "name", fields[0], "channel", msg.ChannelID, "author", msg.Author.ID)
		r.handleInfo(ctx, msg, fields[1:])
	}
}

func (r *Router) fromBot(msg discord.Message) bool {
	if msg.Author.Bot {
		return true
	}
	return r.SelfID != nil && msg.Author.ID != "" && msg.Author.ID == r.SelfID()
}
