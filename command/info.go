package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nicebartender/starinfo/discord"
	"github.com/nicebartender/starinfo/joincode"
	"github.com/nicebartender/starinfo/starblast"
)

const (
	exampleLink = "https://starblast.io/#123"

	invalidLinkMessage = "Invalid Starblast.io URL. Please provide a valid URL like: " + exampleLink
	processingMessage  = "Fetching server information..."
	failureMessage     = "❌ An error occurred while fetching server information."
)

func (r *Router) usageMessage() string {
	return fmt.Sprintf("Please provide a Starblast.io game URL. Usage: `%s %s`", r.Prefix, exampleLink)
}

// handleInfo validates the link, posts a placeholder, and edits it once with
// the lookup result. Once the placeholder is posted the invocation no longer
// follows ctx cancellation, so it always ends with exactly one edit.
func (r *Router) handleInfo(ctx context.Context, msg discord.Message, args []string) {
	log := slog.With("trace", uuid.NewString(), "channel", msg.ChannelID, "message", msg.ID)

	if len(args) == 0 {
		r.reply(ctx, log, msg, r.usageMessage())
		return
	}

	ref, ok := joincode.Parse(args[0])
	if !ok {
		log.Debug("info: invalid link", "arg", args[0])
		r.reply(ctx, log, msg, invalidLinkMessage)
		return
	}

	ctx = context.WithoutCancel(ctx)

	placeholder, err := r.Messenger.Reply(ctx, msg.ChannelID, msg.ID, processingMessage)
	if err != nil {
		log.Error("info: post placeholder failed", "err", err)
		return
	}

	text := r.lookup(ctx, log, ref)

	if _, err := r.Messenger.EditMessage(ctx, msg.ChannelID, placeholder.ID, text); err != nil {
		log.Error("info: edit placeholder failed", "placeholder", placeholder.ID, "err", err)
	}
}

// lookup runs the pipeline and renders its outcome. A panic anywhere below
// becomes the generic failure notice.
func (r *Router) lookup(ctx context.Context, log *slog.Logger, ref joincode.Ref) (text string) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("info: lookup panicked", "panic", p)
			text = failureMessage
		}
	}()

	start := time.Now()
	summary, err := r.Systems.Lookup(ctx, ref)
	if err != nil {
		log.Info("info: lookup failed", "id", ref.ID, "address", ref.Address, "err", err, "elapsed", time.Since(start))
	} else {
		log.Info("info: lookup finished", "id", ref.ID, "address", summary.Address, "players", summary.PlayerCount, "elapsed", time.Since(start))
	}

	return starblast.FormatReply(summary, err)
}

func (r *Router) reply(ctx context.Context, log *slog.Logger, msg discord.Message, content string) {
	if _, err := r.Messenger.Reply(ctx, msg.ChannelID, msg.ID, content); err != nil {
		log.Error("info: reply failed", "err", err)
	}
}
