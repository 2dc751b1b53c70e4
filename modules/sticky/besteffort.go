package sticky

import (
	"context"
	"errors"

	"github.com/lmittmann/tint"
)

// Outcome is the result of a best-effort step. The engine logs it and never
// branches on it.
type Outcome struct {
	Step      string
	ChannelID string
	MessageID string
	Gone      bool // message was already absent
	Err       error
}

const (
	stepDeleteStale = "delete_stale"
	stepDeleteGhost = "delete_ghost"
	stepSyncLastID  = "sync_last_message_id"
)

// deleteStale removes a previous live copy of a sticky.
func (e *Engine) deleteStale(ctx context.Context, channelID, messageID string) Outcome {
	return e.deleteMessage(ctx, stepDeleteStale, channelID, messageID)
}

// deleteGhost removes a copy that was sent but could not be persisted.
func (e *Engine) deleteGhost(ctx context.Context, channelID, messageID string) Outcome {
	return e.deleteMessage(ctx, stepDeleteGhost, channelID, messageID)
}

func (e *Engine) deleteMessage(ctx context.Context, step, channelID, messageID string) Outcome {
	out := Outcome{Step: step, ChannelID: channelID, MessageID: messageID}

	exists, err := e.port.Fetch(ctx, channelID, messageID)
	if err == nil && !exists {
		out.Gone = true
		return out
	}
	// A failed fetch still gets a delete attempt.

	err = e.port.Delete(ctx, channelID, messageID)
	switch {
	case errors.Is(err, ErrMessageGone):
		out.Gone = true
	case err != nil:
		out.Err = err
	}
	return out
}

// syncLastMessageID lets the store catch up with a repost. The cache stays
// authoritative if this fails.
func (e *Engine) syncLastMessageID(ctx context.Context, channelID, messageID string) Outcome {
	return Outcome{
		Step:      stepSyncLastID,
		ChannelID: channelID,
		MessageID: messageID,
		Err:       e.store.UpdateLastMessageID(ctx, channelID, messageID),
	}
}

func (e *Engine) logOutcome(o Outcome) {
	if o.Err != nil {
		e.logger.Warn("best-effort step failed",
			"step", o.Step,
			"channel_id", o.ChannelID,
			"message_id", o.MessageID,
			tint.Err(o.Err),
		)
		return
	}
	e.logger.Debug("best-effort step done",
		"step", o.Step,
		"channel_id", o.ChannelID,
		"message_id", o.MessageID,
		"gone", o.Gone,
	)
}
