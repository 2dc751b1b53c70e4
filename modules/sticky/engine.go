package sticky

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Engine keeps one sticky per channel at the bottom of the channel. It owns
// the cache; the store and messenger are injected.
//
// Set and Remove report failures to the caller. HandleNewActivity never does:
// it is driven by unrelated chat traffic and only logs.
type Engine struct {
	store  Store
	port   Messenger
	cache  *Cache
	locks  *channelLocks
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(store Store, port Messenger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		port:   port,
		cache:  NewCache(),
		locks:  newChannelLocks(),
		logger: logger.With("module", "sticky"),
		now:    time.Now,
	}
}

// Initialize seeds the cache from the store. It does not resend anything;
// reposting happens on the next activity in each channel.
func (e *Engine) Initialize(ctx context.Context) error {
	records, err := e.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	e.cache.Replace(records)
	e.logger.Info("loaded sticky messages", "count", len(records))
	return nil
}

// Lookup returns the cached sticky of a channel.
func (e *Engine) Lookup(channelID string) (Record, bool) {
	return e.cache.Get(channelID)
}

// Set replaces the sticky of ch and returns the live copy it sent.
func (e *Engine) Set(ctx context.Context, ch Channel, content string, embed *Embed, author Author) (MessageHandle, error) {
	const op = "set sticky"

	if strings.TrimSpace(ch.ID) == "" {
		return MessageHandle{}, newError(KindInvalidInput, op, "", errors.New("missing channel"))
	}
	if strings.TrimSpace(content) == "" {
		return MessageHandle{}, newError(KindInvalidInput, op, ch.ID, errors.New("content is empty"))
	}

	need := requiredCapabilities(embed)
	caps, err := e.port.Permissions(ctx, ch.ID)
	if err != nil {
		return MessageHandle{}, newError(KindSendFailed, op, ch.ID, err)
	}
	if !caps.Has(need) {
		return MessageHandle{}, newError(KindPermissionDenied, op, ch.ID, missingCapabilities(caps, need))
	}

	unlock := e.locks.lock(ch.ID)
	defer unlock()

	// Failing to delete the old copy does not block the new one.
	if old, ok := e.cache.Get(ch.ID); ok && old.LastMessageID != "" {
		e.logOutcome(e.deleteStale(ctx, ch.ID, old.LastMessageID))
	}

	rec := Record{
		ChannelID: ch.ID,
		GuildID:   ch.GuildID,
		Content:   content,
		Embed:     embed,
		AuthorID:  author.ID,
		CreatedAt: e.now().UTC().Truncate(time.Second),
	}
	if embed != nil {
		cp := *embed
		rec.Embed = &cp
	}

	sent, err := e.port.Send(ctx, ch.ID, render(rec, author))
	if err != nil {
		return MessageHandle{}, newError(KindSendFailed, op, ch.ID, err)
	}
	rec.LastMessageID = sent.ID

	if err := e.store.Upsert(ctx, rec); err != nil {
		e.logOutcome(e.deleteGhost(ctx, ch.ID, sent.ID))
		return MessageHandle{}, newError(KindPersistFailed, op, ch.ID, err)
	}

	e.cache.Put(rec)
	e.logger.Info("sticky set",
		"channel_id", ch.ID,
		"guild_id", ch.GuildID,
		"message_id", sent.ID,
		"author_id", author.ID,
		"embed", embed != nil,
	)
	return sent, nil
}

// Remove deletes the sticky of a channel. It returns false, with no port
// calls, when there is nothing to remove.
func (e *Engine) Remove(ctx context.Context, channelID string) (bool, error) {
	unlock := e.locks.lock(channelID)
	defer unlock()

	rec, ok := e.cache.Get(channelID)
	if !ok {
		return false, nil
	}

	if rec.LastMessageID != "" {
		e.logOutcome(e.deleteStale(ctx, channelID, rec.LastMessageID))
	}
	if err := e.store.DeleteByChannel(ctx, channelID); err != nil {
		return false, newError(KindPersistFailed, "remove sticky", channelID, err)
	}
	e.cache.Delete(channelID)

	e.logger.Info("sticky removed", "channel_id", channelID)
	return true, nil
}

// HandleNewActivity reposts the sticky of channelID below msg.
func (e *Engine) HandleNewActivity(ctx context.Context, channelID string, msg Activity) {
	if msg.AuthorID != "" && msg.AuthorID == e.port.BotUserID() {
		return
	}
	if rec, ok := e.cache.Get(channelID); !ok || rec.LastMessageID == msg.ID {
		return
	}

	unlock := e.locks.lock(channelID)
	defer unlock()

	// Re-read under the lock: a Set, Remove or another repost may have won.
	rec, ok := e.cache.Get(channelID)
	if !ok || rec.LastMessageID == msg.ID {
		return
	}

	log := e.logger.With("channel_id", channelID)

	caps, err := e.port.Permissions(ctx, channelID)
	if err != nil {
		log.Warn("repost skipped: permission lookup failed", tint.Err(err))
		return
	}
	// Checked before the old copy is deleted so a channel is never left bare.
	if need := requiredCapabilities(rec.Embed); !caps.Has(need) {
		log.Warn("repost skipped: missing permissions", tint.Err(missingCapabilities(caps, need)))
		return
	}

	if rec.LastMessageID != "" {
		e.logOutcome(e.deleteStale(ctx, channelID, rec.LastMessageID))
	}

	var author Author
	if rec.Embed != nil && rec.AuthorID != "" {
		a, err := e.port.ResolveUser(ctx, rec.AuthorID)
		if err != nil {
			log.Debug("sticky author unresolved", "author_id", rec.AuthorID, tint.Err(err))
		} else {
			author = a
		}
	}

	sent, err := e.port.Send(ctx, channelID, render(rec, author))
	if err != nil {
		// The cache keeps the stale id so the next activity retries.
		log.Error("repost failed", "stale_message_id", rec.LastMessageID, tint.Err(err))
		return
	}

	e.cache.SetLastMessageID(channelID, sent.ID)
	e.logOutcome(e.syncLastMessageID(ctx, channelID, sent.ID))
	log.Debug("sticky reposted", "message_id", sent.ID, "trigger_id", msg.ID)
}

func requiredCapabilities(embed *Embed) Capabilities {
	need := CapView | CapSend
	if embed != nil {
		need |= CapEmbed
	}
	return need
}

func missingCapabilities(have, need Capabilities) error {
	var missing []string
	if need&CapView != 0 && !have.Has(CapView) {
		missing = append(missing, "VIEW_CHANNEL")
	}
	if need&CapSend != 0 && !have.Has(CapSend) {
		missing = append(missing, "SEND_MESSAGES")
	}
	if need&CapEmbed != 0 && !have.Has(CapEmbed) {
		missing = append(missing, "EMBED_LINKS")
	}
	return errors.New("bot missing required permissions: " + strings.Join(missing, ", "))
}
