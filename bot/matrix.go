// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/calltally/lib/atomicfile"
	"github.com/bureau-foundation/calltally/lib/clock"
	"github.com/bureau-foundation/calltally/lib/codec"
	"github.com/bureau-foundation/calltally/messaging"
)

// syncFilter restricts /sync to what the bot reads: messages and
// membership in joined rooms, with lazy-loaded members so the room
// summary carries member counts.
const syncFilter = `{"presence":{"types":[]},"account_data":{"types":[]},` +
	`"room":{"account_data":{"types":[]},"ephemeral":{"types":[]},` +
	`"state":{"lazy_load_members":true,"types":["m.room.member"]},` +
	`"timeline":{"types":["m.room.message","m.room.member"],"limit":50}}}`

// Backfill limits for limited sync timelines.
const (
	backfillPageSize = 100
	maxBackfillPages = 20
	backfillFilter   = `{"types":["m.room.message"]}`
)

// MatrixConfig configures a MatrixTransport.
type MatrixConfig struct {
	// Session is required. The transport does not close it.
	Session *messaging.DirectSession

	// StatePath is where the sync position is persisted. Empty keeps it
	// in memory only, so every start skips history.
	StatePath string

	// SyncTimeout is the /sync long-poll wait. Default: 30s.
	SyncTimeout time.Duration

	// MaxBackoff caps the retry delay after a failed /sync.
	// Default: 30s.
	MaxBackoff time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// MatrixTransport connects the bot to a Matrix homeserver. A room is a
// chat; rooms with more than two joined members are group chats.
type MatrixTransport struct {
	session     *messaging.DirectSession
	statePath   string
	syncTimeout time.Duration
	maxBackoff  time.Duration
	clock       clock.Clock
	logger      *slog.Logger

	// memberCounts caches joined-member counts per room. Only the sync
	// goroutine touches it.
	memberCounts map[string]int
}

// NewMatrixTransport validates cfg and returns a transport.
func NewMatrixTransport(cfg MatrixConfig) (*MatrixTransport, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("bot: Matrix session is required")
	}
	if cfg.Session.UserID() == "" {
		return nil, fmt.Errorf("bot: Matrix session has no user ID")
	}
	syncTimeout := cfg.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = 30 * time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixTransport{
		session:      cfg.Session,
		statePath:    cfg.StatePath,
		syncTimeout:  syncTimeout,
		maxBackoff:   maxBackoff,
		clock:        clk,
		logger:       logger,
		memberCounts: make(map[string]int),
	}, nil
}

// Send posts message to the room chatID. Rooms the bot was kicked or
// banned from, or that no longer exist, give an error wrapping
// ErrChatGone.
func (t *MatrixTransport) Send(ctx context.Context, chatID string, message Message) error {
	content := messaging.NewTextMessage(message.Text)
	if message.HTML != "" {
		content = messaging.NewHTMLMessage(message.Text, message.HTML)
	}
	content = content.ReplyTo(message.ReplyTo)

	_, err := t.session.SendMessageOnce(ctx, chatID, message.Key, content)
	if err == nil {
		return nil
	}
	if messaging.IsRoomGone(err) {
		return fmt.Errorf("%w: %s: %w", ErrChatGone, chatID, err)
	}
	return err
}

// Run syncs with the homeserver until ctx is cancelled, passing every
// message from another user to handler in arrival order. It joins
// rooms the bot is invited to.
//
// Without a saved sync position the first sync only establishes one:
// history from before the first start is not counted. After that the
// position is saved after each batch, so messages sent while the bot
// was down are handled on the next start.
//
// Run returns nil on cancellation and an error only when the access
// token is rejected.
func (t *MatrixTransport) Run(ctx context.Context, handler Handler) error {
	since, err := t.loadSince()
	if err != nil {
		return err
	}

	if since == "" {
		response, err := t.initialSync(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		t.acceptInvites(ctx, response.Rooms.Invite)
		t.observeRooms(response)
		since = response.NextBatch
		t.saveSince(since)
		t.logger.Info("initial sync complete, history skipped", "next_batch", since)
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}

		response, err := t.session.Sync(ctx, messaging.SyncOptions{
			Since:      since,
			Timeout:    int(t.syncTimeout / time.Millisecond),
			SetTimeout: true,
			Filter:     syncFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if messaging.IsUnauthorized(err) {
				return fmt.Errorf("bot: access token rejected: %w", err)
			}
			// A rate-limited client waits at least as long as asked.
			wait := max(backoff, messaging.RetryAfter(err))
			t.logger.Error("sync failed, retrying", "error", err, "backoff", wait)
			t.session.CloseIdleConnections()
			select {
			case <-ctx.Done():
				return nil
			case <-t.clock.After(wait):
			}
			backoff = min(backoff*2, t.maxBackoff)
			continue
		}
		backoff = time.Second

		t.acceptInvites(ctx, response.Rooms.Invite)
		t.observeRooms(response)
		t.dispatch(ctx, since, response, handler)

		since = response.NextBatch
		t.saveSince(since)
	}
}

// initialSync retries until the homeserver answers once, with the same
// backoff as the main loop.
func (t *MatrixTransport) initialSync(ctx context.Context) (*messaging.SyncResponse, error) {
	backoff := time.Second
	for {
		response, err := t.session.Sync(ctx, messaging.SyncOptions{Filter: syncFilter})
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil || messaging.IsUnauthorized(err) {
			return nil, fmt.Errorf("bot: initial sync: %w", err)
		}
		t.logger.Error("initial sync failed, retrying", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.clock.After(backoff):
		}
		backoff = min(backoff*2, t.maxBackoff)
	}
}

func (t *MatrixTransport) acceptInvites(ctx context.Context, invites map[string]messaging.InvitedRoom) {
	for roomID := range invites {
		t.logger.Info("accepting room invite", "room_id", roomID)
		if _, err := t.session.JoinRoom(ctx, roomID); err != nil {
			t.logger.Error("failed to accept room invite", "room_id", roomID, "error", err)
		}
	}
}

// observeRooms updates the member-count cache from room summaries and
// drops entries for rooms whose membership changed without a count.
func (t *MatrixTransport) observeRooms(response *messaging.SyncResponse) {
	for roomID, room := range response.Rooms.Join {
		if count := room.Summary.JoinedMemberCount; count != nil {
			t.memberCounts[roomID] = *count
			continue
		}
		if hasMembershipChange(room.State.Events) || hasMembershipChange(room.Timeline.Events) {
			delete(t.memberCounts, roomID)
		}
	}
	for roomID := range response.Rooms.Leave {
		delete(t.memberCounts, roomID)
	}
}

func hasMembershipChange(events []messaging.Event) bool {
	for _, event := range events {
		if event.Type == messaging.EventTypeMember {
			return true
		}
	}
	return false
}

func (t *MatrixTransport) dispatch(ctx context.Context, since string, response *messaging.SyncResponse, handler Handler) {
	self := t.session.UserID()
	for roomID, room := range response.Rooms.Join {
		events := room.Timeline.Events
		if room.Timeline.Limited {
			events = append(t.backfill(ctx, roomID, since, room.Timeline.PrevBatch), events...)
		}
		for _, event := range events {
			if event.Type != messaging.EventTypeMessage || event.Sender == self {
				continue
			}
			inbound, ok := t.inbound(ctx, roomID, event)
			if !ok {
				continue
			}
			handler.Handle(ctx, inbound)
		}
	}
}

// backfill fetches the messages a limited timeline left out, between
// since and prevBatch, oldest first. Pages beyond maxBackfillPages and
// failed pages are logged and skipped.
func (t *MatrixTransport) backfill(ctx context.Context, roomID, since, prevBatch string) []messaging.Event {
	logger := t.logger.With("room_id", roomID)
	if prevBatch == "" {
		logger.Warn("timeline gap without prev_batch, older messages skipped")
		return nil
	}

	var newestFirst []messaging.Event
	from := prevBatch
	for page := 0; ; page++ {
		if page == maxBackfillPages {
			logger.Warn("timeline gap too large, older messages skipped",
				"pages", page, "fetched", len(newestFirst))
			break
		}
		response, err := t.session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
			From:   from,
			To:     since,
			Limit:  backfillPageSize,
			Filter: backfillFilter,
		})
		if err != nil {
			logger.Error("fetching timeline gap failed, older messages skipped",
				"error", err, "fetched", len(newestFirst))
			break
		}
		newestFirst = append(newestFirst, response.Chunk...)
		if len(response.Chunk) == 0 || response.End == "" || response.End == from {
			break
		}
		from = response.End
	}

	slices.Reverse(newestFirst)
	if len(newestFirst) > 0 {
		logger.Info("timeline gap filled", "events", len(newestFirst))
	}
	return newestFirst
}

// inbound converts a message event. Notices and non-image media are
// skipped.
func (t *MatrixTransport) inbound(ctx context.Context, roomID string, event messaging.Event) (Inbound, bool) {
	content, err := event.MessageContent()
	if err != nil {
		t.logger.Warn("undecodable message event", "room_id", roomID, "event_id", event.EventID, "error", err)
		return Inbound{}, false
	}

	message := Inbound{
		ChatID:   roomID,
		ChatType: t.chatType(ctx, roomID),
		Sender:   event.Sender,
		EventID:  event.EventID,
		Time:     time.UnixMilli(event.OriginServerTS),
	}
	switch content.MsgType {
	case messaging.MsgTypeText:
		message.Text = content.Body
		if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
			message.Text = stripReplyFallback(message.Text)
		}
	case messaging.MsgTypeImage:
		message.Photo = true
		message.Caption = content.Caption()
	default:
		return Inbound{}, false
	}
	return message, true
}

// chatType classifies a room by its joined-member count. A room whose
// count cannot be determined is treated as private, so it is never
// registered for broadcasts by mistake.
func (t *MatrixTransport) chatType(ctx context.Context, roomID string) ChatType {
	count, ok := t.memberCounts[roomID]
	if !ok {
		members, err := t.session.JoinedMembers(ctx, roomID)
		if err != nil {
			t.logger.Warn("counting room members failed", "room_id", roomID, "error", err)
			return ChatPrivate
		}
		count = len(members)
		t.memberCounts[roomID] = count
	}
	if count > 2 {
		return ChatGroup
	}
	return ChatPrivate
}

// stripReplyFallback removes the quoted "> " lines some clients put at
// the start of a reply body.
func stripReplyFallback(body string) string {
	if !strings.HasPrefix(body, ">") {
		return body
	}
	lines := strings.Split(body, "\n")
	index := 0
	for index < len(lines) && strings.HasPrefix(lines[index], ">") {
		index++
	}
	if index < len(lines) && lines[index] == "" {
		index++
	}
	return strings.Join(lines[index:], "\n")
}

// syncState is the persisted sync position.
type syncState struct {
	UserID    string    `cbor:"user_id"`
	NextBatch string    `cbor:"next_batch"`
	SavedAt   time.Time `cbor:"saved_at"`
}

// loadSince returns the saved sync position, or "" when there is none
// or it belongs to another account.
func (t *MatrixTransport) loadSince() (string, error) {
	if t.statePath == "" {
		return "", nil
	}
	data, err := atomicfile.ReadOptional(t.statePath)
	if err != nil {
		return "", fmt.Errorf("bot: reading sync state: %w", err)
	}
	if data == nil {
		return "", nil
	}
	var state syncState
	if err := codec.Unmarshal(data, &state); err != nil {
		t.logger.Warn("sync state unreadable, starting fresh", "path", t.statePath, "error", err)
		return "", nil
	}
	if state.UserID != t.session.UserID() {
		t.logger.Warn("sync state belongs to another user, starting fresh",
			"path", t.statePath, "state_user_id", state.UserID)
		return "", nil
	}
	t.logger.Info("resuming sync", "next_batch", state.NextBatch, "saved_at", state.SavedAt)
	return state.NextBatch, nil
}

// saveSince persists the position. A failed write is logged: the loop
// keeps its in-memory position and retries on the next batch.
func (t *MatrixTransport) saveSince(since string) {
	if t.statePath == "" || since == "" {
		return
	}
	data, err := codec.Marshal(syncState{
		UserID:    t.session.UserID(),
		NextBatch: since,
		SavedAt:   t.clock.Now(),
	})
	if err == nil {
		err = atomicfile.Write(t.statePath, data, 0o600)
	}
	if err != nil {
		t.logger.Error("saving sync state failed", "path", t.statePath, "error", err)
	}
}
