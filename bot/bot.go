// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/calltally/lib/building"
	"github.com/bureau-foundation/calltally/lib/clock"
	"github.com/bureau-foundation/calltally/lib/registry"
	"github.com/bureau-foundation/calltally/lib/report"
	"github.com/bureau-foundation/calltally/lib/tally"
)

// defaultSendTimeout bounds a single send when Config.SendTimeout is zero.
const defaultSendTimeout = 30 * time.Second

// Config holds the bot's collaborators. Store, Registry, Transport,
// Clock and Location are required.
type Config struct {
	Store     tally.Store
	Registry  *registry.Registry
	Transport Transport
	Clock     clock.Clock
	Location  *time.Location

	// Extractor defaults to building.RegexExtractor.
	Extractor building.Extractor

	// SendTimeout bounds each reply and each per-chat broadcast send.
	SendTimeout time.Duration

	// ScheduleNote describes when reports are posted, for /help and
	// the group welcome. Empty omits the sentence.
	ScheduleNote string

	Logger *slog.Logger
}

// Bot turns chat messages into counter updates and reports.
type Bot struct {
	store        tally.Store
	registry     *registry.Registry
	transport    Transport
	clock        clock.Clock
	location     *time.Location
	extractor    building.Extractor
	reports      *report.Generator
	sendTimeout  time.Duration
	scheduleNote string
	logger       *slog.Logger

	commands  map[string]command
	reportSeq atomic.Uint64
}

// New validates cfg and returns a Bot.
func New(cfg Config) (*Bot, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("bot: Store is required")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("bot: Registry is required")
	case cfg.Transport == nil:
		return nil, fmt.Errorf("bot: Transport is required")
	case cfg.Clock == nil:
		return nil, fmt.Errorf("bot: Clock is required")
	case cfg.Location == nil:
		return nil, fmt.Errorf("bot: Location is required")
	}

	extractor := cfg.Extractor
	if extractor == nil {
		extractor = building.RegexExtractor{}
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bot{
		store:        cfg.Store,
		registry:     cfg.Registry,
		transport:    cfg.Transport,
		clock:        cfg.Clock,
		location:     cfg.Location,
		extractor:    extractor,
		reports:      &report.Generator{Store: cfg.Store},
		sendTimeout:  sendTimeout,
		scheduleNote: cfg.ScheduleNote,
		logger:       logger,
	}
	b.commands = b.commandTable()
	return b, nil
}

// Handle processes one inbound message. It never panics and never
// returns an error: failures are logged and answered in the chat.
func (b *Bot) Handle(ctx context.Context, message Inbound) {
	logger := b.logger.With(
		"request_id", uuid.NewString(),
		"chat_id", message.ChatID,
		"chat_type", message.ChatType.String(),
		"event_id", message.EventID,
	)
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("message handler panicked",
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			b.replyFailure(ctx, logger, message)
		}
	}()
	b.handle(ctx, logger, message)
}

// replyFailure sends the generic failure notice. The panic may have
// come from the transport itself, so a second one is logged and dropped.
func (b *Bot) replyFailure(ctx context.Context, logger *slog.Logger, message Inbound) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("failure notice panicked", "panic", recovered)
		}
	}()
	b.reply(ctx, logger, message, "internal-error",
		plainMessage("An internal error occurred. Please try again later."))
}

func (b *Bot) handle(ctx context.Context, logger *slog.Logger, message Inbound) {
	if message.ChatType == ChatGroup {
		b.registerChat(ctx, logger, message)
	}

	text := strings.TrimSpace(message.Text)
	if !message.Photo && strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, logger, message, text)
		return
	}

	source := sourceText
	if message.Photo {
		if strings.TrimSpace(message.Caption) == "" {
			logger.Info("photo without caption ignored")
			return
		}
		source = sourcePhoto
		text = message.Caption
	}
	if text == "" {
		return
	}

	code, ok := b.extractor.Extract(text)
	if !ok {
		logger.Info("no building code in message", "source", source.String(), "text", text)
		b.reply(ctx, logger, message, "guidance", plainMessage(guidanceText(source)))
		return
	}

	counts, err := b.store.Increment(ctx, code, b.clock.Now())
	if err != nil {
		logger.Error("registering call failed", "code", code.String(), "error", err)
		b.reply(ctx, logger, message, "register-failed",
			plainMessage("Could not register the call. Please try again."))
		return
	}

	logger.Info("call registered",
		"code", code.String(),
		"source", source.String(),
		"day", counts.Day.String(),
		"daily_count", counts.DailyCount,
		"daily_total", counts.DailyTotal,
		"monthly_count", counts.MonthlyCount,
	)
	b.reply(ctx, logger, message, "ack", markdownMessage(acknowledgement(source, counts)))
}

// registerChat adds a group chat to the broadcast registry and welcomes
// it the first time.
func (b *Bot) registerChat(ctx context.Context, logger *slog.Logger, message Inbound) {
	added, err := b.registry.Add(message.ChatID)
	if err != nil {
		logger.Error("registering chat failed", "error", err)
		return
	}
	if !added {
		return
	}
	logger.Info("chat registered for reports", "registered_chats", b.registry.Len())
	b.reply(ctx, logger, message, "welcome", markdownMessage(b.welcomeText()))
}

// reply answers message. kind distinguishes several replies to the same
// event so that each gets its own idempotency key.
func (b *Bot) reply(ctx context.Context, logger *slog.Logger, message Inbound, kind string, reply Message) {
	reply.ReplyTo = message.EventID
	if message.EventID != "" {
		reply.Key = "reply/" + message.EventID + "/" + kind
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	err := b.transport.Send(sendCtx, message.ChatID, reply)
	if err == nil {
		return
	}
	if errors.Is(err, ErrChatGone) {
		logger.Warn("reply failed, chat is gone", "error", err)
		b.evict(logger, message.ChatID)
		return
	}
	logger.Error("reply failed", "kind", kind, "error", err)
}

func (b *Bot) evict(logger *slog.Logger, chatID string) {
	removed, err := b.registry.Remove(chatID)
	if err != nil {
		logger.Error("evicting chat failed", "chat_id", chatID, "error", err)
		return
	}
	if removed {
		logger.Warn("chat evicted from reports", "chat_id", chatID, "registered_chats", b.registry.Len())
	}
}

func (b *Bot) today() tally.Day {
	return tally.DayOf(b.clock.Now(), b.location)
}

func (b *Bot) thisMonth() tally.Month {
	return tally.MonthOf(b.clock.Now(), b.location)
}

// source says where a building code was read from.
type source int

const (
	sourceText source = iota
	sourcePhoto
)

func (s source) String() string {
	if s == sourcePhoto {
		return "photo caption"
	}
	return "text message"
}

func acknowledgement(source source, counts tally.Counts) string {
	var builder strings.Builder
	builder.WriteString("**Ambulance call registered**\n\n")
	fmt.Fprintf(&builder, "- Source: %s\n", source)
	fmt.Fprintf(&builder, "- Building: **%s**\n", counts.Code)
	fmt.Fprintf(&builder, "- Date: %s\n", report.DayLabel(counts.Day))
	fmt.Fprintf(&builder, "- Calls from %s today: **%d**\n", counts.Code, counts.DailyCount)
	fmt.Fprintf(&builder, "- Calls from %s this month: %d\n", counts.Code, counts.MonthlyCount)
	fmt.Fprintf(&builder, "\n_Total calls today: %d_\n", counts.DailyTotal)
	return builder.String()
}

func guidanceText(source source) string {
	where := "the message"
	if source == sourcePhoto {
		where = "the photo caption"
	}
	return "Could not find a building code in " + where + ".\n" +
		"Name the building like this:\n" +
		"- UK1\n" +
		"- Call from UK3\n" +
		"- УК5\n" +
		"Valid building numbers are 1 to 14."
}

func plainMessage(text string) Message {
	return Message{Text: text}
}

// markdownMessage renders markdown to HTML for the rich body. If
// rendering fails the message goes out as plain text.
func markdownMessage(markdown string) Message {
	html, err := report.MarkdownToHTML(markdown)
	if err != nil {
		return Message{Text: markdown}
	}
	return Message{Text: markdown, HTML: html}
}
