// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"time"
)

// ErrChatGone is returned (wrapped) by Transport.Send when the
// destination will never accept messages again. The chat is evicted
// from the registry.
var ErrChatGone = errors.New("bot: chat is gone")

// Message is an outbound chat message.
type Message struct {
	// Text is the plain body. Always set.
	Text string

	// HTML is the rich rendering of Text. Empty means plain only.
	HTML string

	// ReplyTo is the event the message answers, if any.
	ReplyTo string

	// Key makes the send idempotent: a transport that supports it
	// delivers at most one message per (chat, Key). Empty means every
	// send is distinct.
	Key string
}

// Transport delivers messages to chats.
type Transport interface {
	Send(ctx context.Context, chatID string, message Message) error
}

// ChatType distinguishes one-to-one chats from group chats.
type ChatType int

const (
	ChatPrivate ChatType = iota
	ChatGroup
)

func (t ChatType) String() string {
	if t == ChatGroup {
		return "group"
	}
	return "private"
}

// Inbound is one message received from a chat.
type Inbound struct {
	ChatID   string
	ChatType ChatType
	Sender   string
	EventID  string
	Time     time.Time

	// Text is the body of a text message.
	Text string

	// Photo is set for image messages; Caption is the image caption,
	// empty when the image has none.
	Photo   bool
	Caption string
}

// Handler consumes inbound messages. Transports call Handle for one
// message at a time, in arrival order.
type Handler interface {
	Handle(ctx context.Context, message Inbound)
}
