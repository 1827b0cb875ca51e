// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"
)

// Event types and message types the bot reads or writes.
const (
	EventTypeMessage = "m.room.message"
	EventTypeMember  = "m.room.member"

	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeImage  = "m.image"

	// FormatHTML is the only format Matrix defines for
	// formatted_body.
	FormatHTML = "org.matrix.custom.html"
)

// ServerVersionsResponse is the response from GET /_matrix/client/versions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

// WhoAmIResponse is the response from GET /account/whoami.
type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`

	// Format and FormattedBody carry the HTML rendering.
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`

	// FileName and URL are set on media messages. When FileName is
	// present and differs from Body, Body is a caption.
	FileName string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`

	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// RelatesTo links a message to another event.
type RelatesTo struct {
	InReplyTo *InReplyTo `json:"m.in_reply_to,omitempty"`
}

// InReplyTo names the event a reply answers.
type InReplyTo struct {
	EventID string `json:"event_id"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// NewHTMLMessage creates a message with a plain fallback body and an
// HTML formatted body.
func NewHTMLMessage(body, html string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body, Format: FormatHTML, FormattedBody: html}
}

// ReplyTo returns a copy of content marked as a reply to eventID.
func (c MessageContent) ReplyTo(eventID string) MessageContent {
	if eventID != "" {
		c.RelatesTo = &RelatesTo{InReplyTo: &InReplyTo{EventID: eventID}}
	}
	return c
}

// Caption returns the caption of a media message: the body when a
// distinct filename is present. Older clients put the filename in body
// and have no caption.
func (c MessageContent) Caption() string {
	if c.FileName != "" && c.FileName != c.Body {
		return c.Body
	}
	return ""
}

// IsMedia reports whether the message carries an image.
func (c MessageContent) IsMedia() bool {
	return c.MsgType == MsgTypeImage
}

// Event is a Matrix room event as delivered by /sync.
type Event struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type"`
	Sender         string          `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	StateKey       *string         `json:"state_key,omitempty"`
	Content        json.RawMessage `json:"content"`
	Unsigned       *EventUnsigned  `json:"unsigned,omitempty"`
}

// EventUnsigned holds server-added event metadata.
type EventUnsigned struct {
	TransactionID string `json:"transaction_id,omitempty"`
}

// MessageContent decodes the event content as an m.room.message.
func (e Event) MessageContent() (MessageContent, error) {
	if e.Type != EventTypeMessage {
		return MessageContent{}, fmt.Errorf("messaging: event %s is %s, not %s", e.EventID, e.Type, EventTypeMessage)
	}
	var content MessageContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return MessageContent{}, fmt.Errorf("messaging: decoding content of %s: %w", e.EventID, err)
	}
	return content, nil
}

// SyncOptions configures a /sync request.
type SyncOptions struct {
	// Since is the next_batch token from the previous sync. Empty for
	// an initial sync.
	Since string

	// Timeout is the long-poll wait in milliseconds. Sent only when
	// SetTimeout is true so that zero can mean "return immediately".
	Timeout    int
	SetTimeout bool

	// Filter is a filter ID or an inline JSON filter.
	Filter string
}

// RoomMessagesOptions pages through a room's history.
type RoomMessagesOptions struct {
	// From is a prev_batch or end token. Required.
	From string

	// To stops pagination at this token, typically the since token of
	// the sync that found the gap.
	To string

	// Direction is "b" (older first) or "f". Defaults to "b".
	Direction string

	// Limit caps events per page; zero uses the server default.
	Limit int

	// Filter is an inline RoomEventFilter.
	Filter string
}

// RoomMessagesResponse is one page of /messages. End is empty when
// there are no more events in the requested direction.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end,omitempty"`
	Chunk []Event `json:"chunk"`
}

// SyncResponse is the subset of the /sync response the bot reads.
type SyncResponse struct {
	NextBatch string    `json:"next_batch"`
	Rooms     SyncRooms `json:"rooms"`
}

// SyncRooms groups rooms by the session's membership.
type SyncRooms struct {
	Join   map[string]JoinedRoom  `json:"join,omitempty"`
	Invite map[string]InvitedRoom `json:"invite,omitempty"`
	Leave  map[string]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom is a room the session is joined to.
type JoinedRoom struct {
	Summary  RoomSummary `json:"summary"`
	State    StateBlock  `json:"state"`
	Timeline Timeline    `json:"timeline"`
}

// RoomSummary is the lazy-loading summary of a joined room. Counts are
// only present when they changed since the last sync.
type RoomSummary struct {
	Heroes             []string `json:"m.heroes,omitempty"`
	JoinedMemberCount  *int     `json:"m.joined_member_count,omitempty"`
	InvitedMemberCount *int     `json:"m.invited_member_count,omitempty"`
}

// InvitedRoom is a room the session has been invited to.
type InvitedRoom struct {
	InviteState StateBlock `json:"invite_state"`
}

// LeftRoom is a room the session left or was removed from.
type LeftRoom struct {
	Timeline Timeline `json:"timeline"`
}

// StateBlock is a list of state events.
type StateBlock struct {
	Events []Event `json:"events"`
}

// Timeline is the room's recent event list.
type Timeline struct {
	Events    []Event `json:"events"`
	Limited   bool    `json:"limited,omitempty"`
	PrevBatch string  `json:"prev_batch,omitempty"`
}

// JoinedMembersResponse is the response from GET /rooms/{roomId}/joined_members.
type JoinedMembersResponse struct {
	Joined map[string]JoinedMember `json:"joined"`
}

// JoinedMember is one joined member's profile.
type JoinedMember struct {
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// SendEventResponse is the response from PUT /rooms/{roomId}/send.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// JoinRoomResponse is the response from POST /join/{roomIdOrAlias}.
type JoinRoomResponse struct {
	RoomID string `json:"room_id"`
}
