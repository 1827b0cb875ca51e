// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/calltally/lib/credential"
)

// DirectSession is a Matrix session holding an access token in a
// credential.Token. Close it when done to wipe the token.
type DirectSession struct {
	client      *Client
	accessToken *credential.Token
	userID      string

	// transactionCounter keeps unkeyed transaction IDs unique within
	// one process.
	transactionCounter atomic.Int64
}

// UserID is the session's Matrix user, "@calltally:example.org".
func (s *DirectSession) UserID() string {
	return s.userID
}

// CloseIdleConnections forwards to Client.CloseIdleConnections.
func (s *DirectSession) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// Close releases the access token memory. Idempotent.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI returns the user the access token belongs to.
func (s *DirectSession) WhoAmI(ctx context.Context) (string, error) {
	var response WhoAmIResponse
	if err := s.call(ctx, http.MethodGet, clientAPI+"/account/whoami", nil, nil, &response); err != nil {
		return "", fmt.Errorf("messaging: whoami: %w", err)
	}
	if response.UserID == "" {
		return "", fmt.Errorf("messaging: whoami response has no user_id")
	}
	return response.UserID, nil
}

// JoinRoom accepts an invite to roomID, or joins a public room, and
// returns the joined room's ID.
func (s *DirectSession) JoinRoom(ctx context.Context, roomID string) (string, error) {
	var response JoinRoomResponse
	if err := s.call(ctx, http.MethodPost, clientAPI+"/join/"+url.PathEscape(roomID), nil, struct{}{}, &response); err != nil {
		return "", fmt.Errorf("messaging: joining %s: %w", roomID, err)
	}
	return response.RoomID, nil
}

// JoinedMembers returns the room's joined members keyed by user ID.
func (s *DirectSession) JoinedMembers(ctx context.Context, roomID string) (map[string]JoinedMember, error) {
	var response JoinedMembersResponse
	if err := s.call(ctx, http.MethodGet, roomPath(roomID, "joined_members"), nil, nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: members of %s: %w", roomID, err)
	}
	return response.Joined, nil
}

// SendMessage posts an m.room.message under a fresh transaction ID and
// returns the event ID.
func (s *DirectSession) SendMessage(ctx context.Context, roomID string, content MessageContent) (string, error) {
	return s.send(ctx, roomID, EventTypeMessage, s.nextTransactionID(), content)
}

// SendMessageOnce posts an m.room.message under a transaction ID
// derived from key. While the homeserver remembers the transaction, a
// repeat with the same room and key returns the first event instead of
// posting again. An empty key behaves like SendMessage.
func (s *DirectSession) SendMessageOnce(ctx context.Context, roomID, key string, content MessageContent) (string, error) {
	if key == "" {
		return s.SendMessage(ctx, roomID, content)
	}
	return s.send(ctx, roomID, EventTypeMessage, TransactionID(s.userID, roomID, key), content)
}

func (s *DirectSession) send(ctx context.Context, roomID, eventType, transactionID string, content any) (string, error) {
	var response SendEventResponse
	path := roomPath(roomID, "send", eventType, transactionID)
	if err := s.call(ctx, http.MethodPut, path, nil, content, &response); err != nil {
		return "", fmt.Errorf("messaging: sending to %s: %w", roomID, err)
	}
	return response.EventID, nil
}

// Sync fetches the next batch of events. An empty options.Since asks
// for the current state; SetTimeout turns the call into a long-poll of
// options.Timeout milliseconds.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	var response SyncResponse
	if err := s.call(ctx, http.MethodGet, clientAPI+"/sync", query, nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: sync: %w", err)
	}
	return &response, nil
}

// RoomMessages fetches one page of roomID's history.
func (s *DirectSession) RoomMessages(ctx context.Context, roomID string, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	if options.From == "" {
		return nil, fmt.Errorf("messaging: room messages for %s: From is required", roomID)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b"
	}
	query := url.Values{}
	query.Set("from", options.From)
	query.Set("dir", direction)
	if options.To != "" {
		query.Set("to", options.To)
	}
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	var response RoomMessagesResponse
	if err := s.call(ctx, http.MethodGet, roomPath(roomID, "messages"), query, nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: room messages for %s: %w", roomID, err)
	}
	return &response, nil
}

func (s *DirectSession) call(ctx context.Context, method, path string, query url.Values, body, result any) error {
	return s.client.do(ctx, apiCall{
		method: method,
		path:   path,
		query:  query,
		body:   body,
		token:  s.accessToken,
	}, result)
}

// TransactionID derives a stable transaction ID for a keyed send. The
// sender and room are hashed in so that the same key in two rooms gives
// two transactions.
func TransactionID(userID, roomID, key string) string {
	digest := blake3.Sum256([]byte(userID + "\x00" + roomID + "\x00" + key))
	return "calltally-" + hex.EncodeToString(digest[:16])
}

// nextTransactionID is "calltally-<unix ms>-<counter>", unique across
// restarts as long as the clock does not go backwards.
func (s *DirectSession) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("calltally-%d-%d", time.Now().UnixMilli(), counter)
}
