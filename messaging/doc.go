// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is a small Matrix client-server API client.
//
// It covers what a chat bot needs: validating an access token,
// long-polling /sync, joining rooms it is invited to, counting room
// members and sending text or HTML messages. Endpoints outside that set
// are deliberately absent.
//
// A [Client] holds the homeserver URL and HTTP transport. A
// [DirectSession] adds an access token held in a [credential.Token]
// and owns it: closing the session zeroes the token.
//
// Sends use PUT with a transaction ID. [DirectSession.SendMessageOnce]
// derives the ID from a caller-chosen key with BLAKE3, so a retry of the
// same logical send (for example the daily report of a given day after a
// restart) is deduplicated by the homeserver instead of posting twice.
//
// Errors from the homeserver come back as *[MatrixError]. [IsRoomGone]
// recognizes the responses that mean the bot can no longer post to a
// room at all.
package messaging
