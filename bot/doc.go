// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot is the chat-facing side of calltally.
//
// [Bot] handles inbound messages one at a time: it registers group chats
// for broadcasts, dispatches slash commands, extracts a building code
// from text or a photo caption, records the call in the counter store
// and acknowledges the sender. Every inbound message is handled under a
// recover, so a single bad message is answered with a generic failure
// notice and never stops the loop.
//
// Bot also implements the scheduler's jobs. A report is broadcast to
// every registered chat concurrently, each send bounded by its own
// timeout. Chats the transport reports as gone are evicted from the
// registry. The daily counters of a day are reset only when at least
// one chat received that day's report.
//
// [Transport] is the boundary to the chat network. [MatrixTransport]
// implements it on a Matrix homeserver and also runs the /sync loop
// that feeds [Inbound] messages to the bot.
package bot
