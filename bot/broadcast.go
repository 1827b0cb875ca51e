// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bureau-foundation/calltally/lib/report"
	"github.com/bureau-foundation/calltally/lib/tally"
)

// BroadcastResult lists what happened to each registered chat.
type BroadcastResult struct {
	Delivered []string
	Failed    []string

	// Evicted chats are a subset of Failed: the transport reported
	// them gone and they were removed from the registry.
	Evicted []string
}

// Broadcast sends message to every registered chat. Sends run
// concurrently, each bounded by the send timeout, so one slow or broken
// chat never delays the others. Gone chats are evicted once all sends
// have finished.
func (b *Bot) Broadcast(ctx context.Context, message Message) BroadcastResult {
	chats := b.registry.List()

	var (
		mu     sync.Mutex
		result BroadcastResult
		gone   []string
		wait   sync.WaitGroup
	)
	for _, chatID := range chats {
		wait.Add(1)
		go func() {
			defer wait.Done()
			sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
			defer cancel()
			err := b.transport.Send(sendCtx, chatID, message)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Delivered = append(result.Delivered, chatID)
			case errors.Is(err, ErrChatGone):
				b.logger.Warn("broadcast failed, chat is gone", "chat_id", chatID, "error", err)
				result.Failed = append(result.Failed, chatID)
				gone = append(gone, chatID)
			default:
				b.logger.Error("broadcast failed", "chat_id", chatID, "error", err)
				result.Failed = append(result.Failed, chatID)
			}
		}()
	}
	wait.Wait()

	for _, chatID := range gone {
		b.evict(b.logger, chatID)
		if !b.registry.Contains(chatID) {
			result.Evicted = append(result.Evicted, chatID)
		}
	}
	return result
}

// DailyReport broadcasts the report for day and then resets that day's
// counters, but only if at least one chat received it. Otherwise the
// counters stay for the next attempt.
func (b *Bot) DailyReport(ctx context.Context, day tally.Day) error {
	rendered, err := b.reports.RenderDaily(ctx, day)
	if err != nil {
		return err
	}
	result := b.broadcast(ctx, b.dailyReportKey(day), rendered)
	b.logger.Info("daily report broadcast",
		"day", day.String(),
		"delivered", len(result.Delivered),
		"failed", len(result.Failed),
		"evicted", len(result.Evicted),
	)
	if len(result.Delivered) == 0 {
		return fmt.Errorf("bot: daily report for %s reached no chat (%d failed); counters kept", day, len(result.Failed))
	}

	if err := b.store.ResetDaily(ctx, day); err != nil {
		return fmt.Errorf("bot: resetting daily counters for %s: %w", day, err)
	}
	b.logger.Info("daily counters reset", "day", day.String())
	return nil
}

// MonthlyReport broadcasts the report for month. Monthly counters are
// never reset.
func (b *Bot) MonthlyReport(ctx context.Context, month tally.Month) error {
	rendered, err := b.reports.RenderMonthly(ctx, month)
	if err != nil {
		return err
	}
	result := b.broadcast(ctx, "monthly-report/"+month.String(), rendered)
	b.logger.Info("monthly report broadcast",
		"month", month.String(),
		"delivered", len(result.Delivered),
		"failed", len(result.Failed),
		"evicted", len(result.Evicted),
	)
	if len(result.Delivered) == 0 {
		return fmt.Errorf("bot: monthly report for %s reached no chat (%d failed)", month, len(result.Failed))
	}
	return nil
}

// dailyReportKey is unique per call. The daily cron may match more than
// once a day, and a repeated transaction ID would be acknowledged by the
// homeserver without posting, after which ResetDaily would drop calls
// nobody saw.
func (b *Bot) dailyReportKey(day tally.Day) string {
	return fmt.Sprintf("daily-report/%s/%d.%d", day, b.clock.Now().UnixMilli(), b.reportSeq.Add(1))
}

func (b *Bot) broadcast(ctx context.Context, key string, rendered report.Rendered) BroadcastResult {
	return b.Broadcast(ctx, Message{Text: rendered.Text, HTML: rendered.HTML, Key: key})
}
