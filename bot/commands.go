// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bureau-foundation/calltally/lib/building"
)

type command struct {
	// order fixes the position in /help; zero hides the command.
	order   int
	summary string
	run     func(ctx context.Context, logger *slog.Logger, message Inbound) error
}

func (b *Bot) commandTable() map[string]command {
	return map[string]command{
		"/start":          {run: b.commandHelp},
		"/help":           {run: b.commandHelp},
		"/daily_report":   {order: 1, summary: "today's summary", run: b.commandDailyReport},
		"/monthly_report": {order: 2, summary: "this month's summary", run: b.commandMonthlyReport},
		"/test_report":    {order: 3, summary: "today's summary, then reset today's counters", run: b.commandTestReport},
		"/add_test_data":  {order: 4, summary: "add test calls (UK1 x3, UK5 x2, UK10 x1)", run: b.commandAddTestData},
	}
}

// commandName extracts "/name" from a command message. A "@bot" suffix
// on the name is dropped.
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	return name
}

func (b *Bot) handleCommand(ctx context.Context, logger *slog.Logger, message Inbound, text string) {
	name := commandName(text)
	logger = logger.With("command", name)

	cmd, ok := b.commands[name]
	if !ok {
		logger.Info("unknown command")
		b.reply(ctx, logger, message, "unknown-command",
			plainMessage(fmt.Sprintf("Unknown command %s. Send /help for the list of commands.", name)))
		return
	}

	logger.Info("running command")
	if err := cmd.run(ctx, logger, message); err != nil {
		logger.Error("command failed", "error", err)
		b.reply(ctx, logger, message, "command-failed",
			plainMessage(fmt.Sprintf("Command %s failed. Please try again later.", name)))
	}
}

func (b *Bot) commandHelp(ctx context.Context, logger *slog.Logger, message Inbound) error {
	b.reply(ctx, logger, message, "help", markdownMessage(b.helpText()))
	return nil
}

func (b *Bot) commandDailyReport(ctx context.Context, logger *slog.Logger, message Inbound) error {
	rendered, err := b.reports.RenderDaily(ctx, b.today())
	if err != nil {
		return err
	}
	b.reply(ctx, logger, message, "daily-report", Message{Text: rendered.Text, HTML: rendered.HTML})
	return nil
}

func (b *Bot) commandMonthlyReport(ctx context.Context, logger *slog.Logger, message Inbound) error {
	rendered, err := b.reports.RenderMonthly(ctx, b.thisMonth())
	if err != nil {
		return err
	}
	b.reply(ctx, logger, message, "monthly-report", Message{Text: rendered.Text, HTML: rendered.HTML})
	return nil
}

// commandTestReport shows today's report and then clears today's
// counters, the same as the scheduled daily job but for one chat.
func (b *Bot) commandTestReport(ctx context.Context, logger *slog.Logger, message Inbound) error {
	day := b.today()
	rendered, err := b.reports.RenderDaily(ctx, day)
	if err != nil {
		return err
	}
	b.reply(ctx, logger, message, "test-report", Message{Text: rendered.Text, HTML: rendered.HTML})

	if err := b.store.ResetDaily(ctx, day); err != nil {
		return err
	}
	logger.Info("daily counters reset by test report", "day", day.String())
	b.reply(ctx, logger, message, "test-report-reset",
		plainMessage("Today's counters were reset after the test report."))
	return nil
}

// testCalls is the fixed data set added by /add_test_data.
var testCalls = []struct {
	code  building.Code
	calls int
}{
	{1, 3},
	{5, 2},
	{10, 1},
}

func (b *Bot) commandAddTestData(ctx context.Context, logger *slog.Logger, message Inbound) error {
	now := b.clock.Now()
	var builder strings.Builder
	builder.WriteString("**Test data added:**\n\n")
	for _, entry := range testCalls {
		for range entry.calls {
			if _, err := b.store.Increment(ctx, entry.code, now); err != nil {
				return err
			}
		}
		fmt.Fprintf(&builder, "- %s: %d call(s)\n", entry.code, entry.calls)
	}
	builder.WriteString("\nUse /test_report to see the summary and reset today's counters.\n")

	logger.Info("test data added")
	b.reply(ctx, logger, message, "test-data", markdownMessage(builder.String()))
	return nil
}

func (b *Bot) helpText() string {
	var builder strings.Builder
	builder.WriteString("**Ambulance call logging bot**\n\n")
	builder.WriteString(callInstructions)
	if b.scheduleNote != "" {
		builder.WriteString("\n")
		builder.WriteString(b.scheduleNote)
		builder.WriteString("\n")
	}
	builder.WriteString("\n**Commands:**\n\n")
	for _, name := range b.visibleCommands() {
		fmt.Fprintf(&builder, "- %s: %s\n", name, b.commands[name].summary)
	}
	return builder.String()
}

func (b *Bot) welcomeText() string {
	var builder strings.Builder
	builder.WriteString("**This chat is registered for call reports.**\n\n")
	if b.scheduleNote != "" {
		builder.WriteString(b.scheduleNote)
		builder.WriteString("\n\n")
	}
	builder.WriteString(callInstructions)
	builder.WriteString("\nSend /help for the list of commands.\n")
	return builder.String()
}

const callInstructions = "To register a call, send:\n\n" +
	"- a text message such as \"UK1\" or \"Call from UK3\"\n" +
	"- or a photo with a caption such as \"UK5\"\n"

func (b *Bot) visibleCommands() []string {
	commands := b.commands
	names := make([]string, 0, len(commands))
	for name, cmd := range commands {
		if cmd.order > 0 {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Compare(commands[a].order, commands[b].order)
	})
	return names
}
