// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/calltally/lib/tally"
)

// Generator reads snapshots from a store and renders them.
type Generator struct {
	Store tally.Store
}

// Daily loads and builds the report for day.
func (g *Generator) Daily(ctx context.Context, day tally.Day) (Report, error) {
	snapshot, err := g.Store.DailySnapshot(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("report: daily %s: %w", day, err)
	}
	return Daily(day, snapshot), nil
}

// Monthly loads and builds the report for month.
func (g *Generator) Monthly(ctx context.Context, month tally.Month) (Report, error) {
	snapshot, err := g.Store.MonthlySnapshot(ctx, month)
	if err != nil {
		return Report{}, fmt.Errorf("report: monthly %s: %w", month, err)
	}
	return Monthly(month, snapshot), nil
}

// RenderDaily loads the day's snapshot and renders it for sending.
func (g *Generator) RenderDaily(ctx context.Context, day tally.Day) (Rendered, error) {
	report, err := g.Daily(ctx, day)
	if err != nil {
		return Rendered{}, err
	}
	return report.Render()
}

// RenderMonthly loads the month's snapshot and renders it for sending.
func (g *Generator) RenderMonthly(ctx context.Context, month tally.Month) (Rendered, error) {
	report, err := g.Monthly(ctx, month)
	if err != nil {
		return Rendered{}, err
	}
	return report.Render()
}
