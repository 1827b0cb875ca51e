// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/calltally/lib/building"
	"github.com/bureau-foundation/calltally/lib/tally"
)

var moscow = time.FixedZone("MSK", 3*60*60)

func populatedStore(t *testing.T) *tally.MemoryStore {
	t.Helper()
	store := tally.NewMemoryStore(moscow)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, moscow)
	for _, code := range []building.Code{1, 1, 1, 5, 5, 10} {
		if _, err := store.Increment(ctx, code, now); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if _, err := store.Increment(ctx, 14, now.AddDate(0, 0, -9)); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	return store
}

func TestExportImportRoundtrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			ctx := context.Background()
			source := populatedStore(t)
			want, err := source.Records(ctx)
			if err != nil {
				t.Fatal(err)
			}

			var buffer bytes.Buffer
			exportedAt := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
			header, _, err := Export(ctx, &buffer, source, ExportOptions{
				Compression: compression,
				Now:         exportedAt,
				Location:    "Europe/Moscow",
			})
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if header.Records != len(want) {
				t.Errorf("header Records = %d, want %d", header.Records, len(want))
			}

			target := tally.NewMemoryStore(moscow)
			imported, err := Import(ctx, &buffer, target)
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			if !imported.CreatedAt.Equal(exportedAt) || imported.Location != "Europe/Moscow" {
				t.Errorf("imported header = %+v", imported)
			}

			got, err := target.Records(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(want) {
				t.Fatalf("restored %d records, want %d", len(got), len(want))
			}
			for index := range want {
				if got[index] != want[index] {
					t.Errorf("record %d = %+v, want %+v", index, got[index], want[index])
				}
			}

			snapshot, err := target.DailySnapshot(ctx, tally.Day{Year: 2026, Month: time.March, Day: 10})
			if err != nil {
				t.Fatal(err)
			}
			if snapshot.Total() != 6 {
				t.Errorf("restored daily total = %d, want 6", snapshot.Total())
			}
		})
	}
}

func TestWriteFallsBackWhenIncompressible(t *testing.T) {
	var buffer bytes.Buffer
	used, err := Write(&buffer, Archive{Header: Header{CreatedAt: time.Unix(0, 0)}}, CompressionLZ4)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if used != CompressionNone {
		t.Errorf("compression used = %s, want none for a tiny body", used)
	}
	if _, err := Read(&buffer); err != nil {
		t.Errorf("Read: %v", err)
	}
}

func TestReadRejectsCorruption(t *testing.T) {
	ctx := context.Background()
	var buffer bytes.Buffer
	if _, _, err := Export(ctx, &buffer, populatedStore(t), ExportOptions{Compression: CompressionNone}); err != nil {
		t.Fatal(err)
	}
	valid := buffer.Bytes()

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr string
	}{
		{"bad_magic", func(data []byte) []byte { data[0] = 'X'; return data }, "not a calltally archive"},
		{"bad_version", func(data []byte) []byte { data[4] = 9; return data }, "format version"},
		{"flipped_body_byte", func(data []byte) []byte { data[len(data)-1] ^= 0xff; return data }, "digest mismatch"},
		{"truncated_header", func(data []byte) []byte { return data[:10] }, "reading header"},
		{"truncated_body", func(data []byte) []byte { return data[:len(data)-3] }, "header says"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := test.mutate(bytes.Clone(valid))
			target := tally.NewMemoryStore(moscow)
			_, err := Import(ctx, bytes.NewReader(data), target)
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("Import error = %v, want containing %q", err, test.wantErr)
			}
			records, _ := target.Records(ctx)
			if len(records) != 0 {
				t.Errorf("corrupt import wrote %d records", len(records))
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompression(compression.String())
		if err != nil || parsed != compression {
			t.Errorf("ParseCompression(%q) = %v, %v", compression, parsed, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
}
