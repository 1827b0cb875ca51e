// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive exports and imports every counter row of a
// [tally.Archiver] as a single compressed file.
//
// Layout:
//
//	offset  size  field
//	0       4     magic "CTLA"
//	4       1     format version (1)
//	5       1     compression (see [Compression])
//	6       4     uncompressed body length, little endian
//	10      32    BLAKE3 digest of the uncompressed body
//	42      ...   compressed body
//
// The body is the CBOR encoding of [Archive]. The digest catches
// truncated or corrupted files before anything is restored.
package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/calltally/lib/codec"
	"github.com/bureau-foundation/calltally/lib/tally"
)

const (
	magic         = "CTLA"
	formatVersion = 1
	headerSize    = 4 + 1 + 1 + 4 + 32

	// maxBodySize bounds the allocation made from an untrusted header.
	maxBodySize = 256 << 20
)

// Header describes an archive's contents.
type Header struct {
	CreatedAt time.Time `cbor:"created_at"`
	Location  string    `cbor:"location,omitempty"`
	Records   int       `cbor:"records"`
}

// Archive is the decoded body of an archive file.
type Archive struct {
	Header  Header         `cbor:"header"`
	Records []tally.Record `cbor:"records"`
}

// Write encodes archive to w. When the body does not shrink under the
// requested compression it is stored uncompressed; the compression
// actually used is returned.
func Write(w io.Writer, archive Archive, compression Compression) (Compression, error) {
	archive.Header.Records = len(archive.Records)
	body, err := codec.Marshal(archive)
	if err != nil {
		return 0, fmt.Errorf("archive: encoding body: %w", err)
	}
	if len(body) > maxBodySize {
		return 0, fmt.Errorf("archive: body is %d bytes, limit is %d", len(body), maxBodySize)
	}

	compressed, err := compress(body, compression)
	if errors.Is(err, errIncompressible) {
		compression = CompressionNone
		compressed = body
	} else if err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}

	header := make([]byte, headerSize)
	copy(header, magic)
	header[4] = formatVersion
	header[5] = byte(compression)
	binary.LittleEndian.PutUint32(header[6:10], uint32(len(body)))
	digest := blake3.Sum256(body)
	copy(header[10:], digest[:])

	if _, err := w.Write(header); err != nil {
		return 0, fmt.Errorf("archive: writing header: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return 0, fmt.Errorf("archive: writing body: %w", err)
	}
	return compression, nil
}

// Read decodes an archive from r and verifies its digest.
func Read(r io.Reader) (Archive, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Archive{}, fmt.Errorf("archive: reading header: %w", err)
	}
	if string(header[:4]) != magic {
		return Archive{}, fmt.Errorf("archive: not a calltally archive (magic %q)", header[:4])
	}
	if header[4] != formatVersion {
		return Archive{}, fmt.Errorf("archive: unsupported format version %d", header[4])
	}
	compression := Compression(header[5])
	size := binary.LittleEndian.Uint32(header[6:10])
	if size > maxBodySize || uint64(size) > math.MaxInt {
		return Archive{}, fmt.Errorf("archive: body length %d exceeds limit", size)
	}

	compressed, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return Archive{}, fmt.Errorf("archive: reading body: %w", err)
	}
	body, err := decompress(compressed, compression, int(size))
	if err != nil {
		return Archive{}, fmt.Errorf("archive: %w", err)
	}
	digest := blake3.Sum256(body)
	if !bytes.Equal(digest[:], header[10:]) {
		return Archive{}, fmt.Errorf("archive: body digest mismatch (file is corrupt)")
	}

	var archive Archive
	if err := codec.Unmarshal(body, &archive); err != nil {
		return Archive{}, fmt.Errorf("archive: decoding body: %w", err)
	}
	if archive.Header.Records != len(archive.Records) {
		return Archive{}, fmt.Errorf("archive: header lists %d records, body has %d",
			archive.Header.Records, len(archive.Records))
	}
	return archive, nil
}

// ExportOptions controls Export.
type ExportOptions struct {
	Compression Compression
	Now         time.Time
	Location    string
}

// Export writes every row of source to w. It returns the header that
// was written and the compression used.
func Export(ctx context.Context, w io.Writer, source tally.Archiver, options ExportOptions) (Header, Compression, error) {
	records, err := source.Records(ctx)
	if err != nil {
		return Header{}, 0, fmt.Errorf("archive: listing counters: %w", err)
	}
	archive := Archive{
		Header: Header{
			CreatedAt: options.Now.UTC(),
			Location:  options.Location,
		},
		Records: records,
	}
	used, err := Write(w, archive, options.Compression)
	if err != nil {
		return Header{}, 0, err
	}
	archive.Header.Records = len(records)
	return archive.Header, used, nil
}

// Import reads an archive from r and restores it into target. Nothing
// is written when the archive is corrupt or any record is invalid.
func Import(ctx context.Context, r io.Reader, target tally.Archiver) (Header, error) {
	archive, err := Read(r)
	if err != nil {
		return Header{}, err
	}
	if err := target.Restore(ctx, archive.Records); err != nil {
		return Header{}, fmt.Errorf("archive: restoring counters: %w", err)
	}
	return archive.Header, nil
}
