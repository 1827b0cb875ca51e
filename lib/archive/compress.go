// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an archive body is compressed. Values are
// stored in the archive header byte and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("archive: unknown compression %q (want none, lz4 or zstd)", name)
	}
}

// errIncompressible means the compressed form is not smaller than the
// input. The writer falls back to CompressionNone.
var errIncompressible = errors.New("data is incompressible")

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", compression)
	}
}

func decompress(compressed []byte, compression Compression, size int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(compressed) != size {
			return nil, fmt.Errorf("uncompressed body is %d bytes, header says %d", len(compressed), size)
		}
		return compressed, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, header says %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		destination, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(destination) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, header says %d", len(destination), size)
		}
		return destination, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", compression)
	}
}
