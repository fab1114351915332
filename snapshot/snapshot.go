package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/crosscat/codec"
	"github.com/hupe1980/crosscat/component"
)

// Snapshot is the complete latent state of a view. Restoring it yields
// a view that is bit-for-bit equivalent for scoring and remains fully
// live for further inference.
type Snapshot struct {
	// Alpha is the CRP concentration.
	Alpha float64 `json:"alpha"`

	// Assignments maps rowid to cluster label.
	Assignments map[int]int `json:"assignments"`

	// Rows maps rowid to the row's values, aligned with Columns order.
	// Missing cells are encoded as null (NaN has no JSON literal).
	Rows map[int][]*float64 `json:"rows"`

	// Columns holds each column model's family, hypers and per-cluster
	// statistics in column order.
	Columns []component.ColumnState `json:"columns"`
}

// header layout:
//
//	magic       uint32
//	version     uint32
//	compression uint8
//	codecLen    uint8
//	codecName   [codecLen]byte
//	rawSize     uint32  (payload size before compression)
//	payloadLen  uint32
//	payload     [payloadLen]byte
//	checksum    uint32  (CRC32-IEEE over everything above)
const fixedHeaderSize = 4 + 4 + 1 + 1

// Options configure encoding. The zero value means codec.Default and no
// compression.
type Options struct {
	Codec       codec.Codec
	Compression CompressionType
}

// Encode serializes a snapshot into the self-describing envelope.
func Encode(s *Snapshot, opts Options) ([]byte, error) {
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}
	if len(c.Name()) > 255 {
		return nil, fmt.Errorf("snapshot: codec name %q too long", c.Name())
	}

	payload, err := c.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode payload: %w", err)
	}
	rawSize := uint32(len(payload))

	payload, compression, err := compress(payload, opts.Compression)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(fixedHeaderSize + len(c.Name()) + 8 + len(payload) + 4)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], MagicNumber)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], FormatVersion)
	buf.Write(u32[:])
	buf.WriteByte(byte(compression))
	buf.WriteByte(byte(len(c.Name())))
	buf.WriteString(c.Name())
	binary.LittleEndian.PutUint32(u32[:], rawSize)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(payload)))
	buf.Write(u32[:])
	buf.Write(payload)

	binary.LittleEndian.PutUint32(u32[:], crc32.ChecksumIEEE(buf.Bytes()))
	buf.Write(u32[:])
	return buf.Bytes(), nil
}

// Decode parses and verifies an envelope produced by Encode.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) < fixedHeaderSize+8+4 {
		return nil, ErrTruncated
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]
	want := binary.LittleEndian.Uint32(trailer)
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, &ChecksumMismatchError{Expected: want, Actual: got}
	}

	if binary.LittleEndian.Uint32(body[0:4]) != MagicNumber {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(body[4:8]) != FormatVersion {
		return nil, ErrInvalidVersion
	}
	compression := CompressionType(body[8])
	codecLen := int(body[9])
	if len(body) < fixedHeaderSize+codecLen+8 {
		return nil, ErrTruncated
	}
	codecName := string(body[fixedHeaderSize : fixedHeaderSize+codecLen])
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codecName)
	}

	off := fixedHeaderSize + codecLen
	rawSize := binary.LittleEndian.Uint32(body[off : off+4])
	payloadLen := binary.LittleEndian.Uint32(body[off+4 : off+8])
	off += 8
	if uint32(len(body)-off) != payloadLen {
		return nil, ErrTruncated
	}

	payload, err := decompress(body[off:], compression, rawSize)
	if err != nil {
		return nil, err
	}

	var s Snapshot
	if err := c.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("snapshot: decode payload: %w", err)
	}
	return &s, nil
}

// compress applies t to data. Incompressible input degrades to
// CompressionNone; the returned type is what the header must record.
func compress(data []byte, t CompressionType) ([]byte, CompressionType, error) {
	switch t {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 || n >= len(data) {
			return data, CompressionNone, nil
		}
		return out[:n], CompressionLZ4, nil
	case CompressionZSTD:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, 0, err
		}
		defer enc.Close()
		out := enc.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return data, CompressionNone, nil
		}
		return out, CompressionZSTD, nil
	default:
		return nil, 0, ErrUnknownCompression
	}
}

func decompress(data []byte, t CompressionType, rawSize uint32) ([]byte, error) {
	switch t {
	case CompressionNone:
		if uint32(len(data)) != rawSize {
			return nil, errors.New("snapshot: decompressed size mismatch")
		}
		return data, nil
	case CompressionLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != rawSize {
			return nil, errors.New("snapshot: decompressed size mismatch")
		}
		return out, nil
	case CompressionZSTD:
		return decompressZSTD(data, rawSize)
	default:
		return nil, ErrUnknownCompression
	}
}

func decompressZSTD(data []byte, rawSize uint32) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, make([]byte, 0, rawSize))
	if err != nil {
		return nil, err
	}
	if uint32(len(out)) != rawSize {
		return nil, errors.New("snapshot: decompressed size mismatch")
	}
	return out, nil
}
