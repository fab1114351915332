package snapshot

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies snapshot files (ASCII: "CCVW").
	MagicNumber = 0x43435657
	// FormatVersion is the current file format version (v1.0.0).
	FormatVersion = 0x00010000
)

// CompressionType defines the compression applied to the payload.
type CompressionType uint8

const (
	// CompressionNone stores the payload uncompressed.
	CompressionNone CompressionType = 0
	// CompressionLZ4 is fast block compression for hot checkpoints.
	CompressionLZ4 CompressionType = 1
	// CompressionZSTD trades speed for ratio, good for archived state.
	CompressionZSTD CompressionType = 2
)

var (
	ErrInvalidMagic       = errors.New("snapshot: invalid magic number")
	ErrInvalidVersion     = errors.New("snapshot: unsupported format version")
	ErrUnknownCodec       = errors.New("snapshot: unknown codec")
	ErrUnknownCompression = errors.New("snapshot: unknown compression type")
	ErrTruncated          = errors.New("snapshot: truncated file")
)

// ChecksumMismatchError is returned when checksum verification fails.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("snapshot: checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// IsChecksumMismatch returns true if err is a checksum mismatch error.
func IsChecksumMismatch(err error) bool {
	var cm *ChecksumMismatchError
	return errors.As(err, &cm)
}
