package snapshot

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crosscat/blobstore"
	"github.com/hupe1980/crosscat/codec"
	"github.com/hupe1980/crosscat/component"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Alpha:       1.5,
		Assignments: map[int]int{0: 0, 1: 0, 7: 1},
		Rows: map[int][]*float64{
			0: PackRow([]float64{1, 0.25}),
			1: PackRow([]float64{0, math.NaN()}),
			7: PackRow([]float64{1, -3.5}),
		},
		Columns: []component.ColumnState{
			{
				ID:     0,
				Family: component.TagBernoulli,
				Hypers: map[string]float64{"alpha": 1, "beta": 2},
				Clusters: []component.ClusterState{
					{N: 2, Stats: map[string]float64{"ones": 2}},
					{N: 1, Stats: map[string]float64{"ones": 1}},
				},
			},
			{
				ID:     3,
				Family: component.TagNormal,
				Hypers: map[string]float64{"m": 0, "r": 1, "s": 1, "nu": 1},
				Clusters: []component.ClusterState{
					{N: 1, Stats: map[string]float64{"sum": 0.25, "sumsq": 0.0625}},
					{N: 1, Stats: map[string]float64{"sum": -3.5, "sumsq": 12.25}},
				},
				Missing: []uint32{1},
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Options
	}{
		{"default", Options{}},
		{"json", Options{Codec: codec.JSON{}}},
		{"lz4", Options{Compression: CompressionLZ4}},
		{"zstd", Options{Compression: CompressionZSTD}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			want := sampleSnapshot()
			data, err := Encode(want, tc.opts)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	data, err := Encode(sampleSnapshot(), Options{})
	require.NoError(t, err)

	t.Run("flipped byte", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[len(bad)/2] ^= 0xff
		_, err := Decode(bad)
		require.Error(t, err)
		assert.True(t, IsChecksumMismatch(err))
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Decode(data[:8])
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("wrong magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] ^= 0xff
		_, err := Decode(bad)
		// Checksum catches it first; either error is acceptable.
		assert.Error(t, err)
	})
}

func TestDecodeRejectsUnknownCodec(t *testing.T) {
	// Craft a valid envelope, then swap the codec name and re-checksum.
	data, err := Encode(sampleSnapshot(), Options{Codec: codec.JSON{}})
	require.NoError(t, err)
	require.Equal(t, byte(4), data[9]) // len("json")

	idx := strings.Index(string(data), "json")
	require.GreaterOrEqual(t, idx, 0)
	copy(data[idx:], "spam")

	// Recompute the trailer so only the codec check can fail.
	fixed := refreshChecksum(data)
	_, err = Decode(fixed)
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	want := sampleSnapshot()

	require.NoError(t, Save(ctx, store, "views/snap-001", want, Options{Compression: CompressionZSTD}))

	got, err := Load(ctx, store, "views/snap-001")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Load(ctx, store, "views/missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

// refreshChecksum recomputes the CRC32 trailer after the test mutates
// header bytes.
func refreshChecksum(data []byte) []byte {
	body := append([]byte(nil), data[:len(data)-4]...)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], crc32.ChecksumIEEE(body))
	return append(body, u32[:]...)
}

func TestPackRowRoundTrip(t *testing.T) {
	row := []float64{1, math.NaN(), -2.5}
	packed := PackRow(row)
	assert.Nil(t, packed[1])

	back := UnpackRow(packed)
	assert.Equal(t, 1.0, back[0])
	assert.True(t, math.IsNaN(back[1]))
	assert.Equal(t, -2.5, back[2])
}
