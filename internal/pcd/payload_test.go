package pcd

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mixedCloud exercises every size/type combination plus a multi-element
// field.
func mixedCloud(t *testing.T) *PointCloud {
	t.Helper()
	pc, err := FromColumns(
		Column{Field: Float32Field("x"), Values: []float64{1.5, -2.25, 0, 1e-3, 3.4e38}},
		Column{Field: Field{Name: "stamp", Size: 8, Kind: Float}, Values: []float64{1.0000000001, -1e300, 0, math.Pi, 5}},
		Column{Field: Field{Name: "i8", Size: 1, Kind: Signed}, Values: []float64{-128, 127, 0, -1, 5}},
		Column{Field: Field{Name: "u8", Size: 1, Kind: Unsigned}, Values: []float64{0, 255, 1, 2, 3}},
		Column{Field: Field{Name: "i16", Size: 2, Kind: Signed}, Values: []float64{-32768, 32767, 0, -300, 300}},
		Column{Field: Field{Name: "ring", Size: 2, Kind: Unsigned}, Values: []float64{0, 65535, 7, 8, 9}},
		Column{Field: Field{Name: "label", Size: 4, Kind: Signed}, Values: []float64{-1 << 31, 1<<31 - 1, 0, 1, -1}},
		Column{Field: Field{Name: "rgb", Size: 4, Kind: Unsigned}, Values: []float64{0, 1<<32 - 1, 0x00ff00, 1, 2}},
		Column{Field: Field{Name: "id", Size: 8, Kind: Unsigned}, Values: []float64{0, 1 << 40, 3, 4, 5}},
		Column{Field: Field{Name: "normal", Count: 3}, Values: []float64{
			0, 0, 1,
			0, 1, 0,
			1, 0, 0,
			0.5, 0.5, 0.5,
			-1, -1, -1,
		}},
	)
	require.NoError(t, err)
	return pc
}

func TestPayload_RoundTripAllEncodings(t *testing.T) {
	pc := mixedCloud(t)

	for _, enc := range []Encoding{ASCII, Binary, BinaryCompressed} {
		t.Run(string(enc), func(t *testing.T) {
			raw, err := ToBytes(pc, enc)
			require.NoError(t, err)

			got, err := FromBytes(raw)
			require.NoError(t, err)
			assert.Equal(t, enc, got.Encoding())
			assert.Equal(t, pc.Fields(), got.Fields())
			assert.Equal(t, pc.Points(), got.Points())
			assert.Equal(t, pc.Bytes(), got.Bytes(), "record bytes differ")
		})
	}
}

func TestPayload_EmptyCloud(t *testing.T) {
	pc, err := FromColumns(Column{Field: Float32Field("x")})
	require.NoError(t, err)
	require.Equal(t, 0, pc.Points())

	for _, enc := range []Encoding{ASCII, Binary, BinaryCompressed} {
		raw, err := ToBytes(pc, enc)
		require.NoError(t, err, enc)
		got, err := FromBytes(raw)
		require.NoError(t, err, enc)
		assert.Equal(t, 0, got.Points())
	}
}

func TestPayload_ASCIIInt64Exact(t *testing.T) {
	h := Header{
		Version:   DefaultVersion,
		Fields:    []Field{{Name: "big", Size: 8, Kind: Signed, Count: 1}, {Name: "ubig", Size: 8, Kind: Unsigned, Count: 1}},
		Width:     1,
		Height:    1,
		Viewpoint: DefaultViewpoint,
		Points:    1,
		Data:      ASCII,
	}
	rec := make([]byte, 16)
	binary.LittleEndian.PutUint64(rec[0:], uint64(math.MaxInt64))
	binary.LittleEndian.PutUint64(rec[8:], math.MaxUint64)

	payload, err := EncodePayload(rec, h)
	require.NoError(t, err)
	assert.Equal(t, "9223372036854775807 18446744073709551615\n", string(payload))

	back, err := DecodePayload(payload, h)
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestPayload_ASCIINonFinite(t *testing.T) {
	pc, err := FromColumns(
		Column{Field: Float32Field("x"), Values: []float64{math.NaN(), math.Inf(1), math.Inf(-1)}},
		Column{Field: Field{Name: "t", Size: 8, Kind: Float}, Values: []float64{math.Inf(-1), math.NaN(), math.Inf(1)}},
	)
	require.NoError(t, err)

	h := pc.Header()
	h.Data = ASCII
	payload, err := EncodePayload(pc.Bytes(), h)
	require.NoError(t, err)
	assert.Equal(t, "nan -inf\ninf nan\n-inf inf\n", string(payload))

	raw, err := ToBytes(pc, ASCII)
	require.NoError(t, err)
	got, err := FromBytes(raw)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.Value(0, 0, 0)))
	assert.True(t, math.IsInf(got.Value(1, 0, 0), 1))
	assert.True(t, math.IsInf(got.Value(2, 0, 0), -1))
	assert.True(t, math.IsInf(got.Value(0, 1, 0), -1))
	assert.True(t, math.IsNaN(got.Value(1, 1, 0)))
	assert.True(t, math.IsInf(got.Value(2, 1, 0), 1))
}

func TestFromBytes_ASCIIPointsBeyondPayload(t *testing.T) {
	head := strings.Join([]string{
		"VERSION 0.7",
		"FIELDS x",
		"SIZE 4",
		"TYPE F",
		"COUNT 1",
		"WIDTH 2000000000",
		"HEIGHT 1",
		"VIEWPOINT 0 0 0 1 0 0 0",
		"POINTS 2000000000",
		"DATA ascii",
	}, "\n") + "\n"

	var err error
	require.NotPanics(t, func() {
		_, err = FromBytes([]byte(head + "1\n"))
	})
	assert.Equal(t, CodeASCIIParse, ErrorCode(err), "error: %v", err)
}

func TestPayload_ColumnMajorLayout(t *testing.T) {
	h := Header{
		Version:   DefaultVersion,
		Fields:    []Field{{Name: "a", Size: 1, Kind: Unsigned, Count: 1}, {Name: "b", Size: 2, Kind: Unsigned, Count: 1}},
		Width:     2,
		Height:    1,
		Viewpoint: DefaultViewpoint,
		Points:    2,
		Data:      BinaryCompressed,
	}
	rows := []byte{1, 0x03, 0x02, 4, 0x06, 0x05}
	wantCols := []byte{1, 4, 0x03, 0x02, 0x06, 0x05}

	assert.Equal(t, wantCols, rowsToColumns(rows, h))
	assert.Equal(t, rows, columnsToRows(wantCols, h))

	payload, err := EncodePayload(rows, h)
	require.NoError(t, err)
	compressedLen := binary.LittleEndian.Uint32(payload[0:4])
	uncompressedLen := binary.LittleEndian.Uint32(payload[4:8])
	assert.Equal(t, uint32(len(rows)), uncompressedLen)
	assert.Equal(t, int(compressedLen), len(payload)-8)

	block, err := lzfDecompress(payload[8:], int(uncompressedLen))
	require.NoError(t, err)
	assert.Equal(t, wantCols, block)
}

func TestDecodePayload_Errors(t *testing.T) {
	one := Header{
		Version:   DefaultVersion,
		Fields:    []Field{{Name: "v", Size: 1, Kind: Unsigned, Count: 1}},
		Width:     4,
		Height:    1,
		Viewpoint: DefaultViewpoint,
		Points:    4,
	}
	with := func(enc Encoding) Header {
		h := one
		h.Data = enc
		return h
	}
	prefix := func(clen, ulen uint32, block ...byte) []byte {
		out := make([]byte, 8)
		binary.LittleEndian.PutUint32(out[0:], clen)
		binary.LittleEndian.PutUint32(out[4:], ulen)
		return append(out, block...)
	}

	tests := []struct {
		name    string
		h       Header
		payload []byte
		code    string
		corrupt bool
	}{
		{"binary short", with(Binary), []byte{1, 2, 3}, CodeSizeMismatch, false},
		{"binary long", with(Binary), []byte{1, 2, 3, 4, 5}, CodeSizeMismatch, false},
		{"ascii too few records", with(ASCII), []byte("1\n2\n3\n"), CodeASCIIParse, false},
		{"ascii too many records", with(ASCII), []byte("1\n2\n3\n4\n5\n"), CodeASCIIParse, false},
		{"ascii extra token", with(ASCII), []byte("1\n2 2\n3\n4\n"), CodeASCIIParse, false},
		{"ascii not a number", with(ASCII), []byte("1\n2\nthree\n4\n"), CodeASCIIParse, false},
		{"ascii out of range", with(ASCII), []byte("1\n2\n300\n4\n"), CodeASCIIParse, false},
		{"compressed no prefix", with(BinaryCompressed), []byte{1, 2, 3}, CodeSizeMismatch, false},
		{"compressed wrong uncompressed_len", with(BinaryCompressed), prefix(2, 5, 0x00, 9), CodeSizeMismatch, false},
		{"compressed truncated block", with(BinaryCompressed), prefix(10, 4, 0x03, 1, 2, 3, 4), CodeSizeMismatch, false},
		{"compressed short output", with(BinaryCompressed), prefix(2, 4, 0x00, 0xaa), CodeDecompressSizeMismatch, true},
		{"compressed bad reference", with(BinaryCompressed), prefix(2, 4, 0x20, 0x00), CodeDecompressFailed, true},
		{"unknown encoding", with("lz4"), nil, CodeUnknownEncoding, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.payload, tt.h)
			require.Error(t, err)
			assert.Equal(t, tt.code, ErrorCode(err), "error: %v", err)
			var ce *CorruptDataError
			assert.Equal(t, tt.corrupt, errors.As(err, &ce))
		})
	}
}

func TestEncodePayload_SizeMismatch(t *testing.T) {
	h := xyzHeader(2, Binary)
	_, err := EncodePayload(make([]byte, 12), h)
	assert.Equal(t, CodeSizeMismatch, ErrorCode(err))
}
