package pcd

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pcdfusion/internal/fsutil"
)

// organizedASCII is a 2x2 organized cloud as PCL writes it.
const organizedASCII = `# .PCD v.7 - Point Cloud Data file format
VERSION .7
FIELDS x y z rgb
SIZE 4 4 4 4
TYPE F F F U
COUNT 1 1 1 1
WIDTH 2
HEIGHT 2
VIEWPOINT 0 0 0 1 0 0 0
POINTS 4
DATA ascii
0.5 1 -1 16711680
1.5 2 -2 65280
2.5 3 -3 255
3.5 4 -4 0
`

func TestFromBytes_Organized(t *testing.T) {
	pc, err := FromBytes([]byte(organizedASCII))
	require.NoError(t, err)

	h := pc.Header()
	assert.Equal(t, 2, h.Width)
	assert.Equal(t, 2, h.Height)
	assert.Equal(t, ".7", h.Version)

	rgb, err := pc.Column("rgb")
	require.NoError(t, err)
	assert.Equal(t, []float64{16711680, 65280, 255, 0}, rgb.Values)

	// Structural operations flatten to an unorganized cloud.
	out, err := pc.Select([]bool{true, true, false, true})
	require.NoError(t, err)
	oh := out.Header()
	assert.Equal(t, 3, oh.Width)
	assert.Equal(t, 1, oh.Height)
	assert.Equal(t, 3, oh.Points)
}

func TestToBytes_HeaderFollowsPayload(t *testing.T) {
	pc, err := FromBytes([]byte(organizedASCII))
	require.NoError(t, err)

	raw, err := ToBytes(pc, Binary)
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.HasPrefix(text, "VERSION .7\n"))
	assert.Contains(t, text, "DATA binary\n")

	_, off, err := SplitHeader(raw)
	require.NoError(t, err)
	assert.NotContains(t, text[:off], "#")
	assert.Equal(t, 4*16, len(raw)-off)

	_, err = ToBytes(pc, "zip")
	assert.Equal(t, CodeUnknownEncoding, ErrorCode(err))
}

func TestMarshalBinary_UsesHeaderEncoding(t *testing.T) {
	pc, err := FromBytes([]byte(organizedASCII))
	require.NoError(t, err)

	raw, err := pc.MarshalBinary()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "DATA ascii\n")
}

func TestWriteFile_FromPath(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	pc, err := FromBytes([]byte(organizedASCII))
	require.NoError(t, err)

	require.NoError(t, WriteFile(fsys, "/out/nested/cloud.pcd", pc, BinaryCompressed))
	assert.True(t, fsys.Exists("/out/nested"))

	back, err := FromPath(fsys, "/out/nested/cloud.pcd")
	require.NoError(t, err)
	assert.Equal(t, BinaryCompressed, back.Encoding())
	assert.Equal(t, pc.Bytes(), back.Bytes())
}

func TestFromPath_Errors(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	_, err := FromPath(fsys, "/missing.pcd")
	require.Error(t, err)
	assert.Equal(t, "", ErrorCode(err))

	require.NoError(t, fsys.WriteFile("/bad.pcd", []byte("VERSION 0.7\nDATA ascii\n"), 0o644))
	_, err = FromPath(fsys, "/bad.pcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode /bad.pcd")
	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, CodeMissingKey, fe.Code)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.Equal(t, CodeBadBox, ErrorCode(Validationf(CodeBadBox, "length %v", -1)))
	assert.Equal(t, CodeTruncatedRecord, ErrorCode(Formatf(CodeTruncatedRecord, "7 bytes")))

	err := Validationf(CodeEmptyInput, "")
	assert.Equal(t, "pcd: validation error: empty-input", err.Error())
}
