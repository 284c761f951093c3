package binrec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/banshee-data/pcdfusion/internal/monitoring"
	"github.com/banshee-data/pcdfusion/internal/pcd"
	"github.com/banshee-data/pcdfusion/internal/testutil"
)

func floats(t *testing.T, data []byte, width int) [][]float32 {
	t.Helper()
	if len(data)%(4*width) != 0 {
		t.Fatalf("%d bytes is not a whole number of %d-float records", len(data), width)
	}
	var rows [][]float32
	for off := 0; off < len(data); off += 4 * width {
		row := make([]float32, width)
		for i := range row {
			row[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+4*i:]))
		}
		rows = append(rows, row)
	}
	return rows
}

func TestEncode_AutoExactMatch(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   Format
	}{
		{"xyz", []string{"x", "y", "z"}, XYZ},
		{"xyzi", []string{"x", "y", "z", "intensity"}, XYZI},
		{"xyzi alias", []string{"z", "x", "i", "y"}, XYZI},
		{"xyzit", []string{"x", "y", "z", "intensity", "t"}, XYZIT},
		{"xyzit aliases", []string{"x", "y", "z", "i", "timestamp"}, XYZIT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := make([]float64, len(tt.fields))
			for i := range row {
				row[i] = float64(i + 1)
			}
			pc := testutil.Cloud(t, tt.fields, [][]float64{row})
			data, rep, err := Encode(pc, Options{})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if rep.Format != tt.want {
				t.Errorf("format = %q, want %q", rep.Format, tt.want)
			}
			if len(rep.Warnings) != 0 {
				t.Errorf("unexpected warnings %v", rep.Warnings)
			}
			if len(data) != tt.want.RecordSize() {
				t.Errorf("wrote %d bytes, want %d", len(data), tt.want.RecordSize())
			}
		})
	}
}

func TestEncode_AutoReordersToCanonical(t *testing.T) {
	pc := testutil.Cloud(t, []string{"i", "z", "y", "x"}, [][]float64{{4, 3, 2, 1}})
	data, _, err := Encode(pc, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got := floats(t, data, 4)[0]
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record = %v, want %v", got, want)
		}
	}
}

func TestEncode_AutoFallbackWarns(t *testing.T) {
	rec, restore := monitoring.Capture()
	defer restore()

	pc := testutil.Cloud(t, []string{"x", "y", "z", "intensity", "ring"}, [][]float64{{1, 2, 3, 4, 5}})
	data, rep, err := Encode(pc, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if rep.Format != XYZI || len(rep.Warnings) != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(data) != 16 {
		t.Errorf("wrote %d bytes, want 16", len(data))
	}
	if !rec.Contains("warning: binrec") {
		t.Errorf("expected a warning, got %v", rec.Lines())
	}
}

func TestEncode_AutoNotInferable(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
	}{
		{"xyz plus extra", []string{"x", "y", "z", "ring"}},
		{"no z", []string{"x", "y", "intensity"}},
		{"time without intensity", []string{"x", "y", "z", "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := make([]float64, len(tt.fields))
			pc := testutil.Cloud(t, tt.fields, [][]float64{row})
			_, _, err := Encode(pc, Options{})
			testutil.AssertErrorCode(t, err, pcd.CodeNoInferableFormat)
		})
	}
}

func TestEncode_ForcedDefaultFill(t *testing.T) {
	pc := testutil.Cloud(t, []string{"x", "y", "z"}, [][]float64{{0, 0, 0}, {1, -1, 2}})

	data, rep, err := Encode(pc, Options{Format: XYZI, DefaultIntensity: 5.5})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i, row := range floats(t, data, 4) {
		if row[3] != 5.5 {
			t.Errorf("record %d intensity = %v, want 5.5", i, row[3])
		}
	}
	if len(rep.Filled) != 1 || rep.Filled[0] != "intensity" {
		t.Errorf("filled = %v", rep.Filled)
	}

	data, _, err = Encode(pc, Options{Format: XYZIT, DefaultIntensity: 5.5, DefaultTime: 0.1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i, row := range floats(t, data, 5) {
		if row[3] != 5.5 || row[4] != float32(0.1) {
			t.Errorf("record %d = %v", i, row)
		}
	}
}

func TestEncode_ForcedDropsExtraFields(t *testing.T) {
	pc := testutil.Cloud(t, []string{"x", "y", "z", "intensity", "t"}, [][]float64{{1, 2, 3, 4, 5}})
	data, rep, err := Encode(pc, Options{Format: XYZ})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if rep.Records != 1 || len(data) != 12 {
		t.Errorf("records=%d bytes=%d", rep.Records, len(data))
	}
}

func TestEncode_ForcedMissingCoordinates(t *testing.T) {
	pc := testutil.Cloud(t, []string{"x", "y"}, [][]float64{{1, 2}})
	_, _, err := Encode(pc, Options{Format: XYZ})
	testutil.AssertErrorCode(t, err, pcd.CodeMissingCoordinates)
}

func TestEncode_JointNonFiniteDrop(t *testing.T) {
	pc := testutil.Cloud(t, []string{"x", "y", "z", "intensity", "ring"}, [][]float64{
		{1, 1, 1, 1, 0},
		{2, 2, 2, math.NaN(), 0},
		{3, math.Inf(-1), 3, 3, 0},
		{4, 4, 4, 4, math.NaN()}, // ring is not selected
	})
	data, rep, err := Encode(pc, Options{Format: XYZI})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if rep.Dropped != 2 || rep.Records != 2 {
		t.Errorf("report = %+v", rep)
	}
	rows := floats(t, data, 4)
	if rows[0][0] != 1 || rows[1][0] != 4 {
		t.Errorf("rows = %v", rows)
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	pc := testutil.Cloud(t, []string{"x", "y", "z"}, nil)
	_, _, err := Encode(pc, Options{Format: "xyzrgb"})
	testutil.AssertErrorCode(t, err, pcd.CodeUnknownFormat)
}

func TestDecode(t *testing.T) {
	pc := testutil.Cloud(t, []string{"x", "y", "z", "intensity", "t"}, [][]float64{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}})
	data, _, err := Encode(pc, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	back, err := Decode(data, XYZIT)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.Points() != 2 {
		t.Fatalf("points = %d", back.Points())
	}
	wantNames := []string{"x", "y", "z", "intensity", "t"}
	for i, f := range back.Fields() {
		if f != pcd.Float32Field(wantNames[i]) {
			t.Errorf("field %d = %+v", i, f)
		}
	}
	if got := testutil.Column(t, back, "t"); got[1] != 10 {
		t.Errorf("t = %v", got)
	}

	// 40 bytes do not split into 16 byte xyzi records.
	if _, err := Decode(data, XYZI); pcd.ErrorCode(err) != pcd.CodeTruncatedRecord {
		t.Errorf("expected truncated-record, got %v", err)
	}
	if _, err := Decode(data, Auto); pcd.ErrorCode(err) != pcd.CodeUnknownFormat {
		t.Errorf("expected unknown-format for auto, got %v", err)
	}
	if _, err := Decode(data[:7], XYZ); pcd.ErrorCode(err) != pcd.CodeTruncatedRecord {
		t.Errorf("expected truncated-record, got %v", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	pc, err := Decode(nil, XYZ)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pc.Points() != 0 {
		t.Errorf("points = %d", pc.Points())
	}
}
