package pcd

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Kind is the element type of a field, spelled as in the TYPE header line.
type Kind byte

const (
	Signed   Kind = 'I'
	Unsigned Kind = 'U'
	Float    Kind = 'F'
)

func (k Kind) String() string { return string(rune(k)) }

// Field describes one named field of a record.
type Field struct {
	Name  string
	Size  int // bytes per element: 1, 2, 4 or 8
	Kind  Kind
	Count int // elements per record, normally 1
}

// Width is the number of bytes the field occupies in one record.
func (f Field) Width() int { return f.Size * f.Count }

func (f Field) validate() error {
	switch f.Size {
	case 1, 2, 4, 8:
	default:
		return formatErrorf(CodeInvalidValue, "field %q: size %d", f.Name, f.Size)
	}
	switch f.Kind {
	case Signed, Unsigned:
	case Float:
		if f.Size != 4 && f.Size != 8 {
			return formatErrorf(CodeInvalidValue, "field %q: float of size %d", f.Name, f.Size)
		}
	default:
		return formatErrorf(CodeInvalidValue, "field %q: type %q", f.Name, string(rune(f.Kind)))
	}
	if f.Count < 1 || f.Count > maxDim {
		return formatErrorf(CodeInvalidValue, "field %q: count %d", f.Name, f.Count)
	}
	if f.Name == "" {
		return formatErrorf(CodeInvalidValue, "empty field name")
	}
	return nil
}

// Float32Field is the common x/y/z/intensity field layout.
func Float32Field(name string) Field {
	return Field{Name: name, Size: 4, Kind: Float, Count: 1}
}

// Encoding selects the payload codec.
type Encoding string

const (
	ASCII            Encoding = "ascii"
	Binary           Encoding = "binary"
	BinaryCompressed Encoding = "binary_compressed"
)

// ParseEncoding maps a DATA token onto an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(s); e {
	case ASCII, Binary, BinaryCompressed:
		return e, nil
	}
	return "", formatErrorf(CodeUnknownEncoding, "%q", s)
}

// Field name aliases accepted wherever intensity or time is looked up.
var (
	IntensityAliases = []string{"intensity", "i"}
	TimeAliases      = []string{"t", "time", "timestamp"}
)

// readScalar decodes one little-endian element.
func readScalar(b []byte, kind Kind, size int) float64 {
	switch kind {
	case Float:
		if size == 4 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Signed:
		switch size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(b)))
		case 4:
			return float64(int32(binary.LittleEndian.Uint32(b)))
		default:
			return float64(int64(binary.LittleEndian.Uint64(b)))
		}
	default:
		switch size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(binary.LittleEndian.Uint16(b))
		case 4:
			return float64(binary.LittleEndian.Uint32(b))
		default:
			return float64(binary.LittleEndian.Uint64(b))
		}
	}
}

// writeScalar encodes v as one little-endian element. Integer kinds
// truncate toward zero.
func writeScalar(b []byte, kind Kind, size int, v float64) {
	switch kind {
	case Float:
		if size == 4 {
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
			return
		}
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	case Signed:
		putUint(b, size, uint64(int64(v)))
	default:
		putUint(b, size, uint64(v))
	}
}

func putUint(b []byte, size int, u uint64) {
	switch size {
	case 1:
		b[0] = byte(u)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(u))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(u))
	default:
		binary.LittleEndian.PutUint64(b, u)
	}
}

// formatScalar renders one element for the ascii encoding. Floats use the
// shortest representation that parses back to the same bits; non-finite
// values are written as nan, inf and -inf.
func formatScalar(b []byte, kind Kind, size int) string {
	switch kind {
	case Float:
		var v float64
		bits := size * 8
		if size == 4 {
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		} else {
			v = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		switch {
		case math.IsNaN(v):
			return "nan"
		case math.IsInf(v, 1):
			return "inf"
		case math.IsInf(v, -1):
			return "-inf"
		}
		return strconv.FormatFloat(v, 'g', -1, bits)
	case Signed:
		if size == 8 {
			return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10)
		}
		return strconv.FormatInt(int64(readScalar(b, kind, size)), 10)
	default:
		if size == 8 {
			return strconv.FormatUint(binary.LittleEndian.Uint64(b), 10)
		}
		return strconv.FormatUint(uint64(readScalar(b, kind, size)), 10)
	}
}

// parseScalar parses an ascii token straight into its binary slot, so
// 64-bit integers keep every bit.
func parseScalar(tok string, b []byte, kind Kind, size int) error {
	switch kind {
	case Float:
		v, err := strconv.ParseFloat(tok, size*8)
		if err != nil {
			return err
		}
		writeScalar(b, kind, size, v)
	case Signed:
		v, err := strconv.ParseInt(tok, 10, size*8)
		if err != nil {
			return err
		}
		putUint(b, size, uint64(v))
	default:
		v, err := strconv.ParseUint(tok, 10, size*8)
		if err != nil {
			return fmt.Errorf("unsigned %q: %w", tok, err)
		}
		putUint(b, size, v)
	}
	return nil
}
