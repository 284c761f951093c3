package pcd

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// DecodePayload turns the bytes following the header into a row-major
// record buffer of h.Points records. The codec is selected by h.Data.
func DecodePayload(payload []byte, h Header) ([]byte, error) {
	switch h.Data {
	case ASCII:
		return decodeASCII(payload, h)
	case Binary:
		return decodeBinary(payload, h)
	case BinaryCompressed:
		return decodeCompressed(payload, h)
	}
	return nil, formatErrorf(CodeUnknownEncoding, "%q", string(h.Data))
}

// EncodePayload serializes a row-major record buffer with the encoding
// named by h.Data.
func EncodePayload(records []byte, h Header) ([]byte, error) {
	if want := h.Points * h.RecordSize(); len(records) != want {
		return nil, formatErrorf(CodeSizeMismatch, "record buffer has %d bytes, header needs %d", len(records), want)
	}
	switch h.Data {
	case ASCII:
		return encodeASCII(records, h), nil
	case Binary:
		out := make([]byte, len(records))
		copy(out, records)
		return out, nil
	case BinaryCompressed:
		return encodeCompressed(records, h), nil
	}
	return nil, formatErrorf(CodeUnknownEncoding, "%q", string(h.Data))
}

func decodeBinary(payload []byte, h Header) ([]byte, error) {
	want := h.Points * h.RecordSize()
	if len(payload) != want {
		return nil, formatErrorf(CodeSizeMismatch, "binary payload has %d bytes, want %d", len(payload), want)
	}
	out := make([]byte, want)
	copy(out, payload)
	return out, nil
}

func decodeASCII(payload []byte, h Header) ([]byte, error) {
	rs := h.RecordSize()
	tokensPerRecord := 0
	for _, f := range h.Fields {
		tokensPerRecord += f.Count
	}

	// Every value takes at least one byte plus a separator.
	if limit := len(payload)/(2*tokensPerRecord) + 1; h.Points > limit {
		return nil, formatErrorf(CodeASCIIParse, "header declares %d records, payload holds at most %d", h.Points, limit)
	}

	out := make([]byte, h.Points*rs)
	rec := 0
	for lineNo, line := range strings.Split(string(payload), "\n") {
		tok := strings.Fields(line)
		if len(tok) == 0 {
			continue
		}
		if rec >= h.Points {
			return nil, formatErrorf(CodeASCIIParse, "line %d: more than %d records", lineNo+1, h.Points)
		}
		if len(tok) != tokensPerRecord {
			return nil, formatErrorf(CodeASCIIParse, "line %d: %d values, want %d", lineNo+1, len(tok), tokensPerRecord)
		}
		dst := out[rec*rs:]
		t := 0
		for _, f := range h.Fields {
			for e := 0; e < f.Count; e++ {
				if err := parseScalar(tok[t], dst[:f.Size], f.Kind, f.Size); err != nil {
					return nil, formatErrorf(CodeASCIIParse, "line %d, field %q: %v", lineNo+1, f.Name, err)
				}
				dst = dst[f.Size:]
				t++
			}
		}
		rec++
	}
	if rec != h.Points {
		return nil, formatErrorf(CodeASCIIParse, "%d records, header declares %d", rec, h.Points)
	}
	return out, nil
}

func encodeASCII(records []byte, h Header) []byte {
	rs := h.RecordSize()
	var buf bytes.Buffer
	for i := 0; i < h.Points; i++ {
		rec := records[i*rs : (i+1)*rs]
		first := true
		for _, f := range h.Fields {
			for e := 0; e < f.Count; e++ {
				if !first {
					buf.WriteByte(' ')
				}
				first = false
				buf.WriteString(formatScalar(rec[:f.Size], f.Kind, f.Size))
				rec = rec[f.Size:]
			}
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func decodeCompressed(payload []byte, h Header) ([]byte, error) {
	if len(payload) < 8 {
		return nil, formatErrorf(CodeSizeMismatch, "compressed payload shorter than its 8 byte prefix")
	}
	compressedLen := int(binary.LittleEndian.Uint32(payload[0:4]))
	uncompressedLen := int(binary.LittleEndian.Uint32(payload[4:8]))
	want := h.Points * h.RecordSize()
	if uncompressedLen != want {
		return nil, formatErrorf(CodeSizeMismatch, "uncompressed_len %d, header needs %d", uncompressedLen, want)
	}
	if len(payload)-8 < compressedLen {
		return nil, formatErrorf(CodeSizeMismatch, "compressed_len %d, only %d bytes present", compressedLen, len(payload)-8)
	}
	if uncompressedLen == 0 {
		return []byte{}, nil
	}

	raw, err := lzfDecompress(payload[8:8+compressedLen], uncompressedLen)
	if err != nil {
		return nil, err
	}
	if len(raw) != uncompressedLen {
		return nil, corruptErrorf(CodeDecompressSizeMismatch, "decompressed %d bytes, prefix says %d", len(raw), uncompressedLen)
	}
	return columnsToRows(raw, h), nil
}

func encodeCompressed(records []byte, h Header) []byte {
	cols := rowsToColumns(records, h)
	block := lzfCompress(cols)
	out := make([]byte, 8, 8+len(block))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(block)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(cols)))
	return append(out, block...)
}

// rowsToColumns transposes row-major records into the column-major layout
// of binary_compressed: every record's bytes for field 0, then field 1, ...
func rowsToColumns(records []byte, h Header) []byte {
	rs := h.RecordSize()
	out := make([]byte, len(records))
	col, off := 0, 0
	for _, f := range h.Fields {
		w := f.Width()
		for i := 0; i < h.Points; i++ {
			copy(out[col+i*w:col+(i+1)*w], records[i*rs+off:i*rs+off+w])
		}
		col += h.Points * w
		off += w
	}
	return out
}

// columnsToRows is the inverse of rowsToColumns.
func columnsToRows(cols []byte, h Header) []byte {
	rs := h.RecordSize()
	out := make([]byte, len(cols))
	col, off := 0, 0
	for _, f := range h.Fields {
		w := f.Width()
		for i := 0; i < h.Points; i++ {
			copy(out[i*rs+off:i*rs+off+w], cols[col+i*w:col+(i+1)*w])
		}
		col += h.Points * w
		off += w
	}
	return out
}
