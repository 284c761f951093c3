package pcd

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/pcdfusion/internal/monitoring"
)

// DefaultVersion is the version tag written for newly built clouds.
const DefaultVersion = "0.7"

// maxDim bounds WIDTH, HEIGHT and POINTS so size arithmetic cannot overflow.
const maxDim = math.MaxInt32

// DefaultViewpoint is the identity pose: zero translation, unit quaternion
// (w=1).
var DefaultViewpoint = [7]float64{0, 0, 0, 1, 0, 0, 0}

// Header is the decoded metadata block of a PCD file.
type Header struct {
	Version   string
	Fields    []Field
	Width     int
	Height    int
	Viewpoint [7]float64
	Points    int
	Data      Encoding
}

// requiredKeys lists the header keys in their canonical encoding order.
var requiredKeys = []string{
	"version", "fields", "size", "type", "count",
	"width", "height", "viewpoint", "points", "data",
}

// RecordSize is the number of bytes of one record.
func (h Header) RecordSize() int {
	n := 0
	for _, f := range h.Fields {
		n += f.Width()
	}
	return n
}

// FieldIndex returns the position of the named field or -1.
func (h Header) FieldIndex(name string) int {
	for i, f := range h.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no slices with h.
func (h Header) Clone() Header {
	c := h
	c.Fields = append([]Field(nil), h.Fields...)
	return c
}

// Validate checks the structural invariants of a header: every field is
// well formed, names are unique and POINTS equals WIDTH*HEIGHT.
func (h Header) Validate() error {
	if strings.TrimSpace(h.Version) == "" {
		return formatErrorf(CodeInvalidValue, "empty version")
	}
	if len(h.Fields) == 0 {
		return formatErrorf(CodeInvalidValue, "no fields")
	}
	seen := make(map[string]bool, len(h.Fields))
	for _, f := range h.Fields {
		if err := f.validate(); err != nil {
			return err
		}
		if seen[f.Name] {
			return formatErrorf(CodeDuplicateField, "%q", f.Name)
		}
		seen[f.Name] = true
	}
	if h.Width < 0 || h.Height < 0 || h.Width > maxDim || h.Height > maxDim {
		return formatErrorf(CodeInvalidValue, "width %d height %d", h.Width, h.Height)
	}
	if h.Points < 0 || h.Points > maxDim {
		return formatErrorf(CodeInvalidValue, "points %d", h.Points)
	}
	if h.Height > 0 && h.Width > math.MaxInt/h.Height {
		return formatErrorf(CodeInvalidValue, "width %d * height %d overflows", h.Width, h.Height)
	}
	if h.Points > 0 && h.RecordSize() > math.MaxInt/h.Points {
		return formatErrorf(CodeInvalidValue, "points %d * record size %d overflows", h.Points, h.RecordSize())
	}
	if h.Points != h.Width*h.Height {
		return formatErrorf(CodePointsMismatch, "points %d != width %d * height %d", h.Points, h.Width, h.Height)
	}
	for _, v := range h.Viewpoint {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return formatErrorf(CodeInvalidValue, "viewpoint %v", h.Viewpoint)
		}
	}
	if _, err := ParseEncoding(string(h.Data)); err != nil {
		return err
	}
	return nil
}

// EncodeHeader renders h as header text, one key per line in canonical
// order, terminated by the newline after DATA.
func EncodeHeader(h Header) string {
	var b strings.Builder
	b.WriteString("VERSION " + h.Version + "\n")

	names := make([]string, len(h.Fields))
	sizes := make([]string, len(h.Fields))
	kinds := make([]string, len(h.Fields))
	counts := make([]string, len(h.Fields))
	for i, f := range h.Fields {
		names[i] = f.Name
		sizes[i] = strconv.Itoa(f.Size)
		kinds[i] = f.Kind.String()
		counts[i] = strconv.Itoa(f.Count)
	}
	b.WriteString("FIELDS " + strings.Join(names, " ") + "\n")
	b.WriteString("SIZE " + strings.Join(sizes, " ") + "\n")
	b.WriteString("TYPE " + strings.Join(kinds, " ") + "\n")
	b.WriteString("COUNT " + strings.Join(counts, " ") + "\n")
	b.WriteString("WIDTH " + strconv.Itoa(h.Width) + "\n")
	b.WriteString("HEIGHT " + strconv.Itoa(h.Height) + "\n")

	vp := make([]string, len(h.Viewpoint))
	for i, v := range h.Viewpoint {
		vp[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	b.WriteString("VIEWPOINT " + strings.Join(vp, " ") + "\n")
	b.WriteString("POINTS " + strconv.Itoa(h.Points) + "\n")
	b.WriteString("DATA " + string(h.Data) + "\n")
	return b.String()
}

// DecodeHeader parses header text. Keys may appear in any order; comment
// lines starting with '#' and blank lines are skipped. COUNT may be omitted
// and then defaults to 1 for every field.
func DecodeHeader(text string) (Header, error) {
	return parseHeaderLines(strings.Split(text, "\n"))
}

// SplitHeader parses the header at the start of raw and returns it with the
// offset of the first payload byte, which follows the DATA line.
func SplitHeader(raw []byte) (Header, int, error) {
	var lines []string
	off := 0
	for off < len(raw) {
		end := bytes.IndexByte(raw[off:], '\n')
		var line []byte
		next := len(raw)
		if end < 0 {
			line = raw[off:]
		} else {
			line = raw[off : off+end]
			next = off + end + 1
		}
		lines = append(lines, string(line))
		off = next
		if isDataLine(line) {
			h, err := parseHeaderLines(lines)
			return h, off, err
		}
	}
	// No DATA line; let the parser report what is missing.
	h, err := parseHeaderLines(lines)
	if err == nil {
		err = formatErrorf(CodeMissingKey, "data")
	}
	return h, off, err
}

func isDataLine(line []byte) bool {
	tok := bytes.Fields(line)
	return len(tok) > 0 && strings.EqualFold(string(tok[0]), "data")
}

func parseHeaderLines(lines []string) (Header, error) {
	values := make(map[string][]string, len(requiredKeys))
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tok := strings.Fields(line)
		key := strings.ToLower(tok[0])
		if !isRequiredKey(key) {
			monitoring.Logf("pcd: ignoring unknown header key %q", tok[0])
			continue
		}
		values[key] = tok[1:]
	}

	for _, key := range requiredKeys {
		if _, ok := values[key]; !ok && key != "count" {
			return Header{}, formatErrorf(CodeMissingKey, "%s", key)
		}
	}

	names := values["fields"]
	sizes := values["size"]
	kinds := values["type"]
	counts, hasCount := values["count"]
	if !hasCount {
		counts = make([]string, len(names))
		for i := range counts {
			counts[i] = "1"
		}
	}
	if len(sizes) != len(names) || len(kinds) != len(names) || len(counts) != len(names) {
		return Header{}, formatErrorf(CodeLengthMismatch,
			"fields=%d size=%d type=%d count=%d", len(names), len(sizes), len(kinds), len(counts))
	}

	h := Header{Version: strings.Join(values["version"], " ")}
	h.Fields = make([]Field, len(names))
	for i, name := range names {
		size, err := strconv.Atoi(sizes[i])
		if err != nil {
			return Header{}, formatErrorf(CodeInvalidValue, "size %q", sizes[i])
		}
		count, err := strconv.Atoi(counts[i])
		if err != nil {
			return Header{}, formatErrorf(CodeInvalidValue, "count %q", counts[i])
		}
		if len(kinds[i]) != 1 {
			return Header{}, formatErrorf(CodeInvalidValue, "type %q", kinds[i])
		}
		h.Fields[i] = Field{Name: name, Size: size, Kind: Kind(strings.ToUpper(kinds[i])[0]), Count: count}
	}

	var err error
	if h.Width, err = singleInt(values, "width"); err != nil {
		return Header{}, err
	}
	if h.Height, err = singleInt(values, "height"); err != nil {
		return Header{}, err
	}
	if h.Points, err = singleInt(values, "points"); err != nil {
		return Header{}, err
	}

	vp := values["viewpoint"]
	if len(vp) != len(h.Viewpoint) {
		return Header{}, formatErrorf(CodeInvalidValue, "viewpoint has %d values", len(vp))
	}
	for i, s := range vp {
		if h.Viewpoint[i], err = strconv.ParseFloat(s, 64); err != nil {
			return Header{}, formatErrorf(CodeInvalidValue, "viewpoint %q", s)
		}
	}

	data := values["data"]
	if len(data) != 1 {
		return Header{}, formatErrorf(CodeUnknownEncoding, "%q", strings.Join(data, " "))
	}
	if h.Data, err = ParseEncoding(strings.ToLower(data[0])); err != nil {
		return Header{}, err
	}

	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func isRequiredKey(key string) bool {
	for _, k := range requiredKeys {
		if k == key {
			return true
		}
	}
	return false
}

func singleInt(values map[string][]string, key string) (int, error) {
	v := values[key]
	if len(v) != 1 {
		return 0, formatErrorf(CodeInvalidValue, "%s needs one value, got %d", key, len(v))
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return 0, formatErrorf(CodeInvalidValue, "%s %q", key, v[0])
	}
	return n, nil
}
