package pcd

import "math"

// PointCloud owns a header and a row-major record buffer laid out
// according to the header's fields. A PointCloud is never modified after
// construction; every structural operation returns a new one.
type PointCloud struct {
	header  Header
	data    []byte
	offsets []int // byte offset of each field inside a record
}

// Column is one field's values, Points×Count of them, record-major.
type Column struct {
	Field  Field
	Values []float64
}

// New builds a cloud from a header and a record buffer. The buffer is
// copied; its length must be exactly Points*RecordSize.
func New(h Header, data []byte) (*PointCloud, error) {
	h = h.Clone()
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if want := h.Points * h.RecordSize(); len(data) != want {
		return nil, formatErrorf(CodeSizeMismatch, "record buffer has %d bytes, header needs %d", len(data), want)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return newOwned(h, buf), nil
}

// newOwned wraps a validated header and a buffer nobody else references.
func newOwned(h Header, data []byte) *PointCloud {
	offsets := make([]int, len(h.Fields))
	off := 0
	for i, f := range h.Fields {
		offsets[i] = off
		off += f.Width()
	}
	return &PointCloud{header: h, data: data, offsets: offsets}
}

// derive builds a cloud with pc's schema over a new buffer of n records.
func (pc *PointCloud) derive(n int, data []byte) *PointCloud {
	h := pc.header.Clone()
	h.Width = n
	h.Height = 1
	h.Points = n
	return newOwned(h, data)
}

// FromColumns builds an unorganized cloud from ordered columns. A zero
// Size, Kind or Count in a column's Field defaults to a single float32.
// Integer kinds truncate the supplied values toward zero.
func FromColumns(cols ...Column) (*PointCloud, error) {
	if len(cols) == 0 {
		return nil, Validationf(CodeEmptyInput, "no columns")
	}
	h := Header{
		Version:   DefaultVersion,
		Height:    1,
		Viewpoint: DefaultViewpoint,
		Data:      BinaryCompressed,
	}
	n := -1
	for _, c := range cols {
		f := withDefaults(c.Field)
		if len(c.Values)%f.Count != 0 {
			return nil, Validationf(CodeLengthMismatch, "column %q has %d values for count %d", f.Name, len(c.Values), f.Count)
		}
		rows := len(c.Values) / f.Count
		if n >= 0 && rows != n {
			return nil, Validationf(CodeLengthMismatch, "column %q has %d records, want %d", f.Name, rows, n)
		}
		n = rows
		h.Fields = append(h.Fields, f)
	}
	h.Width = n
	h.Points = n
	if err := h.Validate(); err != nil {
		return nil, asValidation(err)
	}

	pc := newOwned(h, make([]byte, n*h.RecordSize()))
	rs := h.RecordSize()
	for fi, c := range cols {
		f := h.Fields[fi]
		for i := 0; i < n; i++ {
			base := i*rs + pc.offsets[fi]
			for e := 0; e < f.Count; e++ {
				writeScalar(pc.data[base+e*f.Size:], f.Kind, f.Size, c.Values[i*f.Count+e])
			}
		}
	}
	return pc, nil
}

func withDefaults(f Field) Field {
	if f.Size == 0 {
		f.Size = 4
	}
	if f.Kind == 0 {
		f.Kind = Float
	}
	if f.Count == 0 {
		f.Count = 1
	}
	return f
}

// asValidation restates a header FormatError raised while checking caller
// supplied fields as a ValidationError.
func asValidation(err error) error {
	if fe, ok := err.(*FormatError); ok {
		return &ValidationError{Code: fe.Code, Detail: fe.Detail}
	}
	return err
}

// Header returns a copy of the cloud's metadata.
func (pc *PointCloud) Header() Header { return pc.header.Clone() }

// Fields returns a copy of the field list.
func (pc *PointCloud) Fields() []Field { return append([]Field(nil), pc.header.Fields...) }

// Points is the number of records.
func (pc *PointCloud) Points() int { return pc.header.Points }

// Encoding is the payload encoding the cloud was decoded from or will be
// encoded with by MarshalBinary.
func (pc *PointCloud) Encoding() Encoding { return pc.header.Data }

// RecordSize is the number of bytes per record.
func (pc *PointCloud) RecordSize() int { return pc.header.RecordSize() }

// Bytes returns a copy of the row-major record buffer.
func (pc *PointCloud) Bytes() []byte {
	out := make([]byte, len(pc.data))
	copy(out, pc.data)
	return out
}

// FieldIndex returns the position of the named field or -1.
func (pc *PointCloud) FieldIndex(name string) int { return pc.header.FieldIndex(name) }

// HasField reports whether the named field exists.
func (pc *PointCloud) HasField(name string) bool { return pc.FieldIndex(name) >= 0 }

// Lookup returns the index of the first field whose name is one of names.
func (pc *PointCloud) Lookup(names ...string) (int, bool) {
	for _, n := range names {
		if i := pc.FieldIndex(n); i >= 0 {
			return i, true
		}
	}
	return -1, false
}

// Value reads element elem of field fi in record rec as a float64.
func (pc *PointCloud) Value(rec, fi, elem int) float64 {
	f := pc.header.Fields[fi]
	off := rec*pc.header.RecordSize() + pc.offsets[fi] + elem*f.Size
	return readScalar(pc.data[off:], f.Kind, f.Size)
}

// Column returns a copy of the named field's values.
func (pc *PointCloud) Column(name string) (Column, error) {
	fi := pc.FieldIndex(name)
	if fi < 0 {
		return Column{}, Validationf(CodeUnknownField, "%q", name)
	}
	return pc.ColumnAt(fi), nil
}

// ColumnAt returns a copy of the values of the field at index fi.
func (pc *PointCloud) ColumnAt(fi int) Column {
	f := pc.header.Fields[fi]
	vals := make([]float64, 0, pc.Points()*f.Count)
	for i := 0; i < pc.Points(); i++ {
		for e := 0; e < f.Count; e++ {
			vals = append(vals, pc.Value(i, fi, e))
		}
	}
	return Column{Field: f, Values: vals}
}

// Float32s returns the named field's values converted to float32.
func (pc *PointCloud) Float32s(name string) ([]float32, error) {
	c, err := pc.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(c.Values))
	for i, v := range c.Values {
		out[i] = float32(v)
	}
	return out, nil
}

// WithEncoding returns a cloud sharing pc's records whose header names enc
// as its payload encoding.
func (pc *PointCloud) WithEncoding(enc Encoding) (*PointCloud, error) {
	if _, err := ParseEncoding(string(enc)); err != nil {
		return nil, err
	}
	h := pc.header.Clone()
	h.Data = enc
	return &PointCloud{header: h, data: pc.data, offsets: pc.offsets}, nil
}

// Select keeps the records whose mask entry is true, in order.
func (pc *PointCloud) Select(keep []bool) (*PointCloud, error) {
	if len(keep) != pc.Points() {
		return nil, Validationf(CodeLengthMismatch, "mask has %d entries for %d points", len(keep), pc.Points())
	}
	rs := pc.RecordSize()
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	out := make([]byte, 0, n*rs)
	for i, k := range keep {
		if k {
			out = append(out, pc.data[i*rs:(i+1)*rs]...)
		}
	}
	return pc.derive(n, out), nil
}

// Subset returns the records at the given indices, in the given order.
func (pc *PointCloud) Subset(indices []int) (*PointCloud, error) {
	rs := pc.RecordSize()
	out := make([]byte, 0, len(indices)*rs)
	for _, i := range indices {
		if i < 0 || i >= pc.Points() {
			return nil, Validationf(CodeLengthMismatch, "index %d out of range [0,%d)", i, pc.Points())
		}
		out = append(out, pc.data[i*rs:(i+1)*rs]...)
	}
	return pc.derive(len(indices), out), nil
}

// SameSchema reports whether both clouds have identical fields in the same
// order.
func SameSchema(a, b *PointCloud) bool {
	if len(a.header.Fields) != len(b.header.Fields) {
		return false
	}
	for i, f := range a.header.Fields {
		if f != b.header.Fields[i] {
			return false
		}
	}
	return true
}

// Concatenate appends b's records after a's. Both clouds must have the
// same schema.
func Concatenate(a, b *PointCloud) (*PointCloud, error) {
	return ConcatenateAll([]*PointCloud{a, b})
}

// ConcatenateAll joins clouds in order. The result keeps the first cloud's
// version, viewpoint and encoding.
func ConcatenateAll(clouds []*PointCloud) (*PointCloud, error) {
	if len(clouds) == 0 {
		return nil, Validationf(CodeEmptyInput, "nothing to concatenate")
	}
	first := clouds[0]
	size, n := 0, 0
	for i, c := range clouds {
		if !SameSchema(first, c) {
			return nil, Validationf(CodeSchemaMismatch, "cloud %d: %v vs %v", i, c.header.Fields, first.header.Fields)
		}
		size += len(c.data)
		n += c.Points()
	}
	out := make([]byte, 0, size)
	for _, c := range clouds {
		out = append(out, c.data...)
	}
	return first.derive(n, out), nil
}

// AddFields appends new fields to every record. Each column must hold
// Points×Count values and must not reuse an existing name.
func AddFields(pc *PointCloud, cols ...Column) (*PointCloud, error) {
	h := pc.header.Clone()
	for _, c := range cols {
		f := withDefaults(c.Field)
		if h.FieldIndex(f.Name) >= 0 {
			return nil, Validationf(CodeDuplicateField, "%q", f.Name)
		}
		if len(c.Values) != pc.Points()*f.Count {
			return nil, Validationf(CodeLengthMismatch, "column %q has %d values, want %d", f.Name, len(c.Values), pc.Points()*f.Count)
		}
		h.Fields = append(h.Fields, f)
	}
	if err := h.Validate(); err != nil {
		return nil, asValidation(err)
	}
	h.Width = pc.Points()
	h.Height = 1

	oldRS := pc.RecordSize()
	newRS := h.RecordSize()
	out := newOwned(h, make([]byte, pc.Points()*newRS))
	for i := 0; i < pc.Points(); i++ {
		copy(out.data[i*newRS:], pc.data[i*oldRS:(i+1)*oldRS])
	}
	base := len(pc.header.Fields)
	for ci, c := range cols {
		fi := base + ci
		f := h.Fields[fi]
		for i := 0; i < pc.Points(); i++ {
			for e := 0; e < f.Count; e++ {
				writeScalar(out.data[i*newRS+out.offsets[fi]+e*f.Size:], f.Kind, f.Size, c.Values[i*f.Count+e])
			}
		}
	}
	return out, nil
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
