// Package pcd reads and writes PCD (Point Cloud Data) files and owns the
// decoded point cloud container.
//
// A file is a textual header followed by a payload in one of three
// encodings: ascii, binary (row-major records) and binary_compressed (LZF
// compressed, column-major). Decoded records are always kept row-major in
// memory regardless of the source encoding.
//
// Every structural operation (Select, Concatenate, AddFields, ...) returns a
// new PointCloud whose header is rebuilt in the same call, so the header and
// the record buffer can never drift apart.
//
// Only unorganized clouds are produced by this package: derived clouds
// always have HEIGHT 1.
package pcd
