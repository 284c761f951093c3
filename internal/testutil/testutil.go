// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common point cloud fixtures so tests in the
// fusion, conversion and storage packages build inputs the same way.
package testutil

import (
	"math/rand"
	"testing"

	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertErrorCode checks that err carries the given pcd error code.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	if got := pcd.ErrorCode(err); got != code {
		t.Errorf("error code = %q, want %q (err: %v)", got, code, err)
	}
}

// Cloud builds a float32 cloud with the given field names from rows of
// values, one row per record.
func Cloud(t testing.TB, names []string, rows [][]float64) *pcd.PointCloud {
	t.Helper()
	cols := make([]pcd.Column, len(names))
	for i, n := range names {
		cols[i] = pcd.Column{Field: pcd.Float32Field(n), Values: make([]float64, len(rows))}
	}
	for r, row := range rows {
		if len(row) != len(names) {
			t.Fatalf("row %d has %d values for %d fields", r, len(row), len(names))
		}
		for i, v := range row {
			cols[i].Values[r] = v
		}
	}
	pc, err := pcd.FromColumns(cols...)
	if err != nil {
		t.Fatalf("build cloud: %v", err)
	}
	return pc
}

// XYZI builds an x,y,z,intensity cloud.
func XYZI(t testing.TB, rows [][]float64) *pcd.PointCloud {
	t.Helper()
	return Cloud(t, []string{"x", "y", "z", "intensity"}, rows)
}

// RandomRows returns n rows of width values drawn uniformly from [lo, hi).
func RandomRows(seed int64, n, width int, lo, hi float64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, width)
		for j := range rows[i] {
			rows[i][j] = lo + rng.Float64()*(hi-lo)
		}
	}
	return rows
}

// Encode serializes pc as a complete PCD file.
func Encode(t testing.TB, pc *pcd.PointCloud, enc pcd.Encoding) []byte {
	t.Helper()
	raw, err := pcd.ToBytes(pc, enc)
	if err != nil {
		t.Fatalf("encode cloud: %v", err)
	}
	return raw
}

// Column returns the named field's values or fails the test.
func Column(t testing.TB, pc *pcd.PointCloud, name string) []float64 {
	t.Helper()
	c, err := pc.Column(name)
	if err != nil {
		t.Fatalf("column %s: %v", name, err)
	}
	return c.Values
}
