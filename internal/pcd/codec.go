package pcd

import (
	"fmt"
	"path/filepath"

	"github.com/banshee-data/pcdfusion/internal/fsutil"
)

// FromBytes decodes a complete PCD file held in memory.
func FromBytes(raw []byte) (*PointCloud, error) {
	h, off, err := SplitHeader(raw)
	if err != nil {
		return nil, err
	}
	data, err := DecodePayload(raw[off:], h)
	if err != nil {
		return nil, err
	}
	return newOwned(h, data), nil
}

// ToBytes encodes pc as a complete PCD file using enc for the payload.
func ToBytes(pc *PointCloud, enc Encoding) ([]byte, error) {
	h := pc.header.Clone()
	h.Data = enc
	if err := h.Validate(); err != nil {
		return nil, err
	}
	payload, err := EncodePayload(pc.data, h)
	if err != nil {
		return nil, err
	}
	head := EncodeHeader(h)
	out := make([]byte, 0, len(head)+len(payload))
	out = append(out, head...)
	return append(out, payload...), nil
}

// MarshalBinary encodes pc with the encoding named in its header.
func (pc *PointCloud) MarshalBinary() ([]byte, error) {
	return ToBytes(pc, pc.header.Data)
}

// FromPath reads and decodes a PCD file through fsys.
func FromPath(fsys fsutil.FileSystem, path string) (*PointCloud, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pc, err := FromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return pc, nil
}

// WriteFile encodes pc with enc and writes it to path, creating parent
// directories as needed.
func WriteFile(fsys fsutil.FileSystem, path string, pc *PointCloud, enc Encoding) error {
	raw, err := ToBytes(pc, enc)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return fsys.WriteFile(path, raw, 0o644)
}
