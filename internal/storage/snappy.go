package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/golang/snappy"
)

var snappyMagic = []byte("sNaPpY\x00")

// SnappyStore compresses objects on the way in. Objects written without the
// marker are returned as stored, so existing uncompressed data stays readable.
type SnappyStore struct {
	next Store
}

func NewSnappyStore(next Store) *SnappyStore {
	return &SnappyStore{next: next}
}

func (s *SnappyStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, snappyMagic) {
		return data, nil
	}
	decoded, err := snappy.Decode(nil, data[len(snappyMagic):])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return decoded, nil
}

func (s *SnappyStore) Put(ctx context.Context, key string, data []byte) error {
	encoded := snappy.Encode(nil, data)
	out := make([]byte, 0, len(snappyMagic)+len(encoded))
	out = append(out, snappyMagic...)
	out = append(out, encoded...)
	return s.next.Put(ctx, key, out)
}
