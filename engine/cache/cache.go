// Package cache stores embedding vectors keyed by the MD5 of the exact text
// they were computed from. Entries never expire. IO problems degrade to
// misses and dropped writes rather than errors.
package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
)

// Store is a content-addressed vector cache.
type Store interface {
	Get(key string) ([]float32, bool)
	Set(key string, vec []float32)
}

// Stats describes the cache contents.
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Key returns the hex MD5 digest of text.
func Key(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

var magic = [4]byte{'R', 'V', 'C', '1'}

var errCorrupt = errors.New("cache: corrupt entry")

// encode lays out magic, uint32 dimension and the float32 values, little endian.
func encode(vec []float32) []byte {
	buf := make([]byte, 8+4*len(vec))
	copy(buf, magic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[8+4*i:], math.Float32bits(v))
	}
	return buf
}

func decode(buf []byte) ([]float32, error) {
	if len(buf) < 8 || !bytes.Equal(buf[:4], magic[:]) {
		return nil, errCorrupt
	}
	n := int(binary.LittleEndian.Uint32(buf[4:]))
	if len(buf) != 8+4*n {
		return nil, errCorrupt
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8+4*i:]))
	}
	return vec, nil
}
