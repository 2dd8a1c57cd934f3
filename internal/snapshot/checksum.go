package snapshot

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	xxh3 "github.com/zeebo/xxh3"
)

// DefaultChunkSize is the span covered by one rolling checksum.
const DefaultChunkSize = 1 << 20

const checksumAlgo = "xxh3-64"

// Checksum is the META index entry of one section. Hashes are hex strings so
// they survive JSON number precision.
type Checksum struct {
	Algo      string   `json:"algo"`
	ChunkSize int      `json:"chunk_size"`
	Count     int      `json:"count"`
	HashesHex []string `json:"hashes_hex"`
}

// Roll hashes data in chunk-sized pieces; the last piece may be short.
func Roll(data []byte, chunk int) []uint64 {
	hashes := make([]uint64, 0, (len(data)+chunk-1)/chunk)
	for i := 0; i < len(data); i += chunk {
		end := min(i+chunk, len(data))
		hashes = append(hashes, xxh3.Hash(data[i:end]))
	}
	return hashes
}

// NewChecksum builds the index entry for an uncompressed payload.
func NewChecksum(data []byte, chunk int) Checksum {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	hashes := Roll(data, chunk)
	hx := make([]string, len(hashes))
	for i, h := range hashes {
		hx[i] = fmt.Sprintf("%016x", h)
	}
	return Checksum{Algo: checksumAlgo, ChunkSize: chunk, Count: len(hashes), HashesHex: hx}
}

func (c Checksum) hashes() ([]uint64, error) {
	out := make([]uint64, len(c.HashesHex))
	for i, s := range c.HashesHex {
		v, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("snapshot: bad hash %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Mismatched returns the indexes of chunks of data whose hash differs from c.
// A chunk count difference is an error.
func (c Checksum) Mismatched(data []byte) ([]int, error) {
	if c.Algo != checksumAlgo {
		return nil, fmt.Errorf("snapshot: unsupported checksum algo %q", c.Algo)
	}
	if c.ChunkSize <= 0 {
		return nil, fmt.Errorf("snapshot: bad chunk size %d", c.ChunkSize)
	}
	want, err := c.hashes()
	if err != nil {
		return nil, err
	}
	have := Roll(data, c.ChunkSize)
	if len(have) != len(want) {
		return nil, fmt.Errorf("snapshot: chunk count mismatch have %d want %d", len(have), len(want))
	}
	var bad []int
	for i := range have {
		if have[i] != want[i] {
			bad = append(bad, i)
		}
	}
	return bad, nil
}

// Digest is the xxh3-64 of v as little-endian float64.
func Digest(v []float64) uint64 {
	return xxh3.Hash(EncodeFloats(v))
}

func EncodeFloats(v []float64) []byte {
	out := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(x))
	}
	return out
}

func DecodeFloats(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("snapshot: float64 payload of %d bytes", len(b))
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return out, nil
}
