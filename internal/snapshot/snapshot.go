// Package snapshot stores one verification run (inputs, observed product and
// verdict) in a sectioned, checksummed container file.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qrv0/gemmcheck/internal/matrix"
)

// ErrCorrupt is returned when a snapshot's sections disagree with its META.
var ErrCorrupt = errors.New("snapshot: corrupt")

type Compression int

const (
	CompressNone Compression = iota
	CompressZSTD
	CompressLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressZSTD:
		return "zstd"
	case CompressLZ4:
		return "lz4"
	}
	return fmt.Sprintf("Compression(%d)", int(c))
}

func (c Compression) flag() uint32 {
	switch c {
	case CompressZSTD:
		return FlagCompZSTD
	case CompressLZ4:
		return FlagCompLZ4
	}
	return 0
}

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressNone, nil
	case "zstd":
		return CompressZSTD, nil
	case "lz4":
		return CompressLZ4, nil
	}
	return CompressNone, fmt.Errorf("snapshot: unknown compression %q", s)
}

type Meta struct {
	FormatVersion int       `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`
	M             int       `json:"m"`
	N             int       `json:"n"`
	P             int       `json:"p"`
	Alpha         float64   `json:"alpha"`
	Beta          float64   `json:"beta"`
	Backend       string    `json:"backend"`
	Device        string    `json:"device,omitempty"`
	Passed        bool      `json:"passed"`
	Mismatches    int       `json:"mismatches"`
	Compared      int       `json:"compared"`
	OffloadError  string    `json:"offload_error,omitempty"`
	Compression   string    `json:"compression"`

	ChecksumIndex map[string]Checksum `json:"checksum_index"`
}

func (m Meta) Dims() matrix.Dims { return matrix.Dims{M: m.M, N: m.N, P: m.P} }

// Snapshot is a run in memory. A, B and C are column-major with leading
// dimensions M, N and M.
type Snapshot struct {
	Meta    Meta
	A, B, C []float64
}

// Save writes s to path. The checksum index and format fields of s.Meta are
// filled in.
func Save(path string, s *Snapshot, comp Compression) error {
	d := s.Meta.Dims()
	if err := d.Validate(); err != nil {
		return fmt.Errorf("snapshot: save: %w", err)
	}
	if len(s.A) != d.M*d.N || len(s.B) != d.N*d.P || len(s.C) != d.M*d.P {
		return fmt.Errorf("%w: buffers do not match %s", ErrCorrupt, d)
	}
	payloads := map[uint32][]byte{
		TypeA: EncodeFloats(s.A),
		TypeB: EncodeFloats(s.B),
		TypeC: EncodeFloats(s.C),
	}
	s.Meta.FormatVersion = formatVersion
	s.Meta.Compression = comp.String()
	s.Meta.ChecksumIndex = make(map[string]Checksum, len(payloads))
	for t, data := range payloads {
		s.Meta.ChecksumIndex[TypeName(t)] = NewChecksum(data, DefaultChunkSize)
	}
	mb, err := json.MarshalIndent(s.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: encode meta: %w", err)
	}

	w := NewWriter()
	w.AddSection(TypeMeta, mb, 0)
	for _, t := range []uint32{TypeA, TypeB, TypeC} {
		w.AddSection(t, payloads[t], comp.flag())
	}
	return w.Write(path)
}

// ReadMeta decodes the META section.
func (r *Reader) ReadMeta() (Meta, error) {
	var m Meta
	b, err := r.SectionUncompressed(TypeMeta)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%w: meta: %v", ErrCorrupt, err)
	}
	return m, nil
}

// Load reads a snapshot written by Save. Checksums are not verified; see
// Verify.
func Load(path string) (*Snapshot, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	meta, err := r.ReadMeta()
	if err != nil {
		return nil, err
	}
	d := meta.Dims()
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	s := &Snapshot{Meta: meta}
	for _, sec := range []struct {
		t    uint32
		n    int
		into *[]float64
	}{
		{TypeA, d.M * d.N, &s.A},
		{TypeB, d.N * d.P, &s.B},
		{TypeC, d.M * d.P, &s.C},
	} {
		b, err := r.SectionUncompressed(sec.t)
		if err != nil {
			return nil, err
		}
		v, err := DecodeFloats(b)
		if err != nil {
			return nil, err
		}
		if len(v) != sec.n {
			return nil, fmt.Errorf("%w: section %s holds %d values, want %d", ErrCorrupt, TypeName(sec.t), len(v), sec.n)
		}
		*sec.into = v
	}
	return s, nil
}

// SectionCheck is the checksum verdict for one section.
type SectionCheck struct {
	Name   string
	Chunks int
	Bad    []int // mismatching chunk indexes
	Err    error // missing checksum, unreadable section, chunk count mismatch
}

func (c SectionCheck) OK() bool { return c.Err == nil && len(c.Bad) == 0 }

// Verify recomputes the rolling checksums of the matrix sections of the file
// at path against its META index. The error covers failures to read the
// container itself.
func Verify(path string) ([]SectionCheck, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	meta, err := r.ReadMeta()
	if err != nil {
		return nil, err
	}
	if meta.ChecksumIndex == nil {
		return nil, fmt.Errorf("%w: no checksum_index in META", ErrCorrupt)
	}
	var checks []SectionCheck
	for _, t := range []uint32{TypeA, TypeB, TypeC} {
		c := SectionCheck{Name: TypeName(t)}
		sum, ok := meta.ChecksumIndex[c.Name]
		if !ok {
			c.Err = fmt.Errorf("missing checksum for section %s", c.Name)
			checks = append(checks, c)
			continue
		}
		c.Chunks = sum.Count
		data, err := r.SectionUncompressed(t)
		if err != nil {
			c.Err = err
		} else {
			c.Bad, c.Err = sum.Mismatched(data)
		}
		checks = append(checks, c)
	}
	return checks, nil
}
