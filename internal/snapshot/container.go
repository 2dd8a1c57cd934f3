package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
)

var magic = [8]byte{'G', 'E', 'M', 'M', 'S', 'N', 'A', 'P'}

// ErrNotSnapshot is returned by Open for files without the snapshot magic.
var ErrNotSnapshot = errors.New("snapshot: not a snapshot file")

const formatVersion = 1

// Section types.
const (
	TypeMeta uint32 = 1
	TypeA    uint32 = 2
	TypeB    uint32 = 3
	TypeC    uint32 = 4
)

// Per-section compression flags.
const (
	FlagCompZSTD uint32 = 1 << 0
	FlagCompLZ4  uint32 = 1 << 1
)

const sectionAlign = 4096

// TypeName is the short name used in checksum indexes and listings.
func TypeName(t uint32) string {
	switch t {
	case TypeMeta:
		return "meta"
	case TypeA:
		return "a"
	case TypeB:
		return "b"
	case TypeC:
		return "c"
	}
	return fmt.Sprintf("type%d", t)
}

type header struct {
	Version, Count, Reserved uint32
}

// TOCEntry locates one section. Size is the stored (possibly compressed) size.
type TOCEntry struct {
	TypeID uint32
	Offset uint64
	Size   uint64
	Flags  uint32
}

const tocEntrySize = 4 + 8 + 8 + 4

type section struct {
	typeID uint32
	data   []byte
	flags  uint32
}

// Writer assembles sections in memory and lays them out on Write.
type Writer struct {
	sections []section
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) AddSection(t uint32, data []byte, flags uint32) {
	w.sections = append(w.sections, section{typeID: t, data: data, flags: flags})
}

func zstdEncode(b []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(b, make([]byte, 0, len(b)/2)), nil
}

func zstdDecode(b []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(b, nil)
}

func lz4Encode(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decode(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lz4.NewReader(bytes.NewReader(b))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func alignUp(x, a int64) int64 {
	if r := x % a; r != 0 {
		return x + a - r
	}
	return x
}

// Write encodes every section per its flags and writes the container to path.
func (w *Writer) Write(path string) error {
	if len(w.sections) == 0 {
		return errors.New("snapshot: no sections")
	}
	payloads := make([][]byte, len(w.sections))
	for i, s := range w.sections {
		data := s.data
		var err error
		switch {
		case s.flags&FlagCompZSTD != 0:
			data, err = zstdEncode(data)
		case s.flags&FlagCompLZ4 != 0:
			data, err = lz4Encode(data)
		}
		if err != nil {
			return fmt.Errorf("snapshot: compress %s: %w", TypeName(s.typeID), err)
		}
		payloads[i] = data
	}

	toc := make([]TOCEntry, len(w.sections))
	offset := alignUp(int64(len(magic)+12+tocEntrySize*len(w.sections)), sectionAlign)
	for i, s := range w.sections {
		toc[i] = TOCEntry{TypeID: s.typeID, Offset: uint64(offset), Size: uint64(len(payloads[i])), Flags: s.flags}
		offset = alignUp(offset+int64(len(payloads[i])), sectionAlign)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeContainer(f, toc, payloads); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return f.Close()
}

func writeContainer(f *os.File, toc []TOCEntry, payloads [][]byte) error {
	if _, err := f.Write(magic[:]); err != nil {
		return err
	}
	hdr := header{Version: formatVersion, Count: uint32(len(toc))}
	if err := binary.Write(f, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	for i := range toc {
		if err := binary.Write(f, binary.LittleEndian, &toc[i]); err != nil {
			return err
		}
	}
	for i, e := range toc {
		if _, err := f.WriteAt(payloads[i], int64(e.Offset)); err != nil {
			return err
		}
	}
	// extend to the aligned end so the last section is padded like the others
	last := toc[len(toc)-1]
	return f.Truncate(alignUp(int64(last.Offset+last.Size), sectionAlign))
}

// Reader gives random access to the sections of a snapshot file.
type Reader struct {
	f       *os.File
	Version uint32
	TOC     []TOCEntry
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := readTOC(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	return r, nil
}

func readTOC(f *os.File) (*Reader, error) {
	var head [8]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return nil, err
	}
	if head != magic {
		return nil, ErrNotSnapshot
	}
	var hdr header
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Version != formatVersion {
		return nil, fmt.Errorf("unsupported version %d", hdr.Version)
	}
	toc := make([]TOCEntry, hdr.Count)
	for i := range toc {
		if err := binary.Read(f, binary.LittleEndian, &toc[i]); err != nil {
			return nil, err
		}
	}
	return &Reader{f: f, Version: hdr.Version, TOC: toc}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) entry(typeID uint32) (TOCEntry, error) {
	for _, e := range r.TOC {
		if e.TypeID == typeID {
			return e, nil
		}
	}
	return TOCEntry{}, fmt.Errorf("snapshot: section %s not found", TypeName(typeID))
}

// Section returns the stored bytes of a section without decompressing.
func (r *Reader) Section(typeID uint32) ([]byte, error) {
	e, err := r.entry(typeID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, e.Size)
	if _, err := r.f.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", TypeName(typeID), err)
	}
	return buf, nil
}

// SectionUncompressed returns the section payload, decompressed per its flags.
func (r *Reader) SectionUncompressed(typeID uint32) ([]byte, error) {
	e, err := r.entry(typeID)
	if err != nil {
		return nil, err
	}
	buf, err := r.Section(typeID)
	if err != nil {
		return nil, err
	}
	switch {
	case e.Flags&FlagCompZSTD != 0:
		buf, err = zstdDecode(buf)
	case e.Flags&FlagCompLZ4 != 0:
		buf, err = lz4Decode(buf)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: decompress %s: %w", TypeName(typeID), err)
	}
	return buf, nil
}
