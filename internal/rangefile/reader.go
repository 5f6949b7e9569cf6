// Package rangefile implements a read-only, memory-mapped binary
// store of sorted, disjoint S2-cell-id ranges. It is the sole
// mechanism by which the policy dataset reaches the rest of the
// service: everything above this package treats the mapped bytes as
// an opaque, pre-validated lookup table.
package rangefile

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
	"github.com/golang/geo/s2"

	"github.com/malbeclabs/satgate/internal/s2cell"
)

// S2Range is a half-open [Start, End) range of S2 cell ids, both at
// the file's declared level.
type S2Range struct {
	Start s2.CellID
	End   s2.CellID
}

// Reader is a read-only view over a range file. Find is safe for
// concurrent callers. Close is not: the caller must ensure no other
// goroutine is calling Find when Close runs, exactly as
// rangefile.Reader's sibling internal/verdictcache.Cache documents
// for its own single-owner invariant.
type Reader struct {
	path        string
	data        mmap.MMap
	file        *os.File
	level       int
	isAllowList bool
	rangeCount  uint32
	bodyOffset  int
}

// Open mmaps path, parses and validates its header and range body,
// and returns a ready-to-query Reader.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IoError{Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &IoError{Path: path, Err: err}
	}
	if info.Size() < headerSize {
		_ = f.Close()
		return nil, &FormatError{Reason: fmt.Sprintf("file too small: %d bytes", info.Size())}
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, &IoError{Path: path, Err: err}
	}

	r := &Reader{path: path, data: data, file: f}
	if err := r.parseHeader(); err != nil {
		_ = data.Unmap()
		_ = f.Close()
		return nil, err
	}
	if err := r.validateRanges(); err != nil {
		_ = data.Unmap()
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	if string(r.data[0:4]) != magic {
		return &FormatError{Reason: fmt.Sprintf("bad magic %q", r.data[0:4])}
	}
	version := binary.LittleEndian.Uint16(r.data[4:6])
	if version != currentVersion {
		return &FormatError{Reason: fmt.Sprintf("unsupported version %d", version)}
	}
	level := int(r.data[6])
	if level < s2cell.MinLevel || level > s2cell.MaxLevel {
		return &FormatError{Reason: fmt.Sprintf("level %d out of bounds [%d,%d]", level, s2cell.MinLevel, s2cell.MaxLevel)}
	}
	mode := r.data[7]
	if mode != modeAllowList && mode != modeDenyList {
		return &FormatError{Reason: fmt.Sprintf("bad mode byte %d", mode)}
	}
	count := binary.LittleEndian.Uint32(r.data[8:12])

	wantSize := headerSize + int(count)*rangeSize
	if len(r.data) != wantSize {
		return &FormatError{Reason: fmt.Sprintf("size mismatch: have %d bytes, want %d for %d ranges", len(r.data), wantSize, count)}
	}

	r.level = level
	r.isAllowList = mode == modeAllowList
	r.rangeCount = count
	r.bodyOffset = headerSize
	return nil
}

func (r *Reader) validateRanges() error {
	var prevEnd s2.CellID
	for i := uint32(0); i < r.rangeCount; i++ {
		rng := r.rangeAt(i)
		if rng.Start >= rng.End {
			return &FormatError{Reason: fmt.Sprintf("range %d not strictly increasing: [%d,%d)", i, rng.Start, rng.End)}
		}
		if i > 0 && rng.Start < prevEnd {
			return &FormatError{Reason: fmt.Sprintf("range %d overlaps previous range (start=%d < prevEnd=%d)", i, rng.Start, prevEnd)}
		}
		prevEnd = rng.End
	}
	return nil
}

func (r *Reader) rangeAt(i uint32) S2Range {
	off := r.bodyOffset + int(i)*rangeSize
	start := binary.LittleEndian.Uint64(r.data[off : off+8])
	end := binary.LittleEndian.Uint64(r.data[off+8 : off+16])
	return S2Range{Start: s2.CellID(start), End: s2.CellID(end)}
}

// Level returns the S2 level all ranges in this file are normalized to.
func (r *Reader) Level() int { return r.level }

// IsAllowList reports whether the file enumerates allowed regions
// (true) or denied regions (false).
func (r *Reader) IsAllowList() bool { return r.isAllowList }

// Find returns the range containing id, if any, via binary search
// over the sorted, disjoint range sequence.
func (r *Reader) Find(id s2.CellID) (S2Range, bool) {
	n := int(r.rangeCount)
	i := sort.Search(n, func(i int) bool {
		return r.rangeAt(uint32(i)).End > id
	})
	if i == n {
		return S2Range{}, false
	}
	rng := r.rangeAt(uint32(i))
	if id < rng.Start {
		return S2Range{}, false
	}
	return rng, true
}

// Close unmaps the file and releases the underlying file descriptor.
func (r *Reader) Close() error {
	if r.data == nil {
		return errClosed
	}
	err := r.data.Unmap()
	r.data = nil
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}
