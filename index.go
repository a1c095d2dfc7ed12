package chparse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// An IndexEntry is one line of a multistream index: the page and the byte
// offset of the bz2 stream that holds it.
type IndexEntry struct {
	StreamOffset int64
	PageID       string
	Title        string
}

func (e IndexEntry) String() string {
	return fmt.Sprintf("%d:%s:%s", e.StreamOffset, e.PageID, e.Title)
}

// An IndexReader reads the entries of a multistream index in order.
type IndexReader struct {
	s    *bufio.Scanner
	line int
	// Offsets in older indexes were written as signed 32 bit numbers, so
	// they wrap around. wrap counts the wraps seen so far.
	wrap int64
	prev int64
}

// NewIndexReader reads index lines from r.
func NewIndexReader(r io.Reader) *IndexReader {
	return &IndexReader{s: bufio.NewScanner(r)}
}

// Next returns the next entry, or io.EOF after the last one.
func (ir *IndexReader) Next() (IndexEntry, error) {
	if !ir.s.Scan() {
		if err := ir.s.Err(); err != nil {
			return IndexEntry{}, err
		}
		return IndexEntry{}, io.EOF
	}
	ir.line++

	offset, rest, ok := strings.Cut(ir.s.Text(), ":")
	if !ok {
		return IndexEntry{}, fmt.Errorf("bad index record on line %d", ir.line)
	}
	id, title, ok := strings.Cut(rest, ":")
	if !ok {
		return IndexEntry{}, fmt.Errorf("bad index record on line %d", ir.line)
	}
	raw, err := strconv.ParseInt(offset, 10, 64)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("index line %d: %w", ir.line, err)
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return IndexEntry{}, fmt.Errorf("index line %d: page id: %w", ir.line, err)
	}

	if raw < ir.prev {
		ir.wrap++
	}
	ir.prev = raw
	return IndexEntry{
		StreamOffset: raw + ir.wrap<<32,
		PageID:       id,
		Title:        title,
	}, nil
}

// IndexSize is the shape of a multistream dump as described by its index.
type IndexSize struct {
	Streams int
	Pages   int64
}

// CountIndex reads a whole index and reports how many compressed streams
// and pages the matching dump holds. The page count sizes progress
// reports while the dump is read sequentially.
func CountIndex(r io.Reader) (IndexSize, error) {
	ir := NewIndexReader(r)
	var rv IndexSize
	last := int64(-1)
	for {
		e, err := ir.Next()
		if err == io.EOF {
			return rv, nil
		}
		if err != nil {
			return rv, err
		}
		rv.Pages++
		if e.StreamOffset != last {
			rv.Streams++
			last = e.StreamOffset
		}
	}
}

// CountIndexFile is CountIndex over a possibly compressed index file.
func CountIndexFile(filename string) (IndexSize, error) {
	f, err := Open(filename)
	if err != nil {
		return IndexSize{}, err
	}
	defer f.Close()
	return CountIndex(f)
}
