package segment

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// DictEntry maps a term to the offset of its record in the postings file.
type DictEntry struct {
	Term   string
	Offset int64
}

// Dictionary is the term lookup table of one index store. Offsets are only
// meaningful against the postings file the dictionary was written with.
type Dictionary struct {
	offsets map[string]int64
	terms   []string
}

func newDictionary(size int) *Dictionary {
	return &Dictionary{
		offsets: make(map[string]int64, size),
		terms:   make([]string, 0, size),
	}
}

func (d *Dictionary) add(term string, offset int64) {
	d.offsets[term] = offset
	d.terms = append(d.terms, term)
}

// Lookup returns the postings offset of term.
func (d *Dictionary) Lookup(term string) (int64, bool) {
	off, ok := d.offsets[term]
	return off, ok
}

// Terms returns the terms in file order, which is ascending.
func (d *Dictionary) Terms() []string {
	out := make([]string, len(d.terms))
	copy(out, d.terms)
	return out
}

// Entries returns the dictionary as ordered (term, offset) pairs.
func (d *Dictionary) Entries() []DictEntry {
	out := make([]DictEntry, len(d.terms))
	for i, t := range d.terms {
		out[i] = DictEntry{Term: t, Offset: d.offsets[t]}
	}
	return out
}

func (d *Dictionary) Len() int {
	return len(d.terms)
}

// ReadDictionary loads a terms file into memory.
func ReadDictionary(path string) (*Dictionary, error) {
	c, err := OpenCursor(path)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	dict := newDictionary(0)
	for c.Next() {
		e := c.Entry()
		dict.add(e.Term, e.Offset)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return dict, nil
}

// Cursor streams a terms file one line at a time. It is the merge's view of
// a shard dictionary: only the current entry is held in memory.
type Cursor struct {
	file    *os.File
	r       *bufio.Reader
	path    string
	line    int
	cur     DictEntry
	hasPrev bool
	err     error
}

// OpenCursor opens a terms file for streaming.
func OpenCursor(path string) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "segment.open", "%s", path)
		}
		return nil, fmt.Errorf("opening terms file: %w", err)
	}
	return &Cursor{
		file: f,
		r:    bufio.NewReaderSize(f, 64*1024),
		path: path,
	}, nil
}

// Next advances to the next entry. It returns false at end of file or on
// error; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	raw, err := c.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		c.err = fmt.Errorf("reading %s: %w", c.path, err)
		return false
	}
	if raw == "" {
		return false
	}
	c.line++
	if !strings.HasSuffix(raw, "\n") {
		c.err = apperrors.Corruptf("segment.dictionary", "%s:%d: missing newline", c.path, c.line)
		return false
	}
	entry, perr := parseLine(strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r"))
	if perr != nil {
		c.err = apperrors.Corruptf("segment.dictionary", "%s:%d: %v", c.path, c.line, perr)
		return false
	}
	if c.hasPrev && entry.Term <= c.cur.Term {
		c.err = apperrors.Corruptf("segment.dictionary", "%s:%d: %q after %q", c.path, c.line, entry.Term, c.cur.Term)
		return false
	}
	c.cur = entry
	c.hasPrev = true
	return true
}

// Entry returns the current entry.
func (c *Cursor) Entry() DictEntry {
	return c.cur
}

func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) Close() error {
	return c.file.Close()
}

func parseLine(line string) (DictEntry, error) {
	idx := strings.LastIndex(line, termSep)
	if idx <= 0 {
		return DictEntry{}, fmt.Errorf("malformed line %q", line)
	}
	term := line[:idx]
	offset, err := strconv.ParseInt(line[idx+len(termSep):], 10, 64)
	if err != nil || offset < 0 {
		return DictEntry{}, fmt.Errorf("bad offset in line %q", line)
	}
	return DictEntry{Term: term, Offset: offset}, nil
}
