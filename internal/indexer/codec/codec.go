// Package codec reads and writes posting-list records.
//
// A record is a single line of comma-terminated decimal integers:
//
//	df,docID,freq,p0,d1,...,dn,docID,freq,...,\n
//
// Positions after the first are stored as the difference from the previous
// position. Records carry no length prefix, so the dictionary offsets are the
// only random-access entry points into a postings file.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

const (
	fieldSep  = ','
	recordEnd = '\n'
)

// Validate checks the posting-list invariants the encoding relies on.
func Validate(list index.PostingList) error {
	for i, p := range list {
		if i > 0 && p.DocID <= list[i-1].DocID {
			return apperrors.Newf(apperrors.ErrInvalidPosting, "codec.validate",
				"doc %d follows doc %d", p.DocID, list[i-1].DocID)
		}
		if p.Frequency <= 0 || p.Frequency != len(p.Positions) {
			return apperrors.Newf(apperrors.ErrInvalidPosting, "codec.validate",
				"doc %d: frequency %d with %d positions", p.DocID, p.Frequency, len(p.Positions))
		}
		if p.Positions[0] < 0 {
			return apperrors.Newf(apperrors.ErrInvalidPosting, "codec.validate",
				"doc %d: negative position %d", p.DocID, p.Positions[0])
		}
		for k := 1; k < len(p.Positions); k++ {
			if p.Positions[k] <= p.Positions[k-1] {
				return apperrors.Newf(apperrors.ErrInvalidPosting, "codec.validate",
					"doc %d: positions not ascending at %d", p.DocID, k)
			}
		}
	}
	return nil
}

// AppendRecord appends the encoded record for list to dst.
func AppendRecord(dst []byte, list index.PostingList) ([]byte, error) {
	if err := Validate(list); err != nil {
		return dst, err
	}
	dst = appendField(dst, uint64(len(list)))
	for _, p := range list {
		dst = appendField(dst, uint64(p.DocID))
		dst = appendField(dst, uint64(p.Frequency))
		prev := 0
		for k, pos := range p.Positions {
			if k == 0 {
				dst = appendField(dst, uint64(pos))
			} else {
				dst = appendField(dst, uint64(pos-prev))
			}
			prev = pos
		}
	}
	return append(dst, recordEnd), nil
}

// Encode writes one record and returns the number of bytes written, which
// callers add to their running offset.
func Encode(w io.Writer, list index.PostingList) (int, error) {
	buf, err := AppendRecord(make([]byte, 0, 16+len(list)*16), list)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("writing posting record: %w", err)
	}
	return n, nil
}

// EncodedLen returns the size of the record Encode would write.
func EncodedLen(list index.PostingList) (int, error) {
	buf, err := AppendRecord(nil, list)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

func appendField(dst []byte, v uint64) []byte {
	dst = strconv.AppendUint(dst, v, 10)
	return append(dst, fieldSep)
}

// Decode parses exactly one record. A trailing newline is required.
func Decode(record []byte) (index.PostingList, error) {
	if len(record) == 0 || record[len(record)-1] != recordEnd {
		return nil, apperrors.Corruptf("codec.decode", "record not newline terminated")
	}
	body := bytes.TrimSuffix(record[:len(record)-1], []byte{'\r'})
	d := decoder{buf: body}

	df, err := d.next("document frequency")
	if err != nil {
		return nil, err
	}
	if df > uint64(len(body)) {
		return nil, apperrors.Corruptf("codec.decode", "document frequency %d exceeds record size", df)
	}
	list := make(index.PostingList, 0, df)
	for i := uint64(0); i < df; i++ {
		id, err := d.next("doc id")
		if err != nil {
			return nil, err
		}
		freq, err := d.next("frequency")
		if err != nil {
			return nil, err
		}
		if freq == 0 || freq > uint64(len(body)) {
			return nil, apperrors.Corruptf("codec.decode", "doc %d: bad frequency %d", id, freq)
		}
		positions := make([]int, freq)
		for k := range positions {
			v, err := d.next("position")
			if err != nil {
				return nil, err
			}
			if k == 0 {
				if v > math.MaxInt {
					return nil, apperrors.Corruptf("codec.decode", "doc %d: position %d out of range", id, v)
				}
				positions[k] = int(v)
				continue
			}
			if v == 0 {
				return nil, apperrors.Corruptf("codec.decode", "doc %d: zero position delta", id)
			}
			if v > uint64(math.MaxInt-positions[k-1]) {
				return nil, apperrors.Corruptf("codec.decode", "doc %d: position delta %d overflows", id, v)
			}
			positions[k] = positions[k-1] + int(v)
		}
		if len(list) > 0 && index.DocID(id) <= list[len(list)-1].DocID {
			return nil, apperrors.Corruptf("codec.decode", "doc %d out of order", id)
		}
		list = append(list, index.Posting{
			DocID:     index.DocID(id),
			Frequency: int(freq),
			Positions: positions,
		})
	}
	if !d.done() {
		return nil, apperrors.Corruptf("codec.decode", "%d trailing bytes after %d postings", len(d.buf)-d.pos, df)
	}
	return list, nil
}

// ReadRecord reads and decodes the record at the reader's position. It
// returns the number of bytes consumed.
func ReadRecord(r *bufio.Reader) (index.PostingList, int, error) {
	line, err := r.ReadBytes(recordEnd)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil, 0, apperrors.Corruptf("codec.read", "no record at offset")
			}
			return nil, len(line), apperrors.Corruptf("codec.read", "truncated record")
		}
		return nil, len(line), fmt.Errorf("reading posting record: %w", err)
	}
	list, err := Decode(line)
	return list, len(line), err
}

type decoder struct {
	buf []byte
	pos int
}

// next parses the next comma-terminated field.
func (d *decoder) next(what string) (uint64, error) {
	if d.pos >= len(d.buf) {
		return 0, apperrors.Corruptf("codec.decode", "record ended before %s", what)
	}
	end := bytes.IndexByte(d.buf[d.pos:], fieldSep)
	if end < 0 {
		return 0, apperrors.Corruptf("codec.decode", "unterminated %s field", what)
	}
	field := d.buf[d.pos : d.pos+end]
	v, err := strconv.ParseUint(string(field), 10, 63)
	if err != nil {
		return 0, apperrors.Corruptf("codec.decode", "%s %q is not a number", what, field)
	}
	d.pos += end + 1
	return v, nil
}

func (d *decoder) done() bool {
	return d.pos == len(d.buf)
}
