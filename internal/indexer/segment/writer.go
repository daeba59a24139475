package segment

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// termSep separates a term from its offset on a dictionary line.
const termSep = ", "

// Writer streams term entries into a new index store. Both files are written
// under a .tmp name and renamed into place by Commit, so a failed write never
// leaves a store that looks valid.
type Writer struct {
	paths     Paths
	termsF    *os.File
	postF     *os.File
	terms     *bufio.Writer
	postings  *bufio.Writer
	offset    int64
	lastTerm  string
	dict      *Dictionary
	buf       []byte
	postCount int
	closed    bool
}

// NewWriter creates the temporary files for paths.
func NewWriter(paths Paths) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(paths.Terms), 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(paths.Postings), 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	termsF, err := os.Create(paths.Terms + tmpSuffix)
	if err != nil {
		return nil, fmt.Errorf("creating temp terms file: %w", err)
	}
	postF, err := os.Create(paths.Postings + tmpSuffix)
	if err != nil {
		termsF.Close()
		os.Remove(paths.Terms + tmpSuffix)
		return nil, fmt.Errorf("creating temp postings file: %w", err)
	}
	return &Writer{
		paths:    paths,
		termsF:   termsF,
		postF:    postF,
		terms:    bufio.NewWriterSize(termsF, 64*1024),
		postings: bufio.NewWriterSize(postF, 256*1024),
		dict:     newDictionary(0),
	}, nil
}

// Append writes the posting list for term. Terms must arrive in strictly
// ascending order.
func (w *Writer) Append(term string, postings index.PostingList) error {
	if w.closed {
		return fmt.Errorf("append to closed writer for %s", w.paths.Name)
	}
	if err := ValidateTerm(term); err != nil {
		return err
	}
	if w.dict.Len() > 0 && term <= w.lastTerm {
		return apperrors.Newf(apperrors.ErrUnsortedTerm, "segment.append",
			"%q after %q", term, w.lastTerm)
	}
	var err error
	w.buf, err = codec.AppendRecord(w.buf[:0], postings)
	if err != nil {
		return fmt.Errorf("encoding postings for term %q: %w", term, err)
	}

	line := make([]byte, 0, len(term)+len(termSep)+21)
	line = append(line, term...)
	line = append(line, termSep...)
	line = strconv.AppendInt(line, w.offset, 10)
	line = append(line, '\n')
	if _, err := w.terms.Write(line); err != nil {
		return fmt.Errorf("writing dictionary entry for term %q: %w", term, err)
	}
	n, err := w.postings.Write(w.buf)
	if err != nil {
		return fmt.Errorf("writing postings for term %q: %w", term, err)
	}

	w.dict.add(term, w.offset)
	w.offset += int64(n)
	w.lastTerm = term
	w.postCount += len(postings)
	return nil
}

// Offset returns where the next record will start.
func (w *Writer) Offset() int64 {
	return w.offset
}

// Postings returns how many postings have been written.
func (w *Writer) Postings() int {
	return w.postCount
}

// Commit flushes, syncs and publishes both files and returns the dictionary
// that was written.
func (w *Writer) Commit() (*Dictionary, error) {
	if w.closed {
		return nil, fmt.Errorf("commit on closed writer for %s", w.paths.Name)
	}
	w.closed = true
	if err := w.finish(); err != nil {
		w.removeTemps()
		return nil, err
	}
	if err := os.Rename(w.paths.Postings+tmpSuffix, w.paths.Postings); err != nil {
		w.removeTemps()
		return nil, fmt.Errorf("renaming postings file: %w", err)
	}
	if err := os.Rename(w.paths.Terms+tmpSuffix, w.paths.Terms); err != nil {
		w.removeTemps()
		os.Remove(w.paths.Postings)
		return nil, fmt.Errorf("renaming terms file: %w", err)
	}
	return w.dict, nil
}

// Abort discards the temporary files. It is safe to call after Commit.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.termsF.Close()
	w.postF.Close()
	w.removeTemps()
}

func (w *Writer) finish() error {
	if err := w.terms.Flush(); err != nil {
		w.termsF.Close()
		w.postF.Close()
		return fmt.Errorf("flushing terms file: %w", err)
	}
	if err := w.postings.Flush(); err != nil {
		w.termsF.Close()
		w.postF.Close()
		return fmt.Errorf("flushing postings file: %w", err)
	}
	for _, f := range []*os.File{w.termsF, w.postF} {
		if err := f.Sync(); err != nil {
			w.termsF.Close()
			w.postF.Close()
			return fmt.Errorf("syncing %s: %w", f.Name(), err)
		}
	}
	if err := w.termsF.Close(); err != nil {
		w.postF.Close()
		return fmt.Errorf("closing terms file: %w", err)
	}
	if err := w.postF.Close(); err != nil {
		return fmt.Errorf("closing postings file: %w", err)
	}
	return nil
}

func (w *Writer) removeTemps() {
	os.Remove(w.paths.Terms + tmpSuffix)
	os.Remove(w.paths.Postings + tmpSuffix)
}

// Write stores a complete, term-sorted index in one call.
func Write(paths Paths, entries []index.TermEntry) (*Dictionary, error) {
	w, err := NewWriter(paths)
	if err != nil {
		return nil, err
	}
	defer w.Abort()
	for _, entry := range entries {
		if err := w.Append(entry.Term, entry.Postings); err != nil {
			return nil, err
		}
	}
	return w.Commit()
}

// ValidateTerm rejects terms that cannot be represented on a dictionary line.
func ValidateTerm(term string) error {
	if term == "" {
		return apperrors.New(apperrors.ErrInvalidTerm, "segment.term", "empty term")
	}
	if strings.Contains(term, termSep) || strings.ContainsAny(term, "\r\n") {
		return apperrors.Newf(apperrors.ErrInvalidTerm, "segment.term", "%q contains a separator", term)
	}
	return nil
}
