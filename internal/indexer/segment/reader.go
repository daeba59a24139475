package segment

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// Reader gives random access to the records of a postings file.
type Reader struct {
	file     *os.File
	filePath string
	size     int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "segment.open", "%s", path)
		}
		return nil, fmt.Errorf("opening postings file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat postings file: %w", err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		size:     info.Size(),
	}, nil
}

// ReadPostingAt decodes the single record that starts at offset.
func (r *Reader) ReadPostingAt(offset int64) (index.PostingList, error) {
	if offset < 0 || offset >= r.size {
		return nil, apperrors.Corruptf("segment.read", "%s: offset %d outside file of %d bytes",
			r.filePath, offset, r.size)
	}
	section := io.NewSectionReader(r.file, offset, r.size-offset)
	postings, _, err := codec.ReadRecord(bufio.NewReader(section))
	if err != nil {
		return nil, fmt.Errorf("reading postings at %s:%d: %w", r.filePath, offset, err)
	}
	return postings, nil
}

// Size returns the postings file size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) Close() error {
	return r.file.Close()
}
