// Package segment persists index stores: a terms file mapping each term to
// a byte offset, and a postings file of codec records in the same order.
package segment

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
)

// Store is an opened index store ready for term lookups.
type Store struct {
	paths  Paths
	dict   *Dictionary
	reader *Reader
}

// Open loads the dictionary of paths and opens its postings file.
func Open(paths Paths) (*Store, error) {
	dict, err := ReadDictionary(paths.Terms)
	if err != nil {
		return nil, fmt.Errorf("loading dictionary for %s: %w", paths.Name, err)
	}
	reader, err := OpenReader(paths.Postings)
	if err != nil {
		return nil, fmt.Errorf("opening postings for %s: %w", paths.Name, err)
	}
	return &Store{
		paths:  paths,
		dict:   dict,
		reader: reader,
	}, nil
}

// Search returns the posting list of term. A term missing from the
// dictionary is not an error.
func (s *Store) Search(term string) (index.PostingList, bool, error) {
	offset, ok := s.dict.Lookup(term)
	if !ok {
		return nil, false, nil
	}
	postings, err := s.reader.ReadPostingAt(offset)
	if err != nil {
		return nil, true, err
	}
	return postings, true, nil
}

func (s *Store) Dictionary() *Dictionary {
	return s.dict
}

func (s *Store) Paths() Paths {
	return s.paths
}

func (s *Store) Terms() int {
	return s.dict.Len()
}

func (s *Store) Close() error {
	return s.reader.Close()
}
