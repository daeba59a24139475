package docstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/registry"
)

// BoltFileName is the optional bolt mirror of the metadata table.
const BoltFileName = "docs_meta_data.db"

var bucketDocs = []byte("docs")

// BoltStore keeps document metadata in a bbolt file so queries can resolve
// ids without loading the whole table.
type BoltStore struct {
	db *bbolt.DB
}

// BoltPath returns the bolt file location inside dir.
func BoltPath(dir string) string {
	return filepath.Join(dir, BoltFileName)
}

func OpenBolt(path string, readOnly bool) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{
		Timeout:  2 * time.Second,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bolt metadata store: %w", err)
	}
	if !readOnly {
		err = db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketDocs)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating docs bucket: %w", err)
		}
	}
	return &BoltStore{db: db}, nil
}

// PutAll replaces the stored table with docs in one transaction.
func (s *BoltStore) PutAll(docs map[index.DocID]registry.DocMeta) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketDocs); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("clearing docs bucket: %w", err)
		}
		b, err := tx.CreateBucket(bucketDocs)
		if err != nil {
			return fmt.Errorf("creating docs bucket: %w", err)
		}
		for id, meta := range docs {
			data, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("marshaling doc %d: %w", id, err)
			}
			if err := b.Put(idKey(id), data); err != nil {
				return fmt.Errorf("storing doc %d: %w", id, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) Lookup(id index.DocID) (registry.DocMeta, bool, error) {
	var meta registry.DocMeta
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocs)
		if b == nil {
			return nil
		}
		data := b.Get(idKey(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return registry.DocMeta{}, false, fmt.Errorf("reading doc %d: %w", id, err)
	}
	return meta, found, nil
}

// Len returns the number of stored documents.
func (s *BoltStore) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketDocs); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// idKey encodes ids big-endian so bolt's byte order matches id order.
func idKey(id index.DocID) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}
