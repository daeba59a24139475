package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/postgres"
)

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS documents (
	id         BIGINT PRIMARY KEY,
	path       TEXT NOT NULL,
	length     INTEGER NOT NULL,
	magnitude  DOUBLE PRECISION NOT NULL,
	indexed_at TIMESTAMPTZ NOT NULL
)`

const upsertDocument = `
INSERT INTO documents (id, path, length, magnitude, indexed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	path = EXCLUDED.path,
	length = EXCLUDED.length,
	magnitude = EXCLUDED.magnitude,
	indexed_at = EXCLUDED.indexed_at`

// PostgresSink exports the metadata table to a documents table.
type PostgresSink struct {
	client *postgres.Client
	now    func() time.Time
	logger *slog.Logger
}

func NewPostgresSink(client *postgres.Client) *PostgresSink {
	return &PostgresSink{
		client: client,
		now:    time.Now,
		logger: slog.Default().With("component", "docstore-postgres"),
	}
}

// Export upserts every document in one transaction.
func (s *PostgresSink) Export(ctx context.Context, docs map[index.DocID]registry.DocMeta) error {
	ids := make([]index.DocID, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	indexedAt := s.now().UTC()

	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, createDocumentsTable); err != nil {
			return fmt.Errorf("creating documents table: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, upsertDocument)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			meta := docs[id]
			if _, err := stmt.ExecContext(ctx, int64(id), meta.Path, meta.Length, meta.Magnitude, indexedAt); err != nil {
				return fmt.Errorf("upserting document %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("metadata exported", "documents", len(ids))
	return nil
}
