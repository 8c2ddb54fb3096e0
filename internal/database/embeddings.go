package database

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/TobiSchelling/painscout/internal/embedding"
)

// maxParams keeps IN lists under SQLite's bound-parameter limit.
const maxParams = 500

// EmbeddingCache is the SQLite-backed embedding.Cache.
type EmbeddingCache struct {
	db *DB
}

// EmbeddingCache returns the cache view of the database.
func (db *DB) EmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{db: db}
}

// Get returns the cached vectors among hashes for model.
func (c *EmbeddingCache) Get(ctx context.Context, model string, hashes []string) (map[string]embedding.Vector, error) {
	out := make(map[string]embedding.Vector, len(hashes))
	for start := 0; start < len(hashes); start += maxParams {
		chunk := hashes[start:min(start+maxParams, len(hashes))]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, model)
		for _, h := range chunk {
			args = append(args, h)
		}
		query := `SELECT hash, dims, vector FROM embedding_cache WHERE model = ? AND hash IN (?` +
			strings.Repeat(", ?", len(chunk)-1) + `)`

		rows, err := c.db.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying embedding cache: %w", err)
		}
		for rows.Next() {
			var hash string
			var dims int
			var blob []byte
			if err := rows.Scan(&hash, &dims, &blob); err != nil {
				rows.Close()
				return nil, err
			}
			v, err := decodeVector(blob, dims)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("cached vector %s: %w", hash, err)
			}
			out[hash] = v
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// Put upserts entries; an existing (hash, model) row is replaced.
func (c *EmbeddingCache) Put(ctx context.Context, entries []embedding.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := c.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO embedding_cache (hash, model, preview, dims, vector) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(hash, model) DO UPDATE SET
    preview = excluded.preview, dims = excluded.dims, vector = excluded.vector`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Hash, e.Model, e.Preview, len(e.Vector), encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("caching embedding %s: %w", e.Hash, err)
		}
	}
	return tx.Commit()
}

// PruneEmbeddings deletes cache entries written more than olderThan ago.
func (db *DB) PruneEmbeddings(olderThan time.Duration) (int64, error) {
	res, err := db.conn.Exec(
		`DELETE FROM embedding_cache WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d seconds", int64(olderThan.Seconds())),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// encodeVector stores a vector as little-endian float32s.
func encodeVector(v embedding.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(blob []byte, dims int) (embedding.Vector, error) {
	if len(blob) != 4*dims {
		return nil, fmt.Errorf("blob is %d bytes, want %d", len(blob), 4*dims)
	}
	v := make(embedding.Vector, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v, nil
}
