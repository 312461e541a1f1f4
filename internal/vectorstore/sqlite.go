package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"citerag/internal/storage/sqlite"
)

// Save replaces the contents of the SQLite index file at path with x.
func (x *FlatIP) Save(ctx context.Context, path string) error {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range []string{`DELETE FROM vectors`, `DELETE FROM index_info`} {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	info := map[string]string{
		"dim":        strconv.Itoa(x.dim),
		"count":      strconv.Itoa(len(x.vecs)),
		"model":      x.model,
		"metric":     "inner_product",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range info {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_info(key, value) VALUES(?, ?)`, k, v); err != nil {
			return err
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors(pos, vector, citation) VALUES(?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, v := range x.vecs {
		if _, err := stmt.ExecContext(ctx, i, encodeVector(v), x.keys[i]); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Load reads an index written by Save. Rows must be contiguous from 0 and
// match the recorded count and dimension. A missing file surfaces as an
// error satisfying os.IsNotExist. Load never writes: a database at another
// schema version fails with sqlite.ErrSchemaVersion.
func Load(ctx context.Context, path string) (*FlatIP, error) {
	db, err := sqlite.OpenExisting(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	info, err := readInfo(ctx, db)
	if err != nil {
		return nil, err
	}
	dim, err := strconv.Atoi(info["dim"])
	if err != nil {
		return nil, fmt.Errorf("index info dim: %w", err)
	}
	count, err := strconv.Atoi(info["count"])
	if err != nil {
		return nil, fmt.Errorf("index info count: %w", err)
	}

	x := NewFlatIP(dim, info["model"])
	rows, err := db.QueryContext(ctx, `SELECT pos, vector, citation FROM vectors ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			row  int
			blob []byte
			key  string
		)
		if err := rows.Scan(&row, &blob, &key); err != nil {
			return nil, err
		}
		if row != x.Len() {
			return nil, fmt.Errorf("index rows not contiguous: expected row %d, found %d", x.Len(), row)
		}
		v, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if err := x.Add([][]float32{v}, []string{key}); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if x.Len() != count {
		return nil, fmt.Errorf("index holds %d rows, info records %d", x.Len(), count)
	}
	return x, nil
}

func readInfo(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM index_info`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	info := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		info[k] = v
	}
	return info, rows.Err()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
