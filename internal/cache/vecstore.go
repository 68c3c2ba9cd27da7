//go:build sqlite_vec && !purego

package cache

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"annopipe/internal/logging"
)

func init() {
	vec.Auto()
}

// VecStore is an optional T2 near-hit backend using the sqlite-vec ANN
// extension instead of the brute-force in-memory cosine scan in cache.go's
// t2Lookup, grounded on the reference's vec0-table pattern
// (internal/store/vector_store.go's initVecIndex/vectorRecallVec). Only
// compiled with -tags sqlite_vec (cgo required).
type VecStore struct {
	db  *sql.DB
	dim int
}

// NewVecStore opens dbPath and creates the vec0 virtual table if absent.
func NewVecStore(dbPath string, dim int) (*VecStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening vec store: %w", err)
	}

	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS cache_vec USING vec0(embedding float[%d], cache_key TEXT)", dim)
	if _, err := db.Exec(stmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logging.Cache("sqlite-vec T2 store initialized: %s (dim=%d)", dbPath, dim)
	return &VecStore{db: db, dim: dim}, nil
}

func (v *VecStore) Close() error { return v.db.Close() }

// Put inserts/replaces a vector keyed by cacheKey.
func (v *VecStore) Put(cacheKey string, vector []float32) error {
	blob := encodeFloat32Blob(vector)
	_, err := v.db.Exec("DELETE FROM cache_vec WHERE cache_key = ?", cacheKey)
	if err != nil {
		return err
	}
	_, err = v.db.Exec("INSERT INTO cache_vec(embedding, cache_key) VALUES (?, ?)", blob, cacheKey)
	return err
}

// NearestKey returns the closest stored key to vector and its distance, if
// any row is within the table.
func (v *VecStore) NearestKey(vector []float32) (string, float64, bool) {
	blob := encodeFloat32Blob(vector)
	row := v.db.QueryRow(
		"SELECT cache_key, distance FROM cache_vec WHERE embedding MATCH ? ORDER BY distance LIMIT 1",
		blob,
	)
	var key string
	var distance float64
	if err := row.Scan(&key, &distance); err != nil {
		return "", 0, false
	}
	return key, distance, true
}

func encodeFloat32Blob(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
