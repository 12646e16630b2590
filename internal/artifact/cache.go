package artifact

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/raster-lang/raster/internal/cfs"
)

// Fingerprint computes a source fingerprint: a fast,
// non-cryptographic checksum of the file's bytes combined with its
// length. It is a cache key, not an identity: collisions only cost
// an unnecessary rebuild, never a correctness violation.
func Fingerprint(sourceBytes []byte) string {
	sum := xxhash.Sum64(sourceBytes)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], sum)
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(sourceBytes)))
	return fmt.Sprintf("%x", buf)
}

// cacheEntry mirrors one row of the on-disk cache index.
type cacheEntry struct {
	TileID      cfs.TileID
	Backend     string
	Fingerprint string
	Dir         string
}

// cacheIndex is a small sqlite-backed table mapping (tile id, backend)
// to the last fingerprint built and the artifact directory it lives
// in, backed by an in-process LRU of the same rows to avoid a query
// for every lookup within one build run.
type cacheIndex struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	hot  *lru.Cache[string, cacheEntry]
}

func openCacheIndex(path string) (*cacheIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating cache index directory: %w", err)
	}
	conn, err := sqlite.OpenConn(path, sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_CREATE)
	if err != nil {
		return nil, fmt.Errorf("artifact: opening cache index %s: %w", path, err)
	}
	if err := sqlitex.ExecTransient(conn, `PRAGMA journal_mode=WAL`, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("artifact: enabling WAL mode: %w", err)
	}
	if err := sqlitex.ExecTransient(conn, `CREATE TABLE IF NOT EXISTS cache_index (
		tile_id TEXT NOT NULL,
		backend TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		dir TEXT NOT NULL,
		PRIMARY KEY (tile_id, backend)
	)`, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("artifact: creating cache_index table: %w", err)
	}

	hot, err := lru.New[string, cacheEntry](256)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("artifact: constructing hot cache: %w", err)
	}
	return &cacheIndex{conn: conn, hot: hot}, nil
}

func (c *cacheIndex) close() error {
	return c.conn.Close()
}

func cacheKey(tileID cfs.TileID, backendName string) string {
	return tileID + "\x00" + backendName
}

// lookup returns the recorded cache entry for (tileID, backendName),
// if any, checking the hot cache before the sqlite index.
func (c *cacheIndex) lookup(tileID cfs.TileID, backendName string) (cacheEntry, bool, error) {
	key := cacheKey(tileID, backendName)
	if entry, ok := c.hot.Get(key); ok {
		return entry, true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var entry cacheEntry
	found := false
	err := sqlitex.Exec(c.conn,
		`SELECT tile_id, backend, fingerprint, dir FROM cache_index WHERE tile_id = ? AND backend = ?`,
		func(stmt *sqlite.Stmt) error {
			entry = cacheEntry{
				TileID:      stmt.ColumnText(0),
				Backend:     stmt.ColumnText(1),
				Fingerprint: stmt.ColumnText(2),
				Dir:         stmt.ColumnText(3),
			}
			found = true
			return nil
		}, tileID, backendName)
	if err != nil {
		return cacheEntry{}, false, fmt.Errorf("artifact: querying cache index: %w", err)
	}
	if found {
		c.hot.Add(key, entry)
	}
	return entry, found, nil
}

// record upserts a cache entry after a successful build.
func (c *cacheIndex) record(entry cacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := sqlitex.Exec(c.conn,
		`INSERT INTO cache_index (tile_id, backend, fingerprint, dir) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tile_id, backend) DO UPDATE SET fingerprint = excluded.fingerprint, dir = excluded.dir`,
		nil, entry.TileID, entry.Backend, entry.Fingerprint, entry.Dir)
	if err != nil {
		return fmt.Errorf("artifact: recording cache entry: %w", err)
	}
	c.hot.Add(cacheKey(entry.TileID, entry.Backend), entry)
	return nil
}
