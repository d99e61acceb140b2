package cache

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// Storage opens and manages named cache namespaces.
// A namespace is an isolated key/value store of request→response entries;
// entries written to one namespace are never visible in another.
//
// Implementations must be thread-safe!
type Storage interface {
	// Open returns the cache handle for the given namespace,
	// creating the namespace if it does not exist yet.
	Open(name string) (Cache, error)
	// ListNames returns the names of all namespaces that contain entries.
	ListNames() ([]string, error)
	// Delete removes a namespace and all its entries.
	// It returns true if the namespace existed.
	Delete(name string) (bool, error)
}

// Cache is a handle to one namespace.
// It stores and retrieves []byte values, which represent HTTP response
// snapshots, keyed by request identity.
//
// Implementations must be thread-safe!
type Cache interface {
	// Get returns the stored snapshot for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(key string) ([]byte, bool, error)
	// Put stores the given snapshot in the cache under the given key,
	// replacing any previous entry (last writer wins).
	Put(key string, snapshot []byte) error
	// Keys calls the given callback for each key in the namespace.
	// It calls the callback in order to enable very large lists of keys to be
	// processable (provider implementation might use paging, for instance).
	Keys(cb func(string))
	// Purge removes the entry for the given key.
	Purge(key string)
}

// MemoryStorage keeps all namespaces in process memory.
type MemoryStorage struct {
	mutex *sync.RWMutex
	dbs   map[string]map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		mutex: &sync.RWMutex{},
		dbs:   make(map[string]map[string][]byte),
	}
}

func (m *MemoryStorage) Open(name string) (Cache, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.dbs[name]; !ok {
		m.dbs[name] = make(map[string][]byte)
	}
	return &memoryCache{storage: m, name: name}, nil
}

func (m *MemoryStorage) ListNames() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.dbs))
	for name, db := range m.dbs {
		if len(db) > 0 {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *MemoryStorage) Delete(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.dbs[name]
	delete(m.dbs, name)
	return ok, nil
}

type memoryCache struct {
	storage *MemoryStorage
	name    string
}

func (c *memoryCache) Get(key string) ([]byte, bool, error) {
	c.storage.mutex.RLock()
	defer c.storage.mutex.RUnlock()
	snapshot, ok := c.storage.dbs[c.name][key]
	return snapshot, ok, nil
}

func (c *memoryCache) Put(key string, snapshot []byte) error {
	c.storage.mutex.Lock()
	defer c.storage.mutex.Unlock()
	db, ok := c.storage.dbs[c.name]
	if !ok {
		db = make(map[string][]byte)
		c.storage.dbs[c.name] = db
	}
	db[key] = snapshot
	return nil
}

func (c *memoryCache) Keys(cb func(string)) {
	c.storage.mutex.RLock()
	keys := make([]string, 0, len(c.storage.dbs[c.name]))
	for key := range c.storage.dbs[c.name] {
		keys = append(keys, key)
	}
	c.storage.mutex.RUnlock()
	for _, key := range keys {
		cb(key)
	}
}

func (c *memoryCache) Purge(key string) {
	c.storage.mutex.Lock()
	defer c.storage.mutex.Unlock()
	delete(c.storage.dbs[c.name], key)
}

// SQLiteStorage persists all namespaces in a single sqlite database.
type SQLiteStorage struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStorage creates a new storage with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStorage(filename string) (*SQLiteStorage, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		namespace TEXT,
		key TEXT,
		snapshot BLOB,
		PRIMARY KEY (namespace, key)
	)`)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	return &SQLiteStorage{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteStorage) Open(name string) (Cache, error) {
	return &sqliteCache{storage: s, name: name}, nil
}

func (s *SQLiteStorage) ListNames() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT namespace FROM cache")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) Delete(name string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.Exec("DELETE FROM cache WHERE namespace = ?", name)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

type sqliteCache struct {
	storage *SQLiteStorage
	name    string
}

func (c *sqliteCache) Get(key string) ([]byte, bool, error) {
	var snapshot []byte
	err := c.storage.db.QueryRow(
		"SELECT snapshot FROM cache WHERE namespace = ? AND key = ?",
		c.name, key,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

func (c *sqliteCache) Put(key string, snapshot []byte) error {
	c.storage.writeMutex.Lock()
	defer c.storage.writeMutex.Unlock()
	_, err := c.storage.db.Exec(
		"INSERT OR REPLACE INTO cache (namespace, key, snapshot) VALUES (?, ?, ?)",
		c.name, key, snapshot,
	)
	return err
}

func (c *sqliteCache) Keys(cb func(string)) {
	rows, err := c.storage.db.Query("SELECT key FROM cache WHERE namespace = ?", c.name)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return
		}
		cb(key)
	}
}

func (c *sqliteCache) Purge(key string) {
	c.storage.writeMutex.Lock()
	defer c.storage.writeMutex.Unlock()
	c.storage.db.Exec("DELETE FROM cache WHERE namespace = ? AND key = ?", c.name, key)
}
