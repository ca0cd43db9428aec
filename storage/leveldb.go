package storage

import (
	"encoding/json"
	"fmt"

	goleveldb "github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/tolelom/tolchain/clock"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = fmt.Errorf("storage: not found")

// LevelDB implements DB using LevelDB.
type LevelDB struct {
	db *goleveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := goleveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == goleveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(goleveldb.Batch)}
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

// levelBatch implements Batch over goleveldb's native batch type. The
// teacher's DB interface declared NewBatch but never implemented it; this
// fills that gap rather than carrying it forward.
type levelBatch struct {
	db    *goleveldb.DB
	batch *goleveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Write() error          { return b.db.Write(b.batch, nil) }
func (b *levelBatch) Reset()                { b.batch.Reset() }

// ---- clock.TickLog implementation ----

// TickLog is an append-only, non-authoritative log of committed
// ChainEntries, for operator debugging (spec §4/§6). It is grounded on
// the teacher's LevelBlockStore (same by-key put/get shape over DB),
// stripped of the account/asset/session/market key prefixes since a
// clock-chain tick carries no application state, and keyed by a
// monotonic sequence counter rather than a content hash since a
// ChainEntry's reference set (map of hashes) has no single natural key.
type TickLog struct {
	db  DB
	seq int64
}

// NewTickLog wraps db as a clock.TickLog, resuming the sequence counter
// after the highest key already present.
func NewTickLog(db DB) (*TickLog, error) {
	t := &TickLog{db: db}
	it := db.NewIterator([]byte("entry:"))
	defer it.Release()
	for it.Next() {
		t.seq++
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("scan entry log: %w", err)
	}
	return t, nil
}

// LogEntry appends entry under the next sequence key. Errors here never
// abort the caller: ChainStore treats the log as best-effort.
func (t *TickLog) LogEntry(entry clock.ChainEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal chain entry: %w", err)
	}
	key := fmt.Sprintf("entry:%012d", t.seq)
	if err := t.db.Set([]byte(key), data); err != nil {
		return fmt.Errorf("write chain entry: %w", err)
	}
	t.seq++
	return nil
}

var _ clock.TickLog = (*TickLog)(nil)
