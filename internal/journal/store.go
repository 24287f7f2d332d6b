// Package journal persists the venue's state changes to pebble and reloads
// them on start.
package journal

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/efreitasn/venue/internal/domain"
)

// Batch is the set of records one command changed. It is written
// atomically.
type Batch struct {
	Markets         []domain.Market
	Orders          []domain.Order
	Execs           []domain.Exec
	Posns           []domain.Position
	Webhooks        []domain.Webhook
	DeletedWebhooks []string

	done chan struct{} // flush barrier, never persisted
}

// Empty reports whether the batch carries no records.
func (b *Batch) Empty() bool {
	return len(b.Markets) == 0 && len(b.Orders) == 0 && len(b.Execs) == 0 &&
		len(b.Posns) == 0 && len(b.Webhooks) == 0 && len(b.DeletedWebhooks) == 0
}

// Snapshot is everything the journal holds, ready to be restored.
type Snapshot struct {
	Markets  []domain.Market   // by id
	Orders   []domain.Order    // by market, then id
	Execs    []domain.Exec     // chronological
	Posns    []domain.Position // by key
	Webhooks []domain.Webhook
}

// keys: m/<market>, o/<market>/<id>, e/<market>/<id>, p/<accnt>/<market>, w/<id>
func kMarket(id int64) []byte        { return []byte(fmt.Sprintf("m/%020d", id)) }
func kOrder(m, id int64) []byte      { return []byte(fmt.Sprintf("o/%020d/%020d", m, id)) }
func kExec(m, id int64) []byte       { return []byte(fmt.Sprintf("e/%020d/%020d", m, id)) }
func kPosn(a string, m int64) []byte { return []byte(fmt.Sprintf("p/%s/%020d", a, m)) }
func kWebhook(id string) []byte      { return []byte("w/" + id) }

// keyUpperBound returns the smallest key greater than every key carrying
// prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Store is the pebble-backed journal.
type Store struct {
	db *pebble.DB
}

// Open opens or creates a journal in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a journal that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return OpenFS("", vfs.NewMem())
}

// OpenFS opens a journal in dir on the given filesystem. Reopening the same
// in-memory filesystem simulates a restart.
func OpenFS(dir string, fs vfs.FS) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{FS: fs})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func set(b *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set(key, data, nil)
}

// Write commits a batch atomically. With sync set, the write is fsynced
// before returning.
func (s *Store) Write(batch *Batch, sync bool) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, m := range batch.Markets {
		m.Bids, m.Offers = nil, nil
		if err := set(b, kMarket(m.ID), m); err != nil {
			return err
		}
	}
	for _, o := range batch.Orders {
		if err := set(b, kOrder(o.MarketID, o.ID), o); err != nil {
			return err
		}
	}
	for _, e := range batch.Execs {
		if err := set(b, kExec(e.MarketID, e.ID), e); err != nil {
			return err
		}
	}
	for _, p := range batch.Posns {
		if err := set(b, kPosn(p.Accnt, p.MarketID), p); err != nil {
			return err
		}
	}
	for _, w := range batch.Webhooks {
		if err := set(b, kWebhook(w.ID), w); err != nil {
			return err
		}
	}
	for _, id := range batch.DeletedWebhooks {
		if err := b.Delete(kWebhook(id), nil); err != nil {
			return fmt.Errorf("delete webhook %s: %w", id, err)
		}
	}

	opts := pebble.NoSync
	if sync {
		opts = pebble.Sync
	}
	if err := b.Commit(opts); err != nil {
		return fmt.Errorf("commit journal batch: %w", err)
	}
	return nil
}

func scan[T any](db *pebble.DB, prefix string, out *[]T) error {
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keyUpperBound([]byte(prefix)),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var v T
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		*out = append(*out, v)
	}
	return iter.Error()
}

// Load reads every record back.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{}
	if err := scan(s.db, "m/", &snap.Markets); err != nil {
		return nil, err
	}
	if err := scan(s.db, "o/", &snap.Orders); err != nil {
		return nil, err
	}
	if err := scan(s.db, "e/", &snap.Execs); err != nil {
		return nil, err
	}
	if err := scan(s.db, "p/", &snap.Posns); err != nil {
		return nil, err
	}
	if err := scan(s.db, "w/", &snap.Webhooks); err != nil {
		return nil, err
	}

	sort.SliceStable(snap.Execs, func(i, j int) bool {
		a, b := snap.Execs[i], snap.Execs[j]
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		if a.MarketID != b.MarketID {
			return a.MarketID < b.MarketID
		}
		return a.ID < b.ID
	})
	return snap, nil
}
