// Package store persists model element snapshots in BadgerDB.
//
// Each project is an ordered list of elements. Values are JSON encoded and
// s2 compressed; keys carry a sequence number so loading preserves the
// declaration order the interpreter depends on.
//
// Example usage:
//
//	s, err := store.Open(store.DefaultConfig("./data"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.PutElements("rocket", elems); err != nil {
//	    log.Fatal(err)
//	}
//	elems, err = s.LoadElements("rocket")
package store

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/s2"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
)

// Snapshot describes one stored project.
type Snapshot struct {
	Project  string    `json:"project"`
	Elements int       `json:"elements"`
	Bytes    int       `json:"bytes"`
	SavedAt  time.Time `json:"savedAt"`
}

// Store is a BadgerDB-backed snapshot store. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	config *Config
}

// Open opens the database described by cfg.
func Open(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil store config", errors.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	db, err := badger.Open(buildBadgerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	slog.Info("snapshot store opened", "dir", cfg.DataDir, "inMemory", cfg.InMemory)
	return &Store{db: db, config: cfg}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutElements replaces the snapshot of project with elems.
func (s *Store) PutElements(project string, elems []*model.Element) error {
	if !validProject(project) {
		return fmt.Errorf("%w: invalid project name %q", errors.ErrInvalidInput, project)
	}
	if err := s.db.DropPrefix(projectPrefix(project)); err != nil {
		return fmt.Errorf("failed to drop old snapshot: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	total := 0
	for i, e := range elems {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode element %s: %w", e.ID, err)
		}
		compressed := s2.Encode(nil, data)
		total += len(compressed)
		if err := wb.Set(encodeElementKey(project, uint64(i)), compressed); err != nil {
			return fmt.Errorf("failed to write element %s: %w", e.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}

	meta, err := json.Marshal(Snapshot{Project: project, Elements: len(elems), Bytes: total, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeMetaKey(project), meta)
	}); err != nil {
		return fmt.Errorf("failed to write snapshot metadata: %w", err)
	}

	slog.Debug("snapshot saved", "project", project, "elements", len(elems), "bytes", total)
	return nil
}

// LoadElements returns the elements of project in declaration order.
func (s *Store) LoadElements(project string) ([]*model.Element, error) {
	if _, err := s.Snapshot(project); err != nil {
		return nil, err
	}

	var out []*model.Element
	prefix := projectPrefix(project)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if _, _, ok := decodeElementKey(item.Key()); !ok {
				continue
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			data, err := s2.Decode(nil, raw)
			if err != nil {
				return fmt.Errorf("failed to decompress element: %w", err)
			}
			var e model.Element
			if err := json.Unmarshal(data, &e); err != nil {
				return fmt.Errorf("failed to decode element: %w", err)
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", project, err)
	}
	return out, nil
}

// Snapshot returns the metadata of project, or ErrNotFound.
func (s *Store) Snapshot(project string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeMetaKey(project))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: project %q", errors.ErrNotFound, project)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}
	return &snap, nil
}

// Projects lists the stored projects, sorted by name.
func (s *Store) Projects() ([]Snapshot, error) {
	var out []Snapshot
	prefix := []byte{MetaPrefix}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var snap Snapshot
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			}); err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project < out[j].Project })
	return out, nil
}

// DeleteProject removes the snapshot of project.
func (s *Store) DeleteProject(project string) error {
	if _, err := s.Snapshot(project); err != nil {
		return err
	}
	if err := s.db.DropPrefix(projectPrefix(project)); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", project, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeMetaKey(project))
	})
}
