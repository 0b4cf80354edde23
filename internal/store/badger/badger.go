package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/store"
)

var _ store.Store = (*KVStore)(nil)

// Key layout:
//
//	run/<runID>                          JSON-encoded store.Run
//	ws/<workspaceID>/<inverted ts>/<runID>  empty; newest run sorts first
const (
	runPrefix = "run/"
	wsPrefix  = "ws/"
)

var epoch = time.Unix(0, 0)

// KVStore implements store.Store on an embedded badger database.
type KVStore struct {
	db *dgbadger.DB
}

// Open opens (or creates) a database under path. An empty path keeps the
// database in memory.
func Open(path string, logger *slog.Logger) (*KVStore, error) {
	var opts dgbadger.Options
	if path == "" {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("store: create database directory %s: %w", path, err)
		}
		opts = dgbadger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger database: %w", err)
	}
	return &KVStore{db: db}, nil
}

// Close releases the database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

func workspacePrefix(workspaceID string) []byte {
	return []byte(wsPrefix + workspaceID + "/")
}

func indexKey(r *store.Run) []byte {
	ns := r.StartedAt.UnixNano()
	if r.StartedAt.Before(epoch) {
		ns = 0
	}
	inverted := math.MaxInt64 - ns
	return []byte(fmt.Sprintf("%s%020d/%s", workspacePrefix(r.WorkspaceID), inverted, r.ID))
}

// SaveRun stores run, replacing any run with the same id.
func (s *KVStore) SaveRun(_ context.Context, run *store.Run) error {
	if run.ID == "" {
		return fmt.Errorf("store: run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("store: encode run %s: %w", run.ID, err)
	}
	err = s.db.Update(func(txn *dgbadger.Txn) error {
		prev, err := getRun(txn, run.ID)
		switch {
		case errors.Is(err, store.ErrRunNotFound):
		case err != nil:
			return err
		default:
			if err := txn.Delete(indexKey(prev)); err != nil {
				return err
			}
		}
		if err := txn.Set(runKey(run.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(run), nil)
	})
	if err != nil {
		return fmt.Errorf("store: save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns the run or ErrRunNotFound.
func (s *KVStore) GetRun(_ context.Context, id string) (*store.Run, error) {
	var run *store.Run
	err := s.db.View(func(txn *dgbadger.Txn) error {
		var err error
		run, err = getRun(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func getRun(txn *dgbadger.Txn, id string) (*store.Run, error) {
	item, err := txn.Get(runKey(id))
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run %s: %w", id, err)
	}
	var run store.Run
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &run)
	})
	if err != nil {
		return nil, fmt.Errorf("store: decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the workspace's runs, newest first.
func (s *KVStore) ListRuns(_ context.Context, workspaceID string) ([]*store.Run, error) {
	prefix := workspacePrefix(workspaceID)
	out := make([]*store.Run, 0)
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			id := key[len(prefix)+21:] // skip "<20 digits>/"
			run, err := getRun(txn, id)
			if err != nil {
				return err
			}
			out = append(out, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
