// Package balancesnapshots keeps the guard's balance readings in a WAL so the
// web stream can replay the current run after a reconnect or restart.
package balancesnapshots

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/whalewatch/internal/domain"
)

const (
	defaultDir      = "./wal/balance"
	segmentReadings = 1000
	keptSegments    = 100

	keyPrefix = "balance/"
	// baseline readings carry no decision, they open a run
	baselineKind = "BASELINE"
)

var ErrNoAccount = errors.New("balance snapshot account is required")

// WALStore persists balance readings keyed by account and decision.
// A run is the baseline reading taken at startup plus every check after it.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the snapshot log under dir.
func NewWALStore(dir string) (*WALStore, error) {
	return newWALStore(dir, segmentReadings, keptSegments)
}

func newWALStore(dir string, segmentThreshold, maxSegments int) (*WALStore, error) {
	if dir == "" {
		dir = defaultDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "balance_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open balance snapshot WAL")
	}

	return &WALStore{wal: wal}, nil
}

func snapshotKey(s domain.BalanceSnapshot) string {
	kind := s.Decision
	if kind == "" {
		kind = baselineKind
	}
	return keyPrefix + s.Account + "/" + kind
}

// parseKey splits a key into account and kind.
func parseKey(key string) (account, kind string, ok bool) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// Save appends the reading and returns its WAL index.
func (s *WALStore) Save(snapshot domain.BalanceSnapshot) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("balance snapshot store is not initialized")
	}
	if snapshot.Account == "" {
		return 0, ErrNoAccount
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return 0, errors.Wrap(err, "marshal balance snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(index, snapshotKey(snapshot), payload); err != nil {
		return 0, errors.Wrapf(err, "write balance snapshot %d", index)
	}
	return index, nil
}

// readLocked loads the reading at idx. found is false when the index was
// pruned with its segment or holds another account's reading.
func (s *WALStore) readLocked(idx uint64, account string) (rec domain.BalanceSnapshotRecord, found bool, err error) {
	key, payload, err := s.wal.Get(idx)
	if err != nil {
		return rec, false, errors.Wrapf(err, "read balance snapshot %d", idx)
	}
	if key == "" {
		return rec, false, nil
	}

	owner, _, ok := parseKey(key)
	if !ok || (account != "" && owner != account) {
		return rec, false, nil
	}

	if err := json.Unmarshal(payload, &rec.Snapshot); err != nil {
		return rec, false, errors.Wrapf(err, "decode balance snapshot %d", idx)
	}
	rec.Index = idx
	return rec, true, nil
}

// SnapshotsAfter returns account's readings written after index, oldest first.
// An empty account matches every account.
func (s *WALStore) SnapshotsAfter(index uint64, account string) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("balance snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	var records []domain.BalanceSnapshotRecord
	for idx := index + 1; idx <= current; idx++ {
		rec, found, err := s.readLocked(idx, account)
		if err != nil {
			return nil, err
		}
		if found {
			records = append(records, rec)
		}
	}
	return records, nil
}

// CurrentRun returns account's readings from its latest baseline onwards.
// When the baseline was pruned, every surviving reading is returned.
func (s *WALStore) CurrentRun(account string) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("balance snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var run []domain.BalanceSnapshotRecord
	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		rec, found, err := s.readLocked(idx, account)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		run = append(run, rec)
		if rec.Snapshot.Decision == "" {
			break
		}
	}

	for i, j := 0, len(run)-1; i < j; i, j = i+1, j-1 {
		run[i], run[j] = run[j], run[i]
	}
	return run, nil
}

// Latest returns account's newest reading.
func (s *WALStore) Latest(account string) (domain.BalanceSnapshotRecord, bool, error) {
	if s == nil || s.wal == nil {
		return domain.BalanceSnapshotRecord{}, false, errors.New("balance snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		rec, found, err := s.readLocked(idx, account)
		if err != nil || found {
			return rec, found, err
		}
	}
	return domain.BalanceSnapshotRecord{}, false, nil
}

// CurrentIndex returns the index of the last written reading.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("balance snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
