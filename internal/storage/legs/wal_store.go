// Package legs keeps an audit journal of submitted transfer legs.
package legs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/whalewatch/internal/domain"
)

const (
	defaultDir       = "./wal/legs"
	segmentThreshold = 1000
	maxSegments      = 100
	legKeyPrefix     = "leg_"

	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Record state of a single transfer leg.
type Record struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Role      domain.Role     `json:"role"`
	Amount    decimal.Decimal `json:"amount"`
	Units     string          `json:"units"`
	To        string          `json:"to"`
	Symbol    string          `json:"symbol,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Signature string          `json:"signature,omitempty"`
	Error     string          `json:"error,omitempty"`
	Time      time.Time       `json:"time"`
}

// WALStore journal of legs; every status change is appended to the WAL.
type WALStore struct {
	mu    sync.Mutex
	wal   *gowal.Wal
	legs  []*Record
	index map[string]*Record
	now   func() time.Time
}

// NewWALStore opens the journal and replays previously written legs.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "leg_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init leg journal WAL")
	}

	s := &WALStore{
		wal:   wal,
		index: make(map[string]*Record),
		now:   time.Now,
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, legKeyPrefix) {
			continue
		}
		var rec Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "decode leg %s", msg.Key)
		}
		if existing, ok := s.index[rec.ID]; ok {
			*existing = rec
			continue
		}
		recCopy := rec
		s.legs = append(s.legs, &recCopy)
		s.index[rec.ID] = &recCopy
	}

	return s, nil
}

// Prepare records a pending leg for the job.
func (s *WALStore) Prepare(job domain.SubmissionJob) (*Record, error) {
	if job.ID == "" {
		return nil, errors.New("leg id is required")
	}

	units := ""
	if job.Units != nil {
		units = job.Units.String()
	}

	rec := &Record{
		ID:     job.ID,
		Status: StatusPending,
		Role:   job.Role,
		Amount: job.Amount,
		Units:  units,
		To:     job.To,
		Symbol: job.Symbol,
		Price:  job.PriceContext,
		Time:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(rec); err != nil {
		return nil, err
	}
	s.legs = append(s.legs, rec)
	s.index[rec.ID] = rec
	return rec, nil
}

// MarkDone stores the confirmed signature.
func (s *WALStore) MarkDone(rec *Record, signature string) error {
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Status = StatusDone
	rec.Signature = signature
	rec.Error = ""
	rec.Time = s.now()
	return s.persist(rec)
}

// MarkFailed stores the terminal error.
func (s *WALStore) MarkFailed(rec *Record, err error) error {
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Status = StatusFailed
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Error = ""
	}
	rec.Time = s.now()
	return s.persist(rec)
}

// Legs returns a copy of all known legs in creation order.
func (s *WALStore) Legs() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.legs))
	for _, rec := range s.legs {
		out = append(out, *rec)
	}
	return out
}

// Pending returns legs that never reached a terminal status.
func (s *WALStore) Pending() []Record {
	var pending []Record
	for _, rec := range s.Legs() {
		if rec.Status == StatusPending {
			pending = append(pending, rec)
		}
	}
	return pending
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

func (s *WALStore) persist(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal leg")
	}
	key := fmt.Sprintf("%s%s", legKeyPrefix, rec.ID)
	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, data)
}
