package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/metrics"
)

const heartbeatInterval = 30 * time.Second

type balanceSnapshotReader interface {
	SnapshotsAfter(index uint64, account string) ([]domain.BalanceSnapshotRecord, error)
	CurrentRun(account string) ([]domain.BalanceSnapshotRecord, error)
	Latest(account string) (domain.BalanceSnapshotRecord, bool, error)
}

type balanceSubscriber interface {
	Subscribe() chan domain.BalanceSnapshotRecord
	Unsubscribe(ch chan domain.BalanceSnapshotRecord)
	Latest() (domain.BalanceSnapshotRecord, bool)
}

// Server exposes liveness, metrics and the balance SSE stream of one account.
// It carries no trading logic.
type Server struct {
	Addr    string
	Account string
	Store   balanceSnapshotReader
	Live    balanceSubscriber
	Status  func() string
	l       *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr, account string, store balanceSnapshotReader, live balanceSubscriber, status func() string, l *zap.Logger) *Server {
	return &Server{Addr: addr, Account: account, Store: store, Live: live, Status: status, l: l}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/balance/stream", s.handleBalanceStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("http server listening", zap.String("addr", s.Addr))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	status := "running"
	if s.Status != nil {
		status = s.Status()
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "whalewatch: %s\n", status)

	latest, found := s.latest()
	if found {
		decision := latest.Snapshot.Decision
		if decision == "" {
			decision = "BASELINE"
		}
		fmt.Fprintf(w, "balance: %s (%s at %s)\n", latest.Snapshot.Balance, decision, latest.Snapshot.Timestamp.Format(time.RFC3339))
	}
}

// latest prefers the live feed, which also holds readings the store failed
// to persist, and falls back to the store after a restart.
func (s *Server) latest() (domain.BalanceSnapshotRecord, bool) {
	if s.Live != nil {
		if rec, ok := s.Live.Latest(); ok {
			return rec, true
		}
	}
	if s.Store == nil {
		return domain.BalanceSnapshotRecord{}, false
	}
	rec, found, err := s.Store.Latest(s.Account)
	if err != nil {
		s.l.Warn("latest balance", zap.Error(err))
		return domain.BalanceSnapshotRecord{}, false
	}
	return rec, found
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

// replay loads what a new stream client has not seen: everything after
// Last-Event-ID when the client resumes, the current run otherwise.
func (s *Server) replay(r *http.Request) ([]domain.BalanceSnapshotRecord, error) {
	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		if index, err := strconv.ParseUint(lastID, 10, 64); err == nil {
			return s.Store.SnapshotsAfter(index, s.Account)
		}
	}
	return s.Store.CurrentRun(s.Account)
}

// handleBalanceStream replays persisted readings, then forwards live ones
// until the guard stops or the client goes away.
func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "snapshot store not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// subscribe before replay so nothing falls between the two
	var live chan domain.BalanceSnapshotRecord
	if s.Live != nil {
		live = s.Live.Subscribe()
		defer s.Live.Unsubscribe(live)
	}

	records, err := s.replay(r)
	if err != nil {
		http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
		s.l.Error("balance stream initial load", zap.Error(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var last uint64
	for _, rec := range records {
		if err := writeRecord(w, rec); err != nil {
			s.l.Warn("balance stream write", zap.Error(err))
			return
		}
		last = rec.Index
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case rec, ok := <-live:
			if !ok {
				return
			}
			if rec.Index != 0 && rec.Index <= last {
				continue
			}
			if s.Account != "" && rec.Snapshot.Account != s.Account {
				continue
			}
			if err := writeRecord(w, rec); err != nil {
				s.l.Warn("balance stream write", zap.Error(err))
				return
			}
			if rec.Index != 0 {
				last = rec.Index
			}
			flusher.Flush()
		}
	}
}

// writeRecord emits one SSE event. Persisted readings carry their index as
// the event id so a reconnecting client resumes after it.
func writeRecord(w http.ResponseWriter, rec domain.BalanceSnapshotRecord) error {
	payload, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return err
	}
	if rec.Index != 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", rec.Index); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: balance\ndata: %s\n\n", payload)
	return err
}
