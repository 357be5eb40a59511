package web

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/events"
	"github.com/vadiminshakov/whalewatch/internal/storage/balancesnapshots"
)

const account = "0xabc"

type failingStore struct{}

func (failingStore) SnapshotsAfter(uint64, string) ([]domain.BalanceSnapshotRecord, error) {
	return nil, errors.New("io")
}

func (failingStore) CurrentRun(string) ([]domain.BalanceSnapshotRecord, error) {
	return nil, errors.New("io")
}

func (failingStore) Latest(string) (domain.BalanceSnapshotRecord, bool, error) {
	return domain.BalanceSnapshotRecord{}, false, errors.New("io")
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func reading(sec int, balance int64, decision string) domain.BalanceSnapshot {
	return domain.BalanceSnapshot{
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
		Account:   account,
		Units:     decimal.NewFromInt(balance).String(),
		Balance:   decimal.NewFromInt(balance),
		Decision:  decision,
	}
}

func newStore(t *testing.T, snapshots ...domain.BalanceSnapshot) *balancesnapshots.WALStore {
	t.Helper()
	store, err := balancesnapshots.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	for _, s := range snapshots {
		_, err := store.Save(s)
		require.NoError(t, err)
	}
	return store
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

type event struct {
	id   string
	data string
}

// openStream connects to the balance stream and returns a reader of events.
func openStream(t *testing.T, srv *httptest.Server, lastEventID string) (*http.Response, func() (event, bool)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/balance/stream", nil)
	require.NoError(t, err)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	reader := bufio.NewReader(resp.Body)
	next := func() (event, bool) {
		var ev event
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return ev, false
			}
			switch {
			case strings.HasPrefix(line, "id: "):
				ev.id = strings.TrimSpace(strings.TrimPrefix(line, "id: "))
			case strings.HasPrefix(line, "data: "):
				ev.data = line
			case line == "\n" && ev.data != "":
				return ev, true
			}
		}
	}
	return resp, next
}

func TestServer_Health(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", account, nil, nil, nil, zap.NewNop()).Handler())
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestServer_Index(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", account, nil, nil, func() string { return "SUBSCRIBED" }, zap.NewNop()).Handler())
	defer srv.Close()

	code, body := get(t, srv, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "whalewatch: SUBSCRIBED\n", body)

	code, _ = get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_IndexShowsLatestBalance(t *testing.T) {
	store := newStore(t, reading(0, 5, ""), reading(1, 10, "STOP"))
	srv := httptest.NewServer(NewServer(":0", account, store, nil, func() string { return "STOPPED" }, zap.NewNop()).Handler())
	defer srv.Close()

	_, body := get(t, srv, "/")
	assert.Equal(t, "whalewatch: STOPPED\nbalance: 10 (STOP at 2024-05-01T10:00:01Z)\n", body)
}

func TestServer_IndexPrefersLiveReading(t *testing.T) {
	store := newStore(t, reading(0, 5, ""))
	live := events.NewBalanceFeed(1)
	// store write failed, so the reading has no index
	live.Publish(domain.BalanceSnapshotRecord{Snapshot: reading(1, 6, "CONTINUE")})

	srv := httptest.NewServer(NewServer(":0", account, store, live, func() string { return "SUBSCRIBED" }, zap.NewNop()).Handler())
	defer srv.Close()

	_, body := get(t, srv, "/")
	assert.Equal(t, "whalewatch: SUBSCRIBED\nbalance: 6 (CONTINUE at 2024-05-01T10:00:01Z)\n", body)
}

func TestServer_Metrics(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", account, nil, nil, nil, zap.NewNop()).Handler())
	defer srv.Close()

	code, body := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "whalewatch_balance")
	assert.Contains(t, body, "whalewatch_submissions_in_flight")
	assert.Contains(t, body, "go_goroutines")
}

func TestServer_BalanceStream_NoStore(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", account, nil, nil, nil, zap.NewNop()).Handler())
	defer srv.Close()

	code, _ := get(t, srv, "/balance/stream")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_BalanceStream_StoreError(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", account, failingStore{}, nil, nil, zap.NewNop()).Handler())
	defer srv.Close()

	code, _ := get(t, srv, "/balance/stream")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestServer_BalanceStream(t *testing.T) {
	// the previous run is not replayed
	store := newStore(t, reading(0, 3, ""), reading(1, 1, "STOP"), reading(2, 5, ""))
	live := events.NewBalanceFeed(4)

	srv := httptest.NewServer(NewServer(":0", account, store, live, nil, zap.NewNop()).Handler())
	defer srv.Close()

	resp, next := openStream(t, srv, "")
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	ev, ok := next()
	require.True(t, ok)
	assert.Equal(t, "3", ev.id)
	assert.Contains(t, ev.data, `"balance":"5"`)

	// already replayed, another account, then a new reading
	live.Publish(domain.BalanceSnapshotRecord{Index: 3, Snapshot: reading(2, 5, "")})
	other := reading(3, 99, "CONTINUE")
	other.Account = "0xother"
	live.Publish(domain.BalanceSnapshotRecord{Index: 4, Snapshot: other})
	live.Publish(domain.BalanceSnapshotRecord{Index: 5, Snapshot: reading(4, 7, "CONTINUE")})

	ev, ok = next()
	require.True(t, ok)
	assert.Equal(t, "5", ev.id)
	assert.Contains(t, ev.data, `"balance":"7"`)
	assert.Contains(t, ev.data, `"decision":"CONTINUE"`)

	// STOP is the last event of the stream
	live.Publish(domain.BalanceSnapshotRecord{Index: 6, Snapshot: reading(5, 10, "STOP")})
	ev, ok = next()
	require.True(t, ok)
	assert.Contains(t, ev.data, `"decision":"STOP"`)
	_, ok = next()
	assert.False(t, ok, "stream ends after STOP")
}

func TestServer_BalanceStream_ResumesAfterLastEventID(t *testing.T) {
	store := newStore(t, reading(0, 5, ""), reading(1, 6, "CONTINUE"), reading(2, 7, "CONTINUE"))
	live := events.NewBalanceFeed(4)
	live.Publish(domain.BalanceSnapshotRecord{Index: 4, Snapshot: reading(3, 10, "STOP")})

	srv := httptest.NewServer(NewServer(":0", account, store, live, nil, zap.NewNop()).Handler())
	defer srv.Close()

	_, next := openStream(t, srv, "2")

	ev, ok := next()
	require.True(t, ok)
	assert.Equal(t, "3", ev.id)
	assert.Contains(t, ev.data, `"balance":"7"`)

	// feed already stopped, nothing follows the replay
	_, ok = next()
	assert.False(t, ok)
}
