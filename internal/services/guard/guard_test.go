package guard

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/events"
	ledgerMock "github.com/vadiminshakov/whalewatch/mocks/ledger"
)

const account = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"

// units converts a display balance with 9 decimals into native units.
func units(s string) *big.Int {
	return domain.ToUnits(decimal.RequireFromString(s), 9)
}

type memStore struct {
	saved []domain.BalanceSnapshot
	err   error
}

func (m *memStore) Save(s domain.BalanceSnapshot) (uint64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.saved = append(m.saved, s)
	return uint64(len(m.saved)), nil
}

func newGuard(t *testing.T, balances ...string) (*Guard, *ledgerMock.Ledger) {
	t.Helper()
	ledger := ledgerMock.NewLedger(t)
	ledger.On("Account").Return(account).Maybe()
	for _, b := range balances {
		ledger.On("BalanceUnits", mock.Anything).Return(units(b), nil).Once()
	}
	return New(ledger, 9, decimal.RequireFromString("4.4"), zap.NewNop()), ledger
}

func TestGuard_Initialize(t *testing.T) {
	g, _ := newGuard(t, "10")

	state, err := g.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(state.Initial))
	assert.True(t, decimal.RequireFromString("4.4").Equal(state.Floor))
}

func TestGuard_Check(t *testing.T) {
	tests := []struct {
		name     string
		initial  string
		current  string
		expected domain.Decision
	}{
		{"within band", "10", "15", domain.DecisionContinue},
		{"exactly doubled", "10", "20", domain.DecisionStop},
		{"above double", "10", "25.5", domain.DecisionStop},
		{"at floor", "10", "4.4", domain.DecisionStop},
		{"below floor", "10", "3", domain.DecisionStop},
		{"just above floor", "10", "4.400000001", domain.DecisionContinue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGuard(t, tt.initial, tt.current)

			state, err := g.Initialize(context.Background())
			require.NoError(t, err)

			decision, err := g.Check(context.Background(), state)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, decision)
		})
	}
}

func TestGuard_Check_PropagatesLedgerError(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	errRPC := errors.New("rpc timeout")
	ledger.On("BalanceUnits", mock.Anything).Return(nil, errRPC).Once()

	g := New(ledger, 9, decimal.RequireFromString("4.4"), zap.NewNop())
	_, err := g.Check(context.Background(), domain.NewGuardState(decimal.NewFromInt(10), decimal.RequireFromString("4.4")))
	assert.Same(t, errRPC, err)
}

func TestGuard_Check_RequiresState(t *testing.T) {
	g := New(ledgerMock.NewLedger(t), 9, decimal.Zero, zap.NewNop())
	_, err := g.Check(context.Background(), nil)
	assert.Error(t, err)
}

func TestGuard_RecordsSnapshots(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	ledger.On("Account").Return(account)
	ledger.On("BalanceUnits", mock.Anything).Return(units("10"), nil).Once()
	ledger.On("BalanceUnits", mock.Anything).Return(units("21"), nil).Once()

	store := &memStore{}
	feed := events.NewBalanceFeed(4)
	ch := feed.Subscribe()

	g := New(ledger, 9, decimal.RequireFromString("4.4"), zap.NewNop(),
		WithSnapshotStore(store), WithPublisher(feed))

	state, err := g.Initialize(context.Background())
	require.NoError(t, err)
	decision, err := g.Check(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionStop, decision)

	require.Len(t, store.saved, 2)
	assert.Equal(t, account, store.saved[0].Account)
	assert.Empty(t, store.saved[0].Decision)
	assert.Equal(t, "STOP", store.saved[1].Decision)
	assert.Equal(t, units("21").String(), store.saved[1].Units)

	first := <-ch
	second := <-ch
	assert.Equal(t, uint64(1), first.Index)
	assert.True(t, decimal.NewFromInt(10).Equal(first.Snapshot.Balance))
	assert.Equal(t, uint64(2), second.Index)
	assert.True(t, decimal.NewFromInt(21).Equal(second.Snapshot.Balance))

	// the STOP reading ends the live feed
	_, open := <-ch
	assert.False(t, open)
}

func TestGuard_StoreErrorStillPublishes(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	ledger.On("Account").Return(account)
	ledger.On("BalanceUnits", mock.Anything).Return(units("10"), nil).Once()

	feed := events.NewBalanceFeed(1)
	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)

	g := New(ledger, 9, decimal.RequireFromString("4.4"), zap.NewNop(),
		WithSnapshotStore(&memStore{err: errors.New("disk full")}), WithPublisher(feed))

	_, err := g.Initialize(context.Background())
	require.NoError(t, err, "store errors never fail the guard")

	got := <-ch
	assert.Equal(t, uint64(0), got.Index, "unpersisted reading has no index")
	assert.True(t, decimal.NewFromInt(10).Equal(got.Snapshot.Balance))
}
