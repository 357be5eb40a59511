package trader

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/storage/legs"
	ledgerMock "github.com/vadiminshakov/whalewatch/mocks/ledger"
	"github.com/vadiminshakov/whalewatch/pkg/limiter"
	"github.com/vadiminshakov/whalewatch/pkg/retrier"
)

const counterparty = "0x000000000000000000000000000000000000dEaD"

func unitsMatcher(expected int64) interface{} {
	return mock.MatchedBy(func(actual *big.Int) bool {
		return actual.Cmp(big.NewInt(expected)) == 0
	})
}

func newTestSubmitter(t *testing.T, ledger ledger, dryRun bool) (*Submitter, *legs.WALStore) {
	t.Helper()

	lim, err := limiter.New(20, 0)
	require.NoError(t, err)

	journal, err := legs.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	r := retrier.New(retrier.WithMaxAttempts(5), retrier.WithInitialInterval(time.Millisecond))
	cfg := SubmitterConfig{Counterparty: counterparty, Decimals: 9, DryRun: dryRun}

	return NewSubmitter(ledger, lim, r, journal, cfg, zap.NewNop()), journal
}

func TestSubmitter_SubmitTransfer(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	tx := types.NewTx(&types.LegacyTx{Nonce: 3})

	ledger.On("BuildTransfer", mock.Anything, counterparty, unitsMatcher(1_500_000_000)).Return(tx, nil).Once()
	ledger.On("SendAndConfirm", mock.Anything, tx).Return("0xsig", nil).Once()

	s, journal := newTestSubmitter(t, ledger, false)

	sig, err := s.SubmitTransfer(context.Background(), decimal.RequireFromString("1.5"), domain.RoleBuy, decimal.NewFromInt(100), "WETH")
	require.NoError(t, err)
	assert.Equal(t, "0xsig", sig)

	recs := journal.Legs()
	require.Len(t, recs, 1)
	assert.Equal(t, legs.StatusDone, recs[0].Status)
	assert.Equal(t, domain.RoleBuy, recs[0].Role)
	assert.Equal(t, "0xsig", recs[0].Signature)
	assert.Equal(t, "1500000000", recs[0].Units)
	assert.Equal(t, counterparty, recs[0].To)
}

func TestSubmitter_RetriesSameTransaction(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	tx := types.NewTx(&types.LegacyTx{Nonce: 9})

	ledger.On("BuildTransfer", mock.Anything, counterparty, mock.Anything).Return(tx, nil).Once()
	ledger.On("SendAndConfirm", mock.Anything, tx).Return("", errors.New("timeout")).Twice()
	ledger.On("SendAndConfirm", mock.Anything, tx).Return("0xsig", nil).Once()

	s, _ := newTestSubmitter(t, ledger, false)

	sig, err := s.SubmitTransfer(context.Background(), decimal.NewFromInt(1), domain.RoleSell, decimal.NewFromInt(2), "WETH")
	require.NoError(t, err)
	assert.Equal(t, "0xsig", sig)
	ledger.AssertNumberOfCalls(t, "BuildTransfer", 1)
	ledger.AssertNumberOfCalls(t, "SendAndConfirm", 3)
}

func TestSubmitter_FailsAfterRetries(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	tx := types.NewTx(&types.LegacyTx{Nonce: 1})
	errSend := errors.New("node unavailable")

	ledger.On("BuildTransfer", mock.Anything, counterparty, mock.Anything).Return(tx, nil).Once()
	ledger.On("SendAndConfirm", mock.Anything, tx).Return("", errSend).Times(5)

	s, journal := newTestSubmitter(t, ledger, false)

	_, err := s.SubmitTransfer(context.Background(), decimal.NewFromInt(1), domain.RoleBuy, decimal.NewFromInt(2), "WETH")
	assert.ErrorIs(t, err, errSend)

	recs := journal.Legs()
	require.Len(t, recs, 1)
	assert.Equal(t, legs.StatusFailed, recs[0].Status)
	assert.Contains(t, recs[0].Error, "node unavailable")
	assert.Empty(t, journal.Pending())
}

func TestSubmitter_BuildFailure(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	ledger.On("BuildTransfer", mock.Anything, counterparty, mock.Anything).Return(nil, errors.New("nonce")).Times(5)

	s, _ := newTestSubmitter(t, ledger, false)

	_, err := s.SubmitTransfer(context.Background(), decimal.NewFromInt(1), domain.RoleBuy, decimal.NewFromInt(2), "WETH")
	assert.ErrorContains(t, err, "build transfer")
	ledger.AssertNotCalled(t, "SendAndConfirm", mock.Anything, mock.Anything)
}

func TestSubmitter_RejectsDustAmount(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	s, journal := newTestSubmitter(t, ledger, false)

	// 0.0000000005 with 9 decimals rounds half to even, down to zero
	_, err := s.SubmitTransfer(context.Background(), decimal.RequireFromString("0.0000000005"), domain.RoleBuy, decimal.NewFromInt(1), "WETH")
	assert.Error(t, err)
	assert.Empty(t, journal.Legs())
}

func TestSubmitter_DryRun(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	s, journal := newTestSubmitter(t, ledger, true)

	sig, err := s.SubmitTransfer(context.Background(), decimal.NewFromInt(1), domain.RoleBuy, decimal.NewFromInt(2), "WETH")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "dry-run-"))

	recs := journal.Legs()
	require.Len(t, recs, 1)
	assert.Equal(t, legs.StatusDone, recs[0].Status)
	assert.Equal(t, sig, recs[0].Signature)
}

func TestSubmitter_NilJournal(t *testing.T) {
	ledger := ledgerMock.NewLedger(t)
	tx := types.NewTx(&types.LegacyTx{})
	ledger.On("BuildTransfer", mock.Anything, counterparty, mock.Anything).Return(tx, nil).Once()
	ledger.On("SendAndConfirm", mock.Anything, tx).Return("0xsig", nil).Once()

	lim, err := limiter.New(1, 0)
	require.NoError(t, err)
	s := NewSubmitter(ledger, lim, retrier.New(), nil, SubmitterConfig{Counterparty: counterparty, Decimals: 18}, zap.NewNop())

	sig, err := s.SubmitTransfer(context.Background(), decimal.NewFromInt(1), domain.RoleSell, decimal.NewFromInt(1), "WETH")
	require.NoError(t, err)
	assert.Equal(t, "0xsig", sig)
}
