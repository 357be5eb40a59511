package legs

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/whalewatch/internal/domain"
)

func testJob(id string, role domain.Role) domain.SubmissionJob {
	return domain.SubmissionJob{
		ID:           id,
		Role:         role,
		Amount:       decimal.NewFromInt(10),
		Units:        big.NewInt(10_000_000_000),
		To:           "0x000000000000000000000000000000000000dEaD",
		PriceContext: decimal.NewFromInt(100),
		Symbol:       "WETH",
	}
}

func TestWALStore_Lifecycle(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	buy, err := store.Prepare(testJob("buy-1", domain.RoleBuy))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, buy.Status)
	assert.Equal(t, "10000000000", buy.Units)

	sell, err := store.Prepare(testJob("sell-1", domain.RoleSell))
	require.NoError(t, err)

	require.NoError(t, store.MarkDone(buy, "0xsig"))
	require.NoError(t, store.MarkFailed(sell, errors.New("nonce too low")))

	legs := store.Legs()
	require.Len(t, legs, 2)
	assert.Equal(t, StatusDone, legs[0].Status)
	assert.Equal(t, "0xsig", legs[0].Signature)
	assert.Equal(t, StatusFailed, legs[1].Status)
	assert.Equal(t, "nonce too low", legs[1].Error)
	assert.Empty(t, store.Pending())
}

func TestWALStore_ReplaysStatusOnReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	done, err := store.Prepare(testJob("a", domain.RoleBuy))
	require.NoError(t, err)
	require.NoError(t, store.MarkDone(done, "0x1"))
	_, err = store.Prepare(testJob("b", domain.RoleSell))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	legs := reopened.Legs()
	require.Len(t, legs, 2)
	assert.Equal(t, StatusDone, legs[0].Status)
	assert.Equal(t, "0x1", legs[0].Signature)

	pending := reopened.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)
	assert.Equal(t, domain.RoleSell, pending[0].Role)
}

func TestWALStore_PrepareRequiresID(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Prepare(testJob("", domain.RoleBuy))
	assert.Error(t, err)
	assert.NoError(t, store.MarkDone(nil, "x"))
}
