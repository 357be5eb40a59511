package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

const (
	transferGasLimit       = 21000
	defaultConfirmTimeout  = 2 * time.Minute
	defaultReceiptInterval = 2 * time.Second
)

// ErrTransactionReverted is returned when a mined transfer has a failed status.
var ErrTransactionReverted = errors.New("transaction reverted")

// evmBackend is the subset of ethclient used by the ledger.
type evmBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// EVMLedger sends native-asset transfers from a single signer account.
type EVMLedger struct {
	backend         evmBackend
	key             *ecdsa.PrivateKey
	from            common.Address
	chainID         *big.Int
	confirmTimeout  time.Duration
	receiptInterval time.Duration
}

// NewEVMLedger dials rpcURL and derives the signer account from privateKeyHex.
// A zero chainID is resolved from the node.
func NewEVMLedger(ctx context.Context, rpcURL, privateKeyHex string, chainID int64, confirmTimeout time.Duration) (*EVMLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial rpc %s", rpcURL)
	}

	ledger, err := newEVMLedger(ctx, client, privateKeyHex, chainID, confirmTimeout)
	if err != nil {
		client.Close()
		return nil, err
	}
	return ledger, nil
}

func newEVMLedger(ctx context.Context, backend evmBackend, privateKeyHex string, chainID int64, confirmTimeout time.Duration) (*EVMLedger, error) {
	key := strings.TrimSpace(privateKeyHex)
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	id := big.NewInt(chainID)
	if chainID == 0 {
		id, err = backend.ChainID(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetch chain id")
		}
	}

	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}

	return &EVMLedger{
		backend:         backend,
		key:             privateKey,
		from:            crypto.PubkeyToAddress(*pub),
		chainID:         id,
		confirmTimeout:  confirmTimeout,
		receiptInterval: defaultReceiptInterval,
	}, nil
}

// Account returns the signer address.
func (l *EVMLedger) Account() string {
	return l.from.Hex()
}

// BalanceUnits returns the signer balance in wei.
func (l *EVMLedger) BalanceUnits(ctx context.Context) (*big.Int, error) {
	balance, err := l.backend.BalanceAt(ctx, l.from, nil)
	if err != nil {
		return nil, errors.Wrap(err, "get balance")
	}
	return balance, nil
}

// BuildTransfer signs a plain value transfer of units wei to the given address.
// The returned transaction carries a fixed nonce, so resending it never spends twice.
func (l *EVMLedger) BuildTransfer(ctx context.Context, to string, units *big.Int) (*types.Transaction, error) {
	if !common.IsHexAddress(to) {
		return nil, errors.Errorf("invalid counterparty address %q", to)
	}
	if units == nil || units.Sign() <= 0 {
		return nil, errors.Errorf("transfer value must be positive, got %v", units)
	}

	nonce, err := l.backend.PendingNonceAt(ctx, l.from)
	if err != nil {
		return nil, errors.Wrap(err, "get pending nonce")
	}

	gasPrice, err := l.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "suggest gas price")
	}

	recipient := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &recipient,
		Value:    new(big.Int).Set(units),
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign transfer")
	}
	return signed, nil
}

// SendAndConfirm broadcasts tx and blocks until it is mined or the confirm timeout expires.
// It returns the transaction hash as the signature.
//
// Resending the same signed tx is safe: when the node reports it as known or
// its nonce as used, the receipt decides the outcome.
func (l *EVMLedger) SendAndConfirm(ctx context.Context, tx *types.Transaction) (string, error) {
	if err := l.backend.SendTransaction(ctx, tx); err != nil && !isAlreadySent(err) {
		return "", errors.Wrap(err, "send transaction")
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	receipt, err := l.waitMined(waitCtx, tx.Hash())
	if err != nil {
		return "", errors.Wrapf(err, "wait for %s", tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", errors.Wrapf(ErrTransactionReverted, "tx %s", tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

// Close releases the RPC connection.
func (l *EVMLedger) Close() {
	l.backend.Close()
}

func (l *EVMLedger) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(l.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// isAlreadySent reports a resend of a transaction the node already has in
// its pool ("already known") or has already mined ("nonce too low"). A nonce
// taken by another transaction also matches; the missing receipt then turns
// into a confirm timeout.
func isAlreadySent(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "known transaction") ||
		strings.Contains(msg, "nonce too low")
}
