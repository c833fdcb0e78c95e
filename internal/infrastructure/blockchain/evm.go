package blockchain

import (
	"context"
	stderrors "errors"
	"math"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/rpcpool"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/id"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

const evmReferenceLength = 24

// EVMRPC is the subset of *ethclient.Client the verifier calls.
type EVMRPC interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ EVMRPC = (*ethclient.Client)(nil)

type EVMConfig struct {
	Chain             vo.Chain
	ChainID           int64
	MinConfirmations  int
	SupportsReference bool
}

// EVMVerifier verifies native-currency value transfers. The intent reference
// travels as UTF-8 transaction calldata.
type EVMVerifier struct {
	chain             vo.Chain
	chainID           *big.Int
	signer            types.Signer
	minConfirmations  uint64
	supportsReference bool
	pool              *rpcpool.Pool[EVMRPC]
	logger            logger.Interface
}

var _ blockchain.Verifier = (*EVMVerifier)(nil)

func NewEVMVerifier(cfg EVMConfig, pool *rpcpool.Pool[EVMRPC], logger logger.Interface) *EVMVerifier {
	chainID := big.NewInt(cfg.ChainID)
	return &EVMVerifier{
		chain:             cfg.Chain,
		chainID:           chainID,
		signer:            types.LatestSignerForChainID(chainID),
		minConfirmations:  uint64(validateConfirmations(cfg.MinConfirmations, vo.ChainKindEVM)),
		supportsReference: cfg.SupportsReference,
		pool:              pool,
		logger:            logger.Named("evm").With("chain", cfg.Chain),
	}
}

func (v *EVMVerifier) Chain() vo.Chain         { return v.chain }
func (v *EVMVerifier) Kind() vo.ChainKind      { return vo.ChainKindEVM }
func (v *EVMVerifier) SupportsReference() bool { return v.supportsReference }

// ChainID is the EIP-155 chain id used in payment URLs.
func (v *EVMVerifier) ChainID() int64 {
	return v.chainID.Int64()
}

func (v *EVMVerifier) NewReference() (string, error) {
	return id.Generate(evmReferenceLength)
}

func (v *EVMVerifier) Height(ctx context.Context) (uint64, error) {
	return rpcpool.Call(ctx, v.pool, "eth_blockNumber", func(ctx context.Context, c EVMRPC) (uint64, error) {
		return c.BlockNumber(ctx)
	})
}

func (v *EVMVerifier) Verify(ctx context.Context, signature string, intent *payment.PaymentIntent) (*blockchain.Outcome, error) {
	return verifyWith(ctx, v, signature, intent)
}

func (v *EVMVerifier) Fetch(ctx context.Context, signature string) (*blockchain.Transaction, error) {
	hash, err := parseTxHash(signature)
	if err != nil {
		return nil, err
	}

	type fetched struct {
		tx      *types.Transaction
		pending bool
	}
	got, err := rpcpool.Call(ctx, v.pool, "eth_getTransactionByHash", func(ctx context.Context, c EVMRPC) (fetched, error) {
		tx, pending, err := c.TransactionByHash(ctx, hash)
		if stderrors.Is(err, ethereum.NotFound) {
			return fetched{}, nil
		}
		return fetched{tx: tx, pending: pending}, rejectedEVM(err)
	})
	if err != nil {
		return nil, err
	}
	if got.tx == nil {
		return nil, errors.ErrTransactionNotFound
	}

	out, err := v.parse(hash, got.tx)
	if err != nil {
		v.logger.Warnw("failed to recover transaction sender", "tx_hash", hash.Hex(), "error", err)
		return nil, errors.ErrPayerInvalid.Wrapf("cannot recover sender: %v", err)
	}
	if got.pending {
		return out, nil
	}

	receipt, err := rpcpool.Call(ctx, v.pool, "eth_getTransactionReceipt", func(ctx context.Context, c EVMRPC) (*types.Receipt, error) {
		r, err := c.TransactionReceipt(ctx, hash)
		if stderrors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return r, rejectedEVM(err)
	})
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return out, nil
	}

	head, err := v.Height(ctx)
	if err != nil {
		return nil, err
	}

	block := receipt.BlockNumber.Uint64()
	out.Slot = block
	out.Succeeded = receipt.Status == types.ReceiptStatusSuccessful
	if head >= block {
		out.Confirmations = head - block + 1
	}
	out.Final = out.Confirmations >= v.minConfirmations

	if out.Final {
		header, err := rpcpool.Call(ctx, v.pool, "eth_getBlockByNumber", func(ctx context.Context, c EVMRPC) (*types.Header, error) {
			return c.HeaderByNumber(ctx, receipt.BlockNumber)
		})
		if err != nil {
			return nil, err
		}
		if header != nil {
			t := time.Unix(int64(header.Time), 0).UTC()
			out.BlockTime = &t
		}
	}

	v.logger.Debugw("fetched transaction",
		"tx_hash", out.Signature,
		"block", block,
		"confirmations", out.Confirmations,
		"final", out.Final,
	)
	return out, nil
}

func (v *EVMVerifier) parse(hash common.Hash, tx *types.Transaction) (*blockchain.Transaction, error) {
	from, err := types.Sender(v.signer, tx)
	if err != nil {
		return nil, err
	}
	payer := vo.ChainKindEVM.NormalizeAddress(from.Hex())

	out := &blockchain.Transaction{
		Signature: hash.Hex(),
		Chain:     v.chain,
		Succeeded: true,
		Payer:     payer,
	}
	if to := tx.To(); to != nil && tx.Value().Sign() > 0 {
		out.Transfers = append(out.Transfers, blockchain.Transfer{
			From:   payer,
			To:     vo.ChainKindEVM.NormalizeAddress(to.Hex()),
			Amount: clampToUint64(tx.Value()),
		})
	}
	if ref := calldataReference(tx.Data()); ref != "" {
		out.References = append(out.References, ref)
	}
	return out, nil
}

func parseTxHash(signature string) (common.Hash, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, errors.NewValidationError("invalid EVM transaction hash", signature)
	}
	return common.BytesToHash(raw), nil
}

func calldataReference(data []byte) string {
	if len(data) == 0 || !utf8.Valid(data) {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// clampToUint64 caps values above the uint64 range; such a transfer covers
// every representable price.
func clampToUint64(v *big.Int) uint64 {
	if v.IsUint64() {
		return v.Uint64()
	}
	return math.MaxUint64
}
