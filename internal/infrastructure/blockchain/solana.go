package blockchain

import (
	"context"
	stderrors "errors"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/rpcpool"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

// SPL Memo program ids. Wallets still emit v1 memos.
var (
	memoProgramID   = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	memoV1ProgramID = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

func isMemoProgram(key solana.PublicKey) bool {
	return key.Equals(memoProgramID) || key.Equals(memoV1ProgramID)
}

// maxTransactionVersion lets getTransaction return versioned (v0) transactions.
var maxTransactionVersion uint64 = 0

// SolanaRPC is the subset of *rpc.Client the verifier calls.
type SolanaRPC interface {
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

var _ SolanaRPC = (*rpc.Client)(nil)

type SolanaConfig struct {
	Chain vo.Chain
	// Commitment is the level a transaction must reach to be final:
	// rpc.CommitmentConfirmed or rpc.CommitmentFinalized.
	Commitment        rpc.CommitmentType
	SupportsReference bool
}

// SolanaVerifier verifies native SOL transfers made through the system program.
// A transaction carries the intent reference as a Solana Pay reference account
// or as a memo instruction.
type SolanaVerifier struct {
	chain             vo.Chain
	pool              *rpcpool.Pool[SolanaRPC]
	commitment        rpc.CommitmentType
	supportsReference bool
	logger            logger.Interface
}

var _ blockchain.Verifier = (*SolanaVerifier)(nil)

func NewSolanaVerifier(cfg SolanaConfig, pool *rpcpool.Pool[SolanaRPC], logger logger.Interface) *SolanaVerifier {
	commitment := cfg.Commitment
	if commitment != rpc.CommitmentFinalized {
		commitment = rpc.CommitmentConfirmed
	}
	chain := cfg.Chain
	if chain == "" {
		chain = vo.ChainSolana
	}
	return &SolanaVerifier{
		chain:             chain,
		pool:              pool,
		commitment:        commitment,
		supportsReference: cfg.SupportsReference,
		logger:            logger.Named("solana").With("chain", chain),
	}
}

func (v *SolanaVerifier) Chain() vo.Chain         { return v.chain }
func (v *SolanaVerifier) Kind() vo.ChainKind      { return vo.ChainKindSolana }
func (v *SolanaVerifier) SupportsReference() bool { return v.supportsReference }

// NewReference returns a fresh public key. Wallets attach it as a read-only
// account (Solana Pay) or as the memo text.
func (v *SolanaVerifier) NewReference() (string, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return "", err
	}
	return key.PublicKey().String(), nil
}

func (v *SolanaVerifier) Height(ctx context.Context) (uint64, error) {
	return rpcpool.Call(ctx, v.pool, "getSlot", func(ctx context.Context, c SolanaRPC) (uint64, error) {
		return c.GetSlot(ctx, v.commitment)
	})
}

func (v *SolanaVerifier) Verify(ctx context.Context, signature string, intent *payment.PaymentIntent) (*blockchain.Outcome, error) {
	return verifyWith(ctx, v, signature, intent)
}

func (v *SolanaVerifier) Fetch(ctx context.Context, signature string) (*blockchain.Transaction, error) {
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(signature))
	if err != nil {
		return nil, errors.NewValidationError("invalid Solana transaction signature", err.Error())
	}

	res, err := rpcpool.Call(ctx, v.pool, "getTransaction", func(ctx context.Context, c SolanaRPC) (*rpc.GetTransactionResult, error) {
		res, err := c.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxTransactionVersion,
		})
		if stderrors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return res, rejectedSolana(err)
	})
	if err != nil {
		return nil, err
	}

	if res == nil || res.Transaction == nil {
		// not yet confirmed; a processed-only transaction is pending, anything else unknown
		status, err := v.signatureStatus(ctx, sig)
		if err != nil {
			return nil, err
		}
		if status == nil {
			return nil, errors.ErrTransactionNotFound
		}
		return &blockchain.Transaction{
			Signature: sig.String(),
			Chain:     v.chain,
			Succeeded: status.Err == nil,
			Slot:      status.Slot,
		}, nil
	}

	tx, err := parseSolanaTransaction(sig.String(), v.chain, res)
	if err != nil {
		v.logger.Errorw("failed to decode transaction", "signature", signature, "error", err)
		return nil, errors.NewInternalError("failed to decode Solana transaction", err.Error())
	}

	tx.Final = true
	if v.commitment == rpc.CommitmentFinalized {
		status, err := v.signatureStatus(ctx, sig)
		if err != nil {
			return nil, err
		}
		tx.Final = status != nil && status.ConfirmationStatus == rpc.ConfirmationStatusFinalized
		if status != nil && status.Confirmations != nil {
			tx.Confirmations = *status.Confirmations
		}
	}

	v.logger.Debugw("fetched transaction",
		"signature", tx.Signature,
		"slot", tx.Slot,
		"final", tx.Final,
		"transfers", len(tx.Transfers),
	)
	return tx, nil
}

func (v *SolanaVerifier) signatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	return rpcpool.Call(ctx, v.pool, "getSignatureStatuses", func(ctx context.Context, c SolanaRPC) (*rpc.SignatureStatusesResult, error) {
		out, err := c.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return nil, rejectedSolana(err)
		}
		if out == nil || len(out.Value) == 0 {
			return nil, nil
		}
		return out.Value[0], nil
	})
}

// parseSolanaTransaction extracts system-program transfers, memos and account
// keys. Account indexes resolve against the static keys followed by the
// addresses loaded from lookup tables, writable first.
func parseSolanaTransaction(signature string, chain vo.Chain, res *rpc.GetTransactionResult) (*blockchain.Transaction, error) {
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, err
	}

	keys := append(solana.PublicKeySlice{}, tx.Message.AccountKeys...)
	if res.Meta != nil {
		keys = append(keys, res.Meta.LoadedAddresses.Writable...)
		keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)
	}

	out := &blockchain.Transaction{
		Signature: signature,
		Chain:     chain,
		Succeeded: res.Meta != nil && res.Meta.Err == nil,
		Slot:      res.Slot,
	}
	if res.BlockTime != nil {
		t := res.BlockTime.Time().UTC()
		out.BlockTime = &t
	}
	if len(keys) > 0 {
		out.Payer = keys[0].String()
	}

	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) {
			continue
		}
		program := keys[inst.ProgramIDIndex]
		switch {
		case program.Equals(solana.SystemProgramID):
			if transfer, ok := decodeSystemTransfer(inst, keys); ok {
				out.Transfers = append(out.Transfers, transfer)
			}
		case isMemoProgram(program):
			if memo := strings.TrimSpace(string(inst.Data)); memo != "" {
				out.References = append(out.References, memo)
			}
		}
	}

	for _, key := range keys {
		if key.Equals(solana.SystemProgramID) || isMemoProgram(key) {
			continue
		}
		out.References = append(out.References, key.String())
	}
	return out, nil
}

func decodeSystemTransfer(inst solana.CompiledInstruction, keys solana.PublicKeySlice) (blockchain.Transfer, bool) {
	var decoded system.Instruction
	if err := bin.NewBinDecoder(inst.Data).Decode(&decoded); err != nil {
		return blockchain.Transfer{}, false
	}
	transfer, ok := decoded.Impl.(*system.Transfer)
	if !ok || transfer.Lamports == nil || len(inst.Accounts) < 2 {
		return blockchain.Transfer{}, false
	}
	from, to := int(inst.Accounts[0]), int(inst.Accounts[1])
	if from >= len(keys) || to >= len(keys) {
		return blockchain.Transfer{}, false
	}
	return blockchain.Transfer{
		From:   keys[from].String(),
		To:     keys[to].String(),
		Amount: *transfer.Lamports,
	}, true
}
