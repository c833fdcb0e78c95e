package blockchain

import (
	stderrors "errors"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/micropaywall/paygate/internal/infrastructure/rpcpool"
	"github.com/micropaywall/paygate/internal/shared/errors"
)

// JSON-RPC 2.0 codes for a request the node refuses outright. Any endpoint
// gives the same answer, so they are not worth a failover.
const (
	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
)

func isRejection(code int) bool {
	return code == codeInvalidRequest || code == codeInvalidParams
}

// rejectedEVM turns a node rejection of the request itself into a permanent
// validation error. Transport and server faults are returned unchanged.
func rejectedEVM(err error) error {
	var rpcErr gethrpc.Error
	if stderrors.As(err, &rpcErr) && isRejection(rpcErr.ErrorCode()) {
		return rpcpool.Permanent(errors.NewValidationError("EVM node rejected the transaction lookup", rpcErr.Error()))
	}
	return err
}

// rejectedSolana is rejectedEVM for solana-go's JSON-RPC errors.
func rejectedSolana(err error) error {
	var rpcErr *jsonrpc.RPCError
	if stderrors.As(err, &rpcErr) && isRejection(rpcErr.Code) {
		return rpcpool.Permanent(errors.NewValidationError("Solana node rejected the transaction lookup", rpcErr.Message))
	}
	return err
}
