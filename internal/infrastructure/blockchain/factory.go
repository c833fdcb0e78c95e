package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gagliardetto/solana-go/rpc"

	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/metrics"
	"github.com/micropaywall/paygate/internal/infrastructure/rpcpool"
	sharedConfig "github.com/micropaywall/paygate/internal/shared/config"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

// PolicyFromConfig converts the configured retry policy.
func PolicyFromConfig(cfg sharedConfig.RPCConfig) rpcpool.Policy {
	return rpcpool.Policy{
		Timeout:           cfg.Timeout,
		MaxAttempts:       cfg.MaxAttempts,
		InitialBackoff:    cfg.InitialBackoff,
		MaxBackoff:        cfg.MaxBackoff,
		JitterPercent:     cfg.JitterPercent,
		UnhealthyCooldown: cfg.UnhealthyCooldown,
	}
}

// NewRegistryFromConfig dials every configured endpoint and registers one
// verifier per chain. The returned close function releases EVM connections.
func NewRegistryFromConfig(
	ctx context.Context,
	chains []sharedConfig.ChainConfig,
	rpcCfg sharedConfig.RPCConfig,
	recorder metrics.Recorder,
	logger logger.Interface,
) (*Registry, func(), error) {
	registry := NewRegistry(logger)
	policy := PolicyFromConfig(rpcCfg)

	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, cc := range chains {
		chain, err := vo.NewChain(cc.Name)
		if err != nil {
			closeAll()
			return nil, nil, err
		}

		switch vo.ChainKind(cc.Kind) {
		case vo.ChainKindSolana:
			endpoints := make([]rpcpool.Endpoint[SolanaRPC], 0, len(cc.Endpoints))
			for _, url := range cc.Endpoints {
				endpoints = append(endpoints, rpcpool.Endpoint[SolanaRPC]{URL: url, Client: rpc.New(url)})
			}
			pool, err := rpcpool.New(chain.String(), endpoints, policy, logger, rpcpool.WithRecorder[SolanaRPC](recorder))
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			registry.Register(NewSolanaVerifier(SolanaConfig{
				Chain:             chain,
				Commitment:        rpc.CommitmentType(cc.Commitment),
				SupportsReference: cc.SupportsReference,
			}, pool, logger))

		case vo.ChainKindEVM:
			chainID := cc.ChainID
			if chainID == 0 {
				chainID = vo.KnownEVMChainIDs[chain]
			}
			if chainID == 0 {
				closeAll()
				return nil, nil, fmt.Errorf("chain %s: chain_id is required", chain)
			}

			endpoints := make([]rpcpool.Endpoint[EVMRPC], 0, len(cc.Endpoints))
			for _, url := range cc.Endpoints {
				client, err := ethclient.DialContext(ctx, url)
				if err != nil {
					closeAll()
					return nil, nil, fmt.Errorf("chain %s: failed to dial %s: %w", chain, url, err)
				}
				closers = append(closers, client.Close)
				endpoints = append(endpoints, rpcpool.Endpoint[EVMRPC]{URL: url, Client: client})
			}
			pool, err := rpcpool.New(chain.String(), endpoints, policy, logger, rpcpool.WithRecorder[EVMRPC](recorder))
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			registry.Register(NewEVMVerifier(EVMConfig{
				Chain:             chain,
				ChainID:           chainID,
				MinConfirmations:  cc.MinConfirmations,
				SupportsReference: cc.SupportsReference,
			}, pool, logger))

		default:
			closeAll()
			return nil, nil, fmt.Errorf("chain %s: unknown kind %q", chain, cc.Kind)
		}

		logger.Infow("chain verifier registered",
			"chain", chain,
			"kind", cc.Kind,
			"endpoints", len(cc.Endpoints),
			"supports_reference", cc.SupportsReference,
		)
	}

	return registry, closeAll, nil
}
