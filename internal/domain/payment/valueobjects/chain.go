package valueobjects

import (
	"fmt"
	"regexp"
	"strings"
)

// ChainKind groups chains that share a transaction format and verifier.
type ChainKind string

const (
	ChainKindSolana ChainKind = "solana"
	ChainKindEVM    ChainKind = "evm"
)

func (k ChainKind) IsValid() bool {
	return k == ChainKindSolana || k == ChainKindEVM
}

func (k ChainKind) String() string {
	return string(k)
}

// DefaultConfirmations is the confirmation depth used when a chain does not configure one.
func (k ChainKind) DefaultConfirmations() int {
	switch k {
	case ChainKindEVM:
		return 12
	default:
		return 1
	}
}

// Chain is the configured name of a supported chain, e.g. "solana" or "polygon".
type Chain string

const (
	ChainSolana    Chain = "solana"
	ChainEthereum  Chain = "ethereum"
	ChainPolygon   Chain = "polygon"
	ChainBase      Chain = "base"
	ChainArbitrum  Chain = "arbitrum"
	ChainOptimism  Chain = "optimism"
	ChainBNB       Chain = "bnb"
	ChainAvalanche Chain = "avalanche"
)

// KnownEVMChainIDs maps well-known EVM chain names to their chain id.
var KnownEVMChainIDs = map[Chain]int64{
	ChainEthereum:  1,
	ChainPolygon:   137,
	ChainBase:      8453,
	ChainArbitrum:  42161,
	ChainOptimism:  10,
	ChainBNB:       56,
	ChainAvalanche: 43114,
}

// NewChain normalizes a chain name.
func NewChain(name string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(name)))
	if c == "" {
		return "", fmt.Errorf("chain is required")
	}
	return c, nil
}

func (c Chain) String() string {
	return string(c)
}

var (
	// EVM address: 0x followed by 40 hex characters
	evmAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	// Solana address: base58 encoded 32-byte public key
	solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// ValidateAddress checks an address against the format of the chain kind.
func (k ChainKind) ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch k {
	case ChainKindEVM:
		if !evmAddressPattern.MatchString(address) {
			return fmt.Errorf("invalid EVM address format: must be 0x followed by 40 hex characters")
		}
	case ChainKindSolana:
		if !solanaAddressPattern.MatchString(address) {
			return fmt.Errorf("invalid Solana address format: must be a base58 public key")
		}
	default:
		return fmt.Errorf("cannot validate address for unknown chain kind: %s", k)
	}
	return nil
}

// NormalizeAddress returns the canonical form used for comparisons.
// EVM addresses are case-insensitive; Solana addresses are not.
func (k ChainKind) NormalizeAddress(address string) string {
	if k == ChainKindEVM {
		return strings.ToLower(address)
	}
	return address
}
