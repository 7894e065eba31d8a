package blockchain

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/coinharbor/coinharbor/internal/config"
)

// Registry holds the chain backends keyed by upper-case currency code.
type Registry struct {
	services map[string]Service
}

// NewRegistry wires the backends the config enables. Bitcoin falls back to
// the mock when no node is configured so development setups still exercise
// the wallet path.
func NewRegistry(ctx context.Context, cfg config.WalletConfig, logger *zap.Logger) (*Registry, error) {
	r := &Registry{services: make(map[string]Service)}

	if cfg.Bitcoin.Enabled {
		r.register(NewBitcoinService(
			cfg.Bitcoin.RPCURL, cfg.Bitcoin.RPCUsername, cfg.Bitcoin.RPCPassword,
			cfg.Bitcoin.MinConfirmations, logger))
	} else {
		r.register(NewMockBitcoinService(cfg.Bitcoin.MinConfirmations, logger))
		logger.Info("bitcoin node not configured, using mock backend")
	}

	if cfg.Ethereum.Enabled {
		eth, err := NewEthereumService(ctx, cfg.Ethereum.RPCURL, cfg.Ethereum.Account,
			cfg.Ethereum.MinConfirmations, logger)
		if err != nil {
			return nil, err
		}
		r.register(eth)
	}

	return r, nil
}

// NewStaticRegistry builds a registry from explicit backends.
func NewStaticRegistry(services ...Service) *Registry {
	r := &Registry{services: make(map[string]Service)}
	for _, s := range services {
		r.register(s)
	}
	return r
}

func (r *Registry) register(s Service) {
	r.services[strings.ToUpper(s.CurrencyCode())] = s
}

// Get returns the backend for currency, or nil when the currency has no
// chain backend.
func (r *Registry) Get(currency string) Service {
	return r.services[strings.ToUpper(currency)]
}

// All returns every registered backend.
func (r *Registry) All() []Service {
	out := make([]Service, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s)
	}
	return out
}
