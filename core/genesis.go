package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"settlenet/core/state"
	"settlenet/native/venue"
)

// GenesisToken registers a settlement asset at first boot.
type GenesisToken struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// GenesisAccount seeds a balance at first boot.
type GenesisAccount struct {
	Address common.Address
	Token   string
	Amount  *big.Int
}

// Genesis is the first-boot state: assets, balances, approved sellers, and
// liquidity pools.
type Genesis struct {
	Tokens               []GenesisToken
	Accounts             []GenesisAccount
	Sellers              []common.Address
	ConstantProductPools []*venue.ConstantProductPool
	StablePools          []*venue.StablePool
}

// Seed applies the genesis state exactly once; repeat calls are no-ops. The
// whole seed commits atomically.
func (n *Node) Seed(gen *Genesis) error {
	if gen == nil {
		return nil
	}
	return n.withState(func(st *state.Manager) error {
		var applied bool
		ok, err := st.KVGet(state.GenesisAppliedKey(), &applied)
		if err != nil {
			return err
		}
		if ok && applied {
			return nil
		}
		for _, token := range gen.Tokens {
			if err := st.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
				return fmt.Errorf("seed token %s: %w", token.Symbol, err)
			}
		}
		for _, account := range gen.Accounts {
			balance, err := st.Balance(account.Address[:], account.Token)
			if err != nil {
				return err
			}
			if account.Amount == nil || account.Amount.Sign() < 0 {
				return fmt.Errorf("seed account %s: invalid amount", account.Address.Hex())
			}
			if err := st.SetBalance(account.Address[:], account.Token, new(big.Int).Add(balance, account.Amount)); err != nil {
				return err
			}
		}
		for _, seller := range gen.Sellers {
			if err := n.registry.SetApprovedSeller(st, seller, true); err != nil {
				return err
			}
		}
		for _, pool := range gen.ConstantProductPools {
			if err := venue.CreateConstantProductPool(st, pool); err != nil {
				return fmt.Errorf("seed pool %s: %w", pool.ID, err)
			}
		}
		for _, pool := range gen.StablePools {
			if err := venue.CreateStablePool(st, pool); err != nil {
				return fmt.Errorf("seed pool %s: %w", pool.ID, err)
			}
		}
		return st.KVPut(state.GenesisAppliedKey(), true)
	})
}
