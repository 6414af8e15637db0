// Package bank tracks account balances and token supply. Every balance
// mutation on the chain goes through the Keeper.
package bank

import (
	"fmt"

	"github.com/holiman/uint256"

	chainerrors "chainsim/core/errors"
	"chainsim/core/events"
	"chainsim/core/state"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/storage"
)

var (
	balanceRoot = []byte("bank/balance")
	supplyRoot  = []byte("bank/supply")
)

func balanceKey(addr crypto.Address, denom string) []byte {
	return state.Key(balanceRoot, addr.Bytes(), []byte(denom))
}

func accountPrefix(addr crypto.Address) []byte {
	return append(state.Key(balanceRoot, addr.Bytes()), '/')
}

func supplyKey(denom string) []byte {
	return state.Key(supplyRoot, []byte(denom))
}

// Keeper is stateless; the store of the active scope is passed to every
// call so that writes land in whatever scope the router opened.
type Keeper struct{}

func NewKeeper() *Keeper {
	return &Keeper{}
}

func normalizeFunds(amount types.Coins) (types.Coins, error) {
	coins, err := amount.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chainerrors.ErrInvalidDenom, err)
	}
	if len(coins) == 0 {
		return nil, chainerrors.ErrEmptyCoins
	}
	return coins, nil
}

func (k *Keeper) getAmount(mgr *state.Manager, key []byte) (*uint256.Int, error) {
	amount := new(uint256.Int)
	if _, err := mgr.KVGet(key, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// putAmount stores amount under key, deleting zero entries so that empty
// accounts leave no trace in state.
func (k *Keeper) putAmount(mgr *state.Manager, key []byte, amount *uint256.Int) error {
	if amount.IsZero() {
		return mgr.KVDelete(key)
	}
	return mgr.KVPut(key, amount)
}

// Balance returns the balance of addr in denom. It fails only on a malformed
// denom.
func (k *Keeper) Balance(kv storage.KVStore, addr crypto.Address, denom string) (types.Coin, error) {
	if err := types.ValidateDenom(denom); err != nil {
		return types.Coin{}, fmt.Errorf("%w: %v", chainerrors.ErrInvalidDenom, err)
	}
	amount, err := k.getAmount(state.NewManager(kv), balanceKey(addr, denom))
	if err != nil {
		return types.Coin{}, err
	}
	return types.Coin{Denom: denom, Amount: amount}, nil
}

// AllBalances returns every non-zero balance of addr sorted by denom.
func (k *Keeper) AllBalances(kv storage.KVStore, addr crypto.Address) (types.Coins, error) {
	prefix := accountPrefix(addr)
	coins := types.Coins{}
	err := state.NewManager(kv).KVIterate(prefix, func(key, raw []byte) (bool, error) {
		amount := new(uint256.Int)
		if err := state.Decode(raw, amount); err != nil {
			return true, err
		}
		coins = append(coins, types.Coin{Denom: string(key[len(prefix):]), Amount: amount})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return coins, nil
}

// Supply returns the circulating amount of denom.
func (k *Keeper) Supply(kv storage.KVStore, denom string) (types.Coin, error) {
	if err := types.ValidateDenom(denom); err != nil {
		return types.Coin{}, fmt.Errorf("%w: %v", chainerrors.ErrInvalidDenom, err)
	}
	amount, err := k.getAmount(state.NewManager(kv), supplyKey(denom))
	if err != nil {
		return types.Coin{}, err
	}
	return types.Coin{Denom: denom, Amount: amount}, nil
}

// InitBalance replaces the balances of addr with coins and adjusts supply
// accordingly. It is meant for genesis and test setup only.
func (k *Keeper) InitBalance(kv storage.KVStore, addr crypto.Address, coins types.Coins) error {
	normalized, err := coins.Normalize()
	if err != nil {
		return fmt.Errorf("%w: %v", chainerrors.ErrInvalidDenom, err)
	}
	existing, err := k.AllBalances(kv, addr)
	if err != nil {
		return err
	}
	mgr := state.NewManager(kv)
	for _, coin := range existing {
		if err := k.adjustSupply(mgr, coin.Denom, coin.Amount, false); err != nil {
			return err
		}
		if err := mgr.KVDelete(balanceKey(addr, coin.Denom)); err != nil {
			return err
		}
	}
	for _, coin := range normalized {
		if err := k.adjustSupply(mgr, coin.Denom, coin.Amount, true); err != nil {
			return err
		}
		if err := k.putAmount(mgr, balanceKey(addr, coin.Denom), coin.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (k *Keeper) adjustSupply(mgr *state.Manager, denom string, delta *uint256.Int, increase bool) error {
	key := supplyKey(denom)
	supply, err := k.getAmount(mgr, key)
	if err != nil {
		return err
	}
	if increase {
		if _, overflow := supply.AddOverflow(supply, delta); overflow {
			return fmt.Errorf("%w: %s", chainerrors.ErrSupplyOverflow, denom)
		}
	} else {
		if supply.Lt(delta) {
			return fmt.Errorf("bank: supply of %s below %s", denom, delta.Dec())
		}
		supply.Sub(supply, delta)
	}
	return k.putAmount(mgr, key, supply)
}

// debit checks every denom before touching state so a shortfall in one
// denom leaves all balances untouched.
func (k *Keeper) debit(mgr *state.Manager, addr crypto.Address, coins types.Coins) error {
	balances := make([]*uint256.Int, len(coins))
	for i, coin := range coins {
		balance, err := k.getAmount(mgr, balanceKey(addr, coin.Denom))
		if err != nil {
			return err
		}
		if balance.Lt(coin.Amount) {
			return fmt.Errorf("%w: %s has %s%s, needs %s", chainerrors.ErrInsufficientFunds,
				addr, balance.Dec(), coin.Denom, coin)
		}
		balances[i] = balance
	}
	for i, coin := range coins {
		balances[i].Sub(balances[i], coin.Amount)
		if err := k.putAmount(mgr, balanceKey(addr, coin.Denom), balances[i]); err != nil {
			return err
		}
	}
	return nil
}

func (k *Keeper) credit(mgr *state.Manager, addr crypto.Address, coins types.Coins) error {
	for _, coin := range coins {
		key := balanceKey(addr, coin.Denom)
		balance, err := k.getAmount(mgr, key)
		if err != nil {
			return err
		}
		if _, overflow := balance.AddOverflow(balance, coin.Amount); overflow {
			return fmt.Errorf("%w: balance of %s in %s", chainerrors.ErrSupplyOverflow, addr, coin.Denom)
		}
		if err := k.putAmount(mgr, key, balance); err != nil {
			return err
		}
	}
	return nil
}

// Transfer moves amount from one account to another. Either every denom
// moves or none does.
func (k *Keeper) Transfer(kv storage.KVStore, from, to crypto.Address, amount types.Coins) ([]types.Event, error) {
	coins, err := normalizeFunds(amount)
	if err != nil {
		return nil, err
	}
	mgr := state.NewManager(kv)
	if err := k.debit(mgr, from, coins); err != nil {
		return nil, err
	}
	if err := k.credit(mgr, to, coins); err != nil {
		return nil, err
	}
	return events.Build(events.Transfer{Sender: from, Recipient: to, Amount: coins}), nil
}

// Mint creates amount for to and raises supply. Only the router's
// privileged paths reach it.
func (k *Keeper) Mint(kv storage.KVStore, to crypto.Address, amount types.Coins) ([]types.Event, error) {
	coins, err := normalizeFunds(amount)
	if err != nil {
		return nil, err
	}
	mgr := state.NewManager(kv)
	for _, coin := range coins {
		if err := k.adjustSupply(mgr, coin.Denom, coin.Amount, true); err != nil {
			return nil, err
		}
	}
	if err := k.credit(mgr, to, coins); err != nil {
		return nil, err
	}
	return events.Build(events.Mint{Recipient: to, Amount: coins}), nil
}

// Burn destroys amount held by from and lowers supply.
func (k *Keeper) Burn(kv storage.KVStore, from crypto.Address, amount types.Coins) ([]types.Event, error) {
	coins, err := normalizeFunds(amount)
	if err != nil {
		return nil, err
	}
	mgr := state.NewManager(kv)
	if err := k.debit(mgr, from, coins); err != nil {
		return nil, err
	}
	for _, coin := range coins {
		if err := k.adjustSupply(mgr, coin.Denom, coin.Amount, false); err != nil {
			return nil, err
		}
	}
	return events.Build(events.Burn{Burner: from, Amount: coins}), nil
}

// Execute handles bank messages sent by accounts and contracts.
func (k *Keeper) Execute(kv storage.KVStore, sender crypto.Address, msg types.Msg) ([]types.Event, error) {
	switch m := msg.(type) {
	case types.BankSend:
		return k.Transfer(kv, sender, m.To, m.Amount)
	default:
		return nil, fmt.Errorf("%w: bank cannot handle %T", chainerrors.ErrUnroutableMessage, msg)
	}
}

// Sudo handles privileged bank messages.
func (k *Keeper) Sudo(kv storage.KVStore, msg types.SudoMsg) ([]types.Event, error) {
	switch m := msg.(type) {
	case types.BankMint:
		return k.Mint(kv, m.To, m.Amount)
	default:
		return nil, fmt.Errorf("%w: bank cannot handle sudo %T", chainerrors.ErrUnroutableMessage, msg)
	}
}
