package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"chainsim/core/genesis"
	"chainsim/core/types"
	"chainsim/crypto"
)

// QueryState answers a path query within namespace with a JSON value:
//
//	bank/balances/<addr>       bank/supply/<denom>
//	staking/validators         staking/validator/<addr>
//	staking/delegations/<addr> staking/unbondings/<addr>
//	wasm/contract/<addr>       wasm/raw/<addr>/<hexkey>
//	wasm/contracts
func (a *App) QueryState(namespace, key string) (*QueryResult, error) {
	ns := strings.TrimSpace(strings.ToLower(namespace))
	path := strings.Trim(strings.TrimSpace(key), "/")
	switch ns {
	case "bank":
		return a.queryBankState(path)
	case "staking":
		return a.queryStakingState(path)
	case "wasm", "contract":
		return a.queryContractState(path)
	default:
		return nil, ErrQueryNotSupported
	}
}

// QueryPrefix lists the records of a namespace collection.
func (a *App) QueryPrefix(namespace, prefix string) ([]QueryRecord, error) {
	ns := strings.TrimSpace(strings.ToLower(namespace))
	scope := strings.TrimSpace(prefix)
	switch ns {
	case "staking":
		if scope != "" && scope != "validators" {
			return nil, ErrQueryNotSupported
		}
		validators, err := a.Validators()
		if err != nil {
			return nil, err
		}
		records := make([]QueryRecord, 0, len(validators))
		for _, v := range validators {
			payload, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			records = append(records, QueryRecord{Key: v.Address.String(), Value: payload})
		}
		return records, nil
	case "wasm", "contract":
		addrText, ok := strings.CutPrefix(scope, "state/")
		if !ok {
			return nil, ErrQueryNotSupported
		}
		addr, err := decodeQueryAddress(addrText)
		if err != nil {
			return nil, err
		}
		dump, err := a.DumpContract(addr)
		if err != nil {
			return nil, err
		}
		records := make([]QueryRecord, 0, len(dump))
		for _, kv := range dump {
			records = append(records, QueryRecord{Key: hex.EncodeToString(kv.Key), Value: kv.Value})
		}
		return records, nil
	default:
		return nil, ErrQueryNotSupported
	}
}

func jsonResult(v any) (*QueryResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Value: payload}, nil
}

func decodeQueryAddress(value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("query: address required")
	}
	return genesis.ParseAccount(trimmed)
}

func (a *App) queryBankState(path string) (*QueryResult, error) {
	switch {
	case strings.HasPrefix(path, "balances/"):
		addr, err := decodeQueryAddress(strings.TrimPrefix(path, "balances/"))
		if err != nil {
			return nil, err
		}
		balances, err := a.AllBalances(addr)
		if err != nil {
			return nil, err
		}
		if balances == nil {
			balances = types.Coins{}
		}
		return jsonResult(balances)
	case strings.HasPrefix(path, "supply/"):
		denom := strings.TrimSpace(strings.TrimPrefix(path, "supply/"))
		supply, err := a.Supply(denom)
		if err != nil {
			return nil, err
		}
		return jsonResult(supply)
	default:
		return nil, ErrQueryNotSupported
	}
}

func (a *App) queryStakingState(path string) (*QueryResult, error) {
	switch {
	case path == "validators":
		validators, err := a.Validators()
		if err != nil {
			return nil, err
		}
		if validators == nil {
			validators = []types.Validator{}
		}
		return jsonResult(validators)
	case strings.HasPrefix(path, "validator/"):
		addr, err := decodeQueryAddress(strings.TrimPrefix(path, "validator/"))
		if err != nil {
			return nil, err
		}
		validator, err := a.Validator(addr)
		if err != nil {
			return nil, err
		}
		return jsonResult(validator)
	case strings.HasPrefix(path, "delegations/"):
		addr, err := decodeQueryAddress(strings.TrimPrefix(path, "delegations/"))
		if err != nil {
			return nil, err
		}
		delegations, err := a.Delegations(addr)
		if err != nil {
			return nil, err
		}
		if delegations == nil {
			delegations = []types.Delegation{}
		}
		return jsonResult(delegations)
	case strings.HasPrefix(path, "unbondings/"):
		addr, err := decodeQueryAddress(strings.TrimPrefix(path, "unbondings/"))
		if err != nil {
			return nil, err
		}
		entries, err := a.Unbondings(addr)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []types.UnbondingEntry{}
		}
		return jsonResult(entries)
	default:
		return nil, ErrQueryNotSupported
	}
}

func (a *App) queryContractState(path string) (*QueryResult, error) {
	switch {
	case path == "contracts":
		contracts, err := a.Contracts()
		if err != nil {
			return nil, err
		}
		if contracts == nil {
			contracts = []types.ContractInfo{}
		}
		return jsonResult(contracts)
	case strings.HasPrefix(path, "contract/"):
		addr, err := decodeQueryAddress(strings.TrimPrefix(path, "contract/"))
		if err != nil {
			return nil, err
		}
		info, err := a.ContractInfo(addr)
		if err != nil {
			return nil, err
		}
		return jsonResult(info)
	case strings.HasPrefix(path, "raw/"):
		addrText, keyText, ok := strings.Cut(strings.TrimPrefix(path, "raw/"), "/")
		if !ok {
			return nil, fmt.Errorf("query: raw key required")
		}
		addr, err := decodeQueryAddress(addrText)
		if err != nil {
			return nil, err
		}
		rawKey, err := hex.DecodeString(strings.TrimPrefix(keyText, "0x"))
		if err != nil {
			return nil, fmt.Errorf("query: invalid hex key: %w", err)
		}
		value, err := a.QueryRaw(addr, rawKey)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return &QueryResult{}, nil
		}
		return &QueryResult{Value: value}, nil
	default:
		return nil, ErrQueryNotSupported
	}
}
