package core

import (
	"encoding/json"
	"fmt"

	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/native/sandbox"
)

// StoreCode registers a behavior unit and returns its code id.
func (a *App) StoreCode(creator crypto.Address, contract sandbox.Contract) uint64 {
	return a.sandbox.StoreCode(creator, contract)
}

// CodeInfo describes a stored code id.
func (a *App) CodeInfo(codeID uint64) (types.CodeInfo, error) {
	return a.sandbox.CodeInfo(codeID)
}

func instantiatedAddress(res *types.AppResponse) (crypto.Address, error) {
	var out types.InstantiateResult
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return crypto.Address{}, fmt.Errorf("decode instantiate result: %w", err)
	}
	return out.Address, nil
}

// InstantiateContract creates an instance of codeID at the next sequential
// address of sender and returns that address.
func (a *App) InstantiateContract(codeID uint64, sender crypto.Address, msg []byte, funds types.Coins,
	label string, admin *crypto.Address) (crypto.Address, *types.AppResponse, error) {
	res, err := a.Execute(sender, types.ContractInstantiate{
		Admin:  admin,
		CodeID: codeID,
		Msg:    msg,
		Funds:  funds,
		Label:  label,
	})
	if err != nil {
		return crypto.Address{}, nil, err
	}
	addr, err := instantiatedAddress(res)
	return addr, res, err
}

// Instantiate2Contract creates an instance at the predictable address given
// by sender, the code checksum and salt.
func (a *App) Instantiate2Contract(codeID uint64, sender crypto.Address, msg []byte, funds types.Coins,
	label string, admin *crypto.Address, salt []byte) (crypto.Address, *types.AppResponse, error) {
	if len(salt) == 0 || len(salt) > sandbox.MaxSaltLength {
		return crypto.Address{}, nil, fmt.Errorf("salt must be 1..%d bytes", sandbox.MaxSaltLength)
	}
	res, err := a.Execute(sender, types.ContractInstantiate{
		Admin:  admin,
		CodeID: codeID,
		Msg:    msg,
		Funds:  funds,
		Label:  label,
		Salt:   append([]byte(nil), salt...),
	})
	if err != nil {
		return crypto.Address{}, nil, err
	}
	addr, err := instantiatedAddress(res)
	return addr, res, err
}

// PredictAddress returns the address Instantiate2Contract would use.
func (a *App) PredictAddress(codeID uint64, sender crypto.Address, salt []byte) (crypto.Address, error) {
	info, err := a.sandbox.CodeInfo(codeID)
	if err != nil {
		return crypto.Address{}, err
	}
	return crypto.DeriveSalted(sender, info.Checksum, salt), nil
}

// ExecuteContract calls the execute entry point of contract.
func (a *App) ExecuteContract(sender, contract crypto.Address, msg []byte, funds types.Coins) (*types.AppResponse, error) {
	return a.Execute(sender, types.ContractExecute{Contract: contract, Msg: msg, Funds: funds})
}

// MigrateContract moves contract to newCodeID. Only the admin may do so.
func (a *App) MigrateContract(sender, contract crypto.Address, newCodeID uint64, msg []byte) (*types.AppResponse, error) {
	return a.Execute(sender, types.ContractMigrate{Contract: contract, NewCodeID: newCodeID, Msg: msg})
}

func (a *App) UpdateAdmin(sender, contract, admin crypto.Address) (*types.AppResponse, error) {
	return a.Execute(sender, types.ContractUpdateAdmin{Contract: contract, Admin: admin})
}

func (a *App) ClearAdmin(sender, contract crypto.Address) (*types.AppResponse, error) {
	return a.Execute(sender, types.ContractClearAdmin{Contract: contract})
}
