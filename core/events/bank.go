package events

import (
	"chainsim/core/types"
	"chainsim/crypto"
)

const (
	// TypeTransfer is emitted for every balance movement between accounts.
	TypeTransfer = "transfer"
	// TypeMint is emitted when new tokens enter circulation.
	TypeMint = "mint"
	// TypeBurn is emitted when tokens leave circulation.
	TypeBurn = "burn"
)

type Transfer struct {
	Sender    crypto.Address
	Recipient crypto.Address
	Amount    types.Coins
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() types.Event {
	return types.NewEvent(TypeTransfer).
		Add("recipient", e.Recipient.String()).
		Add("sender", e.Sender.String()).
		Add("amount", e.Amount.String())
}

type Mint struct {
	Recipient crypto.Address
	Amount    types.Coins
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() types.Event {
	return types.NewEvent(TypeMint).
		Add("recipient", e.Recipient.String()).
		Add("amount", e.Amount.String())
}

type Burn struct {
	Burner crypto.Address
	Amount types.Coins
}

func (Burn) EventType() string { return TypeBurn }

func (e Burn) Event() types.Event {
	return types.NewEvent(TypeBurn).
		Add("burner", e.Burner.String()).
		Add("amount", e.Amount.String())
}
