package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

var denomPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/:._-]{2,127}$`)

// ValidateDenom checks a denomination against the chain's naming rules.
func ValidateDenom(denom string) error {
	if !denomPattern.MatchString(denom) {
		return fmt.Errorf("invalid denom %q", denom)
	}
	return nil
}

// Coin is an amount of a single denomination. Amount is never nil once a
// Coin has passed through NewCoin or normalisation.
type Coin struct {
	Denom  string
	Amount *uint256.Int
}

// NewCoin is the usual constructor for fixtures and messages.
func NewCoin(amount uint64, denom string) Coin {
	return Coin{Denom: denom, Amount: uint256.NewInt(amount)}
}

// NewCoinFromInt copies amount into a new Coin.
func NewCoinFromInt(amount *uint256.Int, denom string) Coin {
	if amount == nil {
		return Coin{Denom: denom, Amount: new(uint256.Int)}
	}
	return Coin{Denom: denom, Amount: new(uint256.Int).Set(amount)}
}

// ParseCoin parses the compact "<amount><denom>" form, e.g. "100ustake".
func ParseCoin(value string) (Coin, error) {
	trimmed := strings.TrimSpace(value)
	split := 0
	for split < len(trimmed) && trimmed[split] >= '0' && trimmed[split] <= '9' {
		split++
	}
	if split == 0 {
		return Coin{}, fmt.Errorf("coin %q: missing amount", value)
	}
	amount, err := uint256.FromDecimal(trimmed[:split])
	if err != nil {
		return Coin{}, fmt.Errorf("coin %q: %w", value, err)
	}
	denom := trimmed[split:]
	if err := ValidateDenom(denom); err != nil {
		return Coin{}, err
	}
	return Coin{Denom: denom, Amount: amount}, nil
}

func (c Coin) IsZero() bool {
	return c.Amount == nil || c.Amount.IsZero()
}

func (c Coin) String() string {
	if c.Amount == nil {
		return "0" + c.Denom
	}
	return c.Amount.Dec() + c.Denom
}

// Validate reports malformed denoms and nil amounts.
func (c Coin) Validate() error {
	if err := ValidateDenom(c.Denom); err != nil {
		return err
	}
	if c.Amount == nil {
		return fmt.Errorf("coin %s: amount required", c.Denom)
	}
	return nil
}

type coinJSON struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

func (c Coin) MarshalJSON() ([]byte, error) {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.Dec()
	}
	return json.Marshal(coinJSON{Denom: c.Denom, Amount: amount})
}

func (c *Coin) UnmarshalJSON(data []byte) error {
	var raw coinJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := uint256.FromDecimal(raw.Amount)
	if err != nil {
		return fmt.Errorf("coin %s: %w", raw.Denom, err)
	}
	c.Denom = raw.Denom
	c.Amount = amount
	return nil
}

// Coins is a set of coins. Normalised sets are sorted by denom, hold each
// denom once and contain no zero amounts.
type Coins []Coin

// NewCoins builds a normalised set, merging duplicates.
func NewCoins(coins ...Coin) (Coins, error) {
	return Coins(coins).Normalize()
}

// MustNewCoins is NewCoins for fixtures; it panics on error.
func MustNewCoins(coins ...Coin) Coins {
	out, err := NewCoins(coins...)
	if err != nil {
		panic(err)
	}
	return out
}

// ParseCoins parses a comma separated list such as "10uatom,5ustake".
func ParseCoins(value string) (Coins, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Coins{}, nil
	}
	parts := strings.Split(trimmed, ",")
	coins := make([]Coin, 0, len(parts))
	for _, part := range parts {
		coin, err := ParseCoin(part)
		if err != nil {
			return nil, err
		}
		coins = append(coins, coin)
	}
	return NewCoins(coins...)
}

// Normalize validates every coin, merges duplicate denoms, drops zeros and
// sorts the result.
func (cs Coins) Normalize() (Coins, error) {
	merged := make(map[string]*uint256.Int, len(cs))
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		sum, ok := merged[c.Denom]
		if !ok {
			merged[c.Denom] = new(uint256.Int).Set(c.Amount)
			continue
		}
		if _, overflow := sum.AddOverflow(sum, c.Amount); overflow {
			return nil, fmt.Errorf("coins: overflow summing %s", c.Denom)
		}
	}
	out := make(Coins, 0, len(merged))
	for denom, amount := range merged {
		if amount.IsZero() {
			continue
		}
		out = append(out, Coin{Denom: denom, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out, nil
}

// AmountOf returns the amount held for denom, zero when absent.
func (cs Coins) AmountOf(denom string) *uint256.Int {
	for _, c := range cs {
		if c.Denom == denom && c.Amount != nil {
			return new(uint256.Int).Set(c.Amount)
		}
	}
	return new(uint256.Int)
}

func (cs Coins) IsZero() bool {
	for _, c := range cs {
		if !c.IsZero() {
			return false
		}
	}
	return true
}

func (cs Coins) String() string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ",")
}

// Copy returns a deep copy of the set.
func (cs Coins) Copy() Coins {
	out := make(Coins, len(cs))
	for i, c := range cs {
		out[i] = NewCoinFromInt(c.Amount, c.Denom)
	}
	return out
}
