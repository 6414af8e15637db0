package types

import "time"

// BlockInfo is the block context handed to every module call. Height and
// Time never decrease; only the App advances them, and only between
// message batches.
type BlockInfo struct {
	Height  uint64    `json:"height"`
	Time    time.Time `json:"time"`
	ChainID string    `json:"chainId"`
}

// Advance returns the block heights blocks and d later.
func (b BlockInfo) Advance(heights uint64, d time.Duration) BlockInfo {
	return BlockInfo{
		Height:  b.Height + heights,
		Time:    b.Time.Add(d),
		ChainID: b.ChainID,
	}
}

// Before reports whether b precedes other in either height or time.
func (b BlockInfo) Before(other BlockInfo) bool {
	return b.Height < other.Height || b.Time.Before(other.Time)
}
