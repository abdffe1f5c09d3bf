package venue

import (
	"context"
	"errors"
	"sync"

	sdkmath "cosmossdk.io/math"
)

var ErrInsufficientBalance = errors.New("venue balance too low")

// MemoryVenue is an in-process venue with a fixed yield and a liquidity pool. Deposits reduce the
// available liquidity, withdrawals return it. Paper mode runs entirely on these.
type MemoryVenue struct {
	mu        sync.Mutex
	yieldBps  int64
	liquidity sdkmath.Int
	balance   sdkmath.Int
	queryErr  error
}

func NewMemoryVenue(yieldBps int64, liquidity sdkmath.Int) *MemoryVenue {
	return &MemoryVenue{yieldBps: yieldBps, liquidity: liquidity, balance: sdkmath.ZeroInt()}
}

func (m *MemoryVenue) Query(_ context.Context, _ sdkmath.Int) (sdkmath.Int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return sdkmath.ZeroInt(), 0, m.queryErr
	}
	return m.liquidity, m.yieldBps, nil
}

func (m *MemoryVenue) Deposit(_ context.Context, amount sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount.GT(m.liquidity) {
		return ErrInsufficientBalance
	}
	m.liquidity = m.liquidity.Sub(amount)
	m.balance = m.balance.Add(amount)
	return nil
}

// Withdraw returns at most the deposited balance.
func (m *MemoryVenue) Withdraw(_ context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	actual := amount
	if actual.GT(m.balance) {
		actual = m.balance
	}
	m.balance = m.balance.Sub(actual)
	m.liquidity = m.liquidity.Add(actual)
	return actual, nil
}

// SetYield changes the reported yield.
func (m *MemoryVenue) SetYield(yieldBps int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.yieldBps = yieldBps
}

// SetQueryError makes Query fail until cleared with nil.
func (m *MemoryVenue) SetQueryError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErr = err
}

// Balance returns the amount currently deposited.
func (m *MemoryVenue) Balance() sdkmath.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}
