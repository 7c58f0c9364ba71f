package ai

import (
	"fmt"
	"sync"
)

// BudgetChecker checks and records generative token usage per CLO set.
// Segmentation and mapping runs both draw from the same per-set budget.
type BudgetChecker interface {
	// Check returns true if the CLO set has budget remaining.
	Check(cloSetID string) (bool, error)
	// Record records token usage for a CLO set.
	Record(cloSetID string, tokens int) error
	// Usage returns current usage and limit for a CLO set.
	Usage(cloSetID string) (used int64, budget int64, err error)
}

// InMemoryBudget is a simple in-memory budget tracker for development and
// single-instance deployments.
type InMemoryBudget struct {
	mu           sync.RWMutex
	defaultLimit int64            // applies to sets without an explicit budget; 0 = unlimited
	budgets      map[string]int64 // cloSetID -> budget limit
	usage        map[string]int64 // cloSetID -> tokens used
}

// NewInMemoryBudget creates a new in-memory budget tracker with no limits.
func NewInMemoryBudget() *InMemoryBudget {
	return NewInMemoryBudgetWithDefault(0)
}

// NewInMemoryBudgetWithDefault creates a tracker where every CLO set starts
// with the given token limit unless SetBudget overrides it.
func NewInMemoryBudgetWithDefault(limit int64) *InMemoryBudget {
	return &InMemoryBudget{
		defaultLimit: limit,
		budgets:      make(map[string]int64),
		usage:        make(map[string]int64),
	}
}

// SetBudget sets the token budget for a CLO set.
func (b *InMemoryBudget) SetBudget(cloSetID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[cloSetID] = tokens
}

func (b *InMemoryBudget) Check(cloSetID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	budget, hasBudget := b.budgets[cloSetID]
	if !hasBudget {
		budget = b.defaultLimit
	}
	if budget == 0 {
		// No budget means unlimited.
		return true, nil
	}

	used := b.usage[cloSetID]
	return used < budget, nil
}

func (b *InMemoryBudget) Record(cloSetID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.usage[cloSetID] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(cloSetID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, hasBudget := b.budgets[cloSetID]
	if !hasBudget {
		limit = b.defaultLimit
	}
	return b.usage[cloSetID], limit, nil
}
