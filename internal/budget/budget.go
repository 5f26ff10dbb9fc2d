// Package budget computes monthly spending against configured limits.
package budget

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vzakharchenko/telegram-budget-bot/internal/storage"
)

// Status is a category budget with the month's spending applied.
type Status struct {
	CategoryID int64
	Month      string
	Limit      decimal.Decimal
	Spent      decimal.Decimal
}

// Remaining is the unspent part of the limit. Negative when overspent.
func (s Status) Remaining() decimal.Decimal {
	return s.Limit.Sub(s.Spent)
}

// Progress is spent/limit as a percentage, capped at 999 to keep display
// sane on absurd overspend.
func (s Status) Progress() int {
	if s.Limit.IsZero() {
		return 0
	}
	pct := s.Spent.Div(s.Limit).Mul(decimal.NewFromInt(100)).IntPart()
	if pct > 999 {
		return 999
	}
	return int(pct)
}

// Overspent reports whether spending exceeds the limit.
func (s Status) Overspent() bool {
	return s.Spent.GreaterThan(s.Limit)
}

// CurrentMonth returns the YYYY-MM key for now in UTC.
func CurrentMonth() string {
	return time.Now().UTC().Format("2006-01")
}

// ForMonth loads a user's budgets for a month and applies spending to them.
// Categories with spending but no budget are not included: a budget is an
// explicit commitment, not something inferred from activity.
func ForMonth(store storage.Store, userID int64, month string) ([]Status, error) {
	budgets, err := store.GetBudgets(userID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load budgets: %w", err)
	}
	if len(budgets) == 0 {
		return nil, nil
	}

	spent, err := store.SpentByCategory(userID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load spending: %w", err)
	}

	statuses := make([]Status, 0, len(budgets))
	for _, b := range budgets {
		statuses = append(statuses, Status{
			CategoryID: b.CategoryID,
			Month:      b.Month,
			Limit:      b.Limit,
			Spent:      spent[b.CategoryID],
		})
	}
	return statuses, nil
}
