package model

import "github.com/shopspring/decimal"

// BudgetStatus holds spend against a monthly budget and a linear forecast.
type BudgetStatus struct {
	MonthlyBudget     decimal.Decimal
	WindowSpend       decimal.Decimal
	DailyBurnRate     decimal.Decimal
	ProjectedMonthly  decimal.Decimal
	BudgetUsedPercent float64
	OverBudget        bool
}
