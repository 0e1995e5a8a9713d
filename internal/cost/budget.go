package cost

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

const daysPerMonth = 30

// Budget projects the window's spend onto a 30-day month and compares it
// with the monthly budget.
func Budget(spend decimal.Decimal, start, end time.Time, monthly decimal.Decimal) model.BudgetStatus {
	st := model.BudgetStatus{MonthlyBudget: monthly, WindowSpend: spend}

	days := end.Sub(start).Hours() / 24
	if days > 0 {
		st.DailyBurnRate = spend.Div(decimal.NewFromFloat(days))
		st.ProjectedMonthly = st.DailyBurnRate.Mul(decimal.NewFromInt(daysPerMonth))
	}
	if monthly.IsPositive() {
		st.BudgetUsedPercent = st.ProjectedMonthly.Div(monthly).Mul(decimal.NewFromInt(100)).InexactFloat64()
		st.OverBudget = st.ProjectedMonthly.GreaterThan(monthly)
	}
	return st
}
