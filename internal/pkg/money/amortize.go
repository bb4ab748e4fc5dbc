package money

import (
	"github.com/shopspring/decimal"
)

// InstallmentPlan is one row of an amortization schedule.
type InstallmentPlan struct {
	Sequence  int
	Amount    Money
	Principal Money
	Interest  Money
}

var one = decimal.NewFromInt(1)

// Amortize builds an equal-payment (annuity) schedule over n periods at a
// per-period rate of annualRatePercent/periodsPerYear. The per-period
// interest is computed on the reducing balance; the final installment
// absorbs rounding residue so the principal column sums exactly to the
// principal.
func Amortize(principal Money, annualRatePercent float64, periodsPerYear, n int) []InstallmentPlan {
	if n <= 0 {
		return nil
	}

	p := principal.Decimal()
	rate := decimal.NewFromFloat(annualRatePercent).
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(periodsPerYear)))

	var payment decimal.Decimal
	if rate.IsZero() {
		payment = p.Div(decimal.NewFromInt(int64(n)))
	} else {
		// payment = P·i / (1 − (1+i)^−n)
		factor := one.Add(rate).Pow(decimal.NewFromInt(int64(n)))
		payment = p.Mul(rate).Mul(factor).Div(factor.Sub(one))
	}

	plan := make([]InstallmentPlan, 0, n)
	balance := p
	remaining := principal
	for k := 1; k <= n; k++ {
		interest := FromDecimal(balance.Mul(rate))
		var principalPart Money
		if k == n {
			principalPart = remaining
		} else {
			principalPart = FromDecimal(payment) - interest
			if principalPart > remaining {
				principalPart = remaining
			}
		}
		plan = append(plan, InstallmentPlan{
			Sequence:  k,
			Amount:    principalPart + interest,
			Principal: principalPart,
			Interest:  interest,
		})
		remaining -= principalPart
		balance = remaining.Decimal()
	}
	return plan
}

// TotalInterest sums the interest column of a schedule.
func TotalInterest(plan []InstallmentPlan) Money {
	var total Money
	for _, row := range plan {
		total += row.Interest
	}
	return total
}

// TotalAmount sums the amount column of a schedule.
func TotalAmount(plan []InstallmentPlan) Money {
	var total Money
	for _, row := range plan {
		total += row.Amount
	}
	return total
}
