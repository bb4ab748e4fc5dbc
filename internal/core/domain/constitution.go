package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/period"
)

// Payout ordering rules for ROSCA cycles.
const (
	PayoutOrderFixed   = "FIXED"
	PayoutOrderLottery = "LOTTERY"
	PayoutOrderBidding = "BIDDING"
)

// LatePaymentPolicy configures penalties for late contributions.
type LatePaymentPolicy struct {
	Enabled   bool        `json:"enabled"`
	GraceDays int         `json:"grace_days"`
	Amount    money.Money `json:"amount"`
}

// LoanPenalty configures the per-installment overdue charge: a flat amount
// plus a percentage of the installment principal.
type LoanPenalty struct {
	Flat        money.Money `json:"flat"`
	RatePercent float64     `json:"rate_percent"`
}

// LoanPolicy governs lending within a chama.
type LoanPolicy struct {
	InterestRatePercent  float64     `json:"interest_rate_percent"`
	MaxTermPeriods       int         `json:"max_term_periods"`
	Penalty              LoanPenalty `json:"penalty"`
	DefaultThresholdDays int         `json:"default_threshold_days"`
	GuarantorRequired    bool        `json:"guarantor_required"`
	MaxConcurrentLoans   int         `json:"max_concurrent_per_member"`
}

// RoscaPolicy governs rotating-payout cycles. When PassThrough is set,
// cycle contributions and payouts bypass chama.current_fund entirely.
type RoscaPolicy struct {
	Frequency       period.Frequency `json:"frequency"`
	PayoutOrderRule string           `json:"payout_order_rule"`
	PassThrough     bool             `json:"pass_through"`
}

// Constitution is the typed per-chama configuration. It is stored as a JSON
// column; updates are decoded strictly so unknown keys are rejected.
type Constitution struct {
	ContributionFrequency period.Frequency  `json:"contribution_frequency"`
	ContributionAnchorDay int               `json:"contribution_anchor_day"`
	LatePayment           LatePaymentPolicy `json:"late_payment"`
	Loan                  LoanPolicy        `json:"loan"`
	Rosca                 RoscaPolicy       `json:"rosca"`
}

// DefaultConstitution returns the configuration a new chama starts with.
func DefaultConstitution() Constitution {
	return Constitution{
		ContributionFrequency: period.Monthly,
		ContributionAnchorDay: 1,
		LatePayment: LatePaymentPolicy{
			Enabled:   false,
			GraceDays: 3,
		},
		Loan: LoanPolicy{
			InterestRatePercent:  10,
			MaxTermPeriods:       12,
			Penalty:              LoanPenalty{Flat: 0, RatePercent: 5},
			DefaultThresholdDays: 30,
			GuarantorRequired:    false,
			MaxConcurrentLoans:   1,
		},
		Rosca: RoscaPolicy{
			Frequency:       period.Monthly,
			PayoutOrderRule: PayoutOrderFixed,
			PassThrough:     false,
		},
	}
}

// ParseConstitution decodes raw JSON strictly: unknown keys fail the update.
func ParseConstitution(raw []byte) (Constitution, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var c Constitution
	if err := dec.Decode(&c); err != nil {
		return Constitution{}, fmt.Errorf("%w: constitution: %v", ErrInvalidInput, err)
	}
	if err := c.Validate(); err != nil {
		return Constitution{}, err
	}
	return c, nil
}

// Validate checks the enumerated option set.
func (c Constitution) Validate() error {
	if !c.ContributionFrequency.Valid() {
		return fmt.Errorf("%w: contribution_frequency must be WEEKLY or MONTHLY", ErrInvalidInput)
	}
	if c.ContributionAnchorDay < 1 || c.ContributionAnchorDay > 28 {
		return fmt.Errorf("%w: contribution_anchor_day must be in 1..28", ErrInvalidInput)
	}
	if c.LatePayment.GraceDays < 0 || c.LatePayment.Amount < 0 {
		return fmt.Errorf("%w: late_payment values must be non-negative", ErrInvalidInput)
	}
	if c.Loan.InterestRatePercent < 0 || c.Loan.Penalty.RatePercent < 0 || c.Loan.Penalty.Flat < 0 {
		return fmt.Errorf("%w: loan rates must be non-negative", ErrInvalidInput)
	}
	if c.Loan.MaxTermPeriods < 1 {
		return fmt.Errorf("%w: loan.max_term_periods must be at least 1", ErrInvalidInput)
	}
	if c.Loan.DefaultThresholdDays < 1 {
		return fmt.Errorf("%w: loan.default_threshold_days must be at least 1", ErrInvalidInput)
	}
	if c.Loan.MaxConcurrentLoans < 1 {
		return fmt.Errorf("%w: loan.max_concurrent_per_member must be at least 1", ErrInvalidInput)
	}
	if !c.Rosca.Frequency.Valid() {
		return fmt.Errorf("%w: rosca.frequency must be WEEKLY or MONTHLY", ErrInvalidInput)
	}
	switch c.Rosca.PayoutOrderRule {
	case PayoutOrderFixed, PayoutOrderLottery, PayoutOrderBidding:
	default:
		return fmt.Errorf("%w: rosca.payout_order_rule must be FIXED, LOTTERY or BIDDING", ErrInvalidInput)
	}
	return nil
}
