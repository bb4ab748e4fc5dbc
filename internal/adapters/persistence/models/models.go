package models

import (
	"time"

	"gorm.io/gorm"

	"chamahub/internal/core/domain"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/period"
)

// ============================================================
// Users & auth
// ============================================================

// User represents users table
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email     string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	FullName  string         `gorm:"size:100" json:"full_name"`
	Phone     string         `gorm:"size:20" json:"phone"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:255;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

func (rt *RefreshToken) IsRevoked() bool { return rt.RevokedAt != nil }

func (rt *RefreshToken) IsExpired() bool { return time.Now().After(rt.ExpiresAt) }

// ============================================================
// Chamas & membership
// ============================================================

// Chama statuses
const (
	ChamaStatusActive   = "ACTIVE"
	ChamaStatusArchived = "ARCHIVED"
)

// Member roles
const (
	RoleOfficial  = "OFFICIAL"
	RoleTreasurer = "TREASURER"
	RoleMember    = "MEMBER"
)

// Chama is a member-run savings group. CurrentFund is the coarse-grained
// lock for every fund mutation: engines lock this row first.
type Chama struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	Name         string              `gorm:"size:100;not null" json:"name"`
	Timezone     string              `gorm:"size:50;not null;default:'UTC'" json:"timezone"`
	Constitution domain.Constitution `gorm:"serializer:json" json:"constitution"`
	CurrentFund  money.Money         `gorm:"not null;default:0" json:"current_fund"`
	Status       string              `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
	CreatedBy    uint                `gorm:"not null" json:"created_by"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Chama) TableName() string { return "chamas" }

// Location resolves the chama's timezone, falling back to UTC.
func (c *Chama) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Member links a user to a chama with a role and running totals.
type Member struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	ChamaID            uint        `gorm:"not null;uniqueIndex:idx_member_chama_user" json:"chama_id"`
	UserID             uint        `gorm:"not null;uniqueIndex:idx_member_chama_user" json:"user_id"`
	Role               string      `gorm:"size:20;not null;default:'MEMBER'" json:"role"`
	JoinedAt           time.Time   `gorm:"not null" json:"joined_at"`
	IsActive           bool        `gorm:"default:true" json:"is_active"`
	TotalContributions money.Money `gorm:"not null;default:0" json:"total_contributions"`
	PenaltyOwed        money.Money `gorm:"not null;default:0" json:"penalty_owed"`

	Chama *Chama `gorm:"foreignKey:ChamaID" json:"chama,omitempty"`
	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Member) TableName() string { return "members" }

// CanRecordFunds reports whether the member may mutate chama money.
func (m *Member) CanRecordFunds() bool {
	return m.IsActive && m.Role == RoleTreasurer
}

// IsOfficial reports whether the member governs the chama.
func (m *Member) IsOfficial() bool {
	return m.IsActive && m.Role == RoleOfficial
}

// ============================================================
// Contributions
// ============================================================

// Contribution methods
const (
	MethodCash   = "CASH"
	MethodMobile = "MOBILE"
	MethodBank   = "BANK"
	MethodOther  = "OTHER"
)

// Contribution is immutable once recorded; reversal is a soft delete that
// compensates the running totals it updated.
type Contribution struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ChamaID          uint           `gorm:"not null;index" json:"chama_id"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	Amount           money.Money    `gorm:"not null" json:"amount"`
	Method           string         `gorm:"size:20;not null" json:"method"`
	ReceiptNo        *string        `gorm:"size:50" json:"receipt_no"`
	RecordedBy       uint           `gorm:"not null" json:"recorded_by"`
	ContributionDate time.Time      `gorm:"type:date;not null;index" json:"contribution_date"`
	PassThrough      bool           `gorm:"not null;default:false" json:"pass_through"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	Chama *Chama `gorm:"foreignKey:ChamaID" json:"chama,omitempty"`
	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Contribution) TableName() string { return "contributions" }

// Date returns the civil contribution date.
func (c *Contribution) Date() period.Date { return period.DateOf(c.ContributionDate) }

// ============================================================
// Loans
// ============================================================

// Loan statuses
const (
	LoanStatusPending       = "PENDING"
	LoanStatusGuarantorWait = "GUARANTOR_WAIT"
	LoanStatusApproved      = "APPROVED"
	LoanStatusActive        = "ACTIVE"
	LoanStatusCompleted     = "COMPLETED"
	LoanStatusRejected      = "REJECTED"
	LoanStatusDefaulted     = "DEFAULTED"
)

// Loan carries the three outstanding buckets repayments are allocated
// against in the order penalty, interest, principal.
type Loan struct {
	ID                   uint        `gorm:"primaryKey" json:"id"`
	ChamaID              uint        `gorm:"not null;index" json:"chama_id"`
	BorrowerID           uint        `gorm:"not null;index" json:"borrower_id"`
	Principal            money.Money `gorm:"not null" json:"principal"`
	InterestRatePercent  float64     `gorm:"type:decimal(5,2);not null" json:"interest_rate_percent"`
	TermPeriods          int         `gorm:"not null" json:"term_periods"`
	Purpose              string      `gorm:"type:text" json:"purpose"`
	Status               string      `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	RejectReason         string      `gorm:"type:text" json:"reject_reason,omitempty"`
	DisbursedAt          *time.Time  `json:"disbursed_at"`
	PrincipalOutstanding money.Money `gorm:"not null;default:0" json:"principal_outstanding"`
	InterestOutstanding  money.Money `gorm:"not null;default:0" json:"interest_outstanding"`
	PenaltyOutstanding   money.Money `gorm:"not null;default:0" json:"penalty_outstanding"`
	CreatedAt            time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time   `gorm:"autoUpdateTime" json:"updated_at"`

	Chama        *Chama            `gorm:"foreignKey:ChamaID" json:"chama,omitempty"`
	Borrower     *User             `gorm:"foreignKey:BorrowerID" json:"borrower,omitempty"`
	Installments []LoanInstallment `gorm:"foreignKey:LoanID" json:"installments,omitempty"`
	Guarantors   []Guarantor       `gorm:"foreignKey:LoanID" json:"guarantors,omitempty"`
}

func (Loan) TableName() string { return "loans" }

// TotalOutstanding is the remaining debt across all three buckets.
func (l *Loan) TotalOutstanding() money.Money {
	return l.PrincipalOutstanding + l.InterestOutstanding + l.PenaltyOutstanding
}

// IsOpen reports whether the loan counts against max_concurrent_per_member.
func (l *Loan) IsOpen() bool {
	return l.Status == LoanStatusApproved || l.Status == LoanStatusActive
}

// Installment statuses
const (
	InstallmentStatusPending = "PENDING"
	InstallmentStatusPaid    = "PAID"
	InstallmentStatusOverdue = "OVERDUE"
)

// LoanInstallment is one tranche of the amortization schedule.
// PenaltyAppliedOn and LastReminderOn are the scheduler's per-day
// idempotency markers.
type LoanInstallment struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	LoanID           uint        `gorm:"not null;index" json:"loan_id"`
	Sequence         int         `gorm:"not null;uniqueIndex:idx_installment_loan_seq" json:"sequence"`
	DueDate          time.Time   `gorm:"type:date;not null;index" json:"due_date"`
	Amount           money.Money `gorm:"not null" json:"amount"`
	PrincipalPart    money.Money `gorm:"not null" json:"principal_part"`
	InterestPart     money.Money `gorm:"not null" json:"interest_part"`
	PenaltyAmount    money.Money `gorm:"not null;default:0" json:"penalty_amount"`
	PaidAmount       money.Money `gorm:"not null;default:0" json:"paid_amount"`
	Status           string      `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	PenaltyAppliedOn *time.Time  `gorm:"type:date" json:"penalty_applied_on"`
	LastReminderOn   *time.Time  `gorm:"type:date" json:"last_reminder_on"`
	CreatedAt        time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time   `gorm:"autoUpdateTime" json:"updated_at"`

	Loan *Loan `gorm:"foreignKey:LoanID" json:"loan,omitempty"`
}

func (LoanInstallment) TableName() string { return "loan_installments" }

// Due returns the civil due date.
func (i *LoanInstallment) Due() period.Date { return period.DateOf(i.DueDate) }

// Owed is the amount still required to settle this installment.
func (i *LoanInstallment) Owed() money.Money {
	return i.Amount + i.PenaltyAmount - i.PaidAmount
}

// Guarantor decisions
const (
	GuarantorPending  = "PENDING"
	GuarantorAccepted = "ACCEPTED"
	GuarantorDeclined = "DECLINED"
)

// Guarantor is a member's pledge backing a loan.
type Guarantor struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	LoanID    uint        `gorm:"not null;uniqueIndex:idx_guarantor_loan_member" json:"loan_id"`
	MemberID  uint        `gorm:"not null;uniqueIndex:idx_guarantor_loan_member" json:"member_id"`
	Pledge    money.Money `gorm:"not null" json:"pledge"`
	Decision  string      `gorm:"size:20;not null;default:'PENDING'" json:"decision"`
	DecidedAt *time.Time  `json:"decided_at"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`

	Loan   *Loan   `gorm:"foreignKey:LoanID" json:"loan,omitempty"`
	Member *Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`
}

func (Guarantor) TableName() string { return "guarantors" }

// ============================================================
// ROSCA
// ============================================================

// Cycle statuses
const (
	CycleStatusDraft     = "DRAFT"
	CycleStatusActive    = "ACTIVE"
	CycleStatusCompleted = "COMPLETED"
	CycleStatusCancelled = "CANCELLED"
)

// RoscaCycle is a rotating-payout cycle. LastSweptOn is the scheduler's
// penalty-sweep idempotency marker; LotterySeed records the permutation
// seed for audit when the payout order rule is LOTTERY.
type RoscaCycle struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	ChamaID            uint        `gorm:"not null;index" json:"chama_id"`
	Frequency          string      `gorm:"size:20;not null" json:"frequency"`
	StartDate          time.Time   `gorm:"type:date;not null" json:"start_date"`
	RoundCount         int         `gorm:"not null" json:"round_count"`
	CurrentRound       int         `gorm:"not null;default:0" json:"current_round"`
	Status             string      `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`
	ContributionAmount money.Money `gorm:"not null" json:"contribution_amount"`
	LotterySeed        *string     `gorm:"size:64" json:"lottery_seed,omitempty"`
	LastSweptOn        *time.Time  `gorm:"type:date" json:"last_swept_on"`
	CreatedAt          time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime" json:"updated_at"`

	Chama  *Chama        `gorm:"foreignKey:ChamaID" json:"chama,omitempty"`
	Roster []RosterEntry `gorm:"foreignKey:CycleID" json:"roster,omitempty"`
}

func (RoscaCycle) TableName() string { return "rosca_cycles" }

// Start returns the civil start date.
func (c *RoscaCycle) Start() period.Date { return period.DateOf(c.StartDate) }

// RoundDeadline returns the due date of round r (1-based).
func (c *RoscaCycle) RoundDeadline(r int) period.Date {
	return period.Advance(c.Start(), period.Frequency(c.Frequency), r)
}

// Roster entry statuses
const (
	RosterStatusPending = "PENDING"
	RosterStatusPaidOut = "PAID_OUT"
	RosterStatusSkipped = "SKIPPED"
)

// RosterEntry assigns a member to a payout position within a cycle.
type RosterEntry struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	CycleID  uint   `gorm:"not null;uniqueIndex:idx_roster_cycle_pos;uniqueIndex:idx_roster_cycle_member" json:"cycle_id"`
	Position int    `gorm:"not null;uniqueIndex:idx_roster_cycle_pos" json:"position"`
	MemberID uint   `gorm:"not null;uniqueIndex:idx_roster_cycle_member" json:"member_id"`
	Status   string `gorm:"size:20;not null;default:'PENDING'" json:"status"`

	Cycle  *RoscaCycle `gorm:"foreignKey:CycleID" json:"cycle,omitempty"`
	Member *Member     `gorm:"foreignKey:MemberID" json:"member,omitempty"`
}

func (RosterEntry) TableName() string { return "roster_entries" }

// Swap request statuses
const (
	SwapStatusPending  = "PENDING"
	SwapStatusAccepted = "ACCEPTED"
	SwapStatusRejected = "REJECTED"
	SwapStatusExpired  = "EXPIRED"
)

// SwapRequest asks to exchange two roster positions before either is paid out.
type SwapRequest struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CycleID           uint      `gorm:"not null;index" json:"cycle_id"`
	RequesterPosition int       `gorm:"not null" json:"requester_position"`
	TargetPosition    int       `gorm:"not null" json:"target_position"`
	Status            string    `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt         time.Time `gorm:"not null" json:"expires_at"`

	Cycle *RoscaCycle `gorm:"foreignKey:CycleID" json:"cycle,omitempty"`
}

func (SwapRequest) TableName() string { return "swap_requests" }

// Payout records one round's disbursement to the member at that position.
type Payout struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	CycleID     uint        `gorm:"not null;uniqueIndex:idx_payout_cycle_round" json:"cycle_id"`
	Round       int         `gorm:"not null;uniqueIndex:idx_payout_cycle_round" json:"round"`
	RecipientID uint        `gorm:"not null" json:"recipient_id"`
	Amount      money.Money `gorm:"not null" json:"amount"`
	Method      string      `gorm:"size:20;not null" json:"method"`
	ProcessedAt time.Time   `gorm:"not null" json:"processed_at"`

	Cycle     *RoscaCycle `gorm:"foreignKey:CycleID" json:"cycle,omitempty"`
	Recipient *User       `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
}

func (Payout) TableName() string { return "payouts" }

// ============================================================
// Welfare & ASCA
// ============================================================

// ShareEquity is an opaque ASCA equity ledger row credited on purchase.
type ShareEquity struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	ChamaID   uint        `gorm:"not null;index" json:"chama_id"`
	MemberID  uint        `gorm:"not null;index" json:"member_id"`
	Shares    int         `gorm:"not null" json:"shares"`
	Price     money.Money `gorm:"not null" json:"price"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (ShareEquity) TableName() string { return "share_equities" }

// ============================================================
// Notifications
// ============================================================

// Notification types
const (
	NotifyContributionRecorded = "CONTRIBUTION_RECORDED"
	NotifyContributionReversed = "CONTRIBUTION_REVERSED"
	NotifyGuarantorRequest     = "GUARANTOR_REQUEST"
	NotifyLoanApproved         = "LOAN_APPROVED"
	NotifyLoanRejected         = "LOAN_REJECTED"
	NotifyLoanDisbursed        = "LOAN_DISBURSED"
	NotifyLoanRepayment        = "LOAN_REPAYMENT"
	NotifyLoanCompleted        = "LOAN_COMPLETED"
	NotifyLoanReminder         = "LOAN_INSTALLMENT_REMINDER"
	NotifyLoanOverdue          = "LOAN_OVERDUE"
	NotifyLoanDefaulted        = "LOAN_DEFAULTED"
	NotifyRoscaPayout          = "ROSCA_PAYOUT"
	NotifyRoscaRoundAdvanced   = "ROSCA_ROUND_ADVANCED"
	NotifyRoscaSwapRequest     = "ROSCA_SWAP_REQUEST"
	NotifyRoscaLatePenalty     = "ROSCA_LATE_PENALTY"
	NotifyWelfareClaimPaid     = "WELFARE_CLAIM_PAID"
	NotifySharePurchased       = "ASCA_SHARE_PURCHASED"
)

// Notification is a persisted feed row; the websocket push is requested
// out-of-band after the owning transaction commits.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	Type      string     `gorm:"size:40;not null" json:"type"`
	Title     string     `gorm:"size:120;not null" json:"title"`
	Message   string     `gorm:"type:text" json:"message"`
	Link      *string    `gorm:"size:255" json:"link,omitempty"`
	RelatedID *uint      `json:"related_id,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

func (Notification) TableName() string { return "notifications" }

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate creates or updates every table the engines persist to.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Chama{},
		&Member{},
		&Contribution{},
		&Loan{},
		&LoanInstallment{},
		&Guarantor{},
		&RoscaCycle{},
		&RosterEntry{},
		&SwapRequest{},
		&Payout{},
		&ShareEquity{},
		&Notification{},
	)
}
