package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/core/domain"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/period"
)

// LoanService drives the loan state machine: application, guarantor
// decisions, approval, disbursement, repayment and the scheduler-applied
// overdue/default transitions.
type LoanService struct {
	ledger    *repositories.Ledger
	chamaRepo *repositories.ChamaRepository
	loanRepo  *repositories.LoanRepository
	notifier  *NotificationService
}

// NewLoanService creates a new loan service
func NewLoanService(
	ledger *repositories.Ledger,
	chamaRepo *repositories.ChamaRepository,
	loanRepo *repositories.LoanRepository,
	notifier *NotificationService,
) *LoanService {
	return &LoanService{
		ledger:    ledger,
		chamaRepo: chamaRepo,
		loanRepo:  loanRepo,
		notifier:  notifier,
	}
}

// GuarantorInput is one pledge on a loan application.
type GuarantorInput struct {
	UserID uint        `json:"user_id"`
	Pledge money.Money `json:"pledge"`
}

// ApplyInput represents loan application input
type ApplyInput struct {
	ChamaID     uint             `json:"chama_id"`
	Principal   money.Money      `json:"principal"`
	TermPeriods int              `json:"term_periods"`
	Purpose     string           `json:"purpose,omitempty"`
	Guarantors  []GuarantorInput `json:"guarantors,omitempty"`
	ActorID     uint             `json:"-"`
}

// Apply files a loan application in state PENDING. When the constitution
// requires guarantors the application must name them up front.
func (s *LoanService) Apply(ctx context.Context, input *ApplyInput) (*models.Loan, error) {
	if err := input.Principal.Validate("principal"); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var (
		loan  *models.Loan
		notes []*models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		chama, err := s.chamaRepo.Get(tx, input.ChamaID)
		if err != nil {
			return err
		}
		if chama.Status != models.ChamaStatusActive {
			return fmt.Errorf("%w: chama is %s", domain.ErrIllegalTransition, chama.Status)
		}
		policy := chama.Constitution.Loan

		borrower, err := s.chamaRepo.GetMember(tx, input.ChamaID, input.ActorID)
		if err != nil || !borrower.IsActive {
			return fmt.Errorf("%w: only active members may apply", domain.ErrForbidden)
		}

		if input.TermPeriods < 1 || input.TermPeriods > policy.MaxTermPeriods {
			return fmt.Errorf("%w: term must be in 1..%d periods", domain.ErrInvalidInput, policy.MaxTermPeriods)
		}

		if policy.GuarantorRequired && len(input.Guarantors) == 0 {
			return fmt.Errorf("%w: this chama requires guarantors", domain.ErrInvalidInput)
		}

		loan = &models.Loan{
			ChamaID:             input.ChamaID,
			BorrowerID:          input.ActorID,
			Principal:           input.Principal,
			InterestRatePercent: policy.InterestRatePercent,
			TermPeriods:         input.TermPeriods,
			Purpose:             input.Purpose,
			Status:              models.LoanStatusPending,
		}
		if err := s.loanRepo.Create(tx, loan); err != nil {
			return err
		}

		if len(input.Guarantors) > 0 {
			rows := make([]models.Guarantor, 0, len(input.Guarantors))
			for _, g := range input.Guarantors {
				if err := g.Pledge.Validate("pledge"); err != nil {
					return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
				}
				member, err := s.chamaRepo.GetMember(tx, input.ChamaID, g.UserID)
				if err != nil || !member.IsActive {
					return fmt.Errorf("%w: guarantor %d is not an active member", domain.ErrInvalidInput, g.UserID)
				}
				if member.UserID == input.ActorID {
					return fmt.Errorf("%w: borrower cannot guarantee own loan", domain.ErrInvalidInput)
				}
				rows = append(rows, models.Guarantor{
					LoanID:   loan.ID,
					MemberID: member.ID,
					Pledge:   g.Pledge,
				})
			}
			if err := s.loanRepo.CreateGuarantors(tx, rows); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(notes...)
	return loan, nil
}

// Approve moves a PENDING loan forward: to GUARANTOR_WAIT when the
// constitution requires guarantors (notifying them), straight to APPROVED
// otherwise. Requires a treasurer.
func (s *LoanService) Approve(ctx context.Context, loanID, actorID uint) (*models.Loan, error) {
	var (
		loan  *models.Loan
		notes []*models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		probe, err := s.loanRepo.Get(tx, loanID)
		if err != nil {
			return err
		}

		chama, err := s.chamaRepo.Get(tx, probe.ChamaID)
		if err != nil {
			return err
		}
		if err := s.requireTreasurer(tx, probe.ChamaID, actorID); err != nil {
			return err
		}

		loan, err = s.loanRepo.GetForUpdate(tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusPending {
			return fmt.Errorf("%w: cannot approve a %s loan", domain.ErrIllegalTransition, loan.Status)
		}

		if chama.Constitution.Loan.GuarantorRequired {
			loan.Status = models.LoanStatusGuarantorWait
			if err := s.loanRepo.Save(tx, loan); err != nil {
				return err
			}
			guarantors, err := s.loanRepo.ListGuarantors(tx, loan.ID)
			if err != nil {
				return err
			}
			for _, g := range guarantors {
				member, err := s.chamaRepo.GetMemberByID(tx, g.MemberID)
				if err != nil {
					return err
				}
				n, err := s.notifier.Emit(tx, Note{
					UserID:    member.UserID,
					Type:      models.NotifyGuarantorRequest,
					Title:     "Guarantor request",
					Message:   fmt.Sprintf("You are asked to guarantee a loan of %s with a pledge of %s.", loan.Principal, g.Pledge),
					RelatedID: &loan.ID,
				})
				if err != nil {
					return err
				}
				notes = append(notes, n)
			}
			return nil
		}

		if err := s.guardConcurrentLoans(tx, chama, loan); err != nil {
			return err
		}
		loan.Status = models.LoanStatusApproved
		if err := s.loanRepo.Save(tx, loan); err != nil {
			return err
		}
		n, err := s.notifier.Emit(tx, Note{
			UserID:    loan.BorrowerID,
			Type:      models.NotifyLoanApproved,
			Title:     "Loan approved",
			Message:   fmt.Sprintf("Your loan of %s was approved.", loan.Principal),
			RelatedID: &loan.ID,
		})
		if err != nil {
			return err
		}
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(notes...)
	return loan, nil
}

// DecideGuarantee records a guarantor's decision. Any DECLINED rejects the
// loan; once every pledge is ACCEPTED and pledges cover the principal the
// loan becomes APPROVED.
func (s *LoanService) DecideGuarantee(ctx context.Context, loanID, actorID uint, accept bool) (*models.Loan, error) {
	var (
		loan  *models.Loan
		notes []*models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		probe, err := s.loanRepo.Get(tx, loanID)
		if err != nil {
			return err
		}

		chama, err := s.chamaRepo.Get(tx, probe.ChamaID)
		if err != nil {
			return err
		}

		actor, err := s.chamaRepo.GetMember(tx, probe.ChamaID, actorID)
		if err != nil || !actor.IsActive {
			return fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
		}

		loan, err = s.loanRepo.GetForUpdate(tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusGuarantorWait {
			return fmt.Errorf("%w: loan is %s, not awaiting guarantors", domain.ErrIllegalTransition, loan.Status)
		}

		pledge, err := s.loanRepo.GetGuarantor(tx, loanID, actor.ID)
		if err != nil {
			return fmt.Errorf("%w: you are not a guarantor on this loan", domain.ErrForbidden)
		}
		if pledge.Decision != models.GuarantorPending {
			return fmt.Errorf("%w: pledge already %s", domain.ErrIllegalTransition, pledge.Decision)
		}

		now := time.Now()
		pledge.DecidedAt = &now
		if !accept {
			pledge.Decision = models.GuarantorDeclined
			if err := s.loanRepo.SaveGuarantor(tx, pledge); err != nil {
				return err
			}
			loan.Status = models.LoanStatusRejected
			loan.RejectReason = "guarantor declined"
			if err := s.loanRepo.Save(tx, loan); err != nil {
				return err
			}
			n, err := s.notifier.Emit(tx, Note{
				UserID:    loan.BorrowerID,
				Type:      models.NotifyLoanRejected,
				Title:     "Loan rejected",
				Message:   "A guarantor declined to back your loan.",
				RelatedID: &loan.ID,
			})
			if err != nil {
				return err
			}
			notes = append(notes, n)
			return nil
		}

		pledge.Decision = models.GuarantorAccepted
		if err := s.loanRepo.SaveGuarantor(tx, pledge); err != nil {
			return err
		}

		guarantors, err := s.loanRepo.ListGuarantors(tx, loanID)
		if err != nil {
			return err
		}
		var pledged money.Money
		allAccepted := true
		for _, g := range guarantors {
			if g.Decision != models.GuarantorAccepted {
				allAccepted = false
				break
			}
			pledged += g.Pledge
		}
		if !allAccepted || pledged < loan.Principal {
			return nil
		}

		if err := s.guardConcurrentLoans(tx, chama, loan); err != nil {
			return err
		}
		loan.Status = models.LoanStatusApproved
		if err := s.loanRepo.Save(tx, loan); err != nil {
			return err
		}
		n, err := s.notifier.Emit(tx, Note{
			UserID:    loan.BorrowerID,
			Type:      models.NotifyLoanApproved,
			Title:     "Loan approved",
			Message:   fmt.Sprintf("All guarantors accepted; your loan of %s is approved.", loan.Principal),
			RelatedID: &loan.ID,
		})
		if err != nil {
			return err
		}
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(notes...)
	return loan, nil
}

// Reject declines a PENDING or GUARANTOR_WAIT loan. Requires a treasurer.
func (s *LoanService) Reject(ctx context.Context, loanID, actorID uint, reason string) (*models.Loan, error) {
	var (
		loan *models.Loan
		note *models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		probe, err := s.loanRepo.Get(tx, loanID)
		if err != nil {
			return err
		}
		if err := s.requireTreasurer(tx, probe.ChamaID, actorID); err != nil {
			return err
		}

		loan, err = s.loanRepo.GetForUpdate(tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusPending && loan.Status != models.LoanStatusGuarantorWait {
			return fmt.Errorf("%w: cannot reject a %s loan", domain.ErrIllegalTransition, loan.Status)
		}

		loan.Status = models.LoanStatusRejected
		loan.RejectReason = reason
		if err := s.loanRepo.Save(tx, loan); err != nil {
			return err
		}
		note, err = s.notifier.Emit(tx, Note{
			UserID:    loan.BorrowerID,
			Type:      models.NotifyLoanRejected,
			Title:     "Loan rejected",
			Message:   fmt.Sprintf("Your loan application was rejected: %s", reason),
			RelatedID: &loan.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(note)
	return loan, nil
}

// Disburse pays an APPROVED loan out of the chama fund and generates the
// amortization schedule, anchored one period after disbursement. Locks:
// chama, borrower member, loan.
func (s *LoanService) Disburse(ctx context.Context, loanID, actorID uint) (*models.Loan, error) {
	var (
		loan  *models.Loan
		notes []*models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		probe, err := s.loanRepo.Get(tx, loanID)
		if err != nil {
			return err
		}

		chama, err := s.chamaRepo.GetForUpdate(tx, probe.ChamaID)
		if err != nil {
			return err
		}
		if err := s.requireTreasurer(tx, probe.ChamaID, actorID); err != nil {
			return err
		}
		if _, err := s.chamaRepo.GetMemberForUpdate(tx, probe.ChamaID, probe.BorrowerID); err != nil {
			return err
		}

		loan, err = s.loanRepo.GetForUpdate(tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusApproved {
			return fmt.Errorf("%w: cannot disburse a %s loan", domain.ErrIllegalTransition, loan.Status)
		}
		if err := s.guardConcurrentLoans(tx, chama, loan); err != nil {
			return err
		}
		if chama.CurrentFund < loan.Principal {
			return fmt.Errorf("%w: fund %s cannot cover principal %s",
				domain.ErrInsufficientFunds, chama.CurrentFund, loan.Principal)
		}

		freq := chama.Constitution.ContributionFrequency
		plan := money.Amortize(loan.Principal, loan.InterestRatePercent, freq.PeriodsPerYear(), loan.TermPeriods)

		now := time.Now()
		disbursedOn := period.DateOf(now.In(chama.Location()))
		rows := make([]models.LoanInstallment, 0, len(plan))
		for _, p := range plan {
			due := period.Advance(disbursedOn, freq, p.Sequence)
			rows = append(rows, models.LoanInstallment{
				LoanID:        loan.ID,
				Sequence:      p.Sequence,
				DueDate:       due.Time(time.UTC),
				Amount:        p.Amount,
				PrincipalPart: p.Principal,
				InterestPart:  p.Interest,
				Status:        models.InstallmentStatusPending,
			})
		}
		if err := s.loanRepo.CreateInstallments(tx, rows); err != nil {
			return err
		}

		chama.CurrentFund -= loan.Principal
		if err := s.chamaRepo.Save(tx, chama); err != nil {
			return err
		}

		loan.Status = models.LoanStatusActive
		loan.DisbursedAt = &now
		loan.PrincipalOutstanding = loan.Principal
		loan.InterestOutstanding = money.TotalInterest(plan)
		loan.PenaltyOutstanding = 0
		if err := s.loanRepo.Save(tx, loan); err != nil {
			return err
		}

		n, err := s.notifier.Emit(tx, Note{
			UserID:    loan.BorrowerID,
			Type:      models.NotifyLoanDisbursed,
			Title:     "Loan disbursed",
			Message:   fmt.Sprintf("Your loan of %s was disbursed in %d installments.", loan.Principal, loan.TermPeriods),
			RelatedID: &loan.ID,
		})
		if err != nil {
			return err
		}
		notes = append(notes, n)

		guarantors, err := s.loanRepo.ListGuarantors(tx, loan.ID)
		if err != nil {
			return err
		}
		for _, g := range guarantors {
			member, err := s.chamaRepo.GetMemberByID(tx, g.MemberID)
			if err != nil {
				return err
			}
			gn, err := s.notifier.Emit(tx, Note{
				UserID:    member.UserID,
				Type:      models.NotifyLoanDisbursed,
				Title:     "Guaranteed loan disbursed",
				Message:   fmt.Sprintf("A loan of %s you guaranteed was disbursed.", loan.Principal),
				RelatedID: &loan.ID,
			})
			if err != nil {
				return err
			}
			notes = append(notes, gn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(notes...)
	return loan, nil
}

// RepayInput represents repayment input
type RepayInput struct {
	LoanID  uint        `json:"loan_id"`
	Amount  money.Money `json:"amount"`
	ActorID uint        `json:"-"`
}

// Repay allocates a received payment in the order penalty, interest,
// principal, marks covered installments PAID and credits the chama fund.
// Payment beyond the total debt is refused. Locks: chama, loan,
// installments.
func (s *LoanService) Repay(ctx context.Context, input *RepayInput) (*models.Loan, error) {
	if err := input.Amount.Validate("amount"); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var (
		loan *models.Loan
		note *models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		probe, err := s.loanRepo.Get(tx, input.LoanID)
		if err != nil {
			return err
		}

		chama, err := s.chamaRepo.GetForUpdate(tx, probe.ChamaID)
		if err != nil {
			return err
		}
		if err := s.requireTreasurer(tx, probe.ChamaID, input.ActorID); err != nil {
			return err
		}

		loan, err = s.loanRepo.GetForUpdate(tx, input.LoanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive {
			return fmt.Errorf("%w: cannot repay a %s loan", domain.ErrIllegalTransition, loan.Status)
		}
		if input.Amount > loan.TotalOutstanding() {
			return fmt.Errorf("%w: payment %s exceeds outstanding debt %s",
				domain.ErrIntegrityViolation, input.Amount, loan.TotalOutstanding())
		}

		// Bucket allocation: penalty, then interest, then principal.
		remaining := input.Amount
		pay := func(bucket *money.Money) {
			applied := remaining
			if applied > *bucket {
				applied = *bucket
			}
			*bucket -= applied
			remaining -= applied
		}
		pay(&loan.PenaltyOutstanding)
		pay(&loan.InterestOutstanding)
		pay(&loan.PrincipalOutstanding)
		if remaining != 0 {
			return fmt.Errorf("%w: allocation left %s unapplied", domain.ErrIntegrityViolation, remaining)
		}

		// Walk the schedule in order, settling installments front to back.
		installments, err := s.loanRepo.ListInstallmentsForUpdate(tx, input.LoanID)
		if err != nil {
			return err
		}
		toDistribute := input.Amount
		for _, inst := range installments {
			if toDistribute == 0 {
				break
			}
			owed := inst.Owed()
			if owed <= 0 {
				continue
			}
			applied := toDistribute
			if applied > owed {
				applied = owed
			}
			inst.PaidAmount += applied
			toDistribute -= applied
			if inst.Owed() == 0 {
				inst.Status = models.InstallmentStatusPaid
			}
			if err := s.loanRepo.SaveInstallment(tx, inst); err != nil {
				return err
			}
		}

		chama.CurrentFund += input.Amount
		if err := s.chamaRepo.Save(tx, chama); err != nil {
			return err
		}

		completed := loan.TotalOutstanding() == 0
		if completed {
			loan.Status = models.LoanStatusCompleted
		}
		if err := s.loanRepo.Save(tx, loan); err != nil {
			return err
		}

		noteType := models.NotifyLoanRepayment
		title := "Repayment received"
		message := fmt.Sprintf("A repayment of %s was applied to your loan; %s remains.", input.Amount, loan.TotalOutstanding())
		if completed {
			noteType = models.NotifyLoanCompleted
			title = "Loan completed"
			message = fmt.Sprintf("Your loan of %s is fully repaid.", loan.Principal)
		}
		note, err = s.notifier.Emit(tx, Note{
			UserID:    loan.BorrowerID,
			Type:      noteType,
			Title:     title,
			Message:   message,
			RelatedID: &loan.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(note)
	return loan, nil
}

// AccrueOverdue transitions PENDING installments past due to OVERDUE and
// applies the constitution's penalty, once per installment. Called by the
// scheduler in its own transaction per loan. Returns the notifications to
// push after commit.
func (s *LoanService) AccrueOverdue(tx *gorm.DB, loanID uint, today period.Date) ([]*models.Notification, error) {
	loan, err := s.loanRepo.GetForUpdate(tx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, nil
	}
	chama, err := s.chamaRepo.Get(tx, loan.ChamaID)
	if err != nil {
		return nil, err
	}
	penalty := chama.Constitution.Loan.Penalty

	installments, err := s.loanRepo.ListInstallmentsForUpdate(tx, loanID)
	if err != nil {
		return nil, err
	}

	var notes []*models.Notification
	var accrued money.Money
	for _, inst := range installments {
		if inst.Status != models.InstallmentStatusPending || !inst.Due().Before(today) {
			continue
		}
		if inst.PenaltyAppliedOn != nil {
			continue
		}
		charge := penalty.Flat + inst.PrincipalPart.MulPercent(penalty.RatePercent)
		inst.Status = models.InstallmentStatusOverdue
		inst.PenaltyAmount += charge
		day := today.Time(time.UTC)
		inst.PenaltyAppliedOn = &day
		if err := s.loanRepo.SaveInstallment(tx, inst); err != nil {
			return nil, err
		}
		accrued += charge
	}
	if accrued == 0 {
		return nil, nil
	}

	loan.PenaltyOutstanding += accrued
	if err := s.loanRepo.Save(tx, loan); err != nil {
		return nil, err
	}
	n, err := s.notifier.Emit(tx, Note{
		UserID:    loan.BorrowerID,
		Type:      models.NotifyLoanOverdue,
		Title:     "Installment overdue",
		Message:   fmt.Sprintf("An installment is overdue; a penalty of %s was added to your loan.", accrued),
		RelatedID: &loan.ID,
	})
	if err != nil {
		return nil, err
	}
	notes = append(notes, n)
	return notes, nil
}

// MarkDefaulted transitions an ACTIVE loan to DEFAULTED when its last
// overdue installment is at least thresholdDays past due. The status guard
// makes the LOAN_DEFAULTED notification at-most-once.
func (s *LoanService) MarkDefaulted(tx *gorm.DB, loanID uint, today period.Date, fallbackThresholdDays int) ([]*models.Notification, error) {
	loan, err := s.loanRepo.GetForUpdate(tx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, nil
	}
	chama, err := s.chamaRepo.Get(tx, loan.ChamaID)
	if err != nil {
		return nil, err
	}
	threshold := chama.Constitution.Loan.DefaultThresholdDays
	if threshold <= 0 {
		threshold = fallbackThresholdDays
	}

	installments, err := s.loanRepo.ListInstallments(tx, loanID)
	if err != nil {
		return nil, err
	}
	if len(installments) == 0 {
		return nil, nil
	}
	last := installments[len(installments)-1]
	if last.Status != models.InstallmentStatusOverdue || today.DaysSince(last.Due()) < threshold {
		return nil, nil
	}

	loan.Status = models.LoanStatusDefaulted
	if err := s.loanRepo.Save(tx, loan); err != nil {
		return nil, err
	}
	n, err := s.notifier.Emit(tx, Note{
		UserID:    loan.BorrowerID,
		Type:      models.NotifyLoanDefaulted,
		Title:     "Loan defaulted",
		Message:   fmt.Sprintf("Your loan of %s has been marked as defaulted.", loan.Principal),
		RelatedID: &loan.ID,
	})
	if err != nil {
		return nil, err
	}
	return []*models.Notification{n}, nil
}

// RemindDue emits LOAN_INSTALLMENT_REMINDER for PENDING installments due
// on the given day, at most once per installment per day.
func (s *LoanService) RemindDue(tx *gorm.DB, loanID uint, dueOn, today period.Date) ([]*models.Notification, error) {
	loan, err := s.loanRepo.GetForUpdate(tx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, nil
	}

	installments, err := s.loanRepo.ListInstallmentsForUpdate(tx, loanID)
	if err != nil {
		return nil, err
	}

	var notes []*models.Notification
	for _, inst := range installments {
		if inst.Status != models.InstallmentStatusPending || !inst.Due().Equal(dueOn) {
			continue
		}
		if inst.LastReminderOn != nil && !period.DateOf(*inst.LastReminderOn).Before(today) {
			continue
		}
		day := today.Time(time.UTC)
		inst.LastReminderOn = &day
		if err := s.loanRepo.SaveInstallment(tx, inst); err != nil {
			return nil, err
		}
		n, err := s.notifier.Emit(tx, Note{
			UserID:    loan.BorrowerID,
			Type:      models.NotifyLoanReminder,
			Title:     "Installment due soon",
			Message:   fmt.Sprintf("Installment %d of %s is due on %s.", inst.Sequence, inst.Amount, inst.Due()),
			RelatedID: &loan.ID,
		})
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// Get returns a loan with its schedule and guarantors. Visible to the
// borrower and to any active member of the chama.
func (s *LoanService) Get(ctx context.Context, loanID, actorID uint) (*models.Loan, error) {
	db := s.ledger.DB().WithContext(ctx)
	loan, err := s.loanRepo.GetWithSchedule(db, loanID)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	actor, err := s.chamaRepo.GetMember(db, loan.ChamaID, actorID)
	if err != nil || !actor.IsActive {
		return nil, fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
	}
	return loan, nil
}

// LoanListInput represents list input
type LoanListInput struct {
	ChamaID uint
	ActorID uint
	Status  string
	Page    int
	Limit   int
}

// LoanListOutput represents list output
type LoanListOutput struct {
	Loans []*models.Loan `json:"loans"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// List returns a page of the chama's loans.
func (s *LoanService) List(ctx context.Context, input *LoanListInput) (*LoanListOutput, error) {
	if input.Page < 1 {
		input.Page = 1
	}
	if input.Limit < 1 || input.Limit > 100 {
		input.Limit = 20
	}

	db := s.ledger.DB().WithContext(ctx)
	actor, err := s.chamaRepo.GetMember(db, input.ChamaID, input.ActorID)
	if err != nil || !actor.IsActive {
		return nil, fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
	}

	offset := (input.Page - 1) * input.Limit
	loans, total, err := s.loanRepo.ListByChama(db, input.ChamaID, input.Status, offset, input.Limit)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	return &LoanListOutput{Loans: loans, Total: total, Page: input.Page, Limit: input.Limit}, nil
}

// requireTreasurer fails with Forbidden unless actor is an active treasurer.
func (s *LoanService) requireTreasurer(tx *gorm.DB, chamaID, actorID uint) error {
	actor, err := s.chamaRepo.GetMember(tx, chamaID, actorID)
	if err != nil || !actor.CanRecordFunds() {
		return fmt.Errorf("%w: this operation requires an active treasurer", domain.ErrForbidden)
	}
	return nil
}

// guardConcurrentLoans enforces max_concurrent_per_member counting the
// loan itself when it is already APPROVED/ACTIVE.
func (s *LoanService) guardConcurrentLoans(tx *gorm.DB, chama *models.Chama, loan *models.Loan) error {
	count, err := s.loanRepo.CountOpenByBorrower(tx, chama.ID, loan.BorrowerID)
	if err != nil {
		return err
	}
	limit := int64(chama.Constitution.Loan.MaxConcurrentLoans)
	if loan.IsOpen() {
		count-- // the loan under transition is part of the count
	}
	if count >= limit {
		return fmt.Errorf("%w: borrower already has %d open loans (limit %d)",
			domain.ErrIllegalTransition, count, limit)
	}
	return nil
}
