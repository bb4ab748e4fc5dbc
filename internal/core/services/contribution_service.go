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

// ContributionService records, reverses and lists member contributions,
// keeping the chama fund and per-member running totals consistent.
type ContributionService struct {
	ledger      *repositories.Ledger
	chamaRepo   *repositories.ChamaRepository
	contribRepo *repositories.ContributionRepository
	roscaRepo   *repositories.RoscaRepository
	notifier    *NotificationService
}

// NewContributionService creates a new contribution service
func NewContributionService(
	ledger *repositories.Ledger,
	chamaRepo *repositories.ChamaRepository,
	contribRepo *repositories.ContributionRepository,
	roscaRepo *repositories.RoscaRepository,
	notifier *NotificationService,
) *ContributionService {
	return &ContributionService{
		ledger:      ledger,
		chamaRepo:   chamaRepo,
		contribRepo: contribRepo,
		roscaRepo:   roscaRepo,
		notifier:    notifier,
	}
}

// RecordInput represents record contribution input
type RecordInput struct {
	ChamaID          uint        `json:"chama_id"`
	UserID           uint        `json:"user_id"`
	Amount           money.Money `json:"amount"`
	Method           string      `json:"method"`
	ReceiptNo        *string     `json:"receipt_no,omitempty"`
	ContributionDate *string     `json:"contribution_date,omitempty"`
	ActorID          uint        `json:"-"`
}

func validMethod(m string) bool {
	switch m {
	case models.MethodCash, models.MethodMobile, models.MethodBank, models.MethodOther:
		return true
	}
	return false
}

// Record inserts a contribution and bumps the chama fund and the member's
// running total in one transaction. Contributions made while a pass-through
// cycle runs skip the fund on both the record and the reversal leg. The
// actor must be an active treasurer of the chama. Locks: chama row, then
// member row.
func (s *ContributionService) Record(ctx context.Context, input *RecordInput) (*models.Contribution, error) {
	if err := input.Amount.Validate("amount"); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if !validMethod(input.Method) {
		return nil, fmt.Errorf("%w: unknown method %q", domain.ErrInvalidInput, input.Method)
	}

	var (
		contribution *models.Contribution
		note         *models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		chama, err := s.chamaRepo.GetForUpdate(tx, input.ChamaID)
		if err != nil {
			return err
		}
		if chama.Status != models.ChamaStatusActive {
			return fmt.Errorf("%w: chama is %s", domain.ErrIllegalTransition, chama.Status)
		}

		actor, err := s.chamaRepo.GetMember(tx, input.ChamaID, input.ActorID)
		if err != nil || !actor.CanRecordFunds() {
			return fmt.Errorf("%w: recording contributions requires an active treasurer", domain.ErrForbidden)
		}

		member, err := s.chamaRepo.GetMemberForUpdate(tx, input.ChamaID, input.UserID)
		if err != nil {
			return err
		}
		if !member.IsActive {
			return fmt.Errorf("%w: member %d is inactive", domain.ErrForbidden, input.UserID)
		}

		date := period.Today(chama.Location())
		if input.ContributionDate != nil {
			date, err = period.ParseDate(*input.ContributionDate)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
		}

		// Under a pass-through constitution, money contributed while a
		// cycle runs goes straight to the round's recipient and never
		// sits in the fund.
		passThrough := false
		if chama.Constitution.Rosca.PassThrough {
			if _, err := s.roscaRepo.GetActiveCycleByChama(tx, chama.ID); err == nil {
				passThrough = true
			} else if !repositories.IsNotFound(err) {
				return err
			}
		}

		contribution = &models.Contribution{
			ChamaID:          input.ChamaID,
			UserID:           input.UserID,
			Amount:           input.Amount,
			Method:           input.Method,
			ReceiptNo:        input.ReceiptNo,
			RecordedBy:       input.ActorID,
			ContributionDate: date.Time(time.UTC),
			PassThrough:      passThrough,
		}
		if err := s.contribRepo.Create(tx, contribution); err != nil {
			return err
		}

		if !passThrough {
			chama.CurrentFund += input.Amount
			if err := s.chamaRepo.Save(tx, chama); err != nil {
				return err
			}
		}
		member.TotalContributions += input.Amount
		if err := s.chamaRepo.SaveMember(tx, member); err != nil {
			return err
		}

		note, err = s.notifier.Emit(tx, Note{
			UserID:    input.UserID,
			Type:      models.NotifyContributionRecorded,
			Title:     "Contribution recorded",
			Message:   fmt.Sprintf("A contribution of %s was recorded for you in %s.", input.Amount, chama.Name),
			RelatedID: &contribution.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(note)
	return contribution, nil
}

// Delete reverses a contribution: the inverse of Record on the chama fund
// and the member total, to the cent. Refused when a ROSCA round that
// consumed the contribution has already been paid out.
func (s *ContributionService) Delete(ctx context.Context, contributionID, actorID uint) error {
	var note *models.Notification
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		// Plain read to learn the chama before taking any lock.
		var probe models.Contribution
		if err := tx.First(&probe, contributionID).Error; err != nil {
			return err
		}

		chama, err := s.chamaRepo.GetForUpdate(tx, probe.ChamaID)
		if err != nil {
			return err
		}

		actor, err := s.chamaRepo.GetMember(tx, probe.ChamaID, actorID)
		if err != nil || !actor.CanRecordFunds() {
			return fmt.Errorf("%w: deleting contributions requires an active treasurer", domain.ErrForbidden)
		}

		member, err := s.chamaRepo.GetMemberForUpdate(tx, probe.ChamaID, probe.UserID)
		if err != nil {
			return err
		}

		contribution, err := s.contribRepo.GetForUpdate(tx, contributionID)
		if err != nil {
			return err
		}

		if err := s.guardPaidOutRound(tx, chama, contribution); err != nil {
			return err
		}

		if member.TotalContributions < contribution.Amount {
			return fmt.Errorf("%w: reversal would drive totals negative", domain.ErrIntegrityViolation)
		}
		if !contribution.PassThrough && chama.CurrentFund < contribution.Amount {
			return fmt.Errorf("%w: reversal would drive totals negative", domain.ErrIntegrityViolation)
		}

		if err := s.contribRepo.SoftDelete(tx, contribution.ID); err != nil {
			return err
		}
		// Mirror Record: a pass-through contribution never reached the fund.
		if !contribution.PassThrough {
			chama.CurrentFund -= contribution.Amount
			if err := s.chamaRepo.Save(tx, chama); err != nil {
				return err
			}
		}
		member.TotalContributions -= contribution.Amount
		if err := s.chamaRepo.SaveMember(tx, member); err != nil {
			return err
		}

		note, err = s.notifier.Emit(tx, Note{
			UserID:    contribution.UserID,
			Type:      models.NotifyContributionReversed,
			Title:     "Contribution reversed",
			Message:   fmt.Sprintf("Your contribution of %s in %s was reversed.", contribution.Amount, chama.Name),
			RelatedID: &contribution.ID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.notifier.Push(note)
	return nil
}

// guardPaidOutRound refuses the reversal when the contribution's round in
// any ACTIVE or COMPLETED cycle has already been paid out.
func (s *ContributionService) guardPaidOutRound(tx *gorm.DB, chama *models.Chama, c *models.Contribution) error {
	cycles, err := s.roscaRepo.ListCyclesCoveringDate(tx, chama.ID, c.ContributionDate)
	if err != nil {
		return err
	}
	for _, cycle := range cycles {
		round := period.PeriodIndex(cycle.Start(), c.Date(), period.Frequency(cycle.Frequency)) + 1
		if round >= 1 && round <= cycle.RoundCount && cycle.CurrentRound >= round {
			return fmt.Errorf("%w: contribution funded round %d of cycle %d which is already paid out",
				domain.ErrIllegalTransition, round, cycle.ID)
		}
	}
	return nil
}

// ContributionListInput represents list input
type ContributionListInput struct {
	ChamaID   uint
	ActorID   uint
	UserID    *uint
	StartDate *string
	EndDate   *string
	Page      int
	Limit     int
}

// ContributionListOutput represents list output
type ContributionListOutput struct {
	Contributions []*models.Contribution `json:"contributions"`
	Total         int64                  `json:"total"`
	TotalAmount   money.Money            `json:"total_amount"`
	Page          int                    `json:"page"`
	Limit         int                    `json:"limit"`
}

// List returns a page of contributions with the aggregate amount of the
// whole filtered set. Any active member of the chama may list.
func (s *ContributionService) List(ctx context.Context, input *ContributionListInput) (*ContributionListOutput, error) {
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

	filter := repositories.ContributionFilter{ChamaID: input.ChamaID, UserID: input.UserID}
	if input.StartDate != nil {
		d, err := period.ParseDate(*input.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		t := d.Time(time.UTC)
		filter.StartDate = &t
	}
	if input.EndDate != nil {
		d, err := period.ParseDate(*input.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		t := d.Time(time.UTC)
		filter.EndDate = &t
	}

	offset := (input.Page - 1) * input.Limit
	rows, total, totalAmount, err := s.contribRepo.List(db, filter, offset, input.Limit)
	if err != nil {
		return nil, repositories.MapError(err)
	}

	return &ContributionListOutput{
		Contributions: rows,
		Total:         total,
		TotalAmount:   totalAmount,
		Page:          input.Page,
		Limit:         input.Limit,
	}, nil
}
