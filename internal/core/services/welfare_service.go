package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/core/domain"
	"chamahub/internal/pkg/money"
)

// WelfareService covers the fund touchpoints of welfare and share equity:
// paying out an approved welfare claim and crediting share purchases.
type WelfareService struct {
	ledger      *repositories.Ledger
	chamaRepo   *repositories.ChamaRepository
	welfareRepo *repositories.WelfareRepository
	notifier    *NotificationService
}

// NewWelfareService creates a new welfare service
func NewWelfareService(
	ledger *repositories.Ledger,
	chamaRepo *repositories.ChamaRepository,
	welfareRepo *repositories.WelfareRepository,
	notifier *NotificationService,
) *WelfareService {
	return &WelfareService{
		ledger:      ledger,
		chamaRepo:   chamaRepo,
		welfareRepo: welfareRepo,
		notifier:    notifier,
	}
}

// ClaimPayoutInput represents welfare claim payout input
type ClaimPayoutInput struct {
	ChamaID       uint        `json:"chama_id"`
	BeneficiaryID uint        `json:"beneficiary_id"`
	Amount        money.Money `json:"amount"`
	Reason        string      `json:"reason"`
	ActorID       uint        `json:"-"`
}

// PayClaim debits an approved welfare claim from the chama fund and
// notifies the beneficiary. The claim's deliberation happens outside the
// ledger; this is the money movement only.
func (s *WelfareService) PayClaim(ctx context.Context, input *ClaimPayoutInput) error {
	if err := input.Amount.Validate("amount"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var note *models.Notification
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
			return fmt.Errorf("%w: welfare payouts require an active treasurer", domain.ErrForbidden)
		}

		beneficiary, err := s.chamaRepo.GetMember(tx, input.ChamaID, input.BeneficiaryID)
		if err != nil || !beneficiary.IsActive {
			return fmt.Errorf("%w: beneficiary is not an active member", domain.ErrInvalidInput)
		}

		if chama.CurrentFund < input.Amount {
			return fmt.Errorf("%w: fund %s cannot cover claim %s",
				domain.ErrInsufficientFunds, chama.CurrentFund, input.Amount)
		}
		chama.CurrentFund -= input.Amount
		if err := s.chamaRepo.Save(tx, chama); err != nil {
			return err
		}

		note, err = s.notifier.Emit(tx, Note{
			UserID:    input.BeneficiaryID,
			Type:      models.NotifyWelfareClaimPaid,
			Title:     "Welfare claim paid",
			Message:   fmt.Sprintf("Your welfare claim of %s was paid out: %s", input.Amount, input.Reason),
			RelatedID: &chama.ID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.notifier.Push(note)
	return nil
}

// SharePurchaseInput represents share purchase input
type SharePurchaseInput struct {
	ChamaID uint        `json:"chama_id"`
	UserID  uint        `json:"user_id"`
	Shares  int         `json:"shares"`
	Price   money.Money `json:"price"`
	ActorID uint        `json:"-"`
}

// PurchaseShares credits a member's share purchase to the chama fund and
// records an equity row. Shares are an opaque count; valuation and
// dividends live outside the ledger.
func (s *WelfareService) PurchaseShares(ctx context.Context, input *SharePurchaseInput) (*models.ShareEquity, error) {
	if input.Shares < 1 {
		return nil, fmt.Errorf("%w: shares must be positive", domain.ErrInvalidInput)
	}
	if err := input.Price.Validate("price"); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var (
		equity *models.ShareEquity
		note   *models.Notification
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
			return fmt.Errorf("%w: share purchases require an active treasurer", domain.ErrForbidden)
		}

		member, err := s.chamaRepo.GetMemberForUpdate(tx, input.ChamaID, input.UserID)
		if err != nil || !member.IsActive {
			return fmt.Errorf("%w: purchaser is not an active member", domain.ErrInvalidInput)
		}

		equity = &models.ShareEquity{
			ChamaID:  input.ChamaID,
			MemberID: member.ID,
			Shares:   input.Shares,
			Price:    input.Price,
		}
		if err := s.welfareRepo.CreateEquity(tx, equity); err != nil {
			return err
		}

		chama.CurrentFund += input.Price
		if err := s.chamaRepo.Save(tx, chama); err != nil {
			return err
		}

		note, err = s.notifier.Emit(tx, Note{
			UserID:    input.UserID,
			Type:      models.NotifySharePurchased,
			Title:     "Shares purchased",
			Message:   fmt.Sprintf("Your purchase of %d shares for %s was recorded.", input.Shares, input.Price),
			RelatedID: &equity.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(note)
	return equity, nil
}

// EquityStatement represents a member's share holdings
type EquityStatement struct {
	Purchases   []*models.ShareEquity `json:"purchases"`
	TotalShares int                   `json:"total_shares"`
	TotalSpent  money.Money           `json:"total_spent"`
}

// Equity returns a member's share purchase history and totals. Visible to
// the member themselves and to officials and treasurers.
func (s *WelfareService) Equity(ctx context.Context, chamaID, userID, actorID uint) (*EquityStatement, error) {
	db := s.ledger.DB().WithContext(ctx)

	actor, err := s.chamaRepo.GetMember(db, chamaID, actorID)
	if err != nil || !actor.IsActive {
		return nil, fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
	}
	if actorID != userID && !actor.IsOfficial() && !actor.CanRecordFunds() {
		return nil, fmt.Errorf("%w: cannot view another member's equity", domain.ErrForbidden)
	}

	member, err := s.chamaRepo.GetMember(db, chamaID, userID)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	purchases, err := s.welfareRepo.ListEquityByMember(db, chamaID, member.ID)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	shares, spent, err := s.welfareRepo.SumSharesByMember(db, chamaID, member.ID)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	return &EquityStatement{Purchases: purchases, TotalShares: shares, TotalSpent: spent}, nil
}
