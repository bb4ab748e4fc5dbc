package services

import (
	"errors"
	"testing"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/core/domain"
	"chamahub/internal/pkg/money"
)

func TestPayClaim(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	treasurer := e.seedUser("grace")
	beneficiary := e.seedUser("juma")
	e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)
	e.seedMember(chama.ID, beneficiary.ID, models.RoleMember)
	e.setFund(chama.ID, money.FromUnits(1000))

	err := e.welfare.PayClaim(e.ctx, &ClaimPayoutInput{
		ChamaID:       chama.ID,
		BeneficiaryID: beneficiary.ID,
		Amount:        money.FromUnits(300),
		Reason:        "hospital bill",
		ActorID:       treasurer.ID,
	})
	if err != nil {
		t.Fatalf("pay claim: %v", err)
	}
	if got := e.chamaFund(chama.ID); got != money.FromUnits(700) {
		t.Fatalf("fund = %s, want %s", got, money.FromUnits(700))
	}
	if got := e.countNotifications(beneficiary.ID, models.NotifyWelfareClaimPaid); got != 1 {
		t.Fatalf("beneficiary notifications = %d", got)
	}

	t.Run("insufficient fund", func(t *testing.T) {
		err := e.welfare.PayClaim(e.ctx, &ClaimPayoutInput{
			ChamaID: chama.ID, BeneficiaryID: beneficiary.ID,
			Amount: money.FromUnits(5000), Reason: "roof", ActorID: treasurer.ID,
		})
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		if got := e.chamaFund(chama.ID); got != money.FromUnits(700) {
			t.Fatalf("fund moved to %s on a refused claim", got)
		}
	})

	t.Run("treasurer required", func(t *testing.T) {
		err := e.welfare.PayClaim(e.ctx, &ClaimPayoutInput{
			ChamaID: chama.ID, BeneficiaryID: beneficiary.ID,
			Amount: money.FromUnits(100), Reason: "transport", ActorID: beneficiary.ID,
		})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestPurchaseSharesAndEquity(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	treasurer := e.seedUser("grace")
	buyer := e.seedUser("juma")
	other := e.seedUser("wanjiku")
	e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)
	e.seedMember(chama.ID, buyer.ID, models.RoleMember)
	e.seedMember(chama.ID, other.ID, models.RoleMember)

	buy := func(shares int, price money.Money) {
		t.Helper()
		_, err := e.welfare.PurchaseShares(e.ctx, &SharePurchaseInput{
			ChamaID: chama.ID, UserID: buyer.ID, Shares: shares, Price: price, ActorID: treasurer.ID,
		})
		if err != nil {
			t.Fatalf("purchase: %v", err)
		}
	}
	buy(10, money.FromUnits(500))
	buy(4, money.FromUnits(200))

	if got := e.chamaFund(chama.ID); got != money.FromUnits(700) {
		t.Fatalf("fund = %s, want %s", got, money.FromUnits(700))
	}
	if got := e.countNotifications(buyer.ID, models.NotifySharePurchased); got != 2 {
		t.Fatalf("purchase notifications = %d", got)
	}

	statement, err := e.welfare.Equity(e.ctx, chama.ID, buyer.ID, buyer.ID)
	if err != nil {
		t.Fatalf("equity: %v", err)
	}
	if statement.TotalShares != 14 || statement.TotalSpent != money.FromUnits(700) {
		t.Fatalf("statement: %d shares, %s spent", statement.TotalShares, statement.TotalSpent)
	}
	if len(statement.Purchases) != 2 {
		t.Fatalf("purchase history has %d rows", len(statement.Purchases))
	}

	t.Run("treasurer may view any member", func(t *testing.T) {
		if _, err := e.welfare.Equity(e.ctx, chama.ID, buyer.ID, treasurer.ID); err != nil {
			t.Fatalf("treasurer view: %v", err)
		}
	})

	t.Run("plain member cannot view others", func(t *testing.T) {
		_, err := e.welfare.Equity(e.ctx, chama.ID, buyer.ID, other.ID)
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("zero shares refused", func(t *testing.T) {
		_, err := e.welfare.PurchaseShares(e.ctx, &SharePurchaseInput{
			ChamaID: chama.ID, UserID: buyer.ID, Shares: 0, Price: money.FromUnits(100), ActorID: treasurer.ID,
		})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}
