package services

import (
	"errors"
	"testing"
	"time"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/core/domain"
	"chamahub/internal/pkg/money"
)

func TestRecordContribution(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	treasurer := e.seedUser("grace")
	saver := e.seedUser("juma")
	e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)
	member := e.seedMember(chama.ID, saver.ID, models.RoleMember)

	amount := money.FromUnits(500)
	row := e.contribute(chama.ID, treasurer.ID, saver.ID, amount, "2026-08-01")

	if row.ID == 0 {
		t.Fatal("contribution not persisted")
	}
	if got := e.chamaFund(chama.ID); got != amount {
		t.Fatalf("fund = %s, want %s", got, amount)
	}
	if got := e.reloadMember(member.ID).TotalContributions; got != amount {
		t.Fatalf("member total = %s, want %s", got, amount)
	}
	if got := e.countNotifications(saver.ID, models.NotifyContributionRecorded); got != 1 {
		t.Fatalf("expected 1 notification, got %d", got)
	}
}

func TestRecordContributionRequiresTreasurer(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	official := e.seedUser("grace")
	saver := e.seedUser("juma")
	e.seedMember(chama.ID, official.ID, models.RoleOfficial)
	e.seedMember(chama.ID, saver.ID, models.RoleMember)

	date := "2026-08-01"
	_, err := e.contribs.Record(e.ctx, &RecordInput{
		ChamaID:          chama.ID,
		UserID:           saver.ID,
		Amount:           money.FromUnits(500),
		Method:           models.MethodCash,
		ContributionDate: &date,
		ActorID:          official.ID,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if got := e.chamaFund(chama.ID); got != 0 {
		t.Fatalf("fund moved to %s on a refused record", got)
	}
}

func TestRecordContributionRejectsBadInput(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	treasurer := e.seedUser("grace")
	e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)

	tests := []struct {
		name  string
		input RecordInput
	}{
		{"zero amount", RecordInput{ChamaID: chama.ID, UserID: treasurer.ID, Amount: 0, Method: models.MethodCash, ActorID: treasurer.ID}},
		{"negative amount", RecordInput{ChamaID: chama.ID, UserID: treasurer.ID, Amount: -100, Method: models.MethodCash, ActorID: treasurer.ID}},
		{"unknown method", RecordInput{ChamaID: chama.ID, UserID: treasurer.ID, Amount: 100, Method: "BARTER", ActorID: treasurer.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			if _, err := e.contribs.Record(e.ctx, &input); !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestDeleteContributionRestoresTotals(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	treasurer := e.seedUser("grace")
	saver := e.seedUser("juma")
	e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)
	member := e.seedMember(chama.ID, saver.ID, models.RoleMember)

	keep := e.contribute(chama.ID, treasurer.ID, saver.ID, money.FromUnits(300), "2026-08-01")
	doomed := e.contribute(chama.ID, treasurer.ID, saver.ID, money.FromUnits(200), "2026-08-02")

	if err := e.contribs.Delete(e.ctx, doomed.ID, treasurer.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := e.chamaFund(chama.ID); got != money.FromUnits(300) {
		t.Fatalf("fund = %s, want %s", got, money.FromUnits(300))
	}
	if got := e.reloadMember(member.ID).TotalContributions; got != money.FromUnits(300) {
		t.Fatalf("member total = %s, want %s", got, money.FromUnits(300))
	}
	if got := e.countNotifications(saver.ID, models.NotifyContributionReversed); got != 1 {
		t.Fatalf("expected 1 reversal notification, got %d", got)
	}

	// The surviving contribution is untouched and the reversed one gone
	// from listings.
	out, err := e.contribs.List(e.ctx, &ContributionListInput{ChamaID: chama.ID, ActorID: saver.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out.Total != 1 || out.Contributions[0].ID != keep.ID {
		t.Fatalf("expected only contribution %d to survive, got %d rows", keep.ID, out.Total)
	}
	if out.TotalAmount != money.FromUnits(300) {
		t.Fatalf("aggregate = %s, want %s", out.TotalAmount, money.FromUnits(300))
	}
}

func TestDeleteContributionRequiresTreasurer(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	treasurer := e.seedUser("grace")
	saver := e.seedUser("juma")
	e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)
	e.seedMember(chama.ID, saver.ID, models.RoleMember)

	row := e.contribute(chama.ID, treasurer.ID, saver.ID, money.FromUnits(300), "2026-08-01")
	if err := e.contribs.Delete(e.ctx, row.ID, saver.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDeleteContributionBlockedByPaidOutRound(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	treasurer := e.seedUser("grace")
	saver := e.seedUser("juma")
	e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)
	e.seedMember(chama.ID, saver.ID, models.RoleMember)

	row := e.contribute(chama.ID, treasurer.ID, saver.ID, money.FromUnits(100), "2026-08-10")

	// A cycle whose first round covers the contribution date and is
	// already paid out pins the contribution.
	start, _ := time.Parse("2006-01-02", "2026-08-01")
	cycle := &models.RoscaCycle{
		ChamaID:            chama.ID,
		Frequency:          "MONTHLY",
		StartDate:          start,
		RoundCount:         3,
		CurrentRound:       1,
		Status:             models.CycleStatusActive,
		ContributionAmount: money.FromUnits(100),
	}
	if err := e.db.Create(cycle).Error; err != nil {
		t.Fatal(err)
	}

	err := e.contribs.Delete(e.ctx, row.ID, treasurer.ID)
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if got := e.chamaFund(chama.ID); got != money.FromUnits(100) {
		t.Fatalf("fund moved to %s on a refused delete", got)
	}
}

func TestListContributionsFilters(t *testing.T) {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", nil)
	treasurer := e.seedUser("grace")
	a := e.seedUser("juma")
	b := e.seedUser("wanjiku")
	e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)
	e.seedMember(chama.ID, a.ID, models.RoleMember)
	e.seedMember(chama.ID, b.ID, models.RoleMember)

	e.contribute(chama.ID, treasurer.ID, a.ID, money.FromUnits(100), "2026-07-01")
	e.contribute(chama.ID, treasurer.ID, a.ID, money.FromUnits(200), "2026-08-01")
	e.contribute(chama.ID, treasurer.ID, b.ID, money.FromUnits(400), "2026-08-01")

	t.Run("by member", func(t *testing.T) {
		out, err := e.contribs.List(e.ctx, &ContributionListInput{
			ChamaID: chama.ID, ActorID: a.ID, UserID: &a.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		if out.Total != 2 || out.TotalAmount != money.FromUnits(300) {
			t.Fatalf("got total=%d amount=%s", out.Total, out.TotalAmount)
		}
	})

	t.Run("by date range", func(t *testing.T) {
		from := "2026-08-01"
		out, err := e.contribs.List(e.ctx, &ContributionListInput{
			ChamaID: chama.ID, ActorID: a.ID, StartDate: &from,
		})
		if err != nil {
			t.Fatal(err)
		}
		if out.Total != 2 || out.TotalAmount != money.FromUnits(600) {
			t.Fatalf("got total=%d amount=%s", out.Total, out.TotalAmount)
		}
	})

	t.Run("outsider refused", func(t *testing.T) {
		outsider := e.seedUser("stranger")
		_, err := e.contribs.List(e.ctx, &ContributionListInput{ChamaID: chama.ID, ActorID: outsider.ID})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}
