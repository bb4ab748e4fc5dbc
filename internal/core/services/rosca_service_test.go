package services

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/core/domain"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/period"
)

// roscaFixture seeds a chama whose only members are an official and a
// treasurer, the minimum roster.
type roscaFixture struct {
	*testEnv
	chama           *models.Chama
	official        *models.User
	treasurer       *models.User
	officialMember  *models.Member
	treasurerMember *models.Member
}

func newRoscaFixture(t *testing.T, mutate func(*domain.Constitution)) *roscaFixture {
	e := newTestEnv(t)
	chama := e.seedChama("umoja", mutate)
	official := e.seedUser("grace")
	treasurer := e.seedUser("amos")
	om := e.seedMember(chama.ID, official.ID, models.RoleOfficial)
	tm := e.seedMember(chama.ID, treasurer.ID, models.RoleTreasurer)
	return &roscaFixture{
		testEnv: e, chama: chama,
		official: official, treasurer: treasurer,
		officialMember: om, treasurerMember: tm,
	}
}

func (f *roscaFixture) createCycle(start string, amount money.Money) *models.RoscaCycle {
	f.t.Helper()
	cycle, err := f.rosca.CreateCycle(f.ctx, &CreateCycleInput{
		ChamaID:            f.chama.ID,
		StartDate:          start,
		ContributionAmount: amount,
		ActorID:            f.official.ID,
	})
	if err != nil {
		f.t.Fatalf("create cycle: %v", err)
	}
	return cycle
}

func (f *roscaFixture) rosterEntries(cycleID uint) []*models.RosterEntry {
	f.t.Helper()
	var rows []*models.RosterEntry
	err := f.db.Where("cycle_id = ?", cycleID).Order("position ASC").Find(&rows).Error
	if err != nil {
		f.t.Fatalf("load roster: %v", err)
	}
	return rows
}

func TestCreateCycleFixedOrder(t *testing.T) {
	f := newRoscaFixture(t, nil)
	cycle := f.createCycle("2026-09-01", money.FromUnits(100))

	if cycle.Status != models.CycleStatusActive {
		t.Fatalf("cycle is %s", cycle.Status)
	}
	if cycle.RoundCount != 2 || cycle.CurrentRound != 0 {
		t.Fatalf("rounds = %d/%d", cycle.CurrentRound, cycle.RoundCount)
	}
	if cycle.LotterySeed != nil {
		t.Fatal("fixed-order cycle carries a lottery seed")
	}

	roster := f.rosterEntries(cycle.ID)
	if len(roster) != 2 {
		t.Fatalf("roster has %d entries", len(roster))
	}
	// Fixed order follows join order.
	if roster[0].MemberID != f.officialMember.ID || roster[1].MemberID != f.treasurerMember.ID {
		t.Fatalf("roster order %d,%d", roster[0].MemberID, roster[1].MemberID)
	}
}

func TestCreateCycleLottery(t *testing.T) {
	f := newRoscaFixture(t, func(c *domain.Constitution) {
		c.Rosca.PayoutOrderRule = domain.PayoutOrderLottery
	})
	// A couple more members make the permutation meaningful.
	extra1 := f.seedUser("juma")
	extra2 := f.seedUser("wanjiku")
	m3 := f.seedMember(f.chama.ID, extra1.ID, models.RoleMember)
	m4 := f.seedMember(f.chama.ID, extra2.ID, models.RoleMember)

	cycle := f.createCycle("2026-09-01", money.FromUnits(100))
	if cycle.LotterySeed == nil {
		t.Fatal("lottery cycle has no seed")
	}

	roster := f.rosterEntries(cycle.ID)
	if len(roster) != 4 {
		t.Fatalf("roster has %d entries", len(roster))
	}
	seen := map[uint]bool{}
	for i, entry := range roster {
		if entry.Position != i+1 {
			t.Fatalf("positions not dense: %d at index %d", entry.Position, i)
		}
		seen[entry.MemberID] = true
	}
	for _, id := range []uint{f.officialMember.ID, f.treasurerMember.ID, m3.ID, m4.ID} {
		if !seen[id] {
			t.Fatalf("member %d missing from roster", id)
		}
	}

	// The stored seed reproduces the stored order.
	joinOrder := []uint{f.officialMember.ID, f.treasurerMember.ID, m3.ID, m4.ID}
	order := []int{0, 1, 2, 3}
	rng := rand.New(rand.NewSource(seedFromString(*cycle.LotterySeed)))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	for pos, idx := range order {
		if roster[pos].MemberID != joinOrder[idx] {
			t.Fatalf("position %d holds member %d, seed says %d", pos+1, roster[pos].MemberID, joinOrder[idx])
		}
	}
}

func TestCreateCycleGuards(t *testing.T) {
	t.Run("one active cycle per chama", func(t *testing.T) {
		f := newRoscaFixture(t, nil)
		f.createCycle("2026-09-01", money.FromUnits(100))
		_, err := f.rosca.CreateCycle(f.ctx, &CreateCycleInput{
			ChamaID: f.chama.ID, StartDate: "2026-10-01",
			ContributionAmount: money.FromUnits(100), ActorID: f.official.ID,
		})
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("official required", func(t *testing.T) {
		f := newRoscaFixture(t, nil)
		_, err := f.rosca.CreateCycle(f.ctx, &CreateCycleInput{
			ChamaID: f.chama.ID, StartDate: "2026-09-01",
			ContributionAmount: money.FromUnits(100), ActorID: f.treasurer.ID,
		})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("needs two members", func(t *testing.T) {
		e := newTestEnv(t)
		chama := e.seedChama("solo", nil)
		lone := e.seedUser("grace")
		e.seedMember(chama.ID, lone.ID, models.RoleOfficial)
		_, err := e.rosca.CreateCycle(e.ctx, &CreateCycleInput{
			ChamaID: chama.ID, StartDate: "2026-09-01",
			ContributionAmount: money.FromUnits(100), ActorID: lone.ID,
		})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestProcessPayoutRotation(t *testing.T) {
	f := newRoscaFixture(t, nil)
	amount := money.FromUnits(100)
	start := period.Today(time.UTC).String()
	cycle := f.createCycle(start, amount)

	// Round 1: both members have contributed once.
	f.contribute(f.chama.ID, f.treasurer.ID, f.official.ID, amount, start)
	f.contribute(f.chama.ID, f.treasurer.ID, f.treasurer.ID, amount, start)

	payout, err := f.rosca.ProcessPayout(f.ctx, &PayoutInput{
		CycleID: cycle.ID, Method: models.MethodCash, ActorID: f.treasurer.ID,
	})
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if payout.Round != 1 || payout.RecipientID != f.official.ID {
		t.Fatalf("round %d paid to user %d", payout.Round, payout.RecipientID)
	}
	if payout.Amount != amount*2 {
		t.Fatalf("pot = %s, want %s", payout.Amount, amount*2)
	}
	if got := f.chamaFund(f.chama.ID); got != 0 {
		t.Fatalf("fund = %s after payout, want 0", got)
	}
	if got := f.rosterEntries(cycle.ID)[0].Status; got != models.RosterStatusPaidOut {
		t.Fatalf("position 1 is %s", got)
	}
	if got := f.countNotifications(f.official.ID, models.NotifyRoscaPayout); got != 1 {
		t.Fatalf("recipient notifications = %d", got)
	}
	if got := f.countNotifications(f.treasurer.ID, models.NotifyRoscaRoundAdvanced); got != 1 {
		t.Fatalf("round-advanced notifications = %d", got)
	}

	// Round 2 needs a second contribution from everyone.
	_, err = f.rosca.ProcessPayout(f.ctx, &PayoutInput{
		CycleID: cycle.ID, Method: models.MethodCash, ActorID: f.treasurer.ID,
	})
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition with no round-2 contributions, got %v", err)
	}

	f.contribute(f.chama.ID, f.treasurer.ID, f.official.ID, amount, start)
	f.contribute(f.chama.ID, f.treasurer.ID, f.treasurer.ID, amount, start)
	payout, err = f.rosca.ProcessPayout(f.ctx, &PayoutInput{
		CycleID: cycle.ID, Method: models.MethodCash, ActorID: f.treasurer.ID,
	})
	if err != nil {
		t.Fatalf("final payout: %v", err)
	}
	if payout.Round != 2 || payout.RecipientID != f.treasurer.ID {
		t.Fatalf("round %d paid to user %d", payout.Round, payout.RecipientID)
	}

	var done models.RoscaCycle
	if err := f.db.First(&done, cycle.ID).Error; err != nil {
		t.Fatal(err)
	}
	if done.Status != models.CycleStatusCompleted {
		t.Fatalf("cycle is %s after the last round", done.Status)
	}

	// Nothing left to pay.
	_, err = f.rosca.ProcessPayout(f.ctx, &PayoutInput{
		CycleID: cycle.ID, Method: models.MethodCash, ActorID: f.treasurer.ID,
	})
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition on a completed cycle, got %v", err)
	}
}

func TestProcessPayoutPassThrough(t *testing.T) {
	f := newRoscaFixture(t, func(c *domain.Constitution) { c.Rosca.PassThrough = true })
	amount := money.FromUnits(100)
	start := period.Today(time.UTC).String()
	cycle := f.createCycle(start, amount)

	// Money handed straight to the round's recipient never sits in the
	// fund, so neither the record nor the payout leg may move it.
	row := f.contribute(f.chama.ID, f.treasurer.ID, f.official.ID, amount, start)
	f.contribute(f.chama.ID, f.treasurer.ID, f.treasurer.ID, amount, start)
	if !row.PassThrough {
		t.Fatal("contribution under a pass-through cycle not flagged")
	}
	if got := f.chamaFund(f.chama.ID); got != 0 {
		t.Fatalf("fund = %s after pass-through contributions, want 0", got)
	}
	if got := f.reloadMember(f.officialMember.ID).TotalContributions; got != amount {
		t.Fatalf("member total = %s, want %s", got, amount)
	}

	// Reversal mirrors the record leg: the fund stays untouched.
	extra := f.contribute(f.chama.ID, f.treasurer.ID, f.official.ID, money.FromUnits(50), start)
	if err := f.contribs.Delete(f.ctx, extra.ID, f.treasurer.ID); err != nil {
		t.Fatalf("delete pass-through contribution: %v", err)
	}
	if got := f.chamaFund(f.chama.ID); got != 0 {
		t.Fatalf("fund = %s after reversal, want 0", got)
	}
	if got := f.reloadMember(f.officialMember.ID).TotalContributions; got != amount {
		t.Fatalf("member total = %s after reversal, want %s", got, amount)
	}

	if _, err := f.rosca.ProcessPayout(f.ctx, &PayoutInput{
		CycleID: cycle.ID, Method: models.MethodCash, ActorID: f.treasurer.ID,
	}); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if got := f.chamaFund(f.chama.ID); got != 0 {
		t.Fatalf("fund = %s after payout, want 0", got)
	}
}

// A member removed mid-cycle leaves a SKIPPED position: the rotation
// passes over it, the pot stops counting them, and the cycle still
// completes with every entry settled.
func TestPayoutSkipsRemovedMember(t *testing.T) {
	f := newRoscaFixture(t, nil)
	amount := money.FromUnits(100)
	leaver := f.seedUser("juma")
	f.seedMember(f.chama.ID, leaver.ID, models.RoleMember)
	last := f.seedUser("wanjiku")
	f.seedMember(f.chama.ID, last.ID, models.RoleMember)

	start := period.Today(time.UTC).String()
	cycle := f.createCycle(start, amount)

	// The leaver even paid round 1 before leaving; a skipped entry still
	// counts for nothing.
	f.contribute(f.chama.ID, f.treasurer.ID, leaver.ID, amount, start)
	if err := f.chamas.RemoveMember(f.ctx, f.chama.ID, leaver.ID, f.official.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if got := f.rosterEntries(cycle.ID)[2].Status; got != models.RosterStatusSkipped {
		t.Fatalf("leaver's entry is %s, want SKIPPED", got)
	}

	payRound := func(wantRound int, wantRecipient uint) {
		t.Helper()
		for _, u := range []uint{f.official.ID, f.treasurer.ID, last.ID} {
			f.contribute(f.chama.ID, f.treasurer.ID, u, amount, start)
		}
		payout, err := f.rosca.ProcessPayout(f.ctx, &PayoutInput{
			CycleID: cycle.ID, Method: models.MethodCash, ActorID: f.treasurer.ID,
		})
		if err != nil {
			t.Fatalf("payout round %d: %v", wantRound, err)
		}
		if payout.Round != wantRound || payout.RecipientID != wantRecipient {
			t.Fatalf("round %d paid to user %d, want round %d to %d",
				payout.Round, payout.RecipientID, wantRound, wantRecipient)
		}
		if payout.Amount != amount*3 {
			t.Fatalf("pot = %s, want %s", payout.Amount, amount*3)
		}
	}

	payRound(1, f.official.ID)
	payRound(2, f.treasurer.ID)
	// Position 3 is skipped; the last payout lands on position 4.
	payRound(4, last.ID)

	var done models.RoscaCycle
	if err := f.db.First(&done, cycle.ID).Error; err != nil {
		t.Fatal(err)
	}
	if done.Status != models.CycleStatusCompleted || done.CurrentRound != done.RoundCount {
		t.Fatalf("cycle %s at round %d/%d", done.Status, done.CurrentRound, done.RoundCount)
	}
	for _, e := range f.rosterEntries(cycle.ID) {
		if e.Status != models.RosterStatusPaidOut && e.Status != models.RosterStatusSkipped {
			t.Fatalf("entry at position %d left %s", e.Position, e.Status)
		}
	}

	// In: the leaver's 100 plus three members times three rounds; out:
	// three pots of 300.
	if got := f.chamaFund(f.chama.ID); got != amount {
		t.Fatalf("fund = %s at cycle end, want %s", got, amount)
	}
}

func TestProcessPayoutRequiresTreasurer(t *testing.T) {
	f := newRoscaFixture(t, nil)
	cycle := f.createCycle(period.Today(time.UTC).String(), money.FromUnits(100))

	_, err := f.rosca.ProcessPayout(f.ctx, &PayoutInput{
		CycleID: cycle.ID, Method: models.MethodCash, ActorID: f.official.ID,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSwapLifecycle(t *testing.T) {
	f := newRoscaFixture(t, nil)
	third := f.seedUser("juma")
	m3 := f.seedMember(f.chama.ID, third.ID, models.RoleMember)
	cycle := f.createCycle(period.Today(time.UTC).String(), money.FromUnits(100))

	// The third member (position 3) asks to take position 2.
	swap, err := f.rosca.RequestSwap(f.ctx, &SwapInput{
		CycleID: cycle.ID, TargetPosition: 2, ActorID: third.ID,
	})
	if err != nil {
		t.Fatalf("request swap: %v", err)
	}
	if swap.RequesterPosition != 3 || swap.TargetPosition != 2 {
		t.Fatalf("swap covers %d->%d", swap.RequesterPosition, swap.TargetPosition)
	}
	if got := f.countNotifications(f.treasurer.ID, models.NotifyRoscaSwapRequest); got != 1 {
		t.Fatalf("target notifications = %d", got)
	}

	t.Run("only the target may respond", func(t *testing.T) {
		_, err := f.rosca.RespondSwap(f.ctx, swap.ID, f.official.ID, true)
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	swap, err = f.rosca.RespondSwap(f.ctx, swap.ID, f.treasurer.ID, true)
	if err != nil {
		t.Fatalf("respond swap: %v", err)
	}
	if swap.Status != models.SwapStatusAccepted {
		t.Fatalf("swap is %s", swap.Status)
	}

	roster := f.rosterEntries(cycle.ID)
	if roster[1].MemberID != m3.ID || roster[2].MemberID != f.treasurerMember.ID {
		t.Fatalf("positions not exchanged: %d,%d", roster[1].MemberID, roster[2].MemberID)
	}

	// The requester is told the position they actually hold now.
	var accepted models.Notification
	err = f.db.Where("user_id = ? AND title = ?", third.ID, "Swap accepted").
		First(&accepted).Error
	if err != nil {
		t.Fatalf("load accepted notification: %v", err)
	}
	if !strings.Contains(accepted.Message, "position 2") {
		t.Fatalf("accepted message %q does not name position 2", accepted.Message)
	}

	t.Run("settled swap cannot be answered again", func(t *testing.T) {
		_, err := f.rosca.RespondSwap(f.ctx, swap.ID, f.treasurer.ID, true)
		if !errors.Is(err, domain.ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition, got %v", err)
		}
	})
}

func TestSwapGuards(t *testing.T) {
	f := newRoscaFixture(t, nil)
	cycle := f.createCycle(period.Today(time.UTC).String(), money.FromUnits(100))

	t.Run("own position", func(t *testing.T) {
		_, err := f.rosca.RequestSwap(f.ctx, &SwapInput{
			CycleID: cycle.ID, TargetPosition: 1, ActorID: f.official.ID,
		})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("missing position", func(t *testing.T) {
		_, err := f.rosca.RequestSwap(f.ctx, &SwapInput{
			CycleID: cycle.ID, TargetPosition: 9, ActorID: f.official.ID,
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("expired request", func(t *testing.T) {
		swap, err := f.rosca.RequestSwap(f.ctx, &SwapInput{
			CycleID: cycle.ID, TargetPosition: 2, ActorID: f.official.ID,
		})
		if err != nil {
			t.Fatalf("request swap: %v", err)
		}
		past := time.Now().Add(-time.Minute)
		if err := f.db.Model(&models.SwapRequest{}).Where("id = ?", swap.ID).
			Update("expires_at", past).Error; err != nil {
			t.Fatal(err)
		}

		_, err = f.rosca.RespondSwap(f.ctx, swap.ID, f.treasurer.ID, true)
		if !errors.Is(err, domain.ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition, got %v", err)
		}
		var expired models.SwapRequest
		if err := f.db.First(&expired, swap.ID).Error; err != nil {
			t.Fatal(err)
		}
		if expired.Status != models.SwapStatusExpired {
			t.Fatalf("swap is %s, want EXPIRED", expired.Status)
		}
	})
}

func TestSweepLatePenaltiesIdempotent(t *testing.T) {
	f := newRoscaFixture(t, func(c *domain.Constitution) {
		c.Rosca.Frequency = period.Weekly
		c.LatePayment = domain.LatePaymentPolicy{Enabled: true, GraceDays: 3, Amount: money.FromUnits(5)}
	})
	amount := money.FromUnits(100)
	today := period.Today(time.UTC)
	// Round 1's deadline was a week after the start; its grace lapses today.
	start := today.AddDays(-10)
	cycle := f.createCycle(start.String(), amount)

	// Only the official has paid in.
	f.contribute(f.chama.ID, f.treasurer.ID, f.official.ID, amount, start.String())

	sweep := func() int {
		var notes []*models.Notification
		f.inTx(func(tx *gorm.DB) error {
			var err error
			notes, err = f.rosca.SweepLatePenalties(tx, cycle.ID, today)
			return err
		})
		return len(notes)
	}

	if got := sweep(); got != 1 {
		t.Fatalf("first sweep emitted %d notifications", got)
	}
	if got := f.reloadMember(f.treasurerMember.ID).PenaltyOwed; got != money.FromUnits(5) {
		t.Fatalf("late member owes %s, want %s", got, money.FromUnits(5))
	}
	if got := f.reloadMember(f.officialMember.ID).PenaltyOwed; got != 0 {
		t.Fatalf("fulfilled member charged %s", got)
	}

	// Same day again: the marker blocks a second charge.
	if got := sweep(); got != 0 {
		t.Fatalf("second sweep emitted %d notifications", got)
	}
	if got := f.reloadMember(f.treasurerMember.ID).PenaltyOwed; got != money.FromUnits(5) {
		t.Fatalf("penalty charged twice: %s", got)
	}
}

func TestSweepLatePenaltiesDisabled(t *testing.T) {
	f := newRoscaFixture(t, func(c *domain.Constitution) {
		c.Rosca.Frequency = period.Weekly
		c.LatePayment = domain.LatePaymentPolicy{Enabled: false, GraceDays: 3, Amount: money.FromUnits(5)}
	})
	today := period.Today(time.UTC)
	cycle := f.createCycle(today.AddDays(-10).String(), money.FromUnits(100))

	f.inTx(func(tx *gorm.DB) error {
		notes, err := f.rosca.SweepLatePenalties(tx, cycle.ID, today)
		if len(notes) != 0 {
			t.Fatalf("disabled policy charged %d members", len(notes))
		}
		return err
	})
	if got := f.reloadMember(f.treasurerMember.ID).PenaltyOwed; got != 0 {
		t.Fatalf("penalty %s with the policy disabled", got)
	}
}
