package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/core/domain"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/period"
)

// swapWindow caps how long a swap request may stay open.
const swapWindow = 72 * time.Hour

// RoscaService runs rotating-payout cycles: roster generation, position
// swaps, round payouts and the late-contribution penalty sweep.
type RoscaService struct {
	ledger      *repositories.Ledger
	chamaRepo   *repositories.ChamaRepository
	roscaRepo   *repositories.RoscaRepository
	contribRepo *repositories.ContributionRepository
	notifier    *NotificationService
}

// NewRoscaService creates a new rosca service
func NewRoscaService(
	ledger *repositories.Ledger,
	chamaRepo *repositories.ChamaRepository,
	roscaRepo *repositories.RoscaRepository,
	contribRepo *repositories.ContributionRepository,
	notifier *NotificationService,
) *RoscaService {
	return &RoscaService{
		ledger:      ledger,
		chamaRepo:   chamaRepo,
		roscaRepo:   roscaRepo,
		contribRepo: contribRepo,
		notifier:    notifier,
	}
}

// CreateCycleInput represents cycle creation input
type CreateCycleInput struct {
	ChamaID            uint        `json:"chama_id"`
	StartDate          string      `json:"start_date"`
	ContributionAmount money.Money `json:"contribution_amount"`
	ActorID            uint        `json:"-"`
}

// CreateCycle builds a cycle roster from the chama's active members
// according to the constitution's payout order rule and activates it
// immediately. One cycle per chama may be active at a time; BIDDING falls
// back to the fixed join order until live auctions exist.
func (s *RoscaService) CreateCycle(ctx context.Context, input *CreateCycleInput) (*models.RoscaCycle, error) {
	if err := input.ContributionAmount.Validate("contribution_amount"); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	start, err := period.ParseDate(input.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date: %v", domain.ErrInvalidInput, err)
	}

	var cycle *models.RoscaCycle
	err = s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		chama, err := s.chamaRepo.GetForUpdate(tx, input.ChamaID)
		if err != nil {
			return err
		}
		if chama.Status != models.ChamaStatusActive {
			return fmt.Errorf("%w: chama is %s", domain.ErrIllegalTransition, chama.Status)
		}

		actor, err := s.chamaRepo.GetMember(tx, input.ChamaID, input.ActorID)
		if err != nil || !actor.IsOfficial() {
			return fmt.Errorf("%w: only an official may start a cycle", domain.ErrForbidden)
		}

		if _, err := s.roscaRepo.GetActiveCycleByChama(tx, input.ChamaID); err == nil {
			return fmt.Errorf("%w: chama already has an active cycle", domain.ErrConflict)
		} else if !repositories.IsNotFound(err) {
			return err
		}

		members, err := s.chamaRepo.ListActiveMembers(tx, input.ChamaID)
		if err != nil {
			return err
		}
		if len(members) < 2 {
			return fmt.Errorf("%w: a cycle needs at least two active members", domain.ErrInvalidInput)
		}

		policy := chama.Constitution.Rosca
		cycle = &models.RoscaCycle{
			ChamaID:            input.ChamaID,
			Frequency:          string(policy.Frequency),
			StartDate:          start.Time(time.UTC),
			RoundCount:         len(members),
			CurrentRound:       0,
			Status:             models.CycleStatusActive,
			ContributionAmount: input.ContributionAmount,
		}

		order := make([]int, len(members))
		for i := range order {
			order[i] = i
		}
		if policy.PayoutOrderRule == domain.PayoutOrderLottery {
			seed := uuid.New().String()
			cycle.LotterySeed = &seed
			rng := rand.New(rand.NewSource(seedFromString(seed)))
			rng.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
		}

		if err := s.roscaRepo.CreateCycle(tx, cycle); err != nil {
			return err
		}

		roster := make([]models.RosterEntry, 0, len(members))
		for pos, idx := range order {
			roster = append(roster, models.RosterEntry{
				CycleID:  cycle.ID,
				Position: pos + 1,
				MemberID: members[idx].ID,
				Status:   models.RosterStatusPending,
			})
		}
		return s.roscaRepo.CreateRoster(tx, roster)
	})
	if err != nil {
		return nil, err
	}
	return cycle, nil
}

// GetCycle returns a cycle with its roster. Visible to active members.
func (s *RoscaService) GetCycle(ctx context.Context, cycleID, actorID uint) (*models.RoscaCycle, []*models.RosterEntry, error) {
	db := s.ledger.DB().WithContext(ctx)
	cycle, err := s.roscaRepo.GetCycle(db, cycleID)
	if err != nil {
		return nil, nil, repositories.MapError(err)
	}
	actor, err := s.chamaRepo.GetMember(db, cycle.ChamaID, actorID)
	if err != nil || !actor.IsActive {
		return nil, nil, fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
	}
	roster, err := s.roscaRepo.GetRoster(db, cycleID)
	if err != nil {
		return nil, nil, repositories.MapError(err)
	}
	return cycle, roster, nil
}

// SwapInput represents swap request input
type SwapInput struct {
	CycleID        uint `json:"cycle_id"`
	TargetPosition int  `json:"target_position"`
	ActorID        uint `json:"-"`
}

// RequestSwap opens a swap between the requester's roster position and the
// target position. Both positions must still be pending. The request
// expires at the next round deadline or after 72 hours, whichever comes
// first.
func (s *RoscaService) RequestSwap(ctx context.Context, input *SwapInput) (*models.SwapRequest, error) {
	var (
		swap *models.SwapRequest
		note *models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		cycle, err := s.roscaRepo.GetCycleForUpdate(tx, input.CycleID)
		if err != nil {
			return err
		}
		if cycle.Status != models.CycleStatusActive {
			return fmt.Errorf("%w: cycle is %s", domain.ErrIllegalTransition, cycle.Status)
		}

		actor, err := s.chamaRepo.GetMember(tx, cycle.ChamaID, input.ActorID)
		if err != nil || !actor.IsActive {
			return fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
		}

		roster, err := s.roscaRepo.GetRoster(tx, input.CycleID)
		if err != nil {
			return err
		}
		var mine, target *models.RosterEntry
		for _, e := range roster {
			if e.MemberID == actor.ID {
				mine = e
			}
			if e.Position == input.TargetPosition {
				target = e
			}
		}
		if mine == nil {
			return fmt.Errorf("%w: you are not on this roster", domain.ErrForbidden)
		}
		if target == nil {
			return fmt.Errorf("%w: no roster entry at position %d", domain.ErrNotFound, input.TargetPosition)
		}
		if target.Position == mine.Position {
			return fmt.Errorf("%w: cannot swap a position with itself", domain.ErrInvalidInput)
		}
		if mine.Status != models.RosterStatusPending || target.Status != models.RosterStatusPending {
			return fmt.Errorf("%w: both positions must still be pending", domain.ErrIllegalTransition)
		}

		now := time.Now()
		expires := now.Add(swapWindow)
		if deadline := cycle.RoundDeadline(cycle.CurrentRound + 1).Time(time.UTC); deadline.Before(expires) {
			expires = deadline
		}

		swap = &models.SwapRequest{
			CycleID:           input.CycleID,
			RequesterPosition: mine.Position,
			TargetPosition:    target.Position,
			Status:            models.SwapStatusPending,
			ExpiresAt:         expires,
		}
		if err := s.roscaRepo.CreateSwap(tx, swap); err != nil {
			return err
		}

		targetMember, err := s.chamaRepo.GetMemberByID(tx, target.MemberID)
		if err != nil {
			return err
		}
		note, err = s.notifier.Emit(tx, Note{
			UserID:    targetMember.UserID,
			Type:      models.NotifyRoscaSwapRequest,
			Title:     "Payout position swap requested",
			Message:   fmt.Sprintf("A member asks to swap payout position %d for your position %d.", mine.Position, target.Position),
			RelatedID: &swap.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(note)
	return swap, nil
}

// RespondSwap records the target member's decision. Accepting exchanges the
// two roster positions' members and expires every other pending swap
// touching either position. A response arriving at the exact expiry
// instant still counts.
func (s *RoscaService) RespondSwap(ctx context.Context, swapID, actorID uint, accept bool) (*models.SwapRequest, error) {
	var (
		swap *models.SwapRequest
		note *models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		swap, err = s.roscaRepo.GetSwapForUpdate(tx, swapID)
		if err != nil {
			return err
		}
		if swap.Status != models.SwapStatusPending {
			return fmt.Errorf("%w: swap already %s", domain.ErrIllegalTransition, swap.Status)
		}

		now := time.Now()
		if now.After(swap.ExpiresAt) {
			swap.Status = models.SwapStatusExpired
			if err := s.roscaRepo.SaveSwap(tx, swap); err != nil {
				return err
			}
			return fmt.Errorf("%w: swap request has expired", domain.ErrIllegalTransition)
		}

		cycle, err := s.roscaRepo.GetCycleForUpdate(tx, swap.CycleID)
		if err != nil {
			return err
		}
		if cycle.Status != models.CycleStatusActive {
			return fmt.Errorf("%w: cycle is %s", domain.ErrIllegalTransition, cycle.Status)
		}

		actor, err := s.chamaRepo.GetMember(tx, cycle.ChamaID, actorID)
		if err != nil || !actor.IsActive {
			return fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
		}

		// Lock the two entries in position order.
		first, second := swap.RequesterPosition, swap.TargetPosition
		if second < first {
			first, second = second, first
		}
		a, err := s.roscaRepo.GetEntryForUpdate(tx, swap.CycleID, first)
		if err != nil {
			return err
		}
		b, err := s.roscaRepo.GetEntryForUpdate(tx, swap.CycleID, second)
		if err != nil {
			return err
		}

		var requester, target *models.RosterEntry
		if a.Position == swap.RequesterPosition {
			requester, target = a, b
		} else {
			requester, target = b, a
		}
		if target.MemberID != actor.ID {
			return fmt.Errorf("%w: only the targeted member may respond", domain.ErrForbidden)
		}

		if !accept {
			swap.Status = models.SwapStatusRejected
			return s.roscaRepo.SaveSwap(tx, swap)
		}

		if requester.Status != models.RosterStatusPending || target.Status != models.RosterStatusPending {
			return fmt.Errorf("%w: a position was already paid out", domain.ErrIllegalTransition)
		}

		requester.MemberID, target.MemberID = target.MemberID, requester.MemberID
		if err := s.roscaRepo.SaveEntry(tx, requester); err != nil {
			return err
		}
		if err := s.roscaRepo.SaveEntry(tx, target); err != nil {
			return err
		}
		swap.Status = models.SwapStatusAccepted
		if err := s.roscaRepo.SaveSwap(tx, swap); err != nil {
			return err
		}
		// Any other open swap naming these positions is now stale.
		if err := s.roscaRepo.ExpirePendingSwaps(tx, swap.CycleID, now, requester.Position, target.Position); err != nil {
			return err
		}

		requesterMember, err := s.chamaRepo.GetMemberByID(tx, target.MemberID)
		if err != nil {
			return err
		}
		note, err = s.notifier.Emit(tx, Note{
			UserID:    requesterMember.UserID,
			Type:      models.NotifyRoscaSwapRequest,
			Title:     "Swap accepted",
			Message:   fmt.Sprintf("Your swap was accepted; you now hold payout position %d.", target.Position),
			RelatedID: &swap.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(note)
	return swap, nil
}

// PayoutInput represents payout processing input
type PayoutInput struct {
	CycleID uint   `json:"cycle_id"`
	Method  string `json:"method"`
	ActorID uint   `json:"-"`
}

// ProcessPayout pays the next round to the member at that roster position,
// passing over skipped positions. The pot is contribution_amount times the
// number of remaining members whose contributions since the cycle start
// cover every round played so far. Unless the constitution marks the cycle
// pass-through, the pot is debited from the chama fund. Paying out the last
// unskipped position completes the cycle.
func (s *RoscaService) ProcessPayout(ctx context.Context, input *PayoutInput) (*models.Payout, error) {
	var (
		payout *models.Payout
		notes  []*models.Notification
	)
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		probe, err := s.roscaRepo.GetCycle(tx, input.CycleID)
		if err != nil {
			return err
		}

		chama, err := s.chamaRepo.GetForUpdate(tx, probe.ChamaID)
		if err != nil {
			return err
		}
		actor, err := s.chamaRepo.GetMember(tx, probe.ChamaID, input.ActorID)
		if err != nil || !actor.CanRecordFunds() {
			return fmt.Errorf("%w: payouts require an active treasurer", domain.ErrForbidden)
		}

		cycle, err := s.roscaRepo.GetCycleForUpdate(tx, input.CycleID)
		if err != nil {
			return err
		}
		if cycle.Status != models.CycleStatusActive {
			return fmt.Errorf("%w: cycle is %s", domain.ErrIllegalTransition, cycle.Status)
		}

		round := cycle.CurrentRound + 1
		if round > cycle.RoundCount {
			return fmt.Errorf("%w: all rounds are paid out", domain.ErrIllegalTransition)
		}

		roster, err := s.roscaRepo.GetRoster(tx, cycle.ID)
		if err != nil {
			return err
		}

		// Pass over positions whose member left the cycle.
		for round <= cycle.RoundCount && roster[round-1].Status == models.RosterStatusSkipped {
			round++
		}
		if round > cycle.RoundCount {
			cycle.CurrentRound = cycle.RoundCount
			cycle.Status = models.CycleStatusCompleted
			if err := s.roscaRepo.SaveCycle(tx, cycle); err != nil {
				return err
			}
			return fmt.Errorf("%w: every remaining position was skipped", domain.ErrIllegalTransition)
		}

		entry, err := s.roscaRepo.GetEntryForUpdate(tx, cycle.ID, round)
		if err != nil {
			return err
		}
		if entry.Status != models.RosterStatusPending {
			return fmt.Errorf("%w: position %d is %s", domain.ErrIllegalTransition, round, entry.Status)
		}

		// A member is in the pot when their contributions since the cycle
		// start cover every round actually played up to and including this
		// one. Skipped positions never count and are never owed.
		played := 0
		for _, e := range roster {
			if e.Position <= round && e.Status != models.RosterStatusSkipped {
				played++
			}
		}
		required := cycle.ContributionAmount * money.Money(played)
		participants := 0
		for _, e := range roster {
			if e.Status == models.RosterStatusSkipped {
				continue
			}
			member, err := s.chamaRepo.GetMemberByID(tx, e.MemberID)
			if err != nil {
				return err
			}
			sum, err := s.contribRepo.SumByMemberSince(tx, cycle.ChamaID, member.UserID, cycle.StartDate)
			if err != nil {
				return err
			}
			if sum >= required {
				participants++
			}
		}
		if participants == 0 {
			return fmt.Errorf("%w: no member has fulfilled round %d", domain.ErrIllegalTransition, round)
		}
		amount := cycle.ContributionAmount * money.Money(participants)

		if !chama.Constitution.Rosca.PassThrough {
			if chama.CurrentFund < amount {
				return fmt.Errorf("%w: fund %s cannot cover payout %s",
					domain.ErrInsufficientFunds, chama.CurrentFund, amount)
			}
			chama.CurrentFund -= amount
			if err := s.chamaRepo.Save(tx, chama); err != nil {
				return err
			}
		}

		recipient, err := s.chamaRepo.GetMemberByID(tx, entry.MemberID)
		if err != nil {
			return err
		}

		payout = &models.Payout{
			CycleID:     cycle.ID,
			Round:       round,
			RecipientID: recipient.UserID,
			Amount:      amount,
			Method:      input.Method,
			ProcessedAt: time.Now(),
		}
		if err := s.roscaRepo.CreatePayout(tx, payout); err != nil {
			return err
		}

		entry.Status = models.RosterStatusPaidOut
		if err := s.roscaRepo.SaveEntry(tx, entry); err != nil {
			return err
		}

		cycle.CurrentRound = round
		for cycle.CurrentRound < cycle.RoundCount &&
			roster[cycle.CurrentRound].Status == models.RosterStatusSkipped {
			cycle.CurrentRound++
		}
		if cycle.CurrentRound == cycle.RoundCount {
			cycle.Status = models.CycleStatusCompleted
		}
		if err := s.roscaRepo.SaveCycle(tx, cycle); err != nil {
			return err
		}

		// Open swaps naming the paid position can no longer be honored.
		if err := s.roscaRepo.ExpirePendingSwaps(tx, cycle.ID, time.Now(), round); err != nil {
			return err
		}

		n, err := s.notifier.Emit(tx, Note{
			UserID:    recipient.UserID,
			Type:      models.NotifyRoscaPayout,
			Title:     "Payout received",
			Message:   fmt.Sprintf("You received the round %d payout of %s.", round, amount),
			RelatedID: &payout.ID,
		})
		if err != nil {
			return err
		}
		notes = append(notes, n)

		for _, e := range roster {
			if e.Status == models.RosterStatusSkipped {
				continue
			}
			member, err := s.chamaRepo.GetMemberByID(tx, e.MemberID)
			if err != nil {
				return err
			}
			if member.UserID == recipient.UserID {
				continue
			}
			rn, err := s.notifier.Emit(tx, Note{
				UserID:    member.UserID,
				Type:      models.NotifyRoscaRoundAdvanced,
				Title:     "Round advanced",
				Message:   fmt.Sprintf("Round %d of %d was paid out.", round, cycle.RoundCount),
				RelatedID: &cycle.ID,
			})
			if err != nil {
				return err
			}
			notes = append(notes, rn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(notes...)
	return payout, nil
}

// ExpireLapsedSwaps marks a cycle's pending swaps past their deadline as
// EXPIRED. Called by the daily sweep; RespondSwap also expires lazily, so
// this only catches requests nobody answered.
func (s *RoscaService) ExpireLapsedSwaps(tx *gorm.DB, cycleID uint, now time.Time) error {
	return s.roscaRepo.ExpirePendingSwaps(tx, cycleID, now)
}

// SweepLatePenalties charges the constitution's late-payment penalty to
// members who have not fulfilled the round whose grace period lapses today.
// LastSweptOn makes a day's sweep idempotent. Called by the scheduler in
// its own transaction per cycle; returns notifications to push after
// commit.
func (s *RoscaService) SweepLatePenalties(tx *gorm.DB, cycleID uint, today period.Date) ([]*models.Notification, error) {
	cycle, err := s.roscaRepo.GetCycleForUpdate(tx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != models.CycleStatusActive {
		return nil, nil
	}
	if cycle.LastSweptOn != nil && !period.DateOf(*cycle.LastSweptOn).Before(today) {
		return nil, nil
	}

	chama, err := s.chamaRepo.Get(tx, cycle.ChamaID)
	if err != nil {
		return nil, err
	}
	policy := chama.Constitution.LatePayment
	if !policy.Enabled {
		return nil, nil
	}

	// Find the round whose grace period ends today.
	round := 0
	for r := 1; r <= cycle.RoundCount; r++ {
		if today.DaysSince(cycle.RoundDeadline(r)) == policy.GraceDays {
			round = r
			break
		}
	}
	day := today.Time(time.UTC)
	cycle.LastSweptOn = &day
	if err := s.roscaRepo.SaveCycle(tx, cycle); err != nil {
		return nil, err
	}
	if round == 0 {
		return nil, nil
	}

	roster, err := s.roscaRepo.GetRoster(tx, cycleID)
	if err != nil {
		return nil, err
	}
	played := 0
	for _, e := range roster {
		if e.Position <= round && e.Status != models.RosterStatusSkipped {
			played++
		}
	}
	required := cycle.ContributionAmount * money.Money(played)

	var notes []*models.Notification
	for _, e := range roster {
		if e.Status == models.RosterStatusSkipped {
			continue
		}
		member, err := s.chamaRepo.GetMemberByID(tx, e.MemberID)
		if err != nil {
			return nil, err
		}
		sum, err := s.contribRepo.SumByMemberSince(tx, cycle.ChamaID, member.UserID, cycle.StartDate)
		if err != nil {
			return nil, err
		}
		if sum >= required {
			continue
		}
		member.PenaltyOwed += policy.Amount
		if err := s.chamaRepo.SaveMember(tx, member); err != nil {
			return nil, err
		}
		n, err := s.notifier.Emit(tx, Note{
			UserID:    member.UserID,
			Type:      models.NotifyRoscaLatePenalty,
			Title:     "Late contribution penalty",
			Message:   fmt.Sprintf("A penalty of %s was charged for missing round %d's contribution.", policy.Amount, round),
			RelatedID: &cycle.ID,
		})
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// seedFromString folds an opaque seed string into a deterministic int64.
func seedFromString(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
