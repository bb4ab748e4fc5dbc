package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/core/domain"
)

// ChamaService manages chamas, memberships and constitution updates
type ChamaService struct {
	ledger    *repositories.Ledger
	chamaRepo *repositories.ChamaRepository
	userRepo  *repositories.UserRepository
	roscaRepo *repositories.RoscaRepository
	notifier  *NotificationService
}

// NewChamaService creates a new chama service
func NewChamaService(
	ledger *repositories.Ledger,
	chamaRepo *repositories.ChamaRepository,
	userRepo *repositories.UserRepository,
	roscaRepo *repositories.RoscaRepository,
	notifier *NotificationService,
) *ChamaService {
	return &ChamaService{
		ledger:    ledger,
		chamaRepo: chamaRepo,
		userRepo:  userRepo,
		roscaRepo: roscaRepo,
		notifier:  notifier,
	}
}

// CreateChamaInput represents chama creation input
type CreateChamaInput struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	ActorID  uint   `json:"-"`
}

// Create creates a chama with the default constitution and enrolls the
// creator as its first official.
func (s *ChamaService) Create(ctx context.Context, input *CreateChamaInput) (*models.Chama, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	tz := input.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidInput, tz)
	}

	var chama *models.Chama
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		chama = &models.Chama{
			Name:         input.Name,
			Timezone:     tz,
			Constitution: domain.DefaultConstitution(),
			Status:       models.ChamaStatusActive,
			CreatedBy:    input.ActorID,
		}
		if err := s.chamaRepo.Create(tx, chama); err != nil {
			return err
		}
		return s.chamaRepo.AddMember(tx, &models.Member{
			ChamaID:  chama.ID,
			UserID:   input.ActorID,
			Role:     models.RoleOfficial,
			JoinedAt: time.Now(),
			IsActive: true,
		})
	})
	if err != nil {
		return nil, err
	}
	return chama, nil
}

// Get returns a chama visible to one of its members
func (s *ChamaService) Get(ctx context.Context, chamaID, actorID uint) (*models.Chama, error) {
	db := s.ledger.DB().WithContext(ctx)
	chama, err := s.chamaRepo.Get(db, chamaID)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	member, err := s.chamaRepo.GetMember(db, chamaID, actorID)
	if err != nil || !member.IsActive {
		return nil, fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
	}
	return chama, nil
}

// ListMine returns the caller's memberships with their chamas preloaded
func (s *ChamaService) ListMine(ctx context.Context, actorID uint) ([]*models.Member, error) {
	members, err := s.chamaRepo.ListByUser(s.ledger.DB().WithContext(ctx), actorID)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	return members, nil
}

// Members returns the chama's active members in join order
func (s *ChamaService) Members(ctx context.Context, chamaID, actorID uint) ([]*models.Member, error) {
	db := s.ledger.DB().WithContext(ctx)
	actor, err := s.chamaRepo.GetMember(db, chamaID, actorID)
	if err != nil || !actor.IsActive {
		return nil, fmt.Errorf("%w: not a member of this chama", domain.ErrForbidden)
	}
	members, err := s.chamaRepo.ListActiveMembers(db, chamaID)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	return members, nil
}

// AddMemberInput represents member enrollment input
type AddMemberInput struct {
	ChamaID uint   `json:"chama_id"`
	UserID  uint   `json:"user_id"`
	Role    string `json:"role"`
	ActorID uint   `json:"-"`
}

// AddMember enrolls a user into the chama. Officials only.
func (s *ChamaService) AddMember(ctx context.Context, input *AddMemberInput) (*models.Member, error) {
	role := input.Role
	if role == "" {
		role = models.RoleMember
	}
	if !validRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}

	var member *models.Member
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		chama, err := s.chamaRepo.Get(tx, input.ChamaID)
		if err != nil {
			return err
		}
		if chama.Status != models.ChamaStatusActive {
			return fmt.Errorf("%w: chama is %s", domain.ErrIllegalTransition, chama.Status)
		}

		actor, err := s.chamaRepo.GetMember(tx, input.ChamaID, input.ActorID)
		if err != nil || !actor.IsOfficial() {
			return fmt.Errorf("%w: only an official may add members", domain.ErrForbidden)
		}

		user, err := s.userRepo.GetByID(ctx, input.UserID)
		if err != nil || !user.IsActive {
			return fmt.Errorf("%w: user is not active", domain.ErrInvalidInput)
		}

		if existing, err := s.chamaRepo.GetMember(tx, input.ChamaID, input.UserID); err == nil {
			if existing.IsActive {
				return fmt.Errorf("%w: already a member", domain.ErrConflict)
			}
			// Rejoining keeps the original totals.
			existing.IsActive = true
			existing.Role = role
			member = existing
			return s.chamaRepo.SaveMember(tx, existing)
		} else if !repositories.IsNotFound(err) {
			return err
		}

		member = &models.Member{
			ChamaID:  input.ChamaID,
			UserID:   input.UserID,
			Role:     role,
			JoinedAt: time.Now(),
			IsActive: true,
		}
		return s.chamaRepo.AddMember(tx, member)
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// ChangeRoleInput represents role change input
type ChangeRoleInput struct {
	ChamaID uint   `json:"chama_id"`
	UserID  uint   `json:"user_id"`
	Role    string `json:"role"`
	ActorID uint   `json:"-"`
}

// ChangeRole reassigns a member's role. Officials only; the last official
// cannot demote themselves.
func (s *ChamaService) ChangeRole(ctx context.Context, input *ChangeRoleInput) (*models.Member, error) {
	if !validRole(input.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, input.Role)
	}

	var member *models.Member
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		actor, err := s.chamaRepo.GetMember(tx, input.ChamaID, input.ActorID)
		if err != nil || !actor.IsOfficial() {
			return fmt.Errorf("%w: only an official may change roles", domain.ErrForbidden)
		}

		member, err = s.chamaRepo.GetMemberForUpdate(tx, input.ChamaID, input.UserID)
		if err != nil {
			return err
		}
		if !member.IsActive {
			return fmt.Errorf("%w: member is inactive", domain.ErrIllegalTransition)
		}

		if member.Role == models.RoleOfficial && input.Role != models.RoleOfficial {
			officials, err := s.countOfficials(tx, input.ChamaID)
			if err != nil {
				return err
			}
			if officials <= 1 {
				return fmt.Errorf("%w: cannot demote the last official", domain.ErrIllegalTransition)
			}
		}

		member.Role = input.Role
		return s.chamaRepo.SaveMember(tx, member)
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// RemoveMember deactivates a membership. Officials only. The row and its
// totals stay for audit; a member with an open loan cannot be removed by
// the engines that check membership anyway, so no loan guard lives here.
// A removed member's unpaid position in a running cycle is marked SKIPPED
// so the rotation can pass over it.
func (s *ChamaService) RemoveMember(ctx context.Context, chamaID, userID, actorID uint) error {
	return s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		actor, err := s.chamaRepo.GetMember(tx, chamaID, actorID)
		if err != nil || !actor.IsOfficial() {
			return fmt.Errorf("%w: only an official may remove members", domain.ErrForbidden)
		}

		member, err := s.chamaRepo.GetMemberForUpdate(tx, chamaID, userID)
		if err != nil {
			return err
		}
		if !member.IsActive {
			return fmt.Errorf("%w: member already inactive", domain.ErrIllegalTransition)
		}
		if member.Role == models.RoleOfficial {
			officials, err := s.countOfficials(tx, chamaID)
			if err != nil {
				return err
			}
			if officials <= 1 {
				return fmt.Errorf("%w: cannot remove the last official", domain.ErrIllegalTransition)
			}
		}

		member.IsActive = false
		if err := s.chamaRepo.SaveMember(tx, member); err != nil {
			return err
		}
		return s.skipRosterEntry(tx, chamaID, member.ID)
	})
}

// skipRosterEntry marks the member's pending roster entry in the chama's
// active cycle, if any, as SKIPPED.
func (s *ChamaService) skipRosterEntry(tx *gorm.DB, chamaID, memberID uint) error {
	cycle, err := s.roscaRepo.GetActiveCycleByChama(tx, chamaID)
	if repositories.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	entry, err := s.roscaRepo.GetEntryByMember(tx, cycle.ID, memberID)
	if repositories.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if entry.Status != models.RosterStatusPending {
		return nil
	}
	entry.Status = models.RosterStatusSkipped
	return s.roscaRepo.SaveEntry(tx, entry)
}

// UpdateConstitutionInput represents constitution update input
type UpdateConstitutionInput struct {
	ChamaID uint   `json:"chama_id"`
	Raw     []byte `json:"-"`
	ActorID uint   `json:"-"`
}

// UpdateConstitution replaces the chama's constitution from raw JSON.
// Unknown keys are rejected. The rosca frequency cannot change while a
// cycle is active, since roster deadlines are derived from it.
func (s *ChamaService) UpdateConstitution(ctx context.Context, input *UpdateConstitutionInput) (*models.Chama, error) {
	parsed, err := domain.ParseConstitution(input.Raw)
	if err != nil {
		return nil, err
	}
	if err := parsed.Validate(); err != nil {
		return nil, err
	}

	var chama *models.Chama
	err = s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		chama, err = s.chamaRepo.GetForUpdate(tx, input.ChamaID)
		if err != nil {
			return err
		}
		actor, err := s.chamaRepo.GetMember(tx, input.ChamaID, input.ActorID)
		if err != nil || !actor.IsOfficial() {
			return fmt.Errorf("%w: only an official may amend the constitution", domain.ErrForbidden)
		}

		if parsed.Rosca.Frequency != chama.Constitution.Rosca.Frequency {
			if _, err := s.roscaRepo.GetActiveCycleByChama(tx, input.ChamaID); err == nil {
				return fmt.Errorf("%w: cannot change rosca frequency during an active cycle", domain.ErrIllegalTransition)
			} else if !repositories.IsNotFound(err) {
				return err
			}
		}

		chama.Constitution = parsed
		return s.chamaRepo.Save(tx, chama)
	})
	if err != nil {
		return nil, err
	}
	return chama, nil
}

// Archive retires a chama. Officials only; open loans or an active cycle
// block the transition.
func (s *ChamaService) Archive(ctx context.Context, chamaID, actorID uint) (*models.Chama, error) {
	var chama *models.Chama
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		chama, err = s.chamaRepo.GetForUpdate(tx, chamaID)
		if err != nil {
			return err
		}
		if chama.Status != models.ChamaStatusActive {
			return fmt.Errorf("%w: chama is %s", domain.ErrIllegalTransition, chama.Status)
		}
		actor, err := s.chamaRepo.GetMember(tx, chamaID, actorID)
		if err != nil || !actor.IsOfficial() {
			return fmt.Errorf("%w: only an official may archive a chama", domain.ErrForbidden)
		}

		var openLoans int64
		err = tx.Model(&models.Loan{}).
			Where("chama_id = ? AND status IN ?", chamaID,
				[]string{models.LoanStatusApproved, models.LoanStatusActive}).
			Count(&openLoans).Error
		if err != nil {
			return err
		}
		if openLoans > 0 {
			return fmt.Errorf("%w: %d open loans block archiving", domain.ErrIllegalTransition, openLoans)
		}
		if _, err := s.roscaRepo.GetActiveCycleByChama(tx, chamaID); err == nil {
			return fmt.Errorf("%w: an active cycle blocks archiving", domain.ErrIllegalTransition)
		} else if !repositories.IsNotFound(err) {
			return err
		}

		chama.Status = models.ChamaStatusArchived
		return s.chamaRepo.Save(tx, chama)
	})
	if err != nil {
		return nil, err
	}
	return chama, nil
}

func (s *ChamaService) countOfficials(tx *gorm.DB, chamaID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.Member{}).
		Where("chama_id = ? AND role = ? AND is_active = ?", chamaID, models.RoleOfficial, true).
		Count(&count).Error
	return count, err
}

func validRole(role string) bool {
	switch role {
	case models.RoleOfficial, models.RoleTreasurer, models.RoleMember:
		return true
	}
	return false
}
