package repositories

import (
	"time"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
)

// RoscaRepository handles cycle, roster, swap and payout data access
type RoscaRepository struct{}

// NewRoscaRepository creates a new rosca repository
func NewRoscaRepository() *RoscaRepository {
	return &RoscaRepository{}
}

// CreateCycle inserts a cycle
func (r *RoscaRepository) CreateCycle(tx *gorm.DB, cycle *models.RoscaCycle) error {
	return tx.Create(cycle).Error
}

// GetCycle gets a cycle by ID
func (r *RoscaRepository) GetCycle(tx *gorm.DB, id uint) (*models.RoscaCycle, error) {
	var cycle models.RoscaCycle
	if err := tx.First(&cycle, id).Error; err != nil {
		return nil, err
	}
	return &cycle, nil
}

// GetCycleForUpdate locks the cycle row. Cycles rank with loans in the
// lock order: always after the chama row.
func (r *RoscaRepository) GetCycleForUpdate(tx *gorm.DB, id uint) (*models.RoscaCycle, error) {
	var cycle models.RoscaCycle
	if err := lockForUpdate(tx).First(&cycle, id).Error; err != nil {
		return nil, err
	}
	return &cycle, nil
}

// SaveCycle persists cycle mutations
func (r *RoscaRepository) SaveCycle(tx *gorm.DB, cycle *models.RoscaCycle) error {
	return tx.Save(cycle).Error
}

// ListActiveCycles lists ACTIVE cycle IDs for the scheduler sweep
func (r *RoscaRepository) ListActiveCycles(db *gorm.DB, limit int) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.RoscaCycle{}).
		Where("status = ?", models.CycleStatusActive).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// GetActiveCycleByChama finds the chama's ACTIVE cycle, if any
func (r *RoscaRepository) GetActiveCycleByChama(tx *gorm.DB, chamaID uint) (*models.RoscaCycle, error) {
	var cycle models.RoscaCycle
	err := tx.Where("chama_id = ? AND status = ?", chamaID, models.CycleStatusActive).
		First(&cycle).Error
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// ListCyclesCoveringDate lists ACTIVE and COMPLETED cycles of a chama whose
// start date is on or before the given day. The contribution engine uses
// this to refuse deleting contributions a paid-out round already consumed.
func (r *RoscaRepository) ListCyclesCoveringDate(tx *gorm.DB, chamaID uint, date time.Time) ([]*models.RoscaCycle, error) {
	var cycles []*models.RoscaCycle
	err := tx.
		Where("chama_id = ? AND status IN ? AND start_date <= ?",
			chamaID,
			[]string{models.CycleStatusActive, models.CycleStatusCompleted},
			date).
		Find(&cycles).Error
	return cycles, err
}

// ============================================================
// Roster
// ============================================================

// CreateRoster inserts roster entries
func (r *RoscaRepository) CreateRoster(tx *gorm.DB, rows []models.RosterEntry) error {
	return tx.Create(&rows).Error
}

// GetRoster returns a cycle's roster in position order
func (r *RoscaRepository) GetRoster(tx *gorm.DB, cycleID uint) ([]*models.RosterEntry, error) {
	var rows []*models.RosterEntry
	err := tx.
		Preload("Member").
		Where("cycle_id = ?", cycleID).
		Order("position ASC").
		Find(&rows).Error
	return rows, err
}

// GetEntryByMember finds a member's roster entry within a cycle
func (r *RoscaRepository) GetEntryByMember(tx *gorm.DB, cycleID, memberID uint) (*models.RosterEntry, error) {
	var row models.RosterEntry
	err := tx.Where("cycle_id = ? AND member_id = ?", cycleID, memberID).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetEntryForUpdate locks the roster entry at a position
func (r *RoscaRepository) GetEntryForUpdate(tx *gorm.DB, cycleID uint, position int) (*models.RosterEntry, error) {
	var row models.RosterEntry
	err := lockForUpdate(tx).
		Where("cycle_id = ? AND position = ?", cycleID, position).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// SaveEntry persists roster entry mutations
func (r *RoscaRepository) SaveEntry(tx *gorm.DB, row *models.RosterEntry) error {
	return tx.Save(row).Error
}

// ============================================================
// Swaps
// ============================================================

// CreateSwap inserts a swap request
func (r *RoscaRepository) CreateSwap(tx *gorm.DB, swap *models.SwapRequest) error {
	return tx.Create(swap).Error
}

// GetSwapForUpdate locks a swap request row
func (r *RoscaRepository) GetSwapForUpdate(tx *gorm.DB, id uint) (*models.SwapRequest, error) {
	var swap models.SwapRequest
	if err := lockForUpdate(tx).First(&swap, id).Error; err != nil {
		return nil, err
	}
	return &swap, nil
}

// SaveSwap persists swap mutations
func (r *RoscaRepository) SaveSwap(tx *gorm.DB, swap *models.SwapRequest) error {
	return tx.Save(swap).Error
}

// ExpirePendingSwaps marks PENDING swaps past their deadline, or touching
// the given positions, as EXPIRED. Positions may be empty for a pure
// time-based sweep.
func (r *RoscaRepository) ExpirePendingSwaps(tx *gorm.DB, cycleID uint, now time.Time, positions ...int) error {
	q := tx.Model(&models.SwapRequest{}).
		Where("cycle_id = ? AND status = ?", cycleID, models.SwapStatusPending)
	if len(positions) > 0 {
		q = q.Where(
			"expires_at < ? OR requester_position IN ? OR target_position IN ?",
			now, positions, positions,
		)
	} else {
		q = q.Where("expires_at < ?", now)
	}
	return q.Update("status", models.SwapStatusExpired).Error
}

// ============================================================
// Payouts
// ============================================================

// CreatePayout inserts a payout; the unique (cycle, round) index enforces
// one payout per round.
func (r *RoscaRepository) CreatePayout(tx *gorm.DB, payout *models.Payout) error {
	return tx.Create(payout).Error
}

// ListPayouts returns a cycle's payouts in round order
func (r *RoscaRepository) ListPayouts(tx *gorm.DB, cycleID uint) ([]*models.Payout, error) {
	var rows []*models.Payout
	err := tx.Where("cycle_id = ?", cycleID).Order("round ASC").Find(&rows).Error
	return rows, err
}
