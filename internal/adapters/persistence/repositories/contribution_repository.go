package repositories

import (
	"time"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/pkg/money"
)

// ContributionRepository handles contribution data access
type ContributionRepository struct{}

// NewContributionRepository creates a new contribution repository
func NewContributionRepository() *ContributionRepository {
	return &ContributionRepository{}
}

// Create inserts a contribution
func (r *ContributionRepository) Create(tx *gorm.DB, c *models.Contribution) error {
	return tx.Create(c).Error
}

// GetForUpdate locks a non-deleted contribution row
func (r *ContributionRepository) GetForUpdate(tx *gorm.DB, id uint) (*models.Contribution, error) {
	var c models.Contribution
	if err := lockForUpdate(tx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// SoftDelete marks a contribution deleted; totals are compensated by the
// engine in the same transaction.
func (r *ContributionRepository) SoftDelete(tx *gorm.DB, id uint) error {
	return tx.Delete(&models.Contribution{}, id).Error
}

// ContributionFilter narrows List queries
type ContributionFilter struct {
	ChamaID   uint
	UserID    *uint
	StartDate *time.Time
	EndDate   *time.Time
}

func (f ContributionFilter) apply(q *gorm.DB) *gorm.DB {
	q = q.Where("chama_id = ?", f.ChamaID)
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.StartDate != nil {
		q = q.Where("contribution_date >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("contribution_date <= ?", *f.EndDate)
	}
	return q
}

// List returns a page of contributions ordered by date DESC then id DESC
// (stable under concurrent inserts), plus the total row count and the
// aggregate amount for the whole filtered set.
func (r *ContributionRepository) List(tx *gorm.DB, f ContributionFilter, offset, limit int) ([]*models.Contribution, int64, money.Money, error) {
	var rows []*models.Contribution
	var total int64

	base := f.apply(tx.Model(&models.Contribution{}))
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}

	var sum struct {
		Total int64
	}
	if err := f.apply(tx.Model(&models.Contribution{})).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&sum).Error; err != nil {
		return nil, 0, 0, err
	}

	err := f.apply(tx.Model(&models.Contribution{})).
		Preload("User").
		Order("contribution_date DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, 0, err
	}

	return rows, total, money.Money(sum.Total), nil
}

// SumByMemberSince sums a member's non-deleted contributions dated on or
// after the given day. The ROSCA engine uses this for round obligations.
func (r *ContributionRepository) SumByMemberSince(tx *gorm.DB, chamaID, userID uint, since time.Time) (money.Money, error) {
	var sum struct {
		Total int64
	}
	err := tx.Model(&models.Contribution{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("chama_id = ? AND user_id = ? AND contribution_date >= ?", chamaID, userID, since).
		Scan(&sum).Error
	return money.Money(sum.Total), err
}
