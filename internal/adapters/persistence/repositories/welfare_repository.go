package repositories

import (
	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/pkg/money"
)

// WelfareRepository handles share equity data access
type WelfareRepository struct{}

// NewWelfareRepository creates a new welfare repository
func NewWelfareRepository() *WelfareRepository {
	return &WelfareRepository{}
}

// CreateEquity inserts a share purchase row
func (r *WelfareRepository) CreateEquity(tx *gorm.DB, row *models.ShareEquity) error {
	return tx.Create(row).Error
}

// ListEquityByMember returns a member's purchases, newest first
func (r *WelfareRepository) ListEquityByMember(tx *gorm.DB, chamaID, memberID uint) ([]*models.ShareEquity, error) {
	var rows []*models.ShareEquity
	err := tx.
		Where("chama_id = ? AND member_id = ?", chamaID, memberID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// SumSharesByMember totals a member's share count and spend
func (r *WelfareRepository) SumSharesByMember(tx *gorm.DB, chamaID, memberID uint) (int, money.Money, error) {
	var agg struct {
		Shares int
		Total  int64
	}
	err := tx.Model(&models.ShareEquity{}).
		Select("COALESCE(SUM(shares), 0) AS shares, COALESCE(SUM(price), 0) AS total").
		Where("chama_id = ? AND member_id = ?", chamaID, memberID).
		Scan(&agg).Error
	return agg.Shares, money.Money(agg.Total), err
}
