package repositories

import (
	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
)

// ChamaRepository handles chama and membership data access. Methods take
// the open transaction (or plain handle for reads) as their first argument.
type ChamaRepository struct{}

// NewChamaRepository creates a new chama repository
func NewChamaRepository() *ChamaRepository {
	return &ChamaRepository{}
}

// Create creates a new chama
func (r *ChamaRepository) Create(tx *gorm.DB, chama *models.Chama) error {
	return tx.Create(chama).Error
}

// Get gets a chama by ID
func (r *ChamaRepository) Get(tx *gorm.DB, id uint) (*models.Chama, error) {
	var chama models.Chama
	if err := tx.First(&chama, id).Error; err != nil {
		return nil, err
	}
	return &chama, nil
}

// GetForUpdate locks the chama row. This is the first lock in the order
// chama → member → loan → installment; fund mutations serialize on it.
func (r *ChamaRepository) GetForUpdate(tx *gorm.DB, id uint) (*models.Chama, error) {
	var chama models.Chama
	if err := lockForUpdate(tx).First(&chama, id).Error; err != nil {
		return nil, err
	}
	return &chama, nil
}

// Save persists chama mutations
func (r *ChamaRepository) Save(tx *gorm.DB, chama *models.Chama) error {
	return tx.Save(chama).Error
}

// AddMember inserts a membership row
func (r *ChamaRepository) AddMember(tx *gorm.DB, member *models.Member) error {
	return tx.Create(member).Error
}

// GetMember gets the membership of user in chama
func (r *ChamaRepository) GetMember(tx *gorm.DB, chamaID, userID uint) (*models.Member, error) {
	var member models.Member
	err := tx.Where("chama_id = ? AND user_id = ?", chamaID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetMemberForUpdate locks the membership row. Second in the lock order,
// always after the chama row.
func (r *ChamaRepository) GetMemberForUpdate(tx *gorm.DB, chamaID, userID uint) (*models.Member, error) {
	var member models.Member
	err := lockForUpdate(tx).Where("chama_id = ? AND user_id = ?", chamaID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetMemberByID gets a membership row by primary key
func (r *ChamaRepository) GetMemberByID(tx *gorm.DB, id uint) (*models.Member, error) {
	var member models.Member
	if err := tx.First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// SaveMember persists member mutations
func (r *ChamaRepository) SaveMember(tx *gorm.DB, member *models.Member) error {
	return tx.Save(member).Error
}

// ListActiveMembers lists active members of a chama in join order
func (r *ChamaRepository) ListActiveMembers(tx *gorm.DB, chamaID uint) ([]*models.Member, error) {
	var members []*models.Member
	err := tx.
		Where("chama_id = ? AND is_active = ?", chamaID, true).
		Order("joined_at ASC, id ASC").
		Find(&members).Error
	return members, err
}

// ListByUser lists the chamas a user belongs to
func (r *ChamaRepository) ListByUser(tx *gorm.DB, userID uint) ([]*models.Member, error) {
	var members []*models.Member
	err := tx.
		Preload("Chama").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}
