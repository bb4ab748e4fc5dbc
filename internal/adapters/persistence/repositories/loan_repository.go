package repositories

import (
	"time"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
)

// LoanRepository handles loan, installment and guarantor data access
type LoanRepository struct{}

// NewLoanRepository creates a new loan repository
func NewLoanRepository() *LoanRepository {
	return &LoanRepository{}
}

// Create inserts a loan
func (r *LoanRepository) Create(tx *gorm.DB, loan *models.Loan) error {
	return tx.Create(loan).Error
}

// Get gets a loan by ID
func (r *LoanRepository) Get(tx *gorm.DB, id uint) (*models.Loan, error) {
	var loan models.Loan
	if err := tx.First(&loan, id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetWithSchedule gets a loan with installments and guarantors preloaded
func (r *LoanRepository) GetWithSchedule(tx *gorm.DB, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := tx.
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Guarantors").
		First(&loan, id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetForUpdate locks the loan row. Third in the lock order, after the
// chama and member rows.
func (r *LoanRepository) GetForUpdate(tx *gorm.DB, id uint) (*models.Loan, error) {
	var loan models.Loan
	if err := lockForUpdate(tx).First(&loan, id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// Save persists loan mutations
func (r *LoanRepository) Save(tx *gorm.DB, loan *models.Loan) error {
	return tx.Save(loan).Error
}

// CountOpenByBorrower counts APPROVED/ACTIVE loans of a borrower in a chama
func (r *LoanRepository) CountOpenByBorrower(tx *gorm.DB, chamaID, borrowerID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.Loan{}).
		Where("chama_id = ? AND borrower_id = ? AND status IN ?",
			chamaID, borrowerID,
			[]string{models.LoanStatusApproved, models.LoanStatusActive}).
		Count(&count).Error
	return count, err
}

// ListByChama returns a page of a chama's loans, newest first
func (r *LoanRepository) ListByChama(tx *gorm.DB, chamaID uint, status string, offset, limit int) ([]*models.Loan, int64, error) {
	var loans []*models.Loan
	var total int64

	q := tx.Model(&models.Loan{}).Where("chama_id = ?", chamaID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.
		Preload("Borrower").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&loans).Error
	return loans, total, err
}

// ============================================================
// Installments
// ============================================================

// CreateInstallments inserts the generated schedule
func (r *LoanRepository) CreateInstallments(tx *gorm.DB, rows []models.LoanInstallment) error {
	return tx.Create(&rows).Error
}

// ListInstallments returns a loan's schedule in sequence order
func (r *LoanRepository) ListInstallments(tx *gorm.DB, loanID uint) ([]*models.LoanInstallment, error) {
	var rows []*models.LoanInstallment
	err := tx.
		Where("loan_id = ?", loanID).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

// ListInstallmentsForUpdate locks a loan's schedule rows. Last in the lock
// order, always after the loan row.
func (r *LoanRepository) ListInstallmentsForUpdate(tx *gorm.DB, loanID uint) ([]*models.LoanInstallment, error) {
	var rows []*models.LoanInstallment
	err := lockForUpdate(tx).
		Where("loan_id = ?", loanID).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

// SaveInstallment persists installment mutations
func (r *LoanRepository) SaveInstallment(tx *gorm.DB, row *models.LoanInstallment) error {
	return tx.Save(row).Error
}

// DueForReminder lists loan IDs with a PENDING installment due exactly on
// the given day that has not been reminded today. Used by the reminder tick.
func (r *LoanRepository) DueForReminder(db *gorm.DB, dueOn, today time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.LoanInstallment{}).
		Distinct("loan_id").
		Where("status = ? AND due_date = ?", models.InstallmentStatusPending, dueOn).
		Where("last_reminder_on IS NULL OR last_reminder_on < ?", today).
		Order("loan_id").
		Limit(limit).
		Pluck("loan_id", &ids).Error
	return ids, err
}

// OverdueCandidates lists loan IDs with PENDING installments past due that
// have not yet been penalized. Used by the daily sweep; the per-loan
// transaction re-checks each installment before accruing.
func (r *LoanRepository) OverdueCandidates(db *gorm.DB, today time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.LoanInstallment{}).
		Distinct("loan_id").
		Where("status = ? AND due_date < ? AND penalty_applied_on IS NULL",
			models.InstallmentStatusPending, today).
		Order("loan_id").
		Limit(limit).
		Pluck("loan_id", &ids).Error
	return ids, err
}

// DefaultCandidates lists ACTIVE loan IDs whose oldest unpaid installment
// is at least thresholdDays past due.
func (r *LoanRepository) DefaultCandidates(db *gorm.DB, before time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.LoanInstallment{}).
		Distinct("loan_installments.loan_id").
		Joins("JOIN loans ON loans.id = loan_installments.loan_id").
		Where("loans.status = ?", models.LoanStatusActive).
		Where("loan_installments.status = ? AND loan_installments.due_date <= ?",
			models.InstallmentStatusOverdue, before).
		Order("loan_installments.loan_id").
		Limit(limit).
		Pluck("loan_installments.loan_id", &ids).Error
	return ids, err
}

// ============================================================
// Guarantors
// ============================================================

// CreateGuarantors inserts guarantor pledges for a loan
func (r *LoanRepository) CreateGuarantors(tx *gorm.DB, rows []models.Guarantor) error {
	return tx.Create(&rows).Error
}

// ListGuarantors returns a loan's guarantors
func (r *LoanRepository) ListGuarantors(tx *gorm.DB, loanID uint) ([]*models.Guarantor, error) {
	var rows []*models.Guarantor
	err := tx.Where("loan_id = ?", loanID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// GetGuarantor finds the pledge of a specific member on a loan
func (r *LoanRepository) GetGuarantor(tx *gorm.DB, loanID, memberID uint) (*models.Guarantor, error) {
	var row models.Guarantor
	err := tx.Where("loan_id = ? AND member_id = ?", loanID, memberID).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// SaveGuarantor persists guarantor mutations
func (r *LoanRepository) SaveGuarantor(tx *gorm.DB, row *models.Guarantor) error {
	return tx.Save(row).Error
}
