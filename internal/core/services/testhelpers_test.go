package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/core/domain"
	"chamahub/internal/pkg/money"
)

// testEnv wires the full service stack over an in-memory sqlite database.
// The hub is nil, so notification pushes are skipped; the rows still land.
type testEnv struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB

	ledger   *repositories.Ledger
	chamas   *ChamaService
	contribs *ContributionService
	loans    *LoanService
	rosca    *RoscaService
	welfare  *WelfareService
	auth     *AuthService
	notes    *NotificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ledger := repositories.NewLedger(db)
	chamaRepo := repositories.NewChamaRepository()
	contribRepo := repositories.NewContributionRepository()
	loanRepo := repositories.NewLoanRepository()
	roscaRepo := repositories.NewRoscaRepository()
	welfareRepo := repositories.NewWelfareRepository()
	noteRepo := repositories.NewNotificationRepository()
	userRepo := repositories.NewUserRepository(db)
	tokenRepo := repositories.NewRefreshTokenRepository(db)

	notes := NewNotificationService(ledger, noteRepo, nil)
	return &testEnv{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		ledger:   ledger,
		chamas:   NewChamaService(ledger, chamaRepo, userRepo, roscaRepo, notes),
		contribs: NewContributionService(ledger, chamaRepo, contribRepo, roscaRepo, notes),
		loans:    NewLoanService(ledger, chamaRepo, loanRepo, notes),
		rosca:    NewRoscaService(ledger, chamaRepo, roscaRepo, contribRepo, notes),
		welfare:  NewWelfareService(ledger, chamaRepo, welfareRepo, notes),
		auth:     NewAuthService(userRepo, tokenRepo, "test-secret", 15, 7),
		notes:    notes,
	}
}

func (e *testEnv) seedUser(username string) *models.User {
	e.t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "not-a-real-hash",
		IsActive: true,
	}
	if err := e.db.Create(user).Error; err != nil {
		e.t.Fatalf("seed user %s: %v", username, err)
	}
	return user
}

func (e *testEnv) seedChama(name string, mutate func(*domain.Constitution)) *models.Chama {
	e.t.Helper()
	constitution := domain.DefaultConstitution()
	if mutate != nil {
		mutate(&constitution)
	}
	chama := &models.Chama{
		Name:         name,
		Timezone:     "UTC",
		Constitution: constitution,
		Status:       models.ChamaStatusActive,
		CreatedBy:    1,
	}
	if err := e.db.Create(chama).Error; err != nil {
		e.t.Fatalf("seed chama %s: %v", name, err)
	}
	return chama
}

func (e *testEnv) seedMember(chamaID, userID uint, role string) *models.Member {
	e.t.Helper()
	member := &models.Member{
		ChamaID:  chamaID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
		IsActive: true,
	}
	if err := e.db.Create(member).Error; err != nil {
		e.t.Fatalf("seed member: %v", err)
	}
	return member
}

func (e *testEnv) setFund(chamaID uint, amount money.Money) {
	e.t.Helper()
	err := e.db.Model(&models.Chama{}).Where("id = ?", chamaID).
		Update("current_fund", amount).Error
	if err != nil {
		e.t.Fatalf("set fund: %v", err)
	}
}

func (e *testEnv) chamaFund(chamaID uint) money.Money {
	e.t.Helper()
	var chama models.Chama
	if err := e.db.First(&chama, chamaID).Error; err != nil {
		e.t.Fatalf("reload chama: %v", err)
	}
	return chama.CurrentFund
}

func (e *testEnv) reloadMember(id uint) *models.Member {
	e.t.Helper()
	var member models.Member
	if err := e.db.First(&member, id).Error; err != nil {
		e.t.Fatalf("reload member: %v", err)
	}
	return &member
}

func (e *testEnv) reloadLoan(id uint) *models.Loan {
	e.t.Helper()
	var loan models.Loan
	if err := e.db.First(&loan, id).Error; err != nil {
		e.t.Fatalf("reload loan: %v", err)
	}
	return &loan
}

// contribute records a contribution through the service on a fixed date.
func (e *testEnv) contribute(chamaID, treasurerID, userID uint, amount money.Money, date string) *models.Contribution {
	e.t.Helper()
	row, err := e.contribs.Record(e.ctx, &RecordInput{
		ChamaID:          chamaID,
		UserID:           userID,
		Amount:           amount,
		Method:           models.MethodCash,
		ContributionDate: &date,
		ActorID:          treasurerID,
	})
	if err != nil {
		e.t.Fatalf("record contribution: %v", err)
	}
	return row
}

// inTx runs fn inside a ledger transaction, failing the test on error.
func (e *testEnv) inTx(fn func(tx *gorm.DB) error) {
	e.t.Helper()
	if err := e.ledger.WithTx(e.ctx, fn); err != nil {
		e.t.Fatalf("transaction: %v", err)
	}
}

func (e *testEnv) countNotifications(userID uint, noteType string) int64 {
	e.t.Helper()
	var count int64
	err := e.db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", userID, noteType).
		Count(&count).Error
	if err != nil {
		e.t.Fatalf("count notifications: %v", err)
	}
	return count
}
