package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/pkg/period"
)

// SchedulerOptions configures the background sweeps.
type SchedulerOptions struct {
	// DailySweepAt is the local wall-clock time ("HH:MM") of the daily
	// overdue/default/penalty sweep.
	DailySweepAt string
	// ReminderTickMinutes is the interval of the installment reminder tick.
	ReminderTickMinutes int
	// ReminderLeadDays is how many days before the due date a reminder
	// fires. Nil means the default of 3; an explicit zero reminds on the
	// due date itself.
	ReminderLeadDays *int
	// BatchSize caps how many candidate rows a single sweep pass loads.
	BatchSize int
	// DefaultThresholdDays is the fallback when a constitution leaves the
	// loan default threshold unset.
	DefaultThresholdDays int
}

// SchedulerService drives the time-based transitions: installment
// reminders, overdue penalties, loan defaults, ROSCA late-payment
// penalties and swap expiry. Every entity is processed in its own
// transaction so one failure never poisons a batch, and each transition
// is guarded by a marker column so a rerun of the same day is a no-op.
type SchedulerService struct {
	ledger    *repositories.Ledger
	loanRepo  *repositories.LoanRepository
	roscaRepo *repositories.RoscaRepository
	loanSvc   *LoanService
	roscaSvc  *RoscaService
	notifier  *NotificationService
	opts      SchedulerOptions

	cron     *cron.Cron
	stopChan chan struct{}
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(
	ledger *repositories.Ledger,
	loanRepo *repositories.LoanRepository,
	roscaRepo *repositories.RoscaRepository,
	loanSvc *LoanService,
	roscaSvc *RoscaService,
	notifier *NotificationService,
	opts SchedulerOptions,
) *SchedulerService {
	if opts.DailySweepAt == "" {
		opts.DailySweepAt = "03:00"
	}
	if opts.ReminderTickMinutes < 1 {
		opts.ReminderTickMinutes = 60
	}
	if opts.ReminderLeadDays == nil {
		lead := 3
		opts.ReminderLeadDays = &lead
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 200
	}
	if opts.DefaultThresholdDays < 1 {
		opts.DefaultThresholdDays = 30
	}
	return &SchedulerService{
		ledger:    ledger,
		loanRepo:  loanRepo,
		roscaRepo: roscaRepo,
		loanSvc:   loanSvc,
		roscaSvc:  roscaSvc,
		notifier:  notifier,
		opts:      opts,
		stopChan:  make(chan struct{}),
	}
}

// Start registers the cron entries and launches the reminder ticker.
func (s *SchedulerService) Start() error {
	spec, err := cronSpecFromClock(s.opts.DailySweepAt)
	if err != nil {
		return err
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, func() {
		s.RunDailySweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()

	go s.reminderLoop()

	log.Printf("Scheduler started: daily sweep at %s, reminder tick every %d minutes",
		s.opts.DailySweepAt, s.opts.ReminderTickMinutes)
	return nil
}

// Stop halts the cron entries and the reminder ticker.
func (s *SchedulerService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.stopChan)
	log.Println("Scheduler stopped")
}

func (s *SchedulerService) reminderLoop() {
	ticker := time.NewTicker(time.Duration(s.opts.ReminderTickMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunReminderTick(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// RunDailySweep applies overdue penalties, default transitions, ROSCA
// late penalties and swap expiry for today. Exposed so an operator
// endpoint or test can trigger a sweep directly.
func (s *SchedulerService) RunDailySweep(ctx context.Context) {
	today := period.Today(time.UTC)
	s.sweepOverdue(ctx, today)
	s.sweepDefaults(ctx, today)
	s.sweepRoscaPenalties(ctx, today)
}

// RunReminderTick emits due-soon reminders for installments due in
// ReminderLeadDays.
func (s *SchedulerService) RunReminderTick(ctx context.Context) {
	today := period.Today(time.UTC)
	dueOn := today.AddDays(*s.opts.ReminderLeadDays)

	ids, err := s.loanRepo.DueForReminder(s.ledger.DB().WithContext(ctx),
		dueOn.Time(time.UTC), today.Time(time.UTC), s.opts.BatchSize)
	if err != nil {
		log.Printf("Reminder tick: candidate query failed: %v", err)
		return
	}
	for _, loanID := range ids {
		var notes []*models.Notification
		err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			notes, err = s.loanSvc.RemindDue(tx, loanID, dueOn, today)
			return err
		})
		if err != nil {
			log.Printf("Reminder tick: loan %d failed: %v", loanID, err)
			continue
		}
		s.notifier.Push(notes...)
	}
}

func (s *SchedulerService) sweepOverdue(ctx context.Context, today period.Date) {
	ids, err := s.loanRepo.OverdueCandidates(s.ledger.DB().WithContext(ctx),
		today.Time(time.UTC), s.opts.BatchSize)
	if err != nil {
		log.Printf("Daily sweep: overdue candidate query failed: %v", err)
		return
	}
	for _, loanID := range ids {
		var notes []*models.Notification
		err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			notes, err = s.loanSvc.AccrueOverdue(tx, loanID, today)
			return err
		})
		if err != nil {
			log.Printf("Daily sweep: overdue accrual for loan %d failed: %v", loanID, err)
			continue
		}
		s.notifier.Push(notes...)
	}
}

func (s *SchedulerService) sweepDefaults(ctx context.Context, today period.Date) {
	// Candidates whose last overdue installment is old enough under the
	// most lenient plausible threshold; the per-loan transaction re-checks
	// against the constitution's actual threshold.
	before := today.AddDays(-1).Time(time.UTC)
	ids, err := s.loanRepo.DefaultCandidates(s.ledger.DB().WithContext(ctx), before, s.opts.BatchSize)
	if err != nil {
		log.Printf("Daily sweep: default candidate query failed: %v", err)
		return
	}
	for _, loanID := range ids {
		var notes []*models.Notification
		err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			notes, err = s.loanSvc.MarkDefaulted(tx, loanID, today, s.opts.DefaultThresholdDays)
			return err
		})
		if err != nil {
			log.Printf("Daily sweep: default check for loan %d failed: %v", loanID, err)
			continue
		}
		s.notifier.Push(notes...)
	}
}

func (s *SchedulerService) sweepRoscaPenalties(ctx context.Context, today period.Date) {
	ids, err := s.roscaRepo.ListActiveCycles(s.ledger.DB().WithContext(ctx), s.opts.BatchSize)
	if err != nil {
		log.Printf("Daily sweep: cycle candidate query failed: %v", err)
		return
	}
	for _, cycleID := range ids {
		var notes []*models.Notification
		err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.roscaSvc.ExpireLapsedSwaps(tx, cycleID, time.Now()); err != nil {
				return err
			}
			var err error
			notes, err = s.roscaSvc.SweepLatePenalties(tx, cycleID, today)
			return err
		})
		if err != nil {
			log.Printf("Daily sweep: penalty sweep for cycle %d failed: %v", cycleID, err)
			continue
		}
		s.notifier.Push(notes...)
	}
}

// cronSpecFromClock converts "HH:MM" into a daily cron spec.
func cronSpecFromClock(clock string) (string, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid sweep time %q, want HH:MM", clock)
	}
	var hh, mm int
	if _, err := fmt.Sscanf(clock, "%d:%d", &hh, &mm); err != nil {
		return "", fmt.Errorf("invalid sweep time %q: %v", clock, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return "", fmt.Errorf("invalid sweep time %q", clock)
	}
	return fmt.Sprintf("%d %d * * *", mm, hh), nil
}
