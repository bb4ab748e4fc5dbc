package services

import (
	"testing"
	"time"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/period"
)

func TestCronSpecFromClock(t *testing.T) {
	tests := []struct {
		clock   string
		want    string
		wantErr bool
	}{
		{clock: "03:00", want: "0 3 * * *"},
		{clock: "23:59", want: "59 23 * * *"},
		{clock: "0:05", want: "5 0 * * *"},
		{clock: "3", wantErr: true},
		{clock: "25:00", wantErr: true},
		{clock: "12:60", wantErr: true},
		{clock: "ab:cd", wantErr: true},
		{clock: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			got, err := cronSpecFromClock(tt.clock)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("cronSpecFromClock(%q) = %q, want error", tt.clock, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("cronSpecFromClock(%q): %v", tt.clock, err)
			}
			if got != tt.want {
				t.Fatalf("cronSpecFromClock(%q) = %q, want %q", tt.clock, got, tt.want)
			}
		})
	}
}

func TestSchedulerOptionDefaults(t *testing.T) {
	s := NewSchedulerService(nil, nil, nil, nil, nil, nil, SchedulerOptions{})

	if s.opts.DailySweepAt != "03:00" {
		t.Fatalf("DailySweepAt = %q", s.opts.DailySweepAt)
	}
	if s.opts.ReminderTickMinutes != 60 {
		t.Fatalf("ReminderTickMinutes = %d", s.opts.ReminderTickMinutes)
	}
	if s.opts.ReminderLeadDays == nil || *s.opts.ReminderLeadDays != 3 {
		t.Fatalf("ReminderLeadDays = %v", s.opts.ReminderLeadDays)
	}
	if s.opts.BatchSize != 200 {
		t.Fatalf("BatchSize = %d", s.opts.BatchSize)
	}
	if s.opts.DefaultThresholdDays != 30 {
		t.Fatalf("DefaultThresholdDays = %d", s.opts.DefaultThresholdDays)
	}

	// Explicit options survive untouched, including a zero lead meaning
	// remind on the due date itself.
	sameDay := 0
	s = NewSchedulerService(nil, nil, nil, nil, nil, nil, SchedulerOptions{
		DailySweepAt:         "04:30",
		ReminderTickMinutes:  15,
		ReminderLeadDays:     &sameDay,
		BatchSize:            50,
		DefaultThresholdDays: 45,
	})
	if s.opts.DailySweepAt != "04:30" || s.opts.ReminderTickMinutes != 15 ||
		*s.opts.ReminderLeadDays != 0 || s.opts.BatchSize != 50 ||
		s.opts.DefaultThresholdDays != 45 {
		t.Fatalf("explicit options mangled: %+v", s.opts)
	}
}

func (e *testEnv) scheduler(opts SchedulerOptions) *SchedulerService {
	return NewSchedulerService(e.ledger,
		repositories.NewLoanRepository(), repositories.NewRoscaRepository(),
		e.loans, e.rosca, e.notes, opts)
}

func (f *loanFixture) backdateInstallment(id uint, due period.Date) {
	f.t.Helper()
	err := f.db.Model(&models.LoanInstallment{}).Where("id = ?", id).
		Update("due_date", due.Time(time.UTC)).Error
	if err != nil {
		f.t.Fatalf("move due date: %v", err)
	}
}

// A single-installment loan 31 days past due should be penalized and
// defaulted by one sweep, and a rerun should change nothing.
func TestDailySweepPenalizesAndDefaults(t *testing.T) {
	f := newLoanFixture(t, money.FromUnits(5000), nil)
	loan := f.disburse(money.FromUnits(1000), 1)

	inst := f.installments(loan.ID)[0]
	f.backdateInstallment(inst.ID, period.Today(time.UTC).AddDays(-31))

	sched := f.scheduler(SchedulerOptions{})
	sched.RunDailySweep(f.ctx)

	swept := f.installments(loan.ID)[0]
	if swept.Status != models.InstallmentStatusOverdue {
		t.Fatalf("installment is %s after sweep", swept.Status)
	}
	if want := swept.PrincipalPart.MulPercent(5); swept.PenaltyAmount != want {
		t.Fatalf("penalty = %s, want %s", swept.PenaltyAmount, want)
	}
	if swept.PenaltyAppliedOn == nil {
		t.Fatal("penalty marker not set")
	}
	if got := f.reloadLoan(loan.ID); got.Status != models.LoanStatusDefaulted {
		t.Fatalf("loan is %s after sweep", got.Status)
	}
	if got := f.countNotifications(f.borrower.ID, models.NotifyLoanOverdue); got != 1 {
		t.Fatalf("overdue notifications = %d", got)
	}
	if got := f.countNotifications(f.borrower.ID, models.NotifyLoanDefaulted); got != 1 {
		t.Fatalf("default notifications = %d", got)
	}

	// Same-day rerun: markers hold, nothing accrues twice.
	sched.RunDailySweep(f.ctx)
	rerun := f.installments(loan.ID)[0]
	if rerun.PenaltyAmount != swept.PenaltyAmount {
		t.Fatalf("penalty grew to %s on rerun", rerun.PenaltyAmount)
	}
	if got := f.countNotifications(f.borrower.ID, models.NotifyLoanOverdue); got != 1 {
		t.Fatalf("overdue notifications = %d after rerun", got)
	}
}

func TestReminderTickOncePerDay(t *testing.T) {
	f := newLoanFixture(t, money.FromUnits(5000), nil)
	loan := f.disburse(money.FromUnits(1000), 1)

	// Park the installment exactly the default three-day lead out.
	inst := f.installments(loan.ID)[0]
	f.backdateInstallment(inst.ID, period.Today(time.UTC).AddDays(3))

	sched := f.scheduler(SchedulerOptions{})
	sched.RunReminderTick(f.ctx)
	if got := f.countNotifications(f.borrower.ID, models.NotifyLoanReminder); got != 1 {
		t.Fatalf("reminders = %d", got)
	}

	reminded := f.installments(loan.ID)[0]
	if reminded.LastReminderOn == nil {
		t.Fatal("reminder marker not set")
	}

	// Later ticks the same day stay quiet.
	sched.RunReminderTick(f.ctx)
	if got := f.countNotifications(f.borrower.ID, models.NotifyLoanReminder); got != 1 {
		t.Fatalf("reminders = %d after second tick", got)
	}
}

// A swap request nobody answered must not linger PENDING past its
// deadline; the daily sweep expires it.
func TestDailySweepExpiresLapsedSwaps(t *testing.T) {
	f := newRoscaFixture(t, nil)
	cycle := f.createCycle(period.Today(time.UTC).String(), money.FromUnits(100))

	swap, err := f.rosca.RequestSwap(f.ctx, &SwapInput{
		CycleID: cycle.ID, TargetPosition: 2, ActorID: f.official.ID,
	})
	if err != nil {
		t.Fatalf("request swap: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := f.db.Model(&models.SwapRequest{}).Where("id = ?", swap.ID).
		Update("expires_at", past).Error; err != nil {
		t.Fatal(err)
	}

	f.scheduler(SchedulerOptions{}).RunDailySweep(f.ctx)

	var swept models.SwapRequest
	if err := f.db.First(&swept, swap.ID).Error; err != nil {
		t.Fatal(err)
	}
	if swept.Status != models.SwapStatusExpired {
		t.Fatalf("swap is %s after the sweep, want EXPIRED", swept.Status)
	}
}
