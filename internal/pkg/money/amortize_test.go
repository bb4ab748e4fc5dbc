package money

import "testing"

func TestAmortizeInvariants(t *testing.T) {
	tests := []struct {
		name           string
		principal      Money
		annualRate     float64
		periodsPerYear int
		n              int
	}{
		{"monthly one year", FromUnits(120000), 10, 12, 12},
		{"weekly half year", FromUnits(50000), 15, 52, 26},
		{"single installment", FromUnits(1000), 10, 12, 1},
		{"awkward principal", Money(99999), 12.5, 12, 7},
		{"high rate", FromUnits(20000), 36, 12, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Amortize(tt.principal, tt.annualRate, tt.periodsPerYear, tt.n)
			if len(plan) != tt.n {
				t.Fatalf("expected %d installments, got %d", tt.n, len(plan))
			}

			var sumPrincipal, sumInterest Money
			for i, row := range plan {
				if row.Sequence != i+1 {
					t.Fatalf("installment %d has sequence %d", i, row.Sequence)
				}
				if row.Amount != row.Principal+row.Interest {
					t.Fatalf("installment %d: amount %s != principal %s + interest %s",
						row.Sequence, row.Amount, row.Principal, row.Interest)
				}
				if row.Principal < 0 || row.Interest < 0 {
					t.Fatalf("installment %d has a negative component", row.Sequence)
				}
				sumPrincipal += row.Principal
				sumInterest += row.Interest
			}

			// The principal column reconciles to the cent; the final
			// installment absorbs any rounding residue.
			if sumPrincipal != tt.principal {
				t.Fatalf("principal column sums to %s, want %s", sumPrincipal, tt.principal)
			}
			if got := TotalInterest(plan); got != sumInterest {
				t.Fatalf("TotalInterest = %s, want %s", got, sumInterest)
			}
			if got := TotalAmount(plan); got != tt.principal+sumInterest {
				t.Fatalf("TotalAmount = %s, want %s", got, tt.principal+sumInterest)
			}

			// Reducing balance means the interest part never grows.
			for i := 1; i < len(plan); i++ {
				if plan[i].Interest > plan[i-1].Interest {
					t.Fatalf("interest rises from %s to %s at installment %d",
						plan[i-1].Interest, plan[i].Interest, plan[i].Sequence)
				}
			}
		})
	}
}

func TestAmortizeZeroRate(t *testing.T) {
	principal := FromUnits(1000)
	plan := Amortize(principal, 0, 12, 3)
	if got := TotalInterest(plan); got != 0 {
		t.Fatalf("zero-rate schedule carries interest %s", got)
	}
	var sum Money
	for _, row := range plan {
		sum += row.Principal
	}
	if sum != principal {
		t.Fatalf("principal column sums to %s, want %s", sum, principal)
	}
}

func TestAmortizeDegenerate(t *testing.T) {
	if plan := Amortize(FromUnits(100), 10, 12, 0); plan != nil {
		t.Fatalf("expected nil plan for zero periods, got %d rows", len(plan))
	}
	if plan := Amortize(FromUnits(100), 10, 12, -1); plan != nil {
		t.Fatal("expected nil plan for negative periods")
	}
}
