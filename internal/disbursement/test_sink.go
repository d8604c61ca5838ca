package disbursement

import (
	"context"
	"sync"

	"github.com/aristath/treasury/internal/domain"
)

// RecordingSink captures payments in memory. Used by tests and by the
// simulation mode of the funding tooling.
type RecordingSink struct {
	mu sync.Mutex

	// Err, when set, is returned by every call and nothing is recorded.
	Err error

	// FailAfter, when >= 0, fails calls once that many calls have succeeded.
	FailAfter int

	calls    int
	Payments []domain.Payment
	Refs     []string
}

// NewRecordingSink creates a RecordingSink that accepts everything.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{FailAfter: -1}
}

// Disburse records a single payment.
func (s *RecordingSink) Disburse(ctx context.Context, recipient string, amount int64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(); err != nil {
		return err
	}
	s.calls++
	s.Payments = append(s.Payments, domain.Payment{Recipient: recipient, Amount: amount})
	s.Refs = append(s.Refs, reference)
	return nil
}

// DisburseBatch records a batch atomically: on failure nothing is recorded.
func (s *RecordingSink) DisburseBatch(ctx context.Context, payments []domain.Payment, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(); err != nil {
		return err
	}
	s.calls++
	s.Payments = append(s.Payments, payments...)
	s.Refs = append(s.Refs, reference)
	return nil
}

func (s *RecordingSink) failure() error {
	if s.Err != nil {
		return s.Err
	}
	if s.FailAfter >= 0 && s.calls >= s.FailAfter {
		return domain.ErrDisbursementFailed
	}
	return nil
}

// Total returns the sum of all recorded payment amounts.
func (s *RecordingSink) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, p := range s.Payments {
		total += p.Amount
	}
	return total
}

// Count returns the number of recorded payments.
func (s *RecordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Payments)
}
