// Package domain holds the core treasury types shared by all modules.
// The domain layer is pure: no database, HTTP, or logging dependencies.
package domain

import "time"

// Category is a named spending bucket with its own sub-ledger.
type Category string

// Default spending categories. The active set is defined by the allocation
// policy; these constants exist for configuration defaults and tests.
const (
	CategoryMarketing    Category = "MARKETING"
	CategoryPartnerships Category = "PARTNERSHIPS"
	CategoryDevelopment  Category = "DEVELOPMENT"
	CategoryBuyback      Category = "BUYBACK"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// CategoryAllocation is the per-category sub-ledger.
// Invariant: Available = TotalAllocated - TotalSpent - Reserved, all fields >= 0.
type CategoryAllocation struct {
	Category             Category  `json:"category"`
	TotalAllocated       int64     `json:"total_allocated"`
	Reserved             int64     `json:"reserved"`
	TotalSpent           int64     `json:"total_spent"`
	Available            int64     `json:"available"`
	LastDistributionTime time.Time `json:"last_distribution_time"`
}

// PolicyEntry is one category's share of the allocation policy.
// Entries are ordered; the last entry absorbs integer rounding remainders.
type PolicyEntry struct {
	Category Category `json:"category" yaml:"category"`
	Bps      int64    `json:"bps" yaml:"bps"`
}

// AllocationPolicy is an ordered percentage split over the category set.
type AllocationPolicy struct {
	Entries   []PolicyEntry `json:"entries"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Validate checks that the policy is non-empty, has no duplicate categories,
// and sums to exactly 10000 bps.
func (p AllocationPolicy) Validate() error {
	if len(p.Entries) == 0 {
		return ErrPolicyPercentages
	}
	var sum int64
	seen := make(map[Category]bool, len(p.Entries))
	for _, e := range p.Entries {
		if e.Category == "" {
			return ErrInvalidCategory
		}
		if e.Bps < 0 {
			return ErrPolicyPercentages
		}
		if seen[e.Category] {
			return ErrInvalidCategory
		}
		seen[e.Category] = true
		sum += e.Bps
	}
	if sum != BpsDenominator {
		return ErrPolicyPercentages
	}
	return nil
}

// Categories returns the policy's categories in policy order.
func (p AllocationPolicy) Categories() []Category {
	out := make([]Category, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Category
	}
	return out
}

// ProposalStatus is the lifecycle state of a withdrawal proposal.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "PENDING"
	ProposalExecuted  ProposalStatus = "EXECUTED"
	ProposalCancelled ProposalStatus = "CANCELLED"
)

// WithdrawalProposal is a single-recipient withdrawal awaiting quorum and,
// when large, a timelock. Terminal once EXECUTED or CANCELLED.
type WithdrawalProposal struct {
	ID            string         `json:"id"`
	Proposer      string         `json:"proposer"`
	Recipient     string         `json:"recipient"`
	Amount        int64          `json:"amount"`
	Category      Category       `json:"category"`
	Description   string         `json:"description"`
	CreatedAt     time.Time      `json:"created_at"`
	ExecutionTime time.Time      `json:"execution_time"`
	Status        ProposalStatus `json:"status"`
	Approvals     []string       `json:"approvals"`
	IsLarge       bool           `json:"is_large"`
}

// HasApproval reports whether the given approver is already in the approval set.
func (p *WithdrawalProposal) HasApproval(approver string) bool {
	for _, a := range p.Approvals {
		if a == approver {
			return true
		}
	}
	return false
}

// BatchDistribution is an atomic multi-recipient payout against one category.
type BatchDistribution struct {
	ID          string    `json:"id"`
	Recipients  []string  `json:"recipients"`
	Amounts     []int64   `json:"amounts"`
	Category    Category  `json:"category"`
	Description string    `json:"description"`
	TotalAmount int64     `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
	Executed    bool      `json:"executed"`
	Cancelled   bool      `json:"cancelled"`
}

// TransactionKind classifies a historical value movement.
type TransactionKind string

const (
	KindDeposit             TransactionKind = "DEPOSIT"
	KindWithdrawal          TransactionKind = "WITHDRAWAL"
	KindBatchDistribution   TransactionKind = "BATCH_DISTRIBUTION"
	KindEmergencyWithdrawal TransactionKind = "EMERGENCY_WITHDRAWAL"
	KindExternalFunding     TransactionKind = "EXTERNAL_FUNDING"
	KindRecovery            TransactionKind = "RECOVERY"
)

// HistoricalTransaction is one append-only ledger entry. Entries are never
// mutated or deleted after insertion.
type HistoricalTransaction struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Counterparty string          `json:"counterparty"`
	Amount       int64           `json:"amount"`
	Category     Category        `json:"category"`
	Kind         TransactionKind `json:"kind"`
	BalanceAfter int64           `json:"balance_after"`
}

// TreasuryMetrics are the running counters of the engine. Balance is the
// custodied global balance (received minus everything disbursed).
type TreasuryMetrics struct {
	TotalReceived      int64 `json:"total_received"`
	TotalDistributed   int64 `json:"total_distributed"`
	Balance            int64 `json:"balance"`
	PolicyApplications int64 `json:"policy_applications"`
	WithdrawalCount    int64 `json:"withdrawal_count"`
	EmergencyCount     int64 `json:"emergency_count"`
}

// MonthlyAggregate is the pre-aggregated report bucket for a calendar month (UTC).
type MonthlyAggregate struct {
	Year               int   `json:"year"`
	Month              int   `json:"month"`
	Received           int64 `json:"received"`
	Distributed        int64 `json:"distributed"`
	EmergencyWithdrawn int64 `json:"emergency_withdrawn"`
}
