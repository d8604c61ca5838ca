package domain

import "context"

// Payment is one recipient/amount pair inside a batch disbursement.
type Payment struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// DisbursementSink pushes custody of funds to an external recipient.
// It is the only collaborator that can fail for reasons outside the ledger's
// control; the engine treats any error as if the enclosing call never started.
//
// DisburseBatch is all-or-nothing at the sink boundary: either every payment
// is delivered or none is. Implementations that cannot guarantee this must
// reject the batch up front.
type DisbursementSink interface {
	Disburse(ctx context.Context, recipient string, amount int64, reference string) error
	DisburseBatch(ctx context.Context, payments []Payment, reference string) error
}

// FundingSource pushes deposits into the treasury with an optional category
// hint. It is consumed by external integrations (exchanges, revenue routers);
// the engine only implements the receiving side.
type FundingSource interface {
	Deposit(ctx context.Context, source string, amount int64, category Category, description string) error
}
