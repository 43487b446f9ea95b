// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

const (
	// PoolTypeFees is the pool type classification of balance rows that
	// accumulate pool fee income.
	PoolTypeFees = "fees"
)

// feeForAmount calculates the fee deducted from a payout of the provided
// amount. The schedule is piecewise linear: amounts at or below walletMin
// pay the full base fee, amounts between walletMin and feeSlewEnd pay a fee
// that decreases linearly toward zero, and amounts above feeSlewEnd pay no
// fee. All values are in atomic units and the result is floored.
func feeForAmount(amount, baseFee, walletMin, feeSlewEnd int64) int64 {
	var fee int64
	switch {
	case amount <= walletMin:
		fee = baseFee
	case amount <= feeSlewEnd:
		fee = baseFee - (amount-walletMin)*baseFee/(feeSlewEnd-walletMin)
	}
	if fee < 0 {
		fee = 0
	}
	if fee > amount {
		fee = amount
	}
	return fee
}

// Payee represents one pending payout derived from a ledger balance row.
// It is created per payment cycle and discarded once its bookkeeping
// completes.
type Payee struct {
	// Amount is the pre-fee balance owed, in atomic units. The
	// eligibility scan mutates it for fee-address reservations and dust
	// truncation before the payee is dispatched.
	Amount int64

	// Address is the destination wallet address.
	Address string

	// PaymentID is the optional sub-address payment identifier. A
	// non-empty value forces an individual, non-batched payment since a
	// wallet transaction carries at most one payment identifier.
	PaymentID string

	// ForeignChain marks amounts destined for a different settlement
	// chain. Such payees are excluded from wallet dispatch entirely.
	ForeignChain bool

	// Fee is the deducted payout fee, computed once via setFee.
	Fee int64

	// PoolType classifies the originating balance row.
	PoolType string

	// LedgerRowID references the originating balance row so the balance
	// deduction is applied exactly once.
	LedgerRowID int64

	// TransactionID is assigned after the owning wallet transaction is
	// persisted to the ledger.
	TransactionID int64
}

// NewPayee creates a payee from the provided balance row.
func NewPayee(row *BalanceRow) *Payee {
	return &Payee{
		Amount:       row.Amount,
		Address:      row.Address,
		PaymentID:    row.PaymentID,
		ForeignChain: row.ForeignChain,
		PoolType:     row.PoolType,
		LedgerRowID:  row.ID,
	}
}

// ID returns the payee identifier used for per-user threshold lookups. It is
// the destination address, qualified by the payment identifier when one is
// present.
func (p *Payee) ID() string {
	if p.PaymentID == "" {
		return p.Address
	}
	return p.Address + "." + p.PaymentID
}

// setFee computes and sets the payout fee for the payee per the fee slew
// schedule.
func (p *Payee) setFee(baseFee, walletMin, feeSlewEnd int64) {
	p.Fee = feeForAmount(p.Amount, baseFee, walletMin, feeSlewEnd)
}

// netAmount returns the value actually transferred to the payee.
func (p *Payee) netAmount() int64 {
	return p.Amount - p.Fee
}
