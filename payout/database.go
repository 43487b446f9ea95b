// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

// BalanceRow represents a ledger balance row owed to a payout destination.
// The engine only ever decrements the amount, and only after the owning
// wallet transaction is confirmed.
type BalanceRow struct {
	ID           int64
	Amount       int64
	Address      string
	PaymentID    string
	PoolType     string
	ForeignChain bool
}

// TransactionRecord represents a broadcast wallet transaction. One record
// covers a single payee for individual payments or many payees for batched
// payments, in which case the address and payment identifier are empty.
type TransactionRecord struct {
	ForeignChain bool
	Address      string
	PaymentID    string
	TotalAmount  int64
	TxHash       string
	MixIn        uint32
	Fee          int64
	Payees       uint32
	CreatedOn    int64
}

// PaymentRecord represents the bookkeeping row written for a payee once its
// wallet transaction is confirmed. Amount is the net value transferred after
// the payout fee deduction.
type PaymentRecord struct {
	UnlockedOn    int64
	PaidOn        int64
	PoolType      string
	Address       string
	TransactionID int64
	ForeignChain  bool
	Amount        int64
	PaymentID     string
	TransferFee   int64
}

// Ledger describes all of the functionality needed from the external balance
// ledger by the payout engine.
type Ledger interface {
	// fetchEligibleBalances returns all balance rows with an amount at or
	// above the provided minimum payout unit.
	fetchEligibleBalances(min int64) ([]*BalanceRow, error)

	// fetchPayoutThreshold returns the configured payout threshold of the
	// user referenced by the provided identifier, zero if absent.
	fetchPayoutThreshold(id string) (int64, error)

	// decrementBalance reduces the referenced balance row by the provided
	// pre-fee amount.
	decrementBalance(id int64, amount int64) error

	// persistTransaction stores a wallet transaction record and returns
	// the identifier of the created row.
	persistTransaction(txn *TransactionRecord) (int64, error)

	// persistPayment stores a payment bookkeeping row.
	persistPayment(pmt *PaymentRecord) error

	// Close terminates the ledger connection.
	Close() error
}
