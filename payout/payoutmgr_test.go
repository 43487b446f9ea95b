// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import (
	"context"
	"path/filepath"
	"testing"

	errs "github.com/cnpool/payoutd/errors"
)

// fakeWallet is an in-memory WalletClient implementation for tests.
type fakeWallet struct {
	balance    int64
	balanceErr error
	sendResult *SendResult
	sendErr    error
	lookupFee  int64
	lookupErr  error
	sends      []*TransferRequest
	saves      int
}

func (w *fakeWallet) Balance(ctx context.Context) (int64, error) {
	return w.balance, w.balanceErr
}

func (w *fakeWallet) SendTransaction(ctx context.Context, req *TransferRequest) (*SendResult, error) {
	if w.sendErr != nil {
		return nil, w.sendErr
	}
	w.sends = append(w.sends, req)
	return w.sendResult, nil
}

func (w *fakeWallet) TransactionFee(ctx context.Context, txHash string) (int64, error) {
	return w.lookupFee, w.lookupErr
}

func (w *fakeWallet) Save(ctx context.Context) error {
	w.saves++
	return nil
}

func newTestPayoutMgr(t *testing.T, ledger *fakeLedger, wallet *fakeWallet) *PayoutMgr {
	t.Helper()
	cache, err := InitCache(filepath.Join(t.TempDir(), "payoutd.kv"))
	if err != nil {
		t.Fatalf("unexpected cache error: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	cfg := testPayoutMgrConfig()
	cfg.Ledger = ledger
	cfg.Cache = cache
	cfg.Wallet = wallet
	pm, err := NewPayoutMgr(cfg)
	if err != nil {
		t.Fatalf("unexpected payout manager error: %v", err)
	}
	return pm
}

func (pm *PayoutMgr) retryState() (armed, halted bool) {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	return pm.retryArmed, pm.halted
}

func TestProcessPaymentSuccess(t *testing.T) {
	ledger := newFakeLedger()
	wallet := &fakeWallet{
		balance: 1_000_000,
		// The hash arrives with wrapping noise and the send call does
		// not report the fee.
		sendResult: &SendResult{TransactionHash: "\"900fabc\""},
		lookupFee:  500,
	}
	pm := newTestPayoutMgr(t, ledger, wallet)

	var announced string
	pm.cfg.AnnouncePayout = func(msg string) { announced = msg }

	group := []*Payee{
		{Amount: 1500, Fee: 50, Address: "ccx7one", LedgerRowID: 1},
		{Amount: 3000, Address: "ccx7two", LedgerRowID: 2},
	}
	pm.processPayment(context.Background(), pm.newBatchRequest(group))

	if len(ledger.txns) != 1 {
		t.Fatalf("expected 1 persisted transaction, got %d",
			len(ledger.txns))
	}
	txn := ledger.txns[0]
	if txn.TxHash != "900fabc" {
		t.Fatalf("expected a normalized transaction hash, got %q",
			txn.TxHash)
	}
	if txn.TotalAmount != 4500 {
		t.Fatalf("expected a pre-fee total of 4500, got %d",
			txn.TotalAmount)
	}
	if txn.Fee != 500 {
		t.Fatalf("expected the looked-up network fee, got %d", txn.Fee)
	}
	if txn.Payees != 2 {
		t.Fatalf("expected 2 covered payees, got %d", txn.Payees)
	}
	if txn.Address != "" {
		t.Fatalf("expected no address on a batched transaction, got %s",
			txn.Address)
	}

	// Balances are decremented by the full pre-fee amounts.
	if ledger.decrements[1] != 1500 || ledger.decrements[2] != 3000 {
		t.Fatalf("unexpected balance decrements: %v", ledger.decrements)
	}
	if len(ledger.payments) != 2 {
		t.Fatalf("expected 2 payment records, got %d",
			len(ledger.payments))
	}
	if ledger.payments[0].Amount != 1450 {
		t.Fatalf("expected a net payment of 1450, got %d",
			ledger.payments[0].Amount)
	}
	if ledger.payments[0].TransferFee != 50 {
		t.Fatalf("expected a transfer fee of 50, got %d",
			ledger.payments[0].TransferFee)
	}

	if announced == "" {
		t.Fatal("expected a payout announcement")
	}

	if armed, halted := pm.retryState(); armed || halted {
		t.Fatal("expected no retry or halt after a successful payment")
	}
}

func TestProcessPaymentSinglePayeeRecord(t *testing.T) {
	ledger := newFakeLedger()
	wallet := &fakeWallet{
		balance:    1_000_000,
		sendResult: &SendResult{TransactionHash: "abc123", Fee: 400},
	}
	pm := newTestPayoutMgr(t, ledger, wallet)

	payee := &Payee{
		Amount:      60000,
		Address:     "ccx7exchange",
		PaymentID:   "deadbeef",
		LedgerRowID: 7,
	}
	pm.processPayment(context.Background(), pm.newPaymentIDRequest(payee))

	if len(ledger.txns) != 1 {
		t.Fatalf("expected 1 persisted transaction, got %d",
			len(ledger.txns))
	}
	txn := ledger.txns[0]
	if txn.Address != "ccx7exchange" || txn.PaymentID != "deadbeef" {
		t.Fatalf("expected the destination on a single-payee "+
			"transaction, got %s/%s", txn.Address, txn.PaymentID)
	}
	if txn.Fee != 400 {
		t.Fatalf("expected the wallet-reported fee without a lookup, "+
			"got %d", txn.Fee)
	}
}

func TestProcessPaymentBalancePreCheck(t *testing.T) {
	ledger := newFakeLedger()
	wallet := &fakeWallet{balance: 10}
	pm := newTestPayoutMgr(t, ledger, wallet)

	group := []*Payee{{Amount: 1500, Address: "ccx7one", LedgerRowID: 1}}
	pm.processPayment(context.Background(), pm.newBatchRequest(group))
	defer pm.stopPaymentTimer()

	if len(wallet.sends) != 0 {
		t.Fatal("expected no send with an insufficient unlocked balance")
	}
	if len(ledger.txns) != 0 || len(ledger.decrements) != 0 {
		t.Fatal("expected no bookkeeping without a broadcast")
	}
	armed, halted := pm.retryState()
	if !armed {
		t.Fatal("expected the retry timer to be armed")
	}
	if halted {
		t.Fatal("expected payouts to remain active")
	}

	// A second insufficient outcome within the same cycle must not arm
	// another retry.
	pm.mtx.Lock()
	timer := pm.retryTimer
	pm.mtx.Unlock()
	pm.processPayment(context.Background(), pm.newBatchRequest(group))
	pm.mtx.Lock()
	sameTimer := pm.retryTimer == timer
	pm.mtx.Unlock()
	if !sameTimer {
		t.Fatal("expected the retry guard to prevent rearming")
	}
	timer.Stop()
}

func TestProcessPaymentWalletInsufficient(t *testing.T) {
	ledger := newFakeLedger()
	wallet := &fakeWallet{
		balance: 1_000_000,
		sendErr: errs.WalletError(errs.InsufficientFunds,
			"wallet reports insufficient unlocked funds"),
	}
	pm := newTestPayoutMgr(t, ledger, wallet)

	group := []*Payee{{Amount: 1500, Address: "ccx7one", LedgerRowID: 1}}
	pm.processPayment(context.Background(), pm.newBatchRequest(group))

	armed, halted := pm.retryState()
	if !armed || halted {
		t.Fatalf("expected a retry without a halt, got armed=%v "+
			"halted=%v", armed, halted)
	}
	if len(ledger.txns) != 0 {
		t.Fatal("expected no bookkeeping after a rejected send")
	}
	pm.mtx.Lock()
	pm.retryTimer.Stop()
	pm.mtx.Unlock()
}

func TestProcessPaymentFatalError(t *testing.T) {
	ledger := newFakeLedger()
	wallet := &fakeWallet{
		balance: 1_000_000,
		sendErr: errs.WalletError(errs.SendTx, "wallet error on "+
			"sendTransaction: internal error (code -32000)"),
	}
	pm := newTestPayoutMgr(t, ledger, wallet)

	var emails []string
	pm.cfg.SendAdminEmail = func(subject, body string) {
		emails = append(emails, subject)
	}

	group := []*Payee{{Amount: 1500, Address: "ccx7one", LedgerRowID: 1}}
	pm.processPayment(context.Background(), pm.newBatchRequest(group))

	armed, halted := pm.retryState()
	if !halted {
		t.Fatal("expected payouts to be halted after a fatal error")
	}
	if armed {
		t.Fatal("expected no retry after a fatal error")
	}
	if len(emails) != 1 {
		t.Fatalf("expected 1 admin email, got %d", len(emails))
	}
	if len(ledger.txns) != 0 {
		t.Fatal("expected no bookkeeping after a fatal error")
	}

	// Another fatal outcome must not email the operator again.
	pm.processPayment(context.Background(), pm.newBatchRequest(group))
	if len(emails) != 1 {
		t.Fatalf("expected no repeat admin email, got %d", len(emails))
	}

	// A drained queue must not re-arm the payment timer while halted.
	pm.handleQueueDrain()
	pm.mtx.Lock()
	timer := pm.paymentTimer
	pm.mtx.Unlock()
	if timer != nil {
		t.Fatal("expected no payment timer while halted")
	}
}

func TestProcessPaymentImplausibleFee(t *testing.T) {
	ledger := newFakeLedger()
	wallet := &fakeWallet{
		balance:    1_000_000,
		sendResult: &SendResult{TransactionHash: "abc123", Fee: 5},
	}
	pm := newTestPayoutMgr(t, ledger, wallet)

	group := []*Payee{{Amount: 1500, Address: "ccx7one", LedgerRowID: 1}}
	pm.processPayment(context.Background(), pm.newBatchRequest(group))

	if len(ledger.txns) != 0 || len(ledger.decrements) != 0 {
		t.Fatal("expected no bookkeeping with an implausible fee")
	}
	if armed, halted := pm.retryState(); armed || halted {
		t.Fatal("expected no retry or halt for a recorded-payment skip")
	}
}

func TestProcessPaymentUnusableHash(t *testing.T) {
	ledger := newFakeLedger()
	wallet := &fakeWallet{
		balance:    1_000_000,
		sendResult: &SendResult{TransactionHash: "XYZ", Fee: 400},
	}
	pm := newTestPayoutMgr(t, ledger, wallet)

	group := []*Payee{{Amount: 1500, Address: "ccx7one", LedgerRowID: 1}}
	pm.processPayment(context.Background(), pm.newBatchRequest(group))

	if len(ledger.txns) != 0 {
		t.Fatal("expected no bookkeeping with an unusable hash")
	}
}

func TestHandleQueueDrain(t *testing.T) {
	ledger := newFakeLedger()
	wallet := &fakeWallet{balance: 10}
	pm := newTestPayoutMgr(t, ledger, wallet)

	// Put the manager into the retry state first.
	group := []*Payee{{Amount: 1500, Address: "ccx7one", LedgerRowID: 1}}
	pm.processPayment(context.Background(), pm.newBatchRequest(group))
	if armed, _ := pm.retryState(); !armed {
		t.Fatal("expected the retry timer to be armed")
	}

	pm.handleQueueDrain()
	defer pm.stopPaymentTimer()

	if armed, _ := pm.retryState(); armed {
		t.Fatal("expected the retry guard to clear on drain")
	}
	pm.mtx.Lock()
	timer := pm.paymentTimer
	retryTimer := pm.retryTimer
	pm.mtx.Unlock()
	if timer == nil {
		t.Fatal("expected the payment timer to be re-armed on drain")
	}
	retryTimer.Stop()

	if _, err := pm.cfg.Cache.FetchLastPaymentCycle(); err != nil {
		t.Fatalf("expected a recorded payment cycle time: %v", err)
	}
}
