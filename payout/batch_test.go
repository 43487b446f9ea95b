// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import (
	"testing"
	"time"
)

func testPayoutMgrConfig() *PayoutMgrConfig {
	return &PayoutMgrConfig{
		PaymentInterval: time.Minute,
		RetryInterval:   time.Minute,
		WalletMin:       1000,
		BaseFee:         100,
		FeeSlewEnd:      2000,
		ExchangeMin:     50000,
		FeesForTXN:      5000,
		DustUnit:        10,
		SigDigits:       1000000000,
		MaxPaymentTxns:  3,
		MixIn:           3,
		TxFee:           40,
		UnlockTime:      0,
		FeeAddress:      "ccx7fees",
		PoolAddress:     "ccx7pool",
		CoinSymbol:      "XCN",
		IsIntegratedAddress: func(addr string) bool {
			return len(addr) == 106
		},
	}
}

func TestBatchPayees(t *testing.T) {
	makePayees := func(n int) []*Payee {
		payees := make([]*Payee, n)
		for i := range payees {
			payees[i] = &Payee{Amount: int64(i + 1)}
		}
		return payees
	}

	tests := []struct {
		name       string
		payees     int
		maxPerTxn  int
		wantGroups []int
	}{{
		name:       "no payees",
		payees:     0,
		maxPerTxn:  3,
		wantGroups: nil,
	}, {
		name:       "single partial group",
		payees:     2,
		maxPerTxn:  3,
		wantGroups: []int{2},
	}, {
		name:       "one transfer per transaction",
		payees:     2,
		maxPerTxn:  1,
		wantGroups: []int{1, 1},
	}, {
		name:       "exact multiple",
		payees:     6,
		maxPerTxn:  3,
		wantGroups: []int{3, 3},
	}, {
		name:       "remainder group",
		payees:     7,
		maxPerTxn:  3,
		wantGroups: []int{3, 3, 1},
	}}

	for _, test := range tests {
		groups := batchPayees(makePayees(test.payees), test.maxPerTxn)
		if len(groups) != len(test.wantGroups) {
			t.Fatalf("%q: expected %d groups, got %d", test.name,
				len(test.wantGroups), len(groups))
		}
		seen := 0
		for i, group := range groups {
			if len(group) != test.wantGroups[i] {
				t.Fatalf("%q: expected group %d to have %d payees, "+
					"got %d", test.name, i, test.wantGroups[i],
					len(group))
			}
			for _, payee := range group {
				seen++
				if payee.Amount != int64(seen) {
					t.Fatalf("%q: payee order not preserved",
						test.name)
				}
			}
		}
	}
}

func TestNewBatchRequest(t *testing.T) {
	pm, err := NewPayoutMgr(testPayoutMgrConfig())
	if err != nil {
		t.Fatalf("unexpected payout manager error: %v", err)
	}

	group := []*Payee{
		{Amount: 1500, Fee: 50, Address: "ccx7one"},
		{Amount: 3000, Address: "ccx7two"},
	}
	task := pm.newBatchRequest(group)
	if len(task.req.Transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(task.req.Transfers))
	}
	if task.req.Transfers[0].Amount != 1450 {
		t.Fatalf("expected the first transfer to be net of the payout "+
			"fee, got %d", task.req.Transfers[0].Amount)
	}
	if task.req.ChangeAddress != "ccx7pool" {
		t.Fatalf("expected the pool change address, got %s",
			task.req.ChangeAddress)
	}
	if task.req.PaymentID != "" {
		t.Fatalf("expected no payment id on a batch request, got %s",
			task.req.PaymentID)
	}
	if task.req.totalAmount() != 4450 {
		t.Fatalf("expected a total of 4450, got %d", task.req.totalAmount())
	}
}

func TestNewPaymentIDRequest(t *testing.T) {
	pm, err := NewPayoutMgr(testPayoutMgrConfig())
	if err != nil {
		t.Fatalf("unexpected payout manager error: %v", err)
	}

	payee := &Payee{
		Amount:    60000,
		Address:   "ccx7exchange",
		PaymentID: "deadbeef",
	}
	task := pm.newPaymentIDRequest(payee)
	if len(task.req.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(task.req.Transfers))
	}
	if task.req.PaymentID != "deadbeef" {
		t.Fatalf("expected the payee's payment id, got %q",
			task.req.PaymentID)
	}
	if task.req.Transfers[0].Address != "ccx7exchange" {
		t.Fatalf("unexpected transfer address %s",
			task.req.Transfers[0].Address)
	}
}
