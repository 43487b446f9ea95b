// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import "testing"

func TestFeeForAmount(t *testing.T) {
	const (
		baseFee    = int64(100)
		walletMin  = int64(1000)
		feeSlewEnd = int64(2000)
	)

	tests := []struct {
		name    string
		amount  int64
		wantFee int64
	}{{
		name:    "below minimum pays the base fee",
		amount:  500,
		wantFee: 100,
	}, {
		name:    "at minimum pays the base fee",
		amount:  1000,
		wantFee: 100,
	}, {
		name:    "halfway through the slew pays half",
		amount:  1500,
		wantFee: 50,
	}, {
		name:    "at slew end pays nothing",
		amount:  2000,
		wantFee: 0,
	}, {
		name:    "above slew end pays nothing",
		amount:  5000,
		wantFee: 0,
	}, {
		name:    "fee never exceeds the amount",
		amount:  50,
		wantFee: 50,
	}}

	for _, test := range tests {
		fee := feeForAmount(test.amount, baseFee, walletMin, feeSlewEnd)
		if fee != test.wantFee {
			t.Errorf("%q: expected fee %d for amount %d, got %d",
				test.name, test.wantFee, test.amount, fee)
		}
	}

	// The fee must never increase with the amount.
	prev := feeForAmount(1, baseFee, walletMin, feeSlewEnd)
	for amount := int64(2); amount <= 2500; amount++ {
		fee := feeForAmount(amount, baseFee, walletMin, feeSlewEnd)
		if fee > prev && amount > walletMin {
			t.Fatalf("fee increased from %d to %d at amount %d",
				prev, fee, amount)
		}
		prev = fee
	}
}

func TestPayeeID(t *testing.T) {
	payee := NewPayee(&BalanceRow{
		ID:      1,
		Amount:  5000,
		Address: "ccx7addr",
	})
	if payee.ID() != "ccx7addr" {
		t.Fatalf("expected bare address identifier, got %s", payee.ID())
	}

	payee = NewPayee(&BalanceRow{
		ID:        2,
		Amount:    5000,
		Address:   "ccx7addr",
		PaymentID: "deadbeef",
	})
	if payee.ID() != "ccx7addr.deadbeef" {
		t.Fatalf("expected qualified identifier, got %s", payee.ID())
	}
}

func TestPayeeNetAmount(t *testing.T) {
	payee := NewPayee(&BalanceRow{ID: 1, Amount: 1500, Address: "ccx7addr"})
	payee.setFee(100, 1000, 2000)
	if payee.Fee != 50 {
		t.Fatalf("expected a fee of 50, got %d", payee.Fee)
	}
	if payee.netAmount() != 1450 {
		t.Fatalf("expected a net amount of 1450, got %d", payee.netAmount())
	}
}
