// Copyright (c) 2023 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cnpool/payoutd/errors"
)

// DecimalToCoin converts the provided decimal coin amount to atomic units
// using the significant digits of the coin. The conversion is exact; amounts
// with a fractional atomic component are rejected rather than rounded since
// payout arithmetic must never invent or discard value.
func DecimalToCoin(amount string, sigDigits int64) (int64, error) {
	const funcName = "DecimalToCoin"
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to parse amount %s: %v",
			funcName, amount, err)
		return 0, errors.PoolError(errors.CreateAmount, desc)
	}
	atoms := dec.Mul(decimal.NewFromInt(sigDigits))
	if !atoms.IsInteger() {
		desc := fmt.Sprintf("%s: amount %s is not representable in "+
			"atomic units", funcName, amount)
		return 0, errors.PoolError(errors.CreateAmount, desc)
	}
	if !atoms.BigInt().IsInt64() {
		desc := fmt.Sprintf("%s: amount %s overflows atomic units",
			funcName, amount)
		return 0, errors.PoolError(errors.CreateAmount, desc)
	}
	return atoms.IntPart(), nil
}

// CoinToDecimal converts the provided atomic unit amount to a decimal coin
// string using the significant digits of the coin.
func CoinToDecimal(atoms int64, sigDigits int64) string {
	return decimal.NewFromInt(atoms).
		Div(decimal.NewFromInt(sigDigits)).String()
}
