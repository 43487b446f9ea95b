// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

const (
	createTableBalances = `
	CREATE TABLE IF NOT EXISTS balances (
		id             BIGSERIAL PRIMARY KEY,
		amount         INT8 NOT NULL,
		paymentaddress TEXT NOT NULL,
		paymentid      TEXT,
		pooltype       TEXT NOT NULL,
		foreignchain   BOOLEAN NOT NULL DEFAULT FALSE
	);`

	createTableUsers = `
	CREATE TABLE IF NOT EXISTS users (
		paymentaddress  TEXT PRIMARY KEY,
		payoutthreshold INT8 NOT NULL DEFAULT 0
	);`

	createTableTransactions = `
	CREATE TABLE IF NOT EXISTS transactions (
		id              BIGSERIAL PRIMARY KEY,
		foreignchain    BOOLEAN NOT NULL DEFAULT FALSE,
		address         TEXT,
		paymentid       TEXT,
		totalamount     INT8 NOT NULL,
		transactionhash TEXT NOT NULL,
		mixin           INT8 NOT NULL,
		fees            INT8 NOT NULL,
		payees          INT8 NOT NULL,
		createdon       INT8 NOT NULL
	);`

	createTablePayments = `
	CREATE TABLE IF NOT EXISTS payments (
		id             BIGSERIAL PRIMARY KEY,
		unlockedon     INT8 NOT NULL,
		paidon         INT8 NOT NULL,
		pooltype       TEXT NOT NULL,
		paymentaddress TEXT NOT NULL,
		transactionid  INT8 NOT NULL,
		foreignchain   BOOLEAN NOT NULL DEFAULT FALSE,
		amount         INT8 NOT NULL,
		paymentid      TEXT,
		transferfee    INT8 NOT NULL
	);`

	selectEligibleBalances = `SELECT id, amount, paymentaddress, paymentid,
		pooltype, foreignchain FROM balances WHERE amount >= $1
		ORDER BY id;`

	selectPayoutThreshold = `SELECT payoutthreshold FROM users
		WHERE paymentaddress = $1;`

	decrementBalanceAmount = `UPDATE balances SET amount = amount - $2
		WHERE id = $1 AND amount >= $2;`

	insertTransaction = `INSERT INTO transactions (foreignchain, address,
		paymentid, totalamount, transactionhash, mixin, fees, payees,
		createdon) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id;`

	insertPayment = `INSERT INTO payments (unlockedon, paidon, pooltype,
		paymentaddress, transactionid, foreignchain, amount, paymentid,
		transferfee) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
)
