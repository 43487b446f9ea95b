// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	errs "github.com/cnpool/payoutd/errors"
)

// PostgresLedger is the shared pool ledger backed by a postgres database.
type PostgresLedger struct {
	DB *sql.DB
}

// InitPostgresLedger connects to the specified database and creates all
// tables required by the payout daemon.
func InitPostgresLedger(host string, port uint32, user, pass, dbName string) (*PostgresLedger, error) {
	const funcName = "InitPostgresLedger"

	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s "+
		"password=%s dbname=%s sslmode=disable",
		host, port, user, pass, dbName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to open postgres: %v", funcName, err)
		return nil, errs.DBError(errs.DBOpen, desc)
	}

	// Send a Ping() to validate the db connection. This is because the Open()
	// func does not actually create a connection to the database, it just
	// validates the provided arguments.
	err = db.Ping()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to connect to postgres: %v",
			funcName, err)
		return nil, errs.DBError(errs.DBOpen, desc)
	}

	for _, stmt := range []string{createTableBalances, createTableUsers,
		createTableTransactions, createTablePayments} {
		_, err = db.Exec(stmt)
		if err != nil {
			return nil, err
		}
	}

	return &PostgresLedger{db}, nil
}

// Close closes the postgres database connection.
func (db *PostgresLedger) Close() error {
	return db.DB.Close()
}

// nullableString maps an empty string to a SQL NULL.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// fetchEligibleBalances fetches every balance row at or above the provided
// minimum amount.
func (db *PostgresLedger) fetchEligibleBalances(min int64) ([]*BalanceRow, error) {
	const funcName = "fetchEligibleBalances"
	rows, err := db.DB.Query(selectEligibleBalances, min)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to query balances: %v",
			funcName, err)
		return nil, errs.DBError(errs.FetchEntry, desc)
	}
	defer rows.Close()

	var toReturn []*BalanceRow
	for rows.Next() {
		var row BalanceRow
		var paymentID sql.NullString
		err := rows.Scan(&row.ID, &row.Amount, &row.Address, &paymentID,
			&row.PoolType, &row.ForeignChain)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan balance row: %v",
				funcName, err)
			return nil, errs.DBError(errs.FetchEntry, desc)
		}
		row.PaymentID = paymentID.String
		toReturn = append(toReturn, &row)
	}
	err = rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to read balance rows: %v",
			funcName, err)
		return nil, errs.DBError(errs.FetchEntry, desc)
	}
	return toReturn, nil
}

// fetchPayoutThreshold fetches the custom payout threshold configured for the
// provided payment address. Returns an error with kind ValueNotFound when the
// address has no threshold configured.
func (db *PostgresLedger) fetchPayoutThreshold(address string) (int64, error) {
	const funcName = "fetchPayoutThreshold"
	var threshold int64
	err := db.DB.QueryRow(selectPayoutThreshold, address).Scan(&threshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			desc := fmt.Sprintf("%s: no threshold found for address %s",
				funcName, address)
			return 0, errs.DBError(errs.ValueNotFound, desc)
		}
		return 0, err
	}
	return threshold, nil
}

// decrementBalance subtracts the provided amount from the referenced balance
// row. The subtraction is conditional on the row still holding at least that
// amount, which prevents a double payment from driving a balance negative.
func (db *PostgresLedger) decrementBalance(id int64, amount int64) error {
	const funcName = "decrementBalance"
	res, err := db.DB.Exec(decrementBalanceAmount, id, amount)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to update balance row %d: %v",
			funcName, id, err)
		return errs.DBError(errs.PersistEntry, desc)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		desc := fmt.Sprintf("%s: balance row %d missing or below %d",
			funcName, id, amount)
		return errs.DBError(errs.PersistEntry, desc)
	}
	return nil
}

// persistTransaction saves a wallet transaction record to the database and
// returns its assigned id.
func (db *PostgresLedger) persistTransaction(txn *TransactionRecord) (int64, error) {
	const funcName = "persistTransaction"
	var id int64
	err := db.DB.QueryRow(insertTransaction, txn.ForeignChain,
		nullableString(txn.Address), nullableString(txn.PaymentID),
		txn.TotalAmount, txn.TxHash, txn.MixIn, txn.Fee, txn.Payees,
		txn.CreatedOn).Scan(&id)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to persist transaction %s: %v",
			funcName, txn.TxHash, err)
		return 0, errs.DBError(errs.PersistEntry, desc)
	}
	return id, nil
}

// persistPayment saves a per-payee payment record to the database.
func (db *PostgresLedger) persistPayment(p *PaymentRecord) error {
	const funcName = "persistPayment"
	_, err := db.DB.Exec(insertPayment, p.UnlockedOn, p.PaidOn, p.PoolType,
		p.Address, p.TransactionID, p.ForeignChain, p.Amount,
		nullableString(p.PaymentID), p.TransferFee)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to persist payment for %s: %v",
			funcName, p.Address, err)
		return errs.DBError(errs.PersistEntry, desc)
	}
	return nil
}
