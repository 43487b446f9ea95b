// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package errors

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific error.
const (
	// ------------------------------------------
	// Errors related to ledger and cache storage.
	// ------------------------------------------

	// ValueNotFound indicates no value found.
	ValueNotFound = ErrorKind("ValueNotFound")

	// DBOpen indicates a database open error.
	DBOpen = ErrorKind("DBOpen")

	// DBClose indicates a database close error.
	DBClose = ErrorKind("DBClose")

	// BucketCreate indicates a bucket creation error.
	BucketCreate = ErrorKind("BucketCreate")

	// BucketNotFound indicates a missing bucket error.
	BucketNotFound = ErrorKind("BucketNotFound")

	// PersistEntry indicates a database persistence error.
	PersistEntry = ErrorKind("PersistEntry")

	// FetchEntry indicates a database entry fetching error.
	FetchEntry = ErrorKind("FetchEntry")

	// DeleteEntry indicates a database entry delete error.
	DeleteEntry = ErrorKind("DeleteEntry")

	// Parse indicates a parsing error.
	Parse = ErrorKind("Parse")

	// ------------------------------------------
	// Errors related to payout operations.
	// ------------------------------------------

	// InsufficientFunds indicates the wallet does not have enough
	// unlocked balance to fund a transfer request.
	InsufficientFunds = ErrorKind("InsufficientFunds")

	// WalletResponse indicates a malformed or unusable wallet response.
	WalletResponse = ErrorKind("WalletResponse")

	// GetBalance indicates a wallet balance query error.
	GetBalance = ErrorKind("GetBalance")

	// SendTx indicates a transfer submission error.
	SendTx = ErrorKind("SendTx")

	// FetchTx indicates a transaction lookup error.
	FetchTx = ErrorKind("FetchTx")

	// WalletSave indicates a wallet state persistence error.
	WalletSave = ErrorKind("WalletSave")

	// Disconnected indicates a disconnected resource.
	Disconnected = ErrorKind("Disconnected")

	// Halted indicates the payout scheduler has been halted due to a
	// fatal wallet error and requires a manual restart.
	Halted = ErrorKind("Halted")

	// CreateAmount indicates an amount creation error.
	CreateAmount = ErrorKind("CreateAmount")

	// Notify indicates a notification delivery error.
	Notify = ErrorKind("Notify")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error. It has full support for errors.Is and
// errors.As, so the caller can ascertain the specific reason for
// the error by checking the underlying error.
type Error struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// PoolError creates an Error given a set of arguments. This should only be
// used when creating errors related to the payout engine and its processes.
func PoolError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// DBError creates an Error given a set of arguments. This should only be
// used when creating errors related to the ledger and cache databases.
func DBError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// WalletError creates an Error given a set of arguments. This should only
// be used when creating errors related to wallet RPC requests and their
// responses.
func WalletError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
