// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	errs "github.com/cnpool/payoutd/errors"
)

// CacheVersion is the version of the cache file format.
const CacheVersion = 1

var (
	// payoutBkt is the main bucket of the cache, all keys live in it.
	payoutBkt = []byte("payoutbkt")
	// versionK is the key of the current version of the cache.
	versionK = []byte("version")
	// lastPaymentCycleK is the key of the last time a payment cycle
	// completed.
	lastPaymentCycleK = []byte("lastpaymentcycle")
)

// Cache is a local bolt-backed metadata store for payout state that does not
// belong in the shared ledger.
type Cache struct {
	DB *bolt.DB
}

// unixToBigEndianBytes returns the big-endian encoding of the provided unix
// timestamp.
func unixToBigEndianBytes(ts int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(ts))
	return b
}

// bigEndianBytesToUnix returns the unix timestamp encoded by the provided
// big-endian bytes.
func bigEndianBytesToUnix(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// fetchPayoutBucket is a helper function for getting the payout bucket.
func fetchPayoutBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	const funcName = "fetchPayoutBucket"
	pbkt := tx.Bucket(payoutBkt)
	if pbkt == nil {
		desc := fmt.Sprintf("%s: bucket %s not found", funcName,
			string(payoutBkt))
		return nil, errs.DBError(errs.BucketNotFound, desc)
	}
	return pbkt, nil
}

// InitCache opens the cache file at the provided path, creating the file and
// its buckets when they do not exist yet.
func InitCache(path string) (*Cache, error) {
	const funcName = "InitCache"
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		desc := fmt.Sprintf("%s: unable to open cache file: %v",
			funcName, err)
		return nil, errs.DBError(errs.DBOpen, desc)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		pbkt := tx.Bucket(payoutBkt)
		if pbkt != nil {
			return nil
		}
		pbkt, err := tx.CreateBucketIfNotExists(payoutBkt)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to create %s bucket: %v",
				funcName, string(payoutBkt), err)
			return errs.DBError(errs.BucketCreate, desc)
		}
		vbytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(vbytes, CacheVersion)
		err = pbkt.Put(versionK, vbytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist version: %v",
				funcName, err)
			return errs.DBError(errs.PersistEntry, desc)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{DB: db}, nil
}

// persistLastPaymentCycle stores the completion time of the most recent
// payment cycle.
func (c *Cache) persistLastPaymentCycle(ts int64) error {
	const funcName = "persistLastPaymentCycle"
	return c.DB.Update(func(tx *bolt.Tx) error {
		pbkt, err := fetchPayoutBucket(tx)
		if err != nil {
			return err
		}
		err = pbkt.Put(lastPaymentCycleK, unixToBigEndianBytes(ts))
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist last payment "+
				"cycle time: %v", funcName, err)
			return errs.DBError(errs.PersistEntry, desc)
		}
		return nil
	})
}

// FetchLastPaymentCycle retrieves the completion time of the most recent
// payment cycle.
func (c *Cache) FetchLastPaymentCycle() (int64, error) {
	const funcName = "FetchLastPaymentCycle"
	var ts int64
	err := c.DB.View(func(tx *bolt.Tx) error {
		pbkt, err := fetchPayoutBucket(tx)
		if err != nil {
			return err
		}
		b := pbkt.Get(lastPaymentCycleK)
		if b == nil {
			desc := fmt.Sprintf("%s: no payment cycle recorded yet",
				funcName)
			return errs.DBError(errs.ValueNotFound, desc)
		}
		ts = bigEndianBytesToUnix(b)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ts, nil
}

// Close closes the cache file.
func (c *Cache) Close() error {
	const funcName = "Close"
	err := c.DB.Close()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to close cache: %v", funcName, err)
		return errs.DBError(errs.DBClose, desc)
	}
	return nil
}
