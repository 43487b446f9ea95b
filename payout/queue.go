// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import (
	"context"
	"sync"
)

// paymentQueue is a strictly serialized task runner for wallet transaction
// requests. Tasks execute in FIFO order with a concurrency of exactly one,
// so the engine never races itself against the wallet's own balance
// bookkeeping. The onDrain hook runs every time the queue empties.
type paymentQueue struct {
	mtx     sync.Mutex
	tasks   []*paymentRequest
	busy    bool
	wg      sync.WaitGroup
	process func(context.Context, *paymentRequest)
	onDrain func()
}

// newPaymentQueue creates a payment queue with the provided task processor
// and drain hook.
func newPaymentQueue(process func(context.Context, *paymentRequest), onDrain func()) *paymentQueue {
	return &paymentQueue{
		process: process,
		onDrain: onDrain,
	}
}

// push appends the provided requests to the queue and starts the worker if
// it is not already running.
func (q *paymentQueue) push(ctx context.Context, reqs ...*paymentRequest) {
	if len(reqs) == 0 {
		return
	}
	q.mtx.Lock()
	q.tasks = append(q.tasks, reqs...)
	q.wg.Add(len(reqs))
	if q.busy {
		q.mtx.Unlock()
		return
	}
	q.busy = true
	q.mtx.Unlock()
	go q.dispatch(ctx)
}

// dispatch runs queued tasks one at a time until the queue empties, then
// invokes the drain hook and exits.
func (q *paymentQueue) dispatch(ctx context.Context) {
	for {
		q.mtx.Lock()
		if len(q.tasks) == 0 {
			q.busy = false
			q.mtx.Unlock()
			q.onDrain()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mtx.Unlock()

		q.process(ctx, task)
		q.wg.Done()
	}
}

// wait blocks until all pushed tasks have been processed.
func (q *paymentQueue) wait() {
	q.wg.Wait()
}
