// Copyright (c) 2023-2024 The cnpool developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPaymentQueueSerialization(t *testing.T) {
	var active int32
	var maxActive int32
	var processed []int64

	var mtx sync.Mutex
	process := func(_ context.Context, task *paymentRequest) {
		n := atomic.AddInt32(&active, 1)
		if n > atomic.LoadInt32(&maxActive) {
			atomic.StoreInt32(&maxActive, n)
		}
		time.Sleep(time.Millisecond)
		mtx.Lock()
		processed = append(processed, task.req.totalAmount())
		mtx.Unlock()
		atomic.AddInt32(&active, -1)
	}
	queue := newPaymentQueue(process, func() {})

	ctx := context.Background()
	var reqs []*paymentRequest
	for i := int64(1); i <= 10; i++ {
		reqs = append(reqs, &paymentRequest{
			req: &TransferRequest{
				Transfers: []Transfer{{Amount: i, Address: "ccx7addr"}},
			},
		})
	}
	queue.push(ctx, reqs[:5]...)
	queue.push(ctx, reqs[5:]...)
	queue.wait()

	if maxActive != 1 {
		t.Fatalf("expected a task concurrency of 1, got %d", maxActive)
	}
	if len(processed) != 10 {
		t.Fatalf("expected 10 processed tasks, got %d", len(processed))
	}
	for i, amount := range processed {
		if amount != int64(i+1) {
			t.Fatalf("expected task %d at position %d, got %d",
				i+1, i, amount)
		}
	}
}

func TestPaymentQueueDrain(t *testing.T) {
	drained := make(chan struct{}, 4)
	queue := newPaymentQueue(
		func(context.Context, *paymentRequest) {},
		func() { drained <- struct{}{} })

	ctx := context.Background()
	queue.push(ctx, &paymentRequest{req: &TransferRequest{}})
	queue.wait()

	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a drain notification")
	}

	// The drain hook runs again after every refill.
	queue.push(ctx, &paymentRequest{req: &TransferRequest{}},
		&paymentRequest{req: &TransferRequest{}})
	queue.wait()

	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a second drain notification")
	}
}
