package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/ports"
)

// LockerContractTest is a reusable test suite that verifies if an adapter complies with ports.DistributedLocker.
func LockerContractTest(t *testing.T, locker ports.DistributedLocker) {
	t.Helper()
	ctx := context.Background()

	t.Run("Lock_Unlock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-a", time.Second)
		if err != nil {
			t.Fatalf("unexpected error acquiring lock: %v", err)
		}
		if err := unlock(ctx); err != nil {
			t.Errorf("unexpected error releasing lock: %v", err)
		}

		// Released locks can be taken again immediately.
		unlock, err = locker.Lock(ctx, "contract-a", time.Second)
		if err != nil {
			t.Fatalf("re-lock failed: %v", err)
		}
		_ = unlock(ctx)
	})

	t.Run("Mutual_Exclusion", func(t *testing.T) {
		var mu sync.Mutex
		inside := 0
		maxInside := 0

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, "contract-b", 2*time.Second)
				if err != nil {
					t.Errorf("lock failed: %v", err)
					return
				}
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				_ = unlock(ctx)
			}()
		}
		wg.Wait()

		if maxInside != 1 {
			t.Errorf("expected at most one holder, saw %d", maxInside)
		}
	})

	t.Run("Context_Cancel", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-c", 2*time.Second)
		if err != nil {
			t.Fatalf("lock failed: %v", err)
		}
		defer func() { _ = unlock(ctx) }()

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if _, err := locker.Lock(cctx, "contract-c", time.Second); err == nil {
			t.Error("expected error when lock is held and context expires")
		}
	})
}
