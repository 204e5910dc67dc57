package signup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"alphagate/internal/adapters/storage"
	domain "alphagate/internal/domain/signup"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "signups.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

func testSignup(i int) domain.Signup {
	return domain.Signup{
		ID:            fmt.Sprintf("id-%03d", i),
		Email:         fmt.Sprintf("pilot%d@example.com", i),
		FirstName:     "Test",
		LastName:      "Pilot",
		Organization:  "Air NZ",
		Role:          "Captain",
		AgreedToTerms: true,
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, i, 0, time.UTC),
	}
}

// TestSQLiteStore_InsertAndList tests round-tripping signups in signup order.
func TestSQLiteStore_InsertAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, i := range []int{2, 0, 1} {
		if err := store.Insert(ctx, testSignup(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}

	list, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List len = %d, want 3", len(list))
	}
	if list[0].ID != "id-000" || list[2].ID != "id-002" {
		t.Errorf("List order = %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}
	if !list[0].CreatedAt.Equal(testSignup(0).CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", list[0].CreatedAt, testSignup(0).CreatedAt)
	}
	if !list[0].AgreedToTerms {
		t.Error("AgreedToTerms should round-trip")
	}

	page, err := store.List(ctx, ListFilter{Limit: 1, Offset: 1})
	if err != nil || len(page) != 1 || page[0].ID != "id-001" {
		t.Errorf("paged List = %+v, %v", page, err)
	}

	emails, err := store.ListEmails(ctx)
	if err != nil {
		t.Fatalf("ListEmails: %v", err)
	}
	if len(emails) != 3 || emails[0] != "pilot0@example.com" {
		t.Errorf("ListEmails = %v", emails)
	}
}

// TestSQLiteStore_DuplicateEmail tests that the unique index is case-insensitive.
func TestSQLiteStore_DuplicateEmail(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testSignup(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	dup := testSignup(2)
	dup.Email = "PILOT1@example.com"
	err := store.Insert(ctx, dup)
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("Insert duplicate = %v, want ErrDuplicateEmail", err)
	}
	err = store.InsertWithinLimit(ctx, dup, 10)
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("InsertWithinLimit duplicate = %v, want ErrDuplicateEmail", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

// TestSQLiteStore_InsertWithinLimit tests that the N+1th insert is refused.
func TestSQLiteStore_InsertWithinLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	const limit = 3

	for i := 0; i < limit; i++ {
		if err := store.InsertWithinLimit(ctx, testSignup(i), limit); err != nil {
			t.Fatalf("InsertWithinLimit(%d): %v", i, err)
		}
	}
	err := store.InsertWithinLimit(ctx, testSignup(limit), limit)
	if !errors.Is(err, domain.ErrLimitReached) {
		t.Fatalf("InsertWithinLimit over limit = %v, want ErrLimitReached", err)
	}
	if n, _ := store.Count(ctx); n != limit {
		t.Errorf("Count = %d, want %d", n, limit)
	}
}

// TestSQLiteStore_InsertWithinLimit_Concurrent tests the hard ceiling under contention.
func TestSQLiteStore_InsertWithinLimit_Concurrent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	const limit = 10
	const writers = 40

	var accepted, refused atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.InsertWithinLimit(ctx, testSignup(i), limit)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, domain.ErrLimitReached):
				refused.Add(1)
			default:
				t.Errorf("writer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if accepted.Load() != limit {
		t.Errorf("accepted = %d, want %d", accepted.Load(), limit)
	}
	if refused.Load() != writers-limit {
		t.Errorf("refused = %d, want %d", refused.Load(), writers-limit)
	}
	if n, _ := store.Count(ctx); n != limit {
		t.Errorf("Count = %d, want %d", n, limit)
	}
}

// TestSQLiteStore_Ping tests the health check.
func TestSQLiteStore_Ping(t *testing.T) {
	store := openTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
