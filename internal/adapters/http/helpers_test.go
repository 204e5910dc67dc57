package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	emailAdapter "alphagate/internal/adapters/email"
	"alphagate/internal/adapters/http/middleware"
	"alphagate/internal/adapters/http/perf"
	"alphagate/internal/adapters/lock"
	"alphagate/internal/adapters/storage"
	storeSignup "alphagate/internal/adapters/storage/signup"
	"alphagate/internal/application/orchestrators"
	"alphagate/internal/domain/dispatch"
	"alphagate/internal/domain/mailbody"
	"alphagate/internal/domain/signup"
)

const testSecret = "dispatch-secret"

// stubSender records provider calls and fails for chosen recipients.
type stubSender struct {
	mu      sync.Mutex
	calls   int
	to      []string
	failFor map[string]bool
	delay   time.Duration
}

func (s *stubSender) Send(_ context.Context, req emailAdapter.SendRequest) (emailAdapter.SendResult, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, addr := range req.To {
		if s.failFor[addr] {
			return emailAdapter.SendResult{}, errors.New("provider rejected " + addr)
		}
	}
	s.to = append(s.to, req.To...)
	return emailAdapter.SendResult{MessageID: "msg", SentAt: time.Now()}, nil
}

func (s *stubSender) SendBatch(ctx context.Context, reqs []emailAdapter.SendRequest) ([]emailAdapter.SendResult, error) {
	out := make([]emailAdapter.SendResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := s.Send(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *stubSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (f failingStore) Count(context.Context) (int, error)          { return 0, f.err }
func (f failingStore) Insert(context.Context, signup.Signup) error { return f.err }
func (f failingStore) InsertWithinLimit(context.Context, signup.Signup, int) error {
	return f.err
}
func (f failingStore) ListEmails(context.Context) ([]string, error) { return nil, f.err }
func (f failingStore) List(context.Context, storeSignup.ListFilter) ([]signup.Signup, error) {
	return nil, f.err
}
func (f failingStore) Ping(context.Context) error { return f.err }

// heldLock behaves as if another instance holds the admission lock.
type heldLock struct{}

func (heldLock) WithLock(context.Context, func(context.Context) error) error {
	return lock.ErrNotAcquired
}

func openTestStore(t *testing.T) *storeSignup.SQLiteStore {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return storeSignup.NewSQLiteStore(db)
}

func testOptions(sender emailAdapter.Sender) Options {
	return Options{
		Limit:         3,
		Mode:          orchestrators.ModeStrict,
		Sender:        sender,
		From:          "SkyGuide Alpha <alpha@skyguide.site>",
		Brand:         mailbody.Brand{Product: "SkyGuide", Program: "SkyGuide Alpha Program", SiteURL: "https://skyguidehub.com", Year: 2026},
		ChunkSize:     45,
		ProviderLimit: 50,
		Granularity:   dispatch.GranularityAddress,
		Concurrency:   1,
		SendTimeout:   time.Second,
		Admin:         middleware.NewBearerVerifier(testSecret, ""),
		Collector:     perf.NewCollector(100),
	}
}

func newTestServer(t *testing.T, store storeSignup.Store, opts Options) http.Handler {
	t.Helper()
	return NewServer(store, opts).Routes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func signupBody(email string) map[string]any {
	return map[string]any{
		"email":           email,
		"first_name":      "Amelia",
		"last_name":       "Earhart",
		"organization":    "Air NZ",
		"role":            "Captain",
		"agreed_to_terms": true,
	}
}
