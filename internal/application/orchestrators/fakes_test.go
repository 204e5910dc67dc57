package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	emailAdapter "alphagate/internal/adapters/email"
	"alphagate/internal/adapters/lock"
	storeSignup "alphagate/internal/adapters/storage/signup"
	"alphagate/internal/domain/signup"
)

// --- Fake signup store ---

type fakeSignupStore struct {
	mu          sync.Mutex
	rows        []signup.Signup
	countCalls  int
	insertCalls int
	countErr    error
	insertErr   error
	// afterCount runs between the count and the insert of a two-step admission.
	afterCount func()
}

func (s *fakeSignupStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	s.countCalls++
	n, err := len(s.rows), s.countErr
	hook := s.afterCount
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return n, err
}

func (s *fakeSignupStore) insertLocked(value signup.Signup) error {
	s.insertCalls++
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, r := range s.rows {
		if strings.EqualFold(r.Email, value.Email) {
			return fmt.Errorf("%w: %s", signup.ErrDuplicateEmail, value.Email)
		}
	}
	s.rows = append(s.rows, value)
	return nil
}

func (s *fakeSignupStore) Insert(_ context.Context, value signup.Signup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(value)
}

func (s *fakeSignupStore) InsertWithinLimit(_ context.Context, value signup.Signup, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return s.countErr
	}
	if len(s.rows) >= limit {
		s.insertCalls++
		return signup.ErrLimitReached
	}
	return s.insertLocked(value)
}

func (s *fakeSignupStore) ListEmails(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Email
	}
	return out, s.countErr
}

func (s *fakeSignupStore) List(_ context.Context, filter storeSignup.ListFilter) ([]signup.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return nil, s.countErr
	}
	rows := s.rows
	if filter.Offset < len(rows) {
		rows = rows[filter.Offset:]
	} else {
		rows = nil
	}
	if filter.Limit > 0 && filter.Limit < len(rows) {
		rows = rows[:filter.Limit]
	}
	return append([]signup.Signup(nil), rows...), nil
}

func (s *fakeSignupStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeSignupStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertCalls
}

// --- Fake lockers ---

type mutexLocker struct{ mu sync.Mutex }

func (l *mutexLocker) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, func(ctx context.Context) error) error {
	return lock.ErrNotAcquired
}

// --- Recording sender ---

type recordingSender struct {
	mu         sync.Mutex
	sendCalls  int
	batchCalls int
	batchSizes []int
	delivered  []string
	requests   []emailAdapter.SendRequest
	// failFor fails any call whose recipients include one of these addresses.
	failFor map[string]bool
	// onSend runs at the start of every call.
	onSend func(ctx context.Context) error
}

func (s *recordingSender) shouldFail(addrs []string) bool {
	for _, a := range addrs {
		if s.failFor[a] {
			return true
		}
	}
	return false
}

func (s *recordingSender) Send(ctx context.Context, req emailAdapter.SendRequest) (emailAdapter.SendResult, error) {
	if s.onSend != nil {
		if err := s.onSend(ctx); err != nil {
			s.mu.Lock()
			s.sendCalls++
			s.mu.Unlock()
			return emailAdapter.SendResult{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCalls++
	s.requests = append(s.requests, req)
	if s.shouldFail(req.To) {
		return emailAdapter.SendResult{}, errors.New("provider rejected message")
	}
	s.delivered = append(s.delivered, req.To...)
	return emailAdapter.SendResult{MessageID: "m"}, nil
}

func (s *recordingSender) SendBatch(ctx context.Context, reqs []emailAdapter.SendRequest) ([]emailAdapter.SendResult, error) {
	if s.onSend != nil {
		if err := s.onSend(ctx); err != nil {
			s.mu.Lock()
			s.batchCalls++
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls++
	s.batchSizes = append(s.batchSizes, len(reqs))
	var to []string
	for _, r := range reqs {
		to = append(to, r.To...)
	}
	if s.shouldFail(to) {
		return nil, errors.New("provider rejected batch")
	}
	s.requests = append(s.requests, reqs...)
	s.delivered = append(s.delivered, to...)
	return make([]emailAdapter.SendResult, len(reqs)), nil
}

func (s *recordingSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCalls + s.batchCalls
}

func (s *recordingSender) sortedBatchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]int(nil), s.batchSizes...)
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
