package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// Admission rejects requests from users whose cost caps are reached.
// Admitted requests of one user run one at a time, so a cap check always sees the
// usage of every request admitted before it.
type Admission struct {
	ledger *Ledger

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

// NewAdmission creates admission control over ledger.
func NewAdmission(ledger *Ledger) *Admission {
	return &Admission{
		ledger: ledger,
		locks:  make(map[string]*userLock),
	}
}

// CheckQuota returns ErrDailyQuotaExceeded or ErrMonthlyQuotaExceeded when a cap is
// reached. The daily cap is checked first.
func (a *Admission) CheckQuota(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrUnauthenticated
	}
	snap, err := a.ledger.Usage(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}
	if snap.DailyExhausted {
		return domain.ErrDailyQuotaExceeded
	}
	if snap.MonthlyExhausted {
		return domain.ErrMonthlyQuotaExceeded
	}
	return nil
}

// Admit waits for the user's previous request to finish, then checks the quota.
// On success the caller must call release once the request's usage is recorded.
func (a *Admission) Admit(ctx context.Context, userID string) (release func(), err error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	l := a.acquire(userID)
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		a.drop(userID, l)
		return nil, ctx.Err()
	}

	if err := a.CheckQuota(ctx, userID); err != nil {
		<-l.ch
		a.drop(userID, l)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			a.drop(userID, l)
		})
	}, nil
}

func (a *Admission) acquire(userID string) *userLock {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[userID]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		a.locks[userID] = l
	}
	l.refs++
	return l
}

func (a *Admission) drop(userID string, l *userLock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(a.locks, userID)
	}
}
