package services

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chefsplan/backend/internal/models"
	"github.com/chefsplan/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// In-memory fakes behind the services' store interfaces. These let the real
// ledger logic run without a database; the pgx.Tx threaded through mutating
// calls is satisfied by fakeTx, whose Commit/Rollback are no-ops.
// ---------------------------------------------------------------------------

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

// fakeClock is a mutable clock shared by all services under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// --- shift store ---

type memShiftStore struct {
	mu     sync.Mutex
	nextID int64
	shifts map[int64]*models.Shift
	apps   map[int64][]*models.Application
	clock  *fakeClock
}

func newMemShiftStore(clock *fakeClock) *memShiftStore {
	return &memShiftStore{
		shifts: make(map[int64]*models.Shift),
		apps:   make(map[int64][]*models.Application),
		clock:  clock,
	}
}

func (m *memShiftStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (m *memShiftStore) Create(_ context.Context, s *models.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = m.clock.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.shifts[s.ID] = &cp
	return nil
}

func (m *memShiftStore) GetByID(_ context.Context, id int64) (*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memShiftStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id int64) (*models.Shift, error) {
	return m.GetByID(ctx, id)
}

func (m *memShiftStore) UpdateStatus(_ context.Context, _ pgx.Tx, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = m.clock.Now()
	return nil
}

func (m *memShiftStore) SetAccepted(_ context.Context, _ pgx.Tx, id int64, worker models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Worker = worker
	s.Status = models.ShiftStatusAccepted
	s.UpdatedAt = m.clock.Now()
	return nil
}

func (m *memShiftStore) AddApplication(_ context.Context, _ pgx.Tx, a *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.AppliedAt = m.clock.Now()
	cp := *a
	m.apps[a.ShiftID] = append(m.apps[a.ShiftID], &cp)
	return nil
}

func (m *memShiftStore) HasApplied(_ context.Context, _ pgx.Tx, shiftID int64, applicant models.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.apps[shiftID] {
		if a.Applicant == applicant {
			return true, nil
		}
	}
	return false, nil
}

func (m *memShiftStore) ListApplications(_ context.Context, shiftID int64) ([]*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Application, 0, len(m.apps[shiftID]))
	for _, a := range m.apps[shiftID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memShiftStore) ListActive(context.Context) ([]*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Shift
	for _, s := range m.shifts {
		if s.Status == models.ShiftStatusPosted || s.Status == models.ShiftStatusApplied {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memShiftStore) ListByPoster(_ context.Context, poster models.Address) ([]*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Shift
	for _, s := range m.shifts {
		if s.Poster == poster {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memShiftStore) ListByWorker(_ context.Context, worker models.Address) ([]*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Shift
	for _, s := range m.shifts {
		if s.Worker == worker {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- escrow store ---

type memEscrowRepo struct {
	mu      sync.Mutex
	escrows map[int64]*models.EscrowRecord
}

func newMemEscrowRepo() *memEscrowRepo {
	return &memEscrowRepo{escrows: make(map[int64]*models.EscrowRecord)}
}

func (m *memEscrowRepo) Create(_ context.Context, _ pgx.Tx, e *models.EscrowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.escrows[e.ShiftID] = &cp
	return nil
}

func (m *memEscrowRepo) GetByShiftID(_ context.Context, shiftID int64) (*models.EscrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[shiftID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEscrowRepo) GetByShiftIDForUpdate(ctx context.Context, _ pgx.Tx, shiftID int64) (*models.EscrowRecord, error) {
	return m.GetByShiftID(ctx, shiftID)
}

func (m *memEscrowRepo) UpdateStatus(_ context.Context, _ pgx.Tx, shiftID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[shiftID]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = status
	return nil
}

func (m *memEscrowRepo) ListExpiredActive(_ context.Context, now time.Time, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, e := range m.escrows {
		if e.Status == models.EscrowStatusActive && !e.ReleaseDeadline.After(now) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

// --- wallet store ---

type memWalletRepo struct {
	mu       sync.Mutex
	balances map[models.Address]int64
}

func newMemWalletRepo() *memWalletRepo {
	return &memWalletRepo{balances: make(map[models.Address]int64)}
}

func (m *memWalletRepo) fund(addr models.Address, amountCents int64) {
	m.mu.Lock()
	m.balances[addr] += amountCents
	m.mu.Unlock()
}

func (m *memWalletRepo) balance(addr models.Address) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr]
}

func (m *memWalletRepo) Add(_ context.Context, _ pgx.Tx, addr models.Address, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr] += amountCents
	return m.balances[addr], nil
}

func (m *memWalletRepo) Deduct(_ context.Context, _ pgx.Tx, addr models.Address, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[addr] < amountCents {
		return 0, repository.ErrInsufficientFunds
	}
	m.balances[addr] -= amountCents
	return m.balances[addr], nil
}

// --- reputation store ---

type memReputationStore struct {
	mu         sync.Mutex
	records    map[models.Address]*models.ReputationRecord
	ratings    map[models.Address][]*models.Rating
	authorized map[models.Address]bool
}

func newMemReputationStore() *memReputationStore {
	return &memReputationStore{
		records:    make(map[models.Address]*models.ReputationRecord),
		ratings:    make(map[models.Address][]*models.Rating),
		authorized: make(map[models.Address]bool),
	}
}

func (m *memReputationStore) IsAuthorized(_ context.Context, caller models.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorized[caller], nil
}

func (m *memReputationStore) AddAuthorized(_ context.Context, addr models.Address) error {
	m.mu.Lock()
	m.authorized[addr] = true
	m.mu.Unlock()
	return nil
}

func (m *memReputationStore) RemoveAuthorized(_ context.Context, addr models.Address) error {
	m.mu.Lock()
	delete(m.authorized, addr)
	m.mu.Unlock()
	return nil
}

func (m *memReputationStore) record(subject models.Address) *models.ReputationRecord {
	rec, ok := m.records[subject]
	if !ok {
		rec = &models.ReputationRecord{Subject: subject}
		m.records[subject] = rec
	}
	return rec
}

func (m *memReputationStore) ApplyRating(_ context.Context, _ pgx.Tx, subject models.Address, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(subject)
	rec.TotalScore += int64(score)
	rec.RatingCount++
	rec.AverageRating = rec.TotalScore * 100 / rec.RatingCount
	return nil
}

func (m *memReputationStore) AppendRating(_ context.Context, _ pgx.Tx, rating *models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rating
	m.ratings[rating.Subject] = append(m.ratings[rating.Subject], &cp)
	return nil
}

func (m *memReputationStore) IncrementCompleted(_ context.Context, _ pgx.Tx, subject models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(subject).CompletedCount++
	return nil
}

func (m *memReputationStore) GetBySubject(_ context.Context, subject models.Address) (*models.ReputationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[subject]
	if !ok {
		return &models.ReputationRecord{Subject: subject}, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memReputationStore) ListRatings(_ context.Context, subject models.Address) ([]*models.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Rating, 0, len(m.ratings[subject]))
	for _, rt := range m.ratings[subject] {
		cp := *rt
		out = append(out, &cp)
	}
	return out, nil
}
