package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chefsplan/backend/internal/fault"
	"github.com/chefsplan/backend/internal/metrics"
	"github.com/chefsplan/backend/internal/models"
)

// ReputationStore is the persistence interface for the reputation ledger.
type ReputationStore interface {
	IsAuthorized(ctx context.Context, caller models.Address) (bool, error)
	AddAuthorized(ctx context.Context, addr models.Address) error
	RemoveAuthorized(ctx context.Context, addr models.Address) error
	ApplyRating(ctx context.Context, tx pgx.Tx, subject models.Address, score int) error
	AppendRating(ctx context.Context, tx pgx.Tx, rating *models.Rating) error
	IncrementCompleted(ctx context.Context, tx pgx.Tx, subject models.Address) error
	GetBySubject(ctx context.Context, subject models.Address) (*models.ReputationRecord, error)
	ListRatings(ctx context.Context, subject models.Address) ([]*models.Rating, error)
}

// Scores are inclusive bounds; anything outside is rejected.
const (
	minScore = 1
	maxScore = 5
)

// ReputationLedger aggregates ratings and completion counts per address.
// Mutations are restricted to explicitly authorized callers (normally the
// shift ledger); reads are open and return zero-valued defaults for unseen
// addresses.
type ReputationLedger struct {
	repo  ReputationStore
	met   *metrics.Metrics
	log   *slog.Logger
	admin models.Address
	now   func() time.Time
}

func NewReputationLedger(repo ReputationStore, met *metrics.Metrics, log *slog.Logger, admin models.Address) *ReputationLedger {
	if met == nil {
		met = metrics.New(prometheus.NewRegistry())
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReputationLedger{repo: repo, met: met, log: log, admin: admin, now: time.Now}
}

// Authorize grants an address the right to record ratings and completions.
func (l *ReputationLedger) Authorize(ctx context.Context, caller, addr models.Address) error {
	if caller != l.admin {
		return fault.New(fault.Forbidden, "only the admin may authorize reputation writers")
	}
	if addr.IsZero() {
		return fault.New(fault.InvalidInput, "address required")
	}
	return l.repo.AddAuthorized(ctx, addr)
}

func (l *ReputationLedger) Revoke(ctx context.Context, caller, addr models.Address) error {
	if caller != l.admin {
		return fault.New(fault.Forbidden, "only the admin may revoke reputation writers")
	}
	return l.repo.RemoveAuthorized(ctx, addr)
}

// RecordRating appends one score to the subject's history and folds it into
// the aggregate. averageRating is totalScore*100/ratingCount with integer
// truncation.
func (l *ReputationLedger) RecordRating(ctx context.Context, tx pgx.Tx, caller, rater, subject models.Address, score int, comment string) error {
	if err := l.requireAuthorized(ctx, caller); err != nil {
		return err
	}
	if subject.IsZero() {
		return fault.New(fault.InvalidInput, "subject address required")
	}
	if score < minScore || score > maxScore {
		return fault.Newf(fault.InvalidInput, "score %d outside range %d..%d", score, minScore, maxScore)
	}
	if err := l.repo.AppendRating(ctx, tx, &models.Rating{
		Subject: subject,
		Rater:   rater,
		Score:   score,
		Comment: comment,
	}); err != nil {
		return err
	}
	if err := l.repo.ApplyRating(ctx, tx, subject, score); err != nil {
		return err
	}
	l.met.RatingsRecorded.Inc()
	return nil
}

// IncrementCompleted bumps the subject's completed-shift counter.
func (l *ReputationLedger) IncrementCompleted(ctx context.Context, tx pgx.Tx, caller, subject models.Address) error {
	if err := l.requireAuthorized(ctx, caller); err != nil {
		return err
	}
	if subject.IsZero() {
		return fault.New(fault.InvalidInput, "subject address required")
	}
	return l.repo.IncrementCompleted(ctx, tx, subject)
}

// GetReputation returns the aggregate record; unseen addresses get a
// zero-valued record, never an error.
func (l *ReputationLedger) GetReputation(ctx context.Context, subject models.Address) (*models.ReputationRecord, error) {
	return l.repo.GetBySubject(ctx, subject)
}

func (l *ReputationLedger) GetHistory(ctx context.Context, subject models.Address) ([]*models.Rating, error) {
	return l.repo.ListRatings(ctx, subject)
}

func (l *ReputationLedger) GetRatingCount(ctx context.Context, subject models.Address) (int64, error) {
	rec, err := l.repo.GetBySubject(ctx, subject)
	if err != nil {
		return 0, err
	}
	return rec.RatingCount, nil
}

func (l *ReputationLedger) requireAuthorized(ctx context.Context, caller models.Address) error {
	ok, err := l.repo.IsAuthorized(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fault.Newf(fault.Forbidden, "caller %s is not authorized to write reputation", caller)
	}
	return nil
}
