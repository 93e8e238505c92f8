package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chefsplan/backend/internal/models"
)

// ErrInsufficientFunds is returned when a wallet balance is too low for the
// requested deduction.
var ErrInsufficientFunds = errors.New("insufficient funds")

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetByAddress returns the wallet, or a zero-balance wallet for addresses
// never seen before.
func (r *WalletRepo) GetByAddress(ctx context.Context, addr models.Address) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT address, balance_cents, created_at, updated_at FROM wallets WHERE address = $1
	`, addr).Scan(&w.Address, &w.BalanceCents, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.Wallet{Address: addr}, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Add credits the wallet inside the transaction, creating it lazily, and
// returns the new balance.
func (r *WalletRepo) Add(ctx context.Context, tx pgx.Tx, addr models.Address, amountCents int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		INSERT INTO wallets (address, balance_cents)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE
		SET balance_cents = wallets.balance_cents + EXCLUDED.balance_cents, updated_at = now()
		RETURNING balance_cents
	`, addr, amountCents).Scan(&balance)
	return balance, err
}

// Deduct locks the wallet row, checks the balance, and debits it. A missing
// wallet has balance zero and therefore fails the same way.
func (r *WalletRepo) Deduct(ctx context.Context, tx pgx.Tx, addr models.Address, amountCents int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		SELECT balance_cents FROM wallets WHERE address = $1 FOR UPDATE
	`, addr).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, err
	}
	if balance < amountCents {
		return 0, ErrInsufficientFunds
	}
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance_cents = balance_cents - $2, updated_at = now()
		WHERE address = $1
		RETURNING balance_cents
	`, addr, amountCents).Scan(&balance)
	return balance, err
}

// Deposit credits a wallet outside any escrow flow (admin faucet).
func (r *WalletRepo) Deposit(ctx context.Context, addr models.Address, amountCents int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO wallets (address, balance_cents)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE
		SET balance_cents = wallets.balance_cents + EXCLUDED.balance_cents, updated_at = now()
		RETURNING balance_cents
	`, addr, amountCents).Scan(&balance)
	return balance, err
}
