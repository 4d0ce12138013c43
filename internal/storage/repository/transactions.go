package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

const selectEntry = `SELECT id, transaction_id, original_id, product_id, purchase_date,
		expiration_date, revocation_date, is_upgraded, environment, action, recorded_at
	FROM transactions`

// RecordTransaction добавляет в журнал транзакцию и действие, которое к ней применила сверка.
func (s *Storage) RecordTransaction(ctx context.Context, tx models.Transaction, action string) error {
	const op = "storage.RecordTransaction"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO transactions (
			transaction_id, original_id, product_id, purchase_date,
			expiration_date, revocation_date, is_upgraded, environment, action
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.DB.ExecContext(ctx, query,
		tx.ID,
		tx.OriginalID,
		tx.ProductID,
		tx.PurchaseDate,
		tx.ExpirationDate,
		tx.RevocationDate,
		tx.IsUpgraded,
		tx.Environment,
		action,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListTransactions возвращает записи журнала от новых к старым.
func (s *Storage) ListTransactions(ctx context.Context, limit, offset int) ([]*models.LedgerEntry, error) {
	const op = "storage.ListTransactions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := selectEntry + ` ORDER BY recorded_at DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.LedgerEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// LatestForProduct возвращает последнюю запись журнала по продукту.
func (s *Storage) LatestForProduct(ctx context.Context, productID string) (*models.LedgerEntry, error) {
	const op = "storage.LatestForProduct"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := selectEntry + ` WHERE product_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT 1`
	entry, err := scanEntry(s.DB.QueryRowContext(ctx, query, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entry, nil
}

// OriginalTransactionID возвращает идентификатор исходной транзакции продукта или пустую строку.
func (s *Storage) OriginalTransactionID(ctx context.Context, productID string) (string, error) {
	entry, err := s.LatestForProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if entry.Transaction.OriginalID != "" {
		return entry.Transaction.OriginalID, nil
	}
	return entry.Transaction.ID, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.LedgerEntry, error) {
	var (
		e          models.LedgerEntry
		expiration sql.NullTime
		revocation sql.NullTime
	)
	err := row.Scan(
		&e.ID,
		&e.Transaction.ID,
		&e.Transaction.OriginalID,
		&e.Transaction.ProductID,
		&e.Transaction.PurchaseDate,
		&expiration,
		&revocation,
		&e.Transaction.IsUpgraded,
		&e.Transaction.Environment,
		&e.Action,
		&e.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiration.Valid {
		t := expiration.Time
		e.Transaction.ExpirationDate = &t
	}
	if revocation.Valid {
		t := revocation.Time
		e.Transaction.RevocationDate = &t
	}
	return &e, nil
}
