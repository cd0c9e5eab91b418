package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/campaignfund/internal/model"
)

const donationColumns = `d.id, d.donor_id, d.campaign_id, d.amount_cents, d.payment_id, d.order_id, d.signature, d.receipt_ref, d.ledger_applied, d.created_at`

// CreateDonation записывает пожертвование. Запись по одному заказу возможна только один раз.
func (r *PostgresRepository) CreateDonation(ctx context.Context, d model.Donation) error {
	var createdAt *time.Time
	if !d.CreatedAt.IsZero() {
		createdAt = &d.CreatedAt
	}

	cmdTag, err := r.pool.Exec(ctx,
		`INSERT INTO donations (id, donor_id, campaign_id, amount_cents, payment_id, order_id, signature, created_at)
		 SELECT $1::text, $2::text, $3::text, $4::bigint, $5::text, $6::text, $7::text, COALESCE($8::timestamptz, now())
		 WHERE EXISTS (SELECT 1 FROM campaigns WHERE id = $3)
		 ON CONFLICT (order_id) DO NOTHING`,
		d.ID, d.DonorID, d.CampaignID, toCents(d.Amount), d.PaymentID, d.OrderID, d.Signature, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM donations WHERE order_id = $1)`,
		d.OrderID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check donation order: %w", err)
	}
	if exists {
		return ErrDuplicateOrder
	}
	return ErrCampaignNotFound
}

// GetDonation возвращает пожертвование по идентификатору.
func (r *PostgresRepository) GetDonation(ctx context.Context, id string) (*model.Donation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+donationColumns+` FROM donations d WHERE d.id = $1`,
		id,
	)
	return scanDonationRow(row)
}

// GetDonationByOrder возвращает пожертвование, записанное по заказу шлюза.
func (r *PostgresRepository) GetDonationByOrder(ctx context.Context, orderID string) (*model.Donation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+donationColumns+` FROM donations d WHERE d.order_id = $1`,
		orderID,
	)
	return scanDonationRow(row)
}

// GetDonationDetails возвращает пожертвование вместе с данными жертвователя и названием кампании.
// Если кампания удалена, название остаётся пустым.
func (r *PostgresRepository) GetDonationDetails(ctx context.Context, id string) (*model.DonationDetails, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+donationColumns+`,
		        COALESCE(c.title, ''),
		        COALESCE(u.role, ''), COALESCE(u.email, ''), COALESCE(u.first_name, ''),
		        COALESCE(u.last_name, ''), COALESCE(u.login, ''), COALESCE(u.phone, '')
		 FROM donations d
		 LEFT JOIN campaigns c ON c.id = d.campaign_id
		 LEFT JOIN users u ON u.id = d.donor_id
		 WHERE d.id = $1`,
		id,
	)

	var (
		details     model.DonationDetails
		amountCents int64
		role        string
	)
	err := row.Scan(
		&details.ID, &details.DonorID, &details.CampaignID, &amountCents, &details.PaymentID,
		&details.OrderID, &details.Signature, &details.ReceiptRef, &details.LedgerApplied, &details.CreatedAt,
		&details.CampaignTitle,
		&role, &details.Donor.Email, &details.Donor.FirstName,
		&details.Donor.LastName, &details.Donor.Username, &details.Donor.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("get donation details: %w", err)
	}
	details.Amount = fromCents(amountCents)
	details.Donor.ID = details.DonorID
	details.Donor.Role = model.Role(role)

	return &details, nil
}

// AttachReceipt сохраняет ссылку на квитанцию. Уже прикреплённая квитанция не перезаписывается.
func (r *PostgresRepository) AttachReceipt(ctx context.Context, donationID, ref string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE donations SET receipt_ref = $2 WHERE id = $1 AND receipt_ref IS NULL`,
		donationID, ref,
	)
	if err != nil {
		return fmt.Errorf("attach receipt: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetDonation(ctx, donationID); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDonationToLedger учитывает пожертвование в собранной сумме кампании.
// Флаг ledger_applied и сумма изменяются в одной транзакции, поэтому каждое пожертвование
// учитывается не более одного раза. Возвращает false, если пожертвование уже было учтено.
func (r *PostgresRepository) ApplyDonationToLedger(ctx context.Context, donationID string) (bool, error) {
	var applied bool

	err := r.withRetry(ctx, func() error {
		applied = false

		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			campaignID  string
			amountCents int64
		)
		err = tx.QueryRow(ctx,
			`UPDATE donations SET ledger_applied = TRUE
			 WHERE id = $1 AND NOT ledger_applied
			 RETURNING campaign_id, amount_cents`,
			donationID,
		).Scan(&campaignID, &amountCents)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				var exists bool
				if err := tx.QueryRow(ctx,
					`SELECT EXISTS (SELECT 1 FROM donations WHERE id = $1)`, donationID,
				).Scan(&exists); err != nil {
					return fmt.Errorf("check donation: %w", err)
				}
				if !exists {
					return ErrDonationNotFound
				}
				return nil
			}
			return fmt.Errorf("mark donation applied: %w", err)
		}

		if err := incrementCollected(ctx, tx, campaignID, amountCents); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		applied = true
		return nil
	})

	return applied, err
}

// GetDonationsByDonor возвращает пожертвования пользователя, начиная с новых.
func (r *PostgresRepository) GetDonationsByDonor(ctx context.Context, donorID string) ([]model.DonationView, error) {
	return r.listDonationViews(ctx,
		`SELECT `+donationColumns+`, COALESCE(c.title, ''), COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
		        COALESCE(u.email, ''), COALESCE(u.login, '')
		 FROM donations d
		 LEFT JOIN campaigns c ON c.id = d.campaign_id
		 LEFT JOIN users u ON u.id = d.donor_id
		 WHERE d.donor_id = $1
		 ORDER BY d.created_at DESC`,
		donorID,
	)
}

// GetDonationsByCampaign возвращает пожертвования кампании, начиная с новых.
func (r *PostgresRepository) GetDonationsByCampaign(ctx context.Context, campaignID string) ([]model.DonationView, error) {
	return r.listDonationViews(ctx,
		`SELECT `+donationColumns+`, COALESCE(c.title, ''), COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
		        COALESCE(u.email, ''), COALESCE(u.login, '')
		 FROM donations d
		 LEFT JOIN campaigns c ON c.id = d.campaign_id
		 LEFT JOIN users u ON u.id = d.donor_id
		 WHERE d.campaign_id = $1
		 ORDER BY d.created_at DESC`,
		campaignID,
	)
}

// GetUnappliedDonations возвращает идентификаторы пожертвований, не учтённых в собранной сумме.
func (r *PostgresRepository) GetUnappliedDonations(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM donations WHERE NOT ledger_applied ORDER BY created_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select unapplied donations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan donation id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

func (r *PostgresRepository) listDonationViews(ctx context.Context, query string, arg string) ([]model.DonationView, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select donations: %w", err)
	}
	defer rows.Close()

	var res []model.DonationView
	for rows.Next() {
		var (
			v           model.DonationView
			amountCents int64
			donor       model.Principal
		)
		err := rows.Scan(
			&v.ID, &v.DonorID, &v.CampaignID, &amountCents, &v.PaymentID,
			&v.OrderID, &v.Signature, &v.ReceiptRef, &v.LedgerApplied, &v.CreatedAt,
			&v.CampaignTitle, &donor.FirstName, &donor.LastName, &donor.Email, &donor.Username,
		)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		v.Amount = fromCents(amountCents)
		v.DonorName = donor.DisplayName()
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanDonationRow(row pgx.Row) (*model.Donation, error) {
	var (
		d           model.Donation
		amountCents int64
	)
	err := row.Scan(&d.ID, &d.DonorID, &d.CampaignID, &amountCents, &d.PaymentID,
		&d.OrderID, &d.Signature, &d.ReceiptRef, &d.LedgerApplied, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("get donation: %w", err)
	}
	d.Amount = fromCents(amountCents)
	return &d, nil
}
