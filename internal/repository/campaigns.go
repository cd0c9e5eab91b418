package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/campaignfund/internal/model"
)

const campaignColumns = `id, title, description, target_cents, collected_cents, deadline, status, created_by, images, created_at`

// CreateCampaign сохраняет новую кампанию.
func (r *PostgresRepository) CreateCampaign(ctx context.Context, c model.Campaign) error {
	images := c.Images
	if images == nil {
		images = []string{}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO campaigns (id, title, description, target_cents, collected_cents, deadline, status, created_by, images)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)`,
		c.ID, c.Title, c.Description, toCents(c.TargetAmount), c.Deadline, string(c.Status), c.CreatedBy, images,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetCampaign возвращает кампанию по идентификатору.
func (r *PostgresRepository) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`,
		id,
	)

	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns возвращает кампании, начиная с новых. При activeOnly возвращаются только активные.
func (r *PostgresRepository) ListCampaigns(ctx context.Context, activeOnly bool) ([]model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC`
	args := []any{}
	if activeOnly {
		query = `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY created_at DESC`
		args = append(args, string(model.CampaignStatusActive))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select campaigns: %w", err)
	}
	defer rows.Close()

	var res []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CloseCampaign переводит активную кампанию в закрытое состояние.
// Повторное закрытие возвращает ErrCampaignClosed.
func (r *PostgresRepository) CloseCampaign(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(model.CampaignStatusClosed), string(model.CampaignStatusActive),
	)
	if err != nil {
		return fmt.Errorf("close campaign: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = r.pool.QueryRow(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCampaignNotFound
		}
		return fmt.Errorf("select campaign status: %w", err)
	}

	return ErrCampaignClosed
}

// DeleteCampaign удаляет кампанию и возвращает её ссылки на изображения. Пожертвования сохраняются.
func (r *PostgresRepository) DeleteCampaign(ctx context.Context, id string) ([]string, error) {
	var images []string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM campaigns WHERE id = $1 RETURNING images`,
		id,
	).Scan(&images)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("delete campaign: %w", err)
	}
	return images, nil
}

// incrementCollected атомарно увеличивает собранную сумму кампании.
// Это единственное место, где изменяется collected_cents.
func incrementCollected(ctx context.Context, q querier, campaignID string, amountCents int64) error {
	_, err := q.Exec(ctx,
		`UPDATE campaigns SET collected_cents = collected_cents + $2 WHERE id = $1`,
		campaignID, amountCents,
	)
	if err != nil {
		return fmt.Errorf("increment collected: %w", err)
	}
	return nil
}

// LedgerDrift возвращает для каждой кампании учтённую сумму, сумму пожертвований
// и число пожертвований, ещё не учтённых в собранной сумме.
func (r *PostgresRepository) LedgerDrift(ctx context.Context) ([]model.LedgerDrift, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.title, c.collected_cents,
		        COALESCE(SUM(d.amount_cents), 0)::bigint,
		        COUNT(d.id) FILTER (WHERE NOT d.ledger_applied)
		 FROM campaigns c
		 LEFT JOIN donations d ON d.campaign_id = c.id
		 GROUP BY c.id
		 ORDER BY c.created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select ledger drift: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerDrift
	for rows.Next() {
		var (
			d                  model.LedgerDrift
			collected, donated int64
		)
		if err := rows.Scan(&d.CampaignID, &d.Title, &collected, &donated, &d.PendingCount); err != nil {
			return nil, fmt.Errorf("scan ledger drift: %w", err)
		}
		d.CollectedAmount = fromCents(collected)
		d.DonatedAmount = fromCents(donated)
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var (
		c                      model.Campaign
		targetCents, collected int64
		deadline               *time.Time
		status                 string
	)
	err := row.Scan(&c.ID, &c.Title, &c.Description, &targetCents, &collected, &deadline, &status, &c.CreatedBy, &c.Images, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.TargetAmount = fromCents(targetCents)
	c.CollectedAmount = fromCents(collected)
	c.Deadline = deadline
	c.Status = model.CampaignStatus(status)
	return &c, nil
}
