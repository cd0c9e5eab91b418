package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/validation"
)

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func createTestCampaign(t *testing.T, repo *PostgresRepository) model.Campaign {
	t.Helper()

	c := model.Campaign{
		ID:           uuid.NewString(),
		Title:        "Library renovation",
		TargetAmount: decimal.RequireFromString("5000"),
		Status:       model.CampaignStatusActive,
	}
	require.NoError(t, repo.CreateCampaign(context.Background(), c))
	return c
}

func TestCentsConversion(t *testing.T) {
	assert.Equal(t, int64(30050), toCents(decimal.RequireFromString("300.50")))
	assert.Equal(t, int64(1), toCents(decimal.RequireFromString("0.01")))
	assert.True(t, fromCents(100000).Equal(decimal.RequireFromString("1000")))
}

func TestApplyDonationToLedger_Concurrent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	c := createTestCampaign(t, repo)

	amounts := []string{"300", "300", "400"}
	ids := make([]string, 0, len(amounts))
	for _, a := range amounts {
		d := model.Donation{
			ID:         uuid.NewString(),
			DonorID:    uuid.NewString(),
			CampaignID: c.ID,
			Amount:     decimal.RequireFromString(a),
			PaymentID:  "MOCK_PAY_" + uuid.NewString(),
			OrderID:    "MOCK_ORDER_" + uuid.NewString(),
		}
		require.NoError(t, repo.CreateDonation(ctx, d))
		ids = append(ids, d.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			applied, err := repo.ApplyDonationToLedger(ctx, id)
			assert.NoError(t, err)
			assert.True(t, applied)
		}(id)
	}
	wg.Wait()

	got, err := repo.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.CollectedAmount.Equal(decimal.RequireFromString("1000")), got.CollectedAmount.String())

	// Повторное применение не меняет сумму.
	applied, err := repo.ApplyDonationToLedger(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, applied)

	got, err = repo.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.CollectedAmount.Equal(decimal.RequireFromString("1000")))
}

func TestCreateDonation_DuplicateOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	c := createTestCampaign(t, repo)

	d := model.Donation{
		ID:         uuid.NewString(),
		DonorID:    uuid.NewString(),
		CampaignID: c.ID,
		Amount:     decimal.RequireFromString("10"),
		PaymentID:  "MOCK_PAY_1",
		OrderID:    "MOCK_ORDER_" + uuid.NewString(),
	}
	require.NoError(t, repo.CreateDonation(ctx, d))

	d.ID = uuid.NewString()
	assert.ErrorIs(t, repo.CreateDonation(ctx, d), ErrDuplicateOrder)

	d.OrderID = "MOCK_ORDER_" + uuid.NewString()
	d.CampaignID = uuid.NewString()
	assert.ErrorIs(t, repo.CreateDonation(ctx, d), ErrCampaignNotFound)
}

func TestCloseCampaign(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	c := createTestCampaign(t, repo)

	require.NoError(t, repo.CloseCampaign(ctx, c.ID))
	assert.ErrorIs(t, repo.CloseCampaign(ctx, c.ID), ErrCampaignClosed)
	assert.ErrorIs(t, repo.CloseCampaign(ctx, uuid.NewString()), ErrCampaignNotFound)
}

func TestAttachReceipt_KeepsFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	c := createTestCampaign(t, repo)

	d := model.Donation{
		ID:         uuid.NewString(),
		DonorID:    uuid.NewString(),
		CampaignID: c.ID,
		Amount:     decimal.RequireFromString("25.50"),
		PaymentID:  "MOCK_PAY_2",
		OrderID:    "MOCK_ORDER_" + uuid.NewString(),
	}
	require.NoError(t, repo.CreateDonation(ctx, d))

	require.NoError(t, repo.AttachReceipt(ctx, d.ID, "receipts/first.pdf"))
	require.NoError(t, repo.AttachReceipt(ctx, d.ID, "receipts/second.pdf"))

	got, err := repo.GetDonation(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReceiptRef)
	assert.Equal(t, "receipts/first.pdf", *got.ReceiptRef)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("25.5")))

	assert.ErrorIs(t, repo.AttachReceipt(ctx, uuid.NewString(), "x.pdf"), ErrDonationNotFound)
}

func TestLedgerDrift_PendingDonation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	c := createTestCampaign(t, repo)

	applied := model.Donation{
		ID:         uuid.NewString(),
		DonorID:    uuid.NewString(),
		CampaignID: c.ID,
		Amount:     decimal.RequireFromString("100"),
		PaymentID:  "MOCK_PAY_3",
		OrderID:    "MOCK_ORDER_" + uuid.NewString(),
	}
	pending := applied
	pending.ID = uuid.NewString()
	pending.OrderID = "MOCK_ORDER_" + uuid.NewString()
	pending.Amount = decimal.RequireFromString("40.25")

	require.NoError(t, repo.CreateDonation(ctx, applied))
	require.NoError(t, repo.CreateDonation(ctx, pending))
	_, err := repo.ApplyDonationToLedger(ctx, applied.ID)
	require.NoError(t, err)

	drifts, err := repo.LedgerDrift(ctx)
	require.NoError(t, err)

	var got *model.LedgerDrift
	for i := range drifts {
		if drifts[i].CampaignID == c.ID {
			got = &drifts[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, 1, got.PendingCount)
	assert.True(t, got.CollectedAmount.Equal(decimal.RequireFromString("100")))
	assert.True(t, got.Drift().Equal(decimal.RequireFromString("40.25")), got.Drift().String())

	unapplied, err := repo.GetUnappliedDonations(ctx, 1000)
	require.NoError(t, err)
	assert.Contains(t, unapplied, pending.ID)
	assert.NotContains(t, unapplied, applied.ID)
}

func TestCreateDonation_KeepsCreatedAt(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	c := createTestCampaign(t, repo)

	settledAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	d := model.Donation{
		ID:         uuid.NewString(),
		DonorID:    uuid.NewString(),
		CampaignID: c.ID,
		Amount:     decimal.RequireFromString("75"),
		PaymentID:  "MOCK_PAY_4",
		OrderID:    "MOCK_ORDER_" + uuid.NewString(),
		CreatedAt:  settledAt,
	}
	require.NoError(t, repo.CreateDonation(ctx, d))

	got, err := repo.GetDonation(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(settledAt), got.CreatedAt.String())
}

func TestToCents_LargestValidAmount(t *testing.T) {
	limit := validation.MaxAmount
	require.True(t, validation.IsValidAmount(limit))
	assert.True(t, fromCents(toCents(limit)).Equal(limit))
	assert.False(t, validation.IsValidAmount(decimal.RequireFromString("184467440737095516.17")))
}
