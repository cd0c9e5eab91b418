package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/storage"
)

// MyDonations возвращает пожертвования пользователя, начиная с новых.
func (s *Service) MyDonations(ctx context.Context, p model.Principal) ([]model.DonationView, error) {
	return s.repo.GetDonationsByDonor(ctx, p.ID)
}

// CampaignDonations возвращает пожертвования кампании с количеством и общей суммой. Только для администраторов.
func (s *Service) CampaignDonations(ctx context.Context, p model.Principal, campaignID string) (*model.CampaignDonations, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if _, err := s.repo.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	donations, err := s.repo.GetDonationsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, d := range donations {
		total = total.Add(d.Amount)
	}

	return &model.CampaignDonations{
		Donations:   donations,
		Total:       len(donations),
		TotalAmount: total,
	}, nil
}

// FetchReceipt возвращает PDF-квитанцию пожертвования. Доступно жертвователю и администраторам.
func (s *Service) FetchReceipt(ctx context.Context, p model.Principal, donationID string) ([]byte, error) {
	d, err := s.repo.GetDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.DonorID != p.ID && !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if d.ReceiptRef == nil || *d.ReceiptRef == "" {
		return nil, ErrReceiptNotReady
	}

	data, err := s.artifacts.Read(ctx, *d.ReceiptRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrReceiptMissing
		}
		return nil, fmt.Errorf("read receipt: %w", err)
	}
	return data, nil
}
