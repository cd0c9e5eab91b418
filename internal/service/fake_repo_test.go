package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/repository"
)

// memRepo реализует Repository в памяти и безопасен для конкурентного доступа.
type memRepo struct {
	mu        sync.Mutex
	users     map[string]model.User
	campaigns map[string]model.Campaign
	donations map[string]model.Donation
	order     []string

	createDonationErr error
	// ledgerFailures задаёт число первых вызовов ApplyDonationToLedger, которые завершатся ошибкой.
	ledgerFailures int
	ledgerCalls    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:     map[string]model.User{},
		campaigns: map[string]model.Campaign{},
		donations: map[string]model.Donation{},
	}
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) CreateUser(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Login]; ok {
		return repository.ErrUserExists
	}
	r.users[u.Login] = u
	return nil
}

func (r *memRepo) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[login]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *memRepo) CreateCampaign(_ context.Context, c model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	return nil
}

func (r *memRepo) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	return &c, nil
}

func (r *memRepo) ListCampaigns(_ context.Context, activeOnly bool) ([]model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Campaign
	for _, c := range r.campaigns {
		if activeOnly && c.Status != model.CampaignStatusActive {
			continue
		}
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (r *memRepo) CloseCampaign(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return repository.ErrCampaignNotFound
	}
	if c.Status == model.CampaignStatusClosed {
		return repository.ErrCampaignClosed
	}
	c.Status = model.CampaignStatusClosed
	r.campaigns[id] = c
	return nil
}

func (r *memRepo) DeleteCampaign(_ context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	delete(r.campaigns, id)
	return c.Images, nil
}

func (r *memRepo) CreateDonation(_ context.Context, d model.Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createDonationErr != nil {
		return r.createDonationErr
	}
	for _, existing := range r.donations {
		if existing.OrderID == d.OrderID {
			return repository.ErrDuplicateOrder
		}
	}
	if _, ok := r.campaigns[d.CampaignID]; !ok {
		return repository.ErrCampaignNotFound
	}
	r.donations[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

func (r *memRepo) GetDonation(_ context.Context, id string) (*model.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[id]
	if !ok {
		return nil, repository.ErrDonationNotFound
	}
	return &d, nil
}

func (r *memRepo) GetDonationByOrder(_ context.Context, orderID string) (*model.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.donations {
		if d.OrderID == orderID {
			return &d, nil
		}
	}
	return nil, repository.ErrDonationNotFound
}

func (r *memRepo) AttachReceipt(_ context.Context, donationID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[donationID]
	if !ok {
		return repository.ErrDonationNotFound
	}
	if d.ReceiptRef == nil {
		d.ReceiptRef = &ref
		r.donations[donationID] = d
	}
	return nil
}

// ApplyDonationToLedger повторяет семантику хранилища: флаг и сумма меняются под одной блокировкой.
func (r *memRepo) ApplyDonationToLedger(_ context.Context, donationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgerCalls++
	if r.ledgerFailures > 0 {
		r.ledgerFailures--
		return false, errors.New("ledger unavailable")
	}
	d, ok := r.donations[donationID]
	if !ok {
		return false, repository.ErrDonationNotFound
	}
	if d.LedgerApplied {
		return false, nil
	}
	d.LedgerApplied = true
	r.donations[donationID] = d

	if c, ok := r.campaigns[d.CampaignID]; ok {
		c.CollectedAmount = c.CollectedAmount.Add(d.Amount)
		r.campaigns[d.CampaignID] = c
	}
	return true, nil
}

func (r *memRepo) GetDonationsByDonor(_ context.Context, donorID string) ([]model.DonationView, error) {
	return r.views(func(d model.Donation) bool { return d.DonorID == donorID }), nil
}

func (r *memRepo) GetDonationsByCampaign(_ context.Context, campaignID string) ([]model.DonationView, error) {
	return r.views(func(d model.Donation) bool { return d.CampaignID == campaignID }), nil
}

func (r *memRepo) GetUnappliedDonations(_ context.Context, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, id := range r.order {
		if !r.donations[id].LedgerApplied && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memRepo) views(match func(model.Donation) bool) []model.DonationView {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.DonationView
	for i := len(r.order) - 1; i >= 0; i-- {
		d := r.donations[r.order[i]]
		if !match(d) {
			continue
		}
		res = append(res, model.DonationView{
			Donation:      d,
			CampaignTitle: r.campaigns[d.CampaignID].Title,
		})
	}
	return res
}

func (r *memRepo) donationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.donations)
}
