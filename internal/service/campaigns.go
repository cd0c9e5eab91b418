package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/validation"
)

// Upload описывает загруженный файл изображения.
type Upload struct {
	Name string
	Data []byte
}

// CampaignInput содержит данные новой кампании.
type CampaignInput struct {
	Title        string
	Description  string
	TargetAmount decimal.Decimal
	Deadline     *time.Time
	Images       []Upload
}

// CreateCampaign создаёт кампанию и сохраняет её изображения. Доступно только администраторам.
func (s *Service) CreateCampaign(ctx context.Context, p model.Principal, in CampaignInput) (*model.Campaign, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !validation.IsValidAmount(in.TargetAmount) {
		return nil, fmt.Errorf("%w: target amount must be positive, at most %s, with at most %d decimals",
			ErrValidation, validation.MaxAmount, validation.MaxAmountScale)
	}

	c := model.Campaign{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Description:     strings.TrimSpace(in.Description),
		TargetAmount:    in.TargetAmount,
		CollectedAmount: decimal.Zero,
		Deadline:        in.Deadline,
		Status:          model.CampaignStatusActive,
		CreatedBy:       p.ID,
		CreatedAt:       s.now().UTC(),
	}

	for i, img := range in.Images {
		key := fmt.Sprintf("campaigns/%s/%d_%s", c.ID, i+1, imageName(img.Name))
		ref, err := s.artifacts.Write(ctx, key, img.Data)
		if err != nil {
			s.removeArtifacts(ctx, c.Images)
			return nil, fmt.Errorf("store campaign image: %w", err)
		}
		c.Images = append(c.Images, ref)
	}

	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		s.removeArtifacts(ctx, c.Images)
		return nil, err
	}

	s.logger.Info("campaign created",
		zap.String("campaignID", c.ID),
		zap.String("createdBy", p.ID),
	)
	return &c, nil
}

// ListCampaigns возвращает активные кампании. При all администратор получает все кампании.
func (s *Service) ListCampaigns(ctx context.Context, p model.Principal, all bool) ([]model.Campaign, error) {
	if all && !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.ListCampaigns(ctx, !all)
}

// GetCampaign возвращает кампанию по идентификатору.
func (s *Service) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.repo.GetCampaign(ctx, id)
}

// CloseCampaign закрывает кампанию. Повторное закрытие отклоняется.
func (s *Service) CloseCampaign(ctx context.Context, p model.Principal, id string) error {
	if !p.IsAdmin() {
		return ErrForbidden
	}
	if err := s.repo.CloseCampaign(ctx, id); err != nil {
		return err
	}
	s.logger.Info("campaign closed", zap.String("campaignID", id))
	return nil
}

// DeleteCampaign удаляет кампанию вместе с изображениями. Пожертвования кампании сохраняются.
func (s *Service) DeleteCampaign(ctx context.Context, p model.Principal, id string) error {
	if !p.IsAdmin() {
		return ErrForbidden
	}

	images, err := s.repo.DeleteCampaign(ctx, id)
	if err != nil {
		return err
	}
	s.removeArtifacts(ctx, images)

	s.logger.Info("campaign deleted", zap.String("campaignID", id))
	return nil
}

func (s *Service) removeArtifacts(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.artifacts.Delete(ctx, ref); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("failed to remove artifact", zap.String("ref", ref), zap.Error(err))
		}
	}
}

func imageName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if s := strings.Trim(b.String(), "."); s != "" {
		return s
	}
	return "image"
}
