// Package setting は通知購読設定のドメインロジックを提供する。
package setting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/repository"
)

// Input は通知設定の作成・更新の入力。
type Input struct {
	Name       string
	Email      string
	TenantIDs  []string
	Categories []string
	Frequency  string
}

// Service は通知設定のサービス層。
// 頻度とカテゴリの値検証、参照先テナントの存在確認を行う。
type Service struct {
	settingRepo repository.SettingRepository
	tenantRepo  repository.TenantRepository
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	settingRepo repository.SettingRepository,
	tenantRepo repository.TenantRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		settingRepo: settingRepo,
		tenantRepo:  tenantRepo,
		logger:      logger,
	}
}

// List は全通知設定を返す。
func (s *Service) List(ctx context.Context) ([]*model.NotificationSetting, error) {
	return s.settingRepo.List(ctx)
}

// Get は指定IDの通知設定を返す。存在しない場合はエラーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.NotificationSetting, error) {
	setting, err := s.settingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("通知設定の取得に失敗しました: %w", err)
	}
	if setting == nil {
		return nil, model.NewSettingNotFoundError(id)
	}
	return setting, nil
}

// Create は通知設定を作成する。
func (s *Service) Create(ctx context.Context, input Input) (*model.NotificationSetting, error) {
	frequency, categories, err := s.validate(ctx, input)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	setting := &model.NotificationSetting{
		ID:         uuid.New().String(),
		Name:       input.Name,
		Email:      input.Email,
		TenantIDs:  input.TenantIDs,
		Categories: categories,
		Frequency:  frequency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.settingRepo.Create(ctx, setting); err != nil {
		return nil, fmt.Errorf("通知設定の作成に失敗しました: %w", err)
	}

	s.logger.Info("通知設定を作成しました",
		slog.String("setting_id", setting.ID),
		slog.String("email", setting.Email),
		slog.String("frequency", string(setting.Frequency)),
	)

	return setting, nil
}

// Update は通知設定を更新する。
func (s *Service) Update(ctx context.Context, id string, input Input) (*model.NotificationSetting, error) {
	setting, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	frequency, categories, err := s.validate(ctx, input)
	if err != nil {
		return nil, err
	}

	setting.Name = input.Name
	setting.Email = input.Email
	setting.TenantIDs = input.TenantIDs
	setting.Categories = categories
	setting.Frequency = frequency
	setting.UpdatedAt = time.Now().UTC()

	if err := s.settingRepo.Update(ctx, setting); err != nil {
		return nil, fmt.Errorf("通知設定の更新に失敗しました: %w", err)
	}

	return setting, nil
}

// Delete は指定IDの通知設定を削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.settingRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("通知設定の削除に失敗しました: %w", err)
	}
	return nil
}

// validate は頻度・カテゴリの値と参照先テナントの存在を検証する。
func (s *Service) validate(ctx context.Context, input Input) (model.Frequency, []model.Category, error) {
	frequency := model.Frequency(input.Frequency)
	switch frequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
	default:
		return "", nil, model.NewInvalidFrequencyError(input.Frequency)
	}

	categories := make([]model.Category, 0, len(input.Categories))
	for _, raw := range input.Categories {
		category, ok := model.ParseCategory(raw)
		if !ok {
			return "", nil, model.NewInvalidCategoryError(raw)
		}
		categories = append(categories, category)
	}

	for _, tenantID := range input.TenantIDs {
		tenant, err := s.tenantRepo.FindByID(ctx, tenantID)
		if err != nil {
			return "", nil, fmt.Errorf("テナントの確認に失敗しました: %w", err)
		}
		if tenant == nil {
			return "", nil, model.NewTenantNotFoundError(tenantID)
		}
	}

	return frequency, categories, nil
}
