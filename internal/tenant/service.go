// Package tenant はテナント管理のドメインロジックを提供する。
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/repository"
	"github.com/hitoshi/tenantman/internal/tenantstore"
)

// CreateInput はテナント登録の入力。
type CreateInput struct {
	Name              string
	DirectoryID       string
	ApplicationID     string
	ApplicationSecret string
	IsActive          bool
	AutoFetchEnabled  bool
	ScheduleValue     int
	ScheduleUnit      string
}

// UpdateInput はテナント更新の入力。シークレットが空の場合は既存値を維持する。
type UpdateInput struct {
	Name              string
	DirectoryID       string
	ApplicationID     string
	ApplicationSecret string
	IsActive          bool
	AutoFetchEnabled  bool
	ScheduleValue     int
	ScheduleUnit      string
}

// Service はテナント管理のサービス層。
// 登録時のパーティション作成、削除時のパーティションとフェッチログの
// 後始末を含む。
type Service struct {
	tenantRepo repository.TenantRepository
	fetchLog   repository.FetchLogRepository
	store      tenantstore.Store
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	tenantRepo repository.TenantRepository,
	fetchLog repository.FetchLogRepository,
	store tenantstore.Store,
	logger *slog.Logger,
) *Service {
	return &Service{
		tenantRepo: tenantRepo,
		fetchLog:   fetchLog,
		store:      store,
		logger:     logger,
	}
}

// List は全テナントを返す。
func (s *Service) List(ctx context.Context) ([]*model.Tenant, error) {
	return s.tenantRepo.List(ctx)
}

// Get は指定IDのテナントを返す。存在しない場合はエラーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Tenant, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("テナントの取得に失敗しました: %w", err)
	}
	if tenant == nil {
		return nil, model.NewTenantNotFoundError(id)
	}
	return tenant, nil
}

// Create はテナントを登録し、同期データ用のパーティションを作成する。
// パーティション作成に失敗した場合はテナント登録を取り消す。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Tenant, error) {
	tenant := &model.Tenant{
		ID:                uuid.New().String(),
		Name:              input.Name,
		DirectoryID:       input.DirectoryID,
		ApplicationID:     input.ApplicationID,
		ApplicationSecret: input.ApplicationSecret,
		IsActive:          input.IsActive,
		AutoFetchEnabled:  input.AutoFetchEnabled,
		ScheduleValue:     input.ScheduleValue,
		ScheduleUnit:      model.ScheduleUnit(input.ScheduleUnit),
		DateAdded:         time.Now().UTC(),
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("テナントの登録に失敗しました: %w", err)
	}

	if err := s.store.EnsurePartition(ctx, tenant); err != nil {
		s.logger.Error("テナント用パーティションの作成に失敗しました",
			slog.String("tenant_id", tenant.ID),
			slog.String("tenant_name", tenant.Name),
			slog.String("error", err.Error()),
		)
		if delErr := s.tenantRepo.DeleteByID(ctx, tenant.ID); delErr != nil {
			s.logger.Error("パーティション作成失敗後のテナント削除に失敗しました",
				slog.String("tenant_id", tenant.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, model.NewPartitionProvisionFailedError(tenant.Name)
	}

	s.logger.Info("テナントを登録しました",
		slog.String("tenant_id", tenant.ID),
		slog.String("tenant_name", tenant.Name),
	)

	return tenant, nil
}

// Update はテナント情報を更新する。
// ApplicationSecretが空の場合は既存のシークレットを維持する。
// テナント名が変わってもパーティション名は追従しない（既存データを保持する）。
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*model.Tenant, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tenant.Name = input.Name
	tenant.DirectoryID = input.DirectoryID
	tenant.ApplicationID = input.ApplicationID
	if input.ApplicationSecret != "" {
		tenant.ApplicationSecret = input.ApplicationSecret
	}
	tenant.IsActive = input.IsActive
	tenant.AutoFetchEnabled = input.AutoFetchEnabled
	tenant.ScheduleValue = input.ScheduleValue
	tenant.ScheduleUnit = model.ScheduleUnit(input.ScheduleUnit)

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, fmt.Errorf("テナントの更新に失敗しました: %w", err)
	}

	return tenant, nil
}

// Delete はテナントを削除し、パーティションとフェッチログを後始末する。
// パーティション削除は冪等であり、未作成でもエラーにならない。
func (s *Service) Delete(ctx context.Context, id string) error {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DropPartition(ctx, tenant); err != nil {
		return fmt.Errorf("テナント用パーティションの削除に失敗しました: %w", err)
	}

	if err := s.fetchLog.DeleteByTenant(ctx, id); err != nil {
		return fmt.Errorf("フェッチログの削除に失敗しました: %w", err)
	}

	if err := s.tenantRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("テナントの削除に失敗しました: %w", err)
	}

	s.logger.Info("テナントを削除しました",
		slog.String("tenant_id", id),
		slog.String("tenant_name", tenant.Name),
	)

	return nil
}

// RefreshTimes は指定テナントのフェッチログ一覧を返す。
// 運用向けのrefresh-times照会に使用する。
func (s *Service) RefreshTimes(ctx context.Context, id string) ([]model.FetchLogEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.fetchLog.ListByTenant(ctx, id)
}
