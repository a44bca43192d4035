package usecase

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/expert_panel/app/server/internal/domain"
	"github.com/iWorld-y/expert_panel/app/server/internal/repo"
)

// ReportUseCase 报告查询业务逻辑
type ReportUseCase struct {
	repo repo.ReportRepo
	log  *log.Helper
}

// NewReportUseCase 创建报告业务逻辑实例
func NewReportUseCase(repo repo.ReportRepo, logger log.Logger) *ReportUseCase {
	return &ReportUseCase{repo: repo, log: log.NewHelper(logger)}
}

// List 列出用户最近的报告
func (uc *ReportUseCase) List(ctx context.Context, userID string, limit int) ([]domain.ReportSummary, error) {
	return uc.repo.ListUserReports(ctx, userID, limit)
}

// GetByID 根据ID获取报告详情
func (uc *ReportUseCase) GetByID(ctx context.Context, id int64, userID string) (*domain.Report, error) {
	return uc.repo.GetReport(ctx, id, userID)
}

// Analytics 使用统计
func (uc *ReportUseCase) Analytics(ctx context.Context) (*domain.Analytics, error) {
	return uc.repo.Analytics(ctx)
}
