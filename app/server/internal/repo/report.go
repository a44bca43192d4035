package repo

import (
	"context"
	"errors"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
	"github.com/iWorld-y/expert_panel/app/server/internal/domain"
)

var (
	// ErrReportNotFound 报告不存在
	ErrReportNotFound = errors.New("report not found")
	// ErrStoreDisabled 未配置数据库
	ErrStoreDisabled = errors.New("report store is not configured")
)

// ReportRepo 报告仓库接口
type ReportRepo interface {
	// SaveReport 归档一次分析结果，返回报告 ID
	SaveReport(ctx context.Context, userID, problem string, run *model.AnalysisRun, seconds float64) (int64, error)
	// ListUserReports 获取用户最近的报告
	ListUserReports(ctx context.Context, userID string, limit int) ([]domain.ReportSummary, error)
	// GetReport 根据 ID 获取报告详情，userID 为空时不校验归属
	GetReport(ctx context.Context, id int64, userID string) (*domain.Report, error)
	// Analytics 使用统计
	Analytics(ctx context.Context) (*domain.Analytics, error)
}
