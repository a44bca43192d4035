package data

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/storage"
	"github.com/iWorld-y/expert_panel/app/server/internal/domain"
	"github.com/iWorld-y/expert_panel/app/server/internal/repo"
)

// reportStore 报告存储所需的操作，由 storage.Storage 实现
type reportStore interface {
	SaveReport(ctx context.Context, userID, problem string, run *model.AnalysisRun, seconds float64) (int64, error)
	GetUserReports(ctx context.Context, userID string, limit int) ([]storage.ReportSummary, error)
	GetReportByID(ctx context.Context, id int64, userID string) (*storage.Report, error)
	GetAnalytics(ctx context.Context) (*storage.Analytics, error)
}

type reportRepo struct {
	store reportStore
	log   *log.Helper
}

func NewReportRepo(data *Data, logger log.Logger) repo.ReportRepo {
	r := &reportRepo{log: log.NewHelper(logger)}
	if data != nil && data.store != nil {
		r.store = data.store
	}
	return r
}

func (r *reportRepo) SaveReport(ctx context.Context, userID, problem string, run *model.AnalysisRun, seconds float64) (int64, error) {
	if r.store == nil {
		return 0, repo.ErrStoreDisabled
	}
	return r.store.SaveReport(ctx, userID, problem, run, seconds)
}

func (r *reportRepo) ListUserReports(ctx context.Context, userID string, limit int) ([]domain.ReportSummary, error) {
	if r.store == nil {
		return nil, repo.ErrStoreDisabled
	}
	return r.store.GetUserReports(ctx, userID, limit)
}

func (r *reportRepo) GetReport(ctx context.Context, id int64, userID string) (*domain.Report, error) {
	if r.store == nil {
		return nil, repo.ErrStoreDisabled
	}
	rp, err := r.store.GetReportByID(ctx, id, userID)
	if errors.Is(err, storage.ErrReportNotFound) {
		return nil, repo.ErrReportNotFound
	}
	return rp, err
}

func (r *reportRepo) Analytics(ctx context.Context) (*domain.Analytics, error) {
	if r.store == nil {
		return nil, repo.ErrStoreDisabled
	}
	return r.store.GetAnalytics(ctx)
}
