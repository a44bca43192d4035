package usecase

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
	"github.com/iWorld-y/expert_panel/app/server/internal/repo"
)

// Analyzer 执行一次专家组分析，由 engine.Engine 实现
type Analyzer interface {
	Process(ctx context.Context, problem string) (*model.AnalysisRun, error)
}

// PanelUseCase 分析并归档
type PanelUseCase struct {
	analyzer Analyzer
	repo     repo.ReportRepo
	log      *log.Helper
}

// NewPanelUseCase 创建分析业务逻辑实例
func NewPanelUseCase(analyzer Analyzer, repo repo.ReportRepo, logger log.Logger) *PanelUseCase {
	return &PanelUseCase{analyzer: analyzer, repo: repo, log: log.NewHelper(logger)}
}

// Process 执行分析；归档失败只记日志，不影响返回结果
func (uc *PanelUseCase) Process(ctx context.Context, problem, userID string) (*model.AnalysisRun, error) {
	run, err := uc.analyzer.Process(ctx, problem)
	if err != nil {
		return nil, err
	}

	id, err := uc.repo.SaveReport(ctx, userID, problem, run, run.AnalysisSummary.ProcessingTimeSeconds)
	switch {
	case errors.Is(err, repo.ErrStoreDisabled):
	case err != nil:
		uc.log.WithContext(ctx).Errorf("save report failed: %v", err)
	default:
		uc.log.WithContext(ctx).Infof("report %d archived (run %s)", id, run.AnalysisSummary.RunID)
	}
	return run, nil
}
