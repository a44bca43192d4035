package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/engine"
	"github.com/iWorld-y/expert_panel/app/server/internal/domain"
	"github.com/iWorld-y/expert_panel/app/server/internal/repo"
	"github.com/iWorld-y/expert_panel/app/server/internal/usecase"
)

const (
	OperationHealth         = "/expert_panel.v1.Panel/Health"
	OperationTest           = "/expert_panel.v1.Panel/Test"
	OperationProcessProblem = "/expert_panel.v1.Panel/ProcessProblem"
	OperationListReports    = "/expert_panel.v1.Panel/ListReports"
	OperationGetReport      = "/expert_panel.v1.Panel/GetReport"
	OperationAnalytics      = "/expert_panel.v1.Panel/Analytics"
)

// ProcessProblemRequest 分析请求
type ProcessProblemRequest struct {
	BusinessProblem string         `json:"business_problem"`
	UserID          string         `json:"user_id,omitempty"`
	UserPreferences map[string]any `json:"user_preferences,omitempty"`
}

type PanelService struct {
	ucPanel  *usecase.PanelUseCase
	ucReport *usecase.ReportUseCase
	log      *log.Helper
}

func NewPanelService(ucPanel *usecase.PanelUseCase, ucReport *usecase.ReportUseCase, logger log.Logger) *PanelService {
	return &PanelService{
		ucPanel:  ucPanel,
		ucReport: ucReport,
		log:      log.NewHelper(logger),
	}
}

// RegisterHTTPServer 注册全部路由
func (s *PanelService) RegisterHTTPServer(srv *khttp.Server, processFilters ...khttp.FilterFunc) {
	r := srv.Route("/")
	r.GET("/health", s.Health)
	r.POST("/test", s.Test)
	r.POST("/process_problem", s.ProcessProblem, processFilters...)
	r.GET("/reports", s.ListReports)
	r.GET("/reports/{id}", s.GetReport)
	r.GET("/analytics", s.Analytics)
}

func (s *PanelService) Health(ctx khttp.Context) error {
	return s.handle(ctx, OperationHealth, func(context.Context) (any, error) {
		return &domain.HealthStatus{Status: "healthy", Message: "AI Expert Panel backend is running"}, nil
	})
}

func (s *PanelService) Test(ctx khttp.Context) error {
	return s.handle(ctx, OperationTest, func(context.Context) (any, error) {
		return &domain.HealthStatus{Status: "success", Message: "CORS is working for POST requests"}, nil
	})
}

func (s *PanelService) ProcessProblem(ctx khttp.Context) error {
	if !strings.Contains(ctx.Header().Get("Content-Type"), "json") {
		return kerrors.BadRequest("INVALID_REQUEST", "Request must be JSON")
	}
	var req ProcessProblemRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_REQUEST", "Request must be JSON")
	}
	if strings.TrimSpace(req.BusinessProblem) == "" {
		return kerrors.BadRequest("MISSING_PROBLEM", "Missing 'business_problem' in request")
	}
	problem, err := ValidateProblem(req.BusinessProblem)
	if err != nil {
		return kerrors.BadRequest("INVALID_PROBLEM", err.Error())
	}

	return s.handle(ctx, OperationProcessProblem, func(c context.Context) (any, error) {
		run, err := s.ucPanel.Process(c, problem, req.UserID)
		if err != nil {
			return nil, s.analysisError(err)
		}
		return run, nil
	})
}

func (s *PanelService) ListReports(ctx khttp.Context) error {
	q := ctx.Query()
	userID := q.Get("user_id")
	if userID == "" {
		return kerrors.BadRequest("MISSING_USER", "Missing 'user_id' query parameter")
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > domain.MaxListLimit {
			return kerrors.BadRequest("INVALID_LIMIT", fmt.Sprintf("limit must be an integer between 0 and %d", domain.MaxListLimit))
		}
		limit = n
	}

	return s.handle(ctx, OperationListReports, func(c context.Context) (any, error) {
		reports, err := s.ucReport.List(c, userID, limit)
		if err != nil {
			return nil, reportError(err)
		}
		return map[string]any{"reports": reports}, nil
	})
}

func (s *PanelService) GetReport(ctx khttp.Context) error {
	id, err := strconv.ParseInt(ctx.Vars().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		return kerrors.BadRequest("INVALID_ID", "report id must be a positive integer")
	}
	userID := ctx.Query().Get("user_id")

	return s.handle(ctx, OperationGetReport, func(c context.Context) (any, error) {
		r, err := s.ucReport.GetByID(c, id, userID)
		if err != nil {
			return nil, reportError(err)
		}
		return r, nil
	})
}

func (s *PanelService) Analytics(ctx khttp.Context) error {
	return s.handle(ctx, OperationAnalytics, func(c context.Context) (any, error) {
		a, err := s.ucReport.Analytics(c)
		if err != nil {
			return nil, reportError(err)
		}
		return a, nil
	})
}

// handle 经过服务端中间件执行 fn 并写回 JSON
func (s *PanelService) handle(ctx khttp.Context, operation string, fn func(context.Context) (any, error)) error {
	khttp.SetOperation(ctx, operation)
	h := ctx.Middleware(func(c context.Context, _ any) (any, error) {
		return fn(c)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

func (s *PanelService) analysisError(err error) error {
	var pe *engine.PipelineError
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return kerrors.BadRequest("INVALID_PROBLEM", err.Error())
	case errors.Is(err, context.Canceled):
		return kerrors.ClientClosed("CANCELED", "request canceled")
	case errors.As(err, &pe) && pe.Stage == engine.StagePersonasGenerated:
		s.log.Errorf("persona generation failed: %v", err)
		return kerrors.InternalServer("PERSONA_GENERATION_FAILED", "Persona generation failed. Check backend logs for details.")
	default:
		s.log.Errorf("analysis failed: %v", err)
		return kerrors.InternalServer("ANALYSIS_FAILED", "Analysis failed")
	}
}

func reportError(err error) error {
	switch {
	case errors.Is(err, repo.ErrReportNotFound):
		return kerrors.NotFound("REPORT_NOT_FOUND", "report not found")
	case errors.Is(err, repo.ErrStoreDisabled):
		return kerrors.ServiceUnavailable("REPORTS_DISABLED", "report store is not configured")
	default:
		return kerrors.InternalServer("REPORT_STORE_ERROR", err.Error())
	}
}
