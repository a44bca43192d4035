package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/config"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
)

// ErrReportNotFound 报告不存在，或不属于指定用户
var ErrReportNotFound = errors.New("report not found")

const (
	// DefaultListLimit 列表默认条数
	DefaultListLimit = 10
	// MaxListLimit 列表单次最多返回的条数
	MaxListLimit = 100
	// StatusCompleted 全部阶段成功
	StatusCompleted = "completed"
	// StatusPartial 至少一个阶段降级
	StatusPartial = "partial"

	previewLen    = 100
	analyticsDays = 7
)

// ReportSummary 报告列表项
type ReportSummary struct {
	ID               int64     `json:"id"`
	ProblemStatement string    `json:"problem_statement"`
	CreatedAt        time.Time `json:"created_at"`
	ProcessingTime   *float64  `json:"processing_time"`
	Status           string    `json:"status"`
}

// Report 报告详情
type Report struct {
	ID               int64           `json:"id"`
	UserID           string          `json:"user_id"`
	ProblemStatement string          `json:"problem_statement"`
	ReportData       json.RawMessage `json:"report_data"`
	CreatedAt        time.Time       `json:"created_at"`
	ProcessingTime   *float64        `json:"processing_time"`
	Status           string          `json:"status"`
}

// DailyCount 某天的报告数
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Analytics 使用统计
type Analytics struct {
	TotalReports      int          `json:"total_reports"`
	AvgProcessingTime float64      `json:"avg_processing_time"`
	DailyReports      []DailyCount `json:"daily_reports"`
}

// Storage 报告存储
type Storage struct {
	db *sql.DB
}

// NewStorage 连接 PostgreSQL 并初始化表结构
func NewStorage(cfg config.DBConfig) (*Storage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db)
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// New 基于已有连接创建存储，不做建表
func New(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id SERIAL PRIMARY KEY,
			user_id TEXT,
			problem_statement TEXT NOT NULL,
			report_data JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			processing_time_seconds DOUBLE PRECISION,
			status TEXT DEFAULT 'completed'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_user_created ON reports (user_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}
	return nil
}

// SaveReport 保存一次分析结果，返回报告 ID。seconds 小于 0 时不记录耗时。
func (s *Storage) SaveReport(ctx context.Context, userID, problem string, run *model.AnalysisRun, seconds float64) (int64, error) {
	if run == nil {
		return 0, errors.New("nil analysis run")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return 0, fmt.Errorf("failed to encode report: %w", err)
	}
	status := StatusCompleted
	if run.Partial() {
		status = StatusPartial
	}
	var processing sql.NullFloat64
	if seconds >= 0 {
		processing = sql.NullFloat64{Float64: seconds, Valid: true}
	}

	// PostgreSQL 文本字段不接受 NULL 字节
	problem = removeNullBytes(problem)

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO reports (user_id, problem_statement, report_data, processing_time_seconds, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		nullString(userID), problem, data, processing, status).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert report: %w", err)
	}
	return id, nil
}

// GetUserReports 按时间倒序返回用户最近的报告，limit 超过 MaxListLimit 时按上限截断
func (s *Storage) GetUserReports(ctx context.Context, userID string, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, problem_statement, created_at, processing_time_seconds, status
		FROM reports
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []ReportSummary{}
	for rows.Next() {
		var (
			r          ReportSummary
			processing sql.NullFloat64
			status     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ProblemStatement, &r.CreatedAt, &processing, &status); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.ProblemStatement = Preview(r.ProblemStatement)
		r.ProcessingTime = floatPtr(processing)
		r.Status = status.String
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetReportByID 读取报告详情；userID 非空时只返回该用户的报告
func (s *Storage) GetReportByID(ctx context.Context, id int64, userID string) (*Report, error) {
	query := `SELECT id, user_id, problem_statement, report_data, created_at, processing_time_seconds, status
		FROM reports WHERE id = $1`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}

	var (
		r          Report
		owner      sql.NullString
		data       []byte
		processing sql.NullFloat64
		status     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&r.ID, &owner, &r.ProblemStatement, &data, &r.CreatedAt, &processing, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report %d: %w", id, err)
	}
	r.UserID = owner.String
	r.ReportData = json.RawMessage(data)
	r.ProcessingTime = floatPtr(processing)
	r.Status = status.String
	return &r, nil
}

// GetAnalytics 统计报告总数、平均耗时与最近 7 天的每日数量
func (s *Storage) GetAnalytics(ctx context.Context) (*Analytics, error) {
	a := &Analytics{DailyReports: []DailyCount{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&a.TotalReports); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(processing_time_seconds) FROM reports WHERE processing_time_seconds IS NOT NULL`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to average processing time: %w", err)
	}
	a.AvgProcessingTime = round2(avg.Float64)

	rows, err := s.db.QueryContext(ctx, `
		SELECT TO_CHAR(DATE(created_at), 'YYYY-MM-DD') AS date, COUNT(*) AS count
		FROM reports
		WHERE created_at >= NOW() - make_interval(days => $1)
		GROUP BY DATE(created_at)
		ORDER BY date DESC`, analyticsDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily reports: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily reports: %w", err)
		}
		a.DailyReports = append(a.DailyReports, d)
	}
	return a, rows.Err()
}

// Preview 列表中展示的问题摘要，超过 100 个字符时截断并追加省略号
func Preview(problem string) string {
	runes := []rune(problem)
	if len(runes) <= previewLen {
		return problem
	}
	return string(runes[:previewLen]) + "..."
}

func removeNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
