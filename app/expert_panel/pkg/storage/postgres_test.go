package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func completedRun() *model.AnalysisRun {
	return &model.AnalysisRun{
		OriginalProblem: "How can we reduce food waste?",
		AnalysisSummary: model.AnalysisSummary{
			PersonasGenerated:  2,
			InsightsSuccessful: 2,
			MarketItems:        5,
			SynthesisSucceeded: true,
		},
	}
}

func TestSaveReport(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery("INSERT INTO reports").
		WithArgs("user-1", "How can we reduce food waste?", sqlmock.AnyArg(), 12.5, StatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.SaveReport(context.Background(), "user-1", "How can we reduce food waste?", completedRun(), 12.5)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReport_PartialRun(t *testing.T) {
	s, mock := newMockStorage(t)
	run := completedRun()
	run.AnalysisSummary.MarketFallbacks = 1

	mock.ExpectQuery("INSERT INTO reports").
		WithArgs(nil, "problem text", sqlmock.AnyArg(), nil, StatusPartial).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	id, err := s.SaveReport(context.Background(), "", "problem\x00 text", run, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReport_NilRun(t *testing.T) {
	s, _ := newMockStorage(t)
	_, err := s.SaveReport(context.Background(), "u", "p", nil, 1)
	assert.Error(t, err)
}

func TestGetUserReports(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	long := strings.Repeat("a", 150)

	mock.ExpectQuery("SELECT id, problem_statement, created_at, processing_time_seconds, status").
		WithArgs("user-1", DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "problem_statement", "created_at", "processing_time_seconds", "status"}).
			AddRow(int64(2), long, now, 30.25, "partial").
			AddRow(int64(1), "short problem", now.Add(-time.Hour), nil, "completed"))

	reports, err := s.GetUserReports(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, strings.Repeat("a", 100)+"...", reports[0].ProblemStatement)
	require.NotNil(t, reports[0].ProcessingTime)
	assert.Equal(t, 30.25, *reports[0].ProcessingTime)
	assert.Equal(t, "partial", reports[0].Status)

	assert.Equal(t, "short problem", reports[1].ProblemStatement)
	assert.Nil(t, reports[1].ProcessingTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserReports_LimitCapped(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery("SELECT id, problem_statement, created_at, processing_time_seconds, status").
		WithArgs("user-1", MaxListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "problem_statement", "created_at", "processing_time_seconds", "status"}))

	reports, err := s.GetUserReports(context.Background(), "user-1", 2000000000)
	require.NoError(t, err)
	assert.NotNil(t, reports)
	assert.Empty(t, reports)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReportByID(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Now().UTC()
	columns := []string{"id", "user_id", "problem_statement", "report_data", "created_at", "processing_time_seconds", "status"}

	mock.ExpectQuery(`FROM reports WHERE id = \$1 AND user_id = \$2`).
		WithArgs(int64(3), "user-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(3), "user-1", "problem", []byte(`{"original_problem":"problem"}`), now, 4.5, "completed"))

	r, err := s.GetReportByID(context.Background(), 3, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", r.UserID)
	assert.JSONEq(t, `{"original_problem":"problem"}`, string(r.ReportData))

	var run model.AnalysisRun
	require.NoError(t, json.Unmarshal(r.ReportData, &run))
	assert.Equal(t, "problem", run.OriginalProblem)

	mock.ExpectQuery(`FROM reports WHERE id = \$1$`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(columns))
	_, err = s.GetReportByID(context.Background(), 4, "")
	assert.ErrorIs(t, err, ErrReportNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnalytics(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reports`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`SELECT AVG\(processing_time_seconds\)`).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(41.23456))
	mock.ExpectQuery("GROUP BY DATE").
		WithArgs(analyticsDays).
		WillReturnRows(sqlmock.NewRows([]string{"date", "count"}).
			AddRow("2026-10-02", 3).
			AddRow("2026-10-01", 9))

	a, err := s.GetAnalytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, a.TotalReports)
	assert.Equal(t, 41.23, a.AvgProcessingTime)
	assert.Equal(t, []DailyCount{{Date: "2026-10-02", Count: 3}, {Date: "2026-10-01", Count: 9}}, a.DailyReports)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnalytics_Empty(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reports`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT AVG\(processing_time_seconds\)`).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))
	mock.ExpectQuery("GROUP BY DATE").
		WillReturnRows(sqlmock.NewRows([]string{"date", "count"}))

	a, err := s.GetAnalytics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, a.AvgProcessingTime)
	assert.NotNil(t, a.DailyReports)
	assert.Empty(t, a.DailyReports)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	exact := strings.Repeat("b", 100)
	assert.Equal(t, exact, Preview(exact))
	assert.Equal(t, strings.Repeat("é", 100)+"...", Preview(strings.Repeat("é", 101)))
}
