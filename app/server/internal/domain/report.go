package domain

import "github.com/iWorld-y/expert_panel/app/expert_panel/pkg/storage"

// ReportSummary 报告列表项
type ReportSummary = storage.ReportSummary

// Report 报告详情，report_data 为完整的分析结果
type Report = storage.Report

// Analytics 使用统计
type Analytics = storage.Analytics

// MaxListLimit 报告列表单次最多返回的条数
const MaxListLimit = storage.MaxListLimit

// HealthStatus 健康检查结果
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
