package main

import (
	"html/template"
	"io"
	"os"
	"time"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
)

// htmlData 模板渲染数据
type htmlData struct {
	Date string
	Run  *model.AnalysisRun
}

const htmlTpl = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Expert Panel Report</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif; background: #f8fafc; color: #1e293b; line-height: 1.6; margin: 0; padding: 20px; }
        .container { max-width: 900px; margin: 0 auto; }
        header { text-align: center; margin-bottom: 32px; }
        .meta { color: #64748b; }
        .card { background: #fff; border: 1px solid #e2e8f0; border-radius: 12px; padding: 24px; margin-bottom: 24px; }
        .error { border-left: 4px solid #ef4444; background: #fef2f2; }
        .badge { padding: 2px 10px; border-radius: 12px; font-size: 0.85em; background: #e2e8f0; }
        .High { background: #dcfce7; color: #166534; }
        .Medium { background: #fef9c3; color: #854d0e; }
        .Low { background: #fee2e2; color: #991b1b; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>Expert Panel Report</h1>
        <div class="meta">{{ .Date }} • {{ .Run.GeneratedPersonasCount }} experts • {{ len .Run.MarketIntelligence }} market topics</div>
        <p>{{ .Run.OriginalProblem }}</p>
    </header>

    {{with .Run.SynthesisReport}}
    <div class="card {{if .Error}}error{{end}}">
        <h2>Synthesis</h2>
        {{if .Error}}
        <p>{{.Error}}</p><p class="meta">{{.Details}}</p>
        {{else}}
        <p>{{.CohesiveSummary}}</p>
        <h3>Key themes</h3>
        <ul>{{range .KeyThemes}}<li>{{.}}</li>{{end}}</ul>
        <h3>Potential blind spots</h3>
        <ul>{{range .PotentialBlindSpots}}<li>{{.}}</li>{{end}}</ul>
        <h3>Next steps</h3>
        <ol>{{range .ActionableNextSteps}}<li><span class="badge {{.Priority}}">{{.Priority}}</span> {{.StepDescription}}{{with .SuggestedRationale}}<div class="meta">{{.}}</div>{{end}}</li>{{end}}</ol>
        {{end}}
    </div>
    {{end}}

    <div class="card">
        <h2>Market intelligence</h2>
        {{range .Run.MarketIntelligence}}
        <h3>{{.Title}} <span class="badge {{.ConfidenceLevel}}">{{.ConfidenceLevel}}</span></h3>
        <ul>{{range .KeyInsights}}<li>{{.}}</li>{{end}}</ul>
        {{end}}
    </div>

    {{range .Run.ExpertInsights}}
    <div class="card {{if .Error}}error{{end}}">
        <h2>{{.PersonaName}}</h2>
        {{if .Error}}<p>{{.Error}}</p>{{end}}
        {{range .InsightsAndAnalysis}}
        <p><span class="badge {{.ConfidenceLevel}}">{{.ConfidenceLevel}}</span> <strong>{{.Insight}}</strong></p>
        <p class="meta">{{.SupportingReasoning}}</p>
        {{end}}
    </div>
    {{end}}
</div>
</body>
</html>
`

var reportTpl = template.Must(template.New("report").Parse(htmlTpl))

// renderHTML 渲染报告
func renderHTML(w io.Writer, run *model.AnalysisRun, now time.Time) error {
	return reportTpl.Execute(w, htmlData{Date: now.Format("2006-01-02"), Run: run})
}

func writeHTML(path string, run *model.AnalysisRun) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return renderHTML(f, run, time.Now())
}
