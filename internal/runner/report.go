package runner

import (
	"bytes"
	"os"
	"text/template"
	"time"
)

// Report is the markdown summary written at the end of a run.
type Report struct {
	Time         time.Time
	Result       string
	Stream       string
	LogsDB       bool
	LogType      string
	FinalCount   int64
	Versions     Versions
	Endpoint     string
	Status       string
	ServiceLogs  []ServiceLog
	WatchSummary string
}

// ServiceLog is the log tail of one service.
type ServiceLog struct {
	Title string
	Lines string
}

var reportTemplate = template.Must(template.New("report").Parse(`# Logstash Syslog Server to Elasticsearch Test Report

Test conducted on: {{.Time.Format "2006-01-02 15:04:05"}}

## Summary
- Test result: {{.Result}}
- Data stream: {{.Stream}}
- LogsDB mode: {{.LogsDB}}
- Log type: {{.LogType}}
- Log lines ingested: {{.FinalCount}}
{{- if .WatchSummary}}
- Watch: {{.WatchSummary}}
{{- end}}

## Environment
- Docker version: {{.Versions.Docker}}
- Docker Compose version: {{.Versions.Compose}}
- Elasticsearch URL: {{.Endpoint}}

## Container Status
` + "```" + `
{{.Status}}
` + "```" + `
{{range .ServiceLogs}}
## {{.Title}}
` + "```" + `
{{.Lines}}
` + "```" + `
{{end}}`))

// Render returns the report as markdown.
func (r Report) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile renders the report to path.
func (r Report) WriteFile(path string) error {
	b, err := r.Render()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
