// Package report composes the HTML alert bodies and the one-shot checkup
// summary sent to operators.
package report

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/vigilohq/agent/pkg/types"
)

var bodyTmpl = template.Must(template.New("body").Parse(`<html><body>
<p><b>{{.Heading}}:</b> {{.Summary}}</p>
<p><b>Server:</b> {{.Server}}</p>
{{if .Entity}}<p><b>Entity:</b> {{.Entity}}</p>
{{end}}{{if .Reason}}<p><b>Reason:</b> {{.Reason}}</p>
{{end}}{{if .Samples}}<pre>{{range .Samples}}{{.}}
{{end}}</pre>
{{end}}<p><b>Time:</b> {{.Time}}</p>
</body></html>`))

var tableTmpl = template.Must(template.New("table").Parse(`<html><body>
<p><b>{{.Heading}}:</b> {{.Summary}}</p>
<table border="1" cellpadding="5" cellspacing="0">
<tr><th>Pattern</th><th>Previous</th><th>Current</th></tr>
{{range .Rows}}<tr><td>{{.Label}}</td><td>{{.Previous}}</td><td>{{.Current}}</td></tr>
{{end}}</table>
<p>Server: <b>{{.Server}}</b></p>
<p><b>Time:</b> {{.Time}}</p>
</body></html>`))

type bodyData struct {
	Heading string
	Summary string
	Server  string
	Entity  string
	Reason  string
	Samples []string
	Time    string
}

// Row is one pattern line in a rate alert table.
type Row struct {
	Label    string
	Previous int
	Current  int
}

type tableData struct {
	Heading string
	Summary string
	Server  string
	Rows    []Row
	Time    string
}

func heading(kind types.AlertKind) (string, string) {
	switch kind {
	case types.AlertResolved:
		return "RESOLVED", "back to normal"
	case types.AlertStillFailing:
		return "ALERT", "issue still ongoing"
	default:
		return "ALERT", "issue detected"
	}
}

// Body renders the standard alert body for one entity.
func Body(kind types.AlertKind, server, entity, summary, reason string, samples []string, at time.Time) string {
	head, fallback := heading(kind)
	if summary == "" {
		summary = fallback
	}
	var b strings.Builder
	err := bodyTmpl.Execute(&b, bodyData{
		Heading: head,
		Summary: summary,
		Server:  server,
		Entity:  entity,
		Reason:  reason,
		Samples: samples,
		Time:    at.Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return fmt.Sprintf("<html><body><p>%s: %s (%s)</p></body></html>", head, summary, entity)
	}
	return b.String()
}

// Table renders the previous/current count table used by rate alerts.
func Table(kind types.AlertKind, server, summary string, rows []Row, at time.Time) string {
	head, fallback := heading(kind)
	if summary == "" {
		summary = fallback
	}
	var b strings.Builder
	err := tableTmpl.Execute(&b, tableData{
		Heading: head,
		Summary: summary,
		Server:  server,
		Rows:    rows,
		Time:    at.Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return fmt.Sprintf("<html><body><p>%s: %s</p></body></html>", head, summary)
	}
	return b.String()
}

// Subject builds the conventional alert subject line.
func Subject(kind types.AlertKind, monitor, server, entity string) string {
	label := strings.ToUpper(monitor)
	switch kind {
	case types.AlertResolved:
		if entity != "" {
			return fmt.Sprintf("RESOLVED | %s Normal for %s on %s", label, entity, server)
		}
		return fmt.Sprintf("RESOLVED | %s Normal on %s", label, server)
	case types.AlertStillFailing:
		if entity != "" {
			return fmt.Sprintf("%s ALERT | %s on %s (Still Failing)", label, entity, server)
		}
		return fmt.Sprintf("%s ALERT | %s (Still Failing)", label, server)
	default:
		if entity != "" {
			return fmt.Sprintf("%s ALERT | %s on %s", label, entity, server)
		}
		return fmt.Sprintf("%s ALERT | %s", label, server)
	}
}

// CheckupLine is one probe outcome in the one-shot checkup summary.
type CheckupLine struct {
	Monitor string
	Entity  string
	Healthy bool
	Detail  string
	Err     error
}

// Checkup renders a plain-text summary of a one-shot probe sweep.
func Checkup(server string, lines []CheckupLine, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "vigilo checkup for %s at %s\n\n", server, at.Format("2006-01-02 15:04:05"))
	for _, l := range lines {
		status := "OK"
		switch {
		case l.Err != nil:
			status = "ERROR"
		case !l.Healthy:
			status = "FAIL"
		}
		name := l.Monitor
		if l.Entity != "" {
			name = name + "/" + l.Entity
		}
		fmt.Fprintf(&b, "%-8s %-32s %s", status, name, l.Detail)
		if l.Err != nil {
			fmt.Fprintf(&b, " (%v)", l.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
