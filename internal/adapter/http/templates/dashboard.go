// Package templates renders the HTML pages served next to the JSON API.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/service"
)

const refreshSeconds = 2

const styles = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2328}
table{border-collapse:collapse;width:100%}th,td{padding:.4rem .6rem;border-bottom:1px solid #d0d7de;text-align:left}
.bar{background:#eaeef2;border-radius:3px;width:10rem;height:.6rem}.fill{background:#2da44e;height:100%;border-radius:3px}
.error .fill{background:#cf222e}.muted{color:#656d76}`

// Dashboard lists every job with its live progress. The page reloads itself
// while the browser polls, the same way the upload client does.
func Dashboard(jobs []*domain.Job, status service.StatusReport) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta http-equiv="refresh" content="%d"><title>Orator</title><style>%s</style></head><body>`,
			refreshSeconds, styles); err != nil {
			return err
		}
		if err := header(status).Render(ctx, w); err != nil {
			return err
		}

		if len(jobs) == 0 {
			_, err := io.WriteString(w, `<p class="muted">No files uploaded yet.</p></body></html>`)
			return err
		}

		if _, err := io.WriteString(w, `<table><thead><tr><th>File</th><th>Stage</th><th>Progress</th>`+
			`<th>Duration</th><th>Words</th><th>Summary</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, job := range jobs {
			if err := Row(job).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table></body></html>`)
		return err
	})
}

func header(status service.StatusReport) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		engine := "offline"
		if status.LLMAvailable {
			engine = "online"
		}
		_, err := fmt.Fprintf(w, `<h1>Orator</h1><p class="muted">Text engine %s at %s</p>`,
			engine, templ.EscapeString(status.EngineEndpoint))
		return err
	})
}

// Row renders one job as a table row.
func Row(job *domain.Job) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		class := ""
		if job.ProcessingStage == domain.StageError {
			class = ` class="error"`
		}

		duration := "-"
		if job.AudioDuration != nil && *job.AudioDuration > 0 {
			duration = domain.FormatDuration(*job.AudioDuration)
		}
		summary := ""
		if job.Summary != nil {
			summary = *job.Summary
		}

		_, err := fmt.Fprintf(w,
			`<tr id="job-%d"%s><td><a href="/files/%d">%s</a></td><td>%s</td>`+
				`<td><div class="bar"><div class="fill" style="width:%d%%"></div></div>%d%%</td>`+
				`<td>%s</td><td>%s</td><td>%s</td></tr>`,
			job.ID, class, job.ID, templ.EscapeString(job.Filename),
			templ.EscapeString(string(job.ProcessingStage)),
			job.ProgressPercentage, job.ProgressPercentage,
			templ.EscapeString(duration), strconv.Itoa(job.WordCount), templ.EscapeString(summary))
		return err
	})
}
