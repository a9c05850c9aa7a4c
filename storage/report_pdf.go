package storage

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"leadboard/models"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Campaign report</title>
<style>
body { font-family: sans-serif; margin: 32px; color: #222; }
h1 { font-size: 20px; } h2 { font-size: 15px; margin-top: 24px; }
table { border-collapse: collapse; width: 100%; }
td, th { border-bottom: 1px solid #ddd; padding: 4px 8px; text-align: left; font-size: 12px; }
</style></head>
<body>
<h1>Campaign report</h1>
<p>Generated {{.Generated}}</p>
<table>
<tr><th>Customers</th><td>{{.Report.TotalEntities}}</td></tr>
<tr><th>Interactions</th><td>{{.Report.TotalInteractions}}</td></tr>
<tr><th>Active in the last 7 days</th><td>{{.Report.ActiveLast7Days}}</td></tr>
{{with .Report.MostActive}}<tr><th>Most active</th><td>{{.DisplayName}} {{.Phone}} ({{.MessageCount}})</td></tr>{{end}}
</table>
<h2>By status</h2>
<table>{{range .Statuses}}<tr><td>{{.Keyword}}</td><td>{{.Count}}</td></tr>{{end}}</table>
<h2>Top keywords</h2>
<table>{{range .Report.TopKeywords}}<tr><td>{{.Keyword}}</td><td>{{.Count}}</td></tr>{{end}}</table>
<h2>By account</h2>
<table>{{range .Accounts}}<tr><td>{{.Keyword}}</td><td>{{.Count}}</td></tr>{{end}}</table>
</body></html>`))

// RenderReportHTML renders the report as a standalone HTML page.
func RenderReportHTML(r *models.CampaignReport, generated time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, struct {
		Report    *models.CampaignReport
		Generated string
		Statuses  []models.KeywordCount
		Accounts  []models.KeywordCount
	}{
		Report:    r,
		Generated: generated.Format("2006-01-02 15:04"),
		Statuses:  sortedCounts(r.ByStatus),
		Accounts:  sortedCounts(r.ByAccount),
	})
	if err != nil {
		return nil, fmt.Errorf("report: render html: %w", err)
	}
	return buf.Bytes(), nil
}

func sortedCounts(m map[string]int) []models.KeywordCount {
	out := make([]models.KeywordCount, 0, len(m))
	for k, v := range m {
		out = append(out, models.KeywordCount{Keyword: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	return out
}

// PDFRenderer prints reports to PDF through a headless Chrome.
type PDFRenderer struct {
	chromeBin string
	timeout   time.Duration
}

// NewPDFRenderer creates a renderer. An empty chromeBin means autodetect.
func NewPDFRenderer(chromeBin string, timeout time.Duration) *PDFRenderer {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PDFRenderer{chromeBin: chromeBin, timeout: timeout}
}

// Render returns the report as PDF bytes.
func (p *PDFRenderer) Render(ctx context.Context, r *models.CampaignReport, generated time.Time) ([]byte, error) {
	html, err := RenderReportHTML(r, generated)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if p.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(p.chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	runCtx, cancelTimeout := context.WithTimeout(browserCtx, p.timeout)
	defer cancelTimeout()

	var pdf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("report: print pdf: %w", err)
	}
	return pdf, nil
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
