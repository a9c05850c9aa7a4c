package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"leadboard/httpapi"
	"leadboard/models"
	"leadboard/services"
	"leadboard/storage"
)

var (
	listPage  int
	listLimit int
	listJSON  bool

	exportDir string

	reportPDF string
)

func init() {
	listCmd.Flags().IntVar(&listPage, "page", 1, "page of the result to show")
	listCmd.Flags().IntVar(&listLimit, "limit", services.DefaultPageLimit, "entities per page")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print the raw result as JSON")

	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default EXPORT_DIR)")

	reportCmd.Flags().StringVar(&reportPDF, "pdf", "", "also render the report to this PDF file")
}

var listCmd = &cobra.Command{
	Use:   "list <customers|leads|followups>",
	Short: "Show one page of an aggregated view",
	Long: `Show one page of an aggregated view.

Examples:
  # Most recent customers
  leadboard list customers

  # Leads that mentioned both keywords in the last 30 days
  leadboard list leads --keywords pricing,demo --range 30days`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

var exportCmd = &cobra.Command{
	Use:   "export <customers|leads|followups|transcripts>",
	Short: "Write the full filtered view to a CSV file",
	Long: `Write the full filtered view to a CSV file in the export directory.

No file is created when nothing matches the filters.

Examples:
  leadboard export customers --search asha
  leadboard export transcripts --start 2024-01-01 --end 2024-01-31`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the campaign report over all customers",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runList(cmd *cobra.Command, args []string) error {
	view, err := services.ParseView(args[0])
	if err != nil {
		return err
	}
	criteria, err := services.ParseCriteria(criteriaIn, cfg.Location())
	if err != nil {
		return err
	}
	p, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	res := p.List(cmd.Context(), services.ListQuery{View: view, Criteria: criteria, Page: listPage, Limit: listLimit})
	if res.Error != "" {
		return errors.New(res.Error)
	}
	warnFailedSources(res.FailedSources)

	if listJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printList(cmd, view, res)
	return nil
}

func printList(cmd *cobra.Command, view services.View, res models.ListResult) {
	w := cmd.OutOrStdout()
	loc := cfg.Location()

	fmt.Fprintf(w, "\n\033[1;35m  %s: %d total (page %d of %d)\033[0m\n",
		strings.ToUpper(string(view)), res.Total, res.CurrentPage, res.TotalPages)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 96))
	for _, e := range res.Leads {
		contact := e.Phone
		if contact == "" {
			contact = e.Email
		}
		fmt.Fprintf(w, "  %-24s %-18s %-10s %5d  %s  %s\n",
			e.DisplayName, contact, e.Status, e.MessageCount,
			storage.FormatTime(e.LastSeen, loc, "2006-01-02 15:04"),
			strings.Join(e.MatchedKeywords, ", "))
	}
	fmt.Fprintln(w)
}

func runExport(cmd *cobra.Command, args []string) error {
	view, err := services.ParseView(args[0])
	if err != nil {
		return err
	}
	criteria, err := services.ParseCriteria(criteriaIn, cfg.Location())
	if err != nil {
		return err
	}
	p, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	dir := exportDir
	if dir == "" {
		dir = cfg.ExportDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	out := storage.NewLazyFile(filepath.Join(dir, p.ExportFileName(view, criteria)))
	res := p.Export(cmd.Context(), view, criteria, out)
	if err := out.Close(); err != nil {
		logger.Error("Closing %s failed: %v", out.Path(), err)
	}
	warnFailedSources(res.FailedSources)

	switch {
	case res.Error != "":
		return errors.New(res.Error)
	case res.Warning != "":
		logger.Warn("%s", res.Warning)
	default:
		logger.Info("Exported %d rows → %s", res.Rows, out.Path())
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	criteria, err := services.ParseCriteria(criteriaIn, cfg.Location())
	if err != nil {
		return err
	}
	p, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	res := p.Report(cmd.Context(), criteria)
	if res.Error != "" {
		return errors.New(res.Error)
	}
	warnFailedSources(res.FailedSources)
	p.Insights().Print(cmd.OutOrStdout(), res.Report)

	if reportPDF == "" {
		return nil
	}
	renderer := storage.NewPDFRenderer(cfg.ChromeBin, 60*time.Second)
	pdf, err := renderer.Render(cmd.Context(), res.Report, p.Now().In(cfg.Location()))
	if err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := os.WriteFile(reportPDF, pdf, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	logger.Info("Report PDF saved to %s", reportPDF)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	p, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	server, err := httpapi.NewServer(p, logger, cfg.HTTPAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
