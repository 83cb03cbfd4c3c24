package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/caregap/internal/config"
	"github.com/BartekS5/caregap/internal/etl"
	"github.com/BartekS5/caregap/internal/preview"
	"github.com/BartekS5/caregap/internal/rules"
	"github.com/BartekS5/caregap/internal/sheet"
	"github.com/BartekS5/caregap/internal/store"
	"github.com/BartekS5/caregap/pkg/database"
	"github.com/BartekS5/caregap/pkg/logger"
	"github.com/BartekS5/caregap/pkg/models"
)

// app wires the configured store, system registry and import services.
type app struct {
	cfg      *config.Config
	systems  *config.Registry
	store    store.Store
	cache    *preview.Cache
	pipeline *etl.Pipeline
	executor *etl.Executor
	closers  []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel, cfg.Env); err != nil {
		return nil, fmt.Errorf("failed to initialise logger: %w", err)
	}

	a := &app{cfg: cfg}
	a.closers = append(a.closers, logger.Close)

	a.systems, err = config.LoadSystems(cfg.SystemsPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	switch cfg.StoreDriver {
	case config.DriverSQLServer:
		db, err := database.ConnectSQL(ctx, cfg.SQLConnString)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { db.Close() })
		a.store = store.NewSQLStore(db)
	case config.DriverMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoConnString)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(dctx)
		})
		a.store = store.NewMongoStore(client, cfg.MongoDatabase)
	default:
		logger.Warn("Using the in-memory store; nothing outlives this process.")
		a.store = store.NewMemoryStore()
	}

	a.cache = preview.New(cfg.PreviewTTL, preview.WithSweepInterval(cfg.PreviewSweepInterval))
	a.pipeline = etl.NewPipeline(a.systems, a.store, a.cache)
	a.executor = etl.NewExecutor(a.store, a.cache, rules.NewIntervalCalculator(), a.store)
	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadSheet(path string) (*sheet.Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()
	return sheet.ReadCSV(f)
}

func (a *app) preview(ctx context.Context, opts *ImportOptions) (*models.PreviewEntry, error) {
	s, err := loadSheet(opts.File)
	if err != nil {
		return nil, err
	}
	return a.pipeline.Preview(ctx, etl.PreviewRequest{
		SystemID: opts.SystemID,
		Mode:     models.ImportMode(strings.ToLower(opts.Mode)),
		Headers:  s.Headers,
		Rows:     s.Rows,
	})
}

func runPreview(cmd *cobra.Command, opts *ImportOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.preview(ctx, opts)
	if err != nil {
		return err
	}
	printPreview(cmd.OutOrStdout(), entry, opts.Verbose)
	// the CLI process ends here, so the preview is not kept
	a.cache.Delete(entry.ID)
	return nil
}

func runImport(cmd *cobra.Command, opts *ImportOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.preview(ctx, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printPreview(out, entry, opts.Verbose)

	if !entry.Validation.Valid && !opts.Force {
		a.cache.Delete(entry.ID)
		return fmt.Errorf("validation found %d errors; fix the file or rerun with --force", len(entry.Validation.Errors))
	}
	if !opts.Yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Apply %d changes?", len(entry.Diff.Changes))) {
		a.cache.Delete(entry.ID)
		fmt.Fprintln(out, "Aborted. Nothing was written.")
		return nil
	}

	result, err := a.executor.Execute(ctx, entry.ID)
	if err != nil {
		return err
	}
	printResult(out, result)
	if !result.Success {
		return errors.New("import failed; nothing was written")
	}
	return nil
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printPreview(out io.Writer, e *models.PreviewEntry, verbose bool) {
	s := e.Diff.Summary
	fmt.Fprintf(out, "Preview %s (%s, %s mode), expires %s\n", e.ID, e.SystemID, e.Mode, e.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Inserts: %d  Updates: %d  Skips: %d  Both: %d  Deletes: %d\n",
		s.Inserts, s.Updates, s.Skips, s.Both, s.Deletes)
	fmt.Fprintf(out, "  New patients: %d  Existing patients: %d\n", s.NewPatients, s.ExistingPatients)

	v := e.Validation
	fmt.Fprintf(out, "  Validation: %d rows, %d errors, %d warnings, %d duplicate groups\n",
		v.Stats.TotalRows, len(v.Errors), len(v.Warnings), v.Stats.DuplicateGroups)
	for _, ve := range v.Errors {
		fmt.Fprintf(out, "    ERROR row %d %s: %s\n", ve.RowIndex, ve.Field, ve.Message)
	}
	for _, w := range e.Warnings {
		fmt.Fprintf(out, "    WARN %s\n", w)
	}

	if !verbose || len(e.Diff.Changes) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tPATIENT\tMEASURE\tOLD\tNEW\tREASON")
	for _, c := range e.Diff.Changes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Action, c.MemberName, c.QualityMeasure, orDash(c.OldStatus), orDash(c.NewStatus), c.Reason)
	}
	tw.Flush()
}

func printResult(out io.Writer, r *models.ExecutionResult) {
	if !r.Success {
		fmt.Fprintln(out, "Import FAILED:")
	} else {
		fmt.Fprintf(out, "Import committed in %s\n", r.Duration.Round(time.Millisecond))
		st := r.Stats
		fmt.Fprintf(out, "  Inserted: %d  Updated: %d  Skipped: %d  Both: %d  Deleted: %d\n",
			st.Inserted, st.Updated, st.Skipped, st.Both, st.Deleted)
		fmt.Fprintf(out, "  Patients created: %d  Patients updated: %d\n", st.PatientsCreated, st.PatientsUpdated)
	}
	for _, e := range r.Errors {
		if e.ChangeIndex < 0 {
			fmt.Fprintf(out, "  %s\n", e.Message)
			continue
		}
		fmt.Fprintf(out, "  change %d (%s %s): %s\n", e.ChangeIndex, e.MemberName, e.QualityMeasure, e.Message)
	}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
