// Command assetflow drives the asset lifecycle and request workflow engines
// from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"assetflow/internal/blob"
	"assetflow/internal/config"
	"assetflow/internal/core"
	"assetflow/internal/logging"
	"assetflow/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	configPath  string
	tenant      string
	actor       string
	verbose     bool
	metricsFile string
	traceFile   string

	out      io.Writer
	cfg      *config.Config
	logger   *zap.Logger
	store    domain.DocumentStore
	blobs    blob.Store
	registry *prometheus.Registry
	trace    *os.File
	opts     []core.Option
	assets   *core.AssetLifecycle
	workflow *core.RequestWorkflow
}

func newRootCmd(out io.Writer) (*cobra.Command, *app) {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "assetflow",
		Short:         "Asset lifecycle and request workflow",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "assetflow.yaml", "configuration file")
	flags.StringVar(&a.tenant, "tenant", "", "organization id (overrides config)")
	flags.StringVar(&a.actor, "actor", os.Getenv("ASSETFLOW_ACTOR"), "acting staff id")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	flags.StringVar(&a.traceFile, "trace-file", "", "append operation spans as JSON lines")

	root.AddCommand(newAssetCmd(a), newStockCmd(a), newRequestCmd(a), newAuditCmd(a), newConfigCmd(a))
	return root, a
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.tenant != "" {
		cfg.Tenant = a.tenant
	}
	a.cfg = cfg

	a.logger, err = logging.New(cfg.Logging, a.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.store, err = core.OpenDocumentStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	a.blobs, err = core.OpenBlobStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	recorder, err := core.NewPrometheusRecorder(a.registry)
	if err != nil {
		return err
	}
	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(recorder),
		core.WithCancelPolicy(core.CancelPolicy(cfg.Workflow.CancelPolicy)),
		core.WithReserveOnApproval(cfg.Workflow.ReserveOnApproval),
		core.WithMaxConflictRetries(cfg.Workflow.MaxConflictRetries),
		core.WithOverdueGrace(cfg.OverdueGrace()),
	}
	if a.traceFile != "" {
		a.trace, err = os.OpenFile(a.traceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.trace)))
	}
	if cfg.Workflow.ReceiptsEnabled && a.blobs != nil {
		opts = append(opts, core.WithReceiptStore(a.blobs))
	}
	a.opts = opts
	a.assets = core.NewAssetLifecycle(a.store, opts...)
	a.workflow = core.NewRequestWorkflow(a.assets)
	a.logger.Debug("engines ready",
		zap.String("tenant", cfg.Tenant),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", cfg.Blob.Driver))
	return nil
}

// close releases whatever open acquired and flushes metrics.
func (a *app) close() error {
	var errs []error
	if a.metricsFile != "" && a.registry != nil {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.trace != nil {
		errs = append(errs, a.trace.Close())
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// commandContext bounds one command by the configured store timeout.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d := a.cfg.StoreTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (a *app) requireActor() (string, error) {
	actor := strings.TrimSpace(a.actor)
	if actor == "" {
		return "", domain.ErrMissingActor
	}
	return actor, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// view adds the document id and version, which entities keep out of their
// JSON bodies.
func view(id string, version int64, v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out["id"] = id
	if version > 0 {
		out["version"] = version
	}
	return out, nil
}

func (a *app) printView(id string, version int64, v any) error {
	m, err := view(id, version, v)
	if err != nil {
		return err
	}
	return a.print(m)
}

func printList[T any](a *app, items []T, key func(T) (string, int64)) error {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		id, version := key(item)
		m, err := view(id, version, item)
		if err != nil {
			return err
		}
		out = append(out, m)
	}
	return a.print(out)
}

func assetKey(x domain.Asset) (string, int64)          { return x.ID, x.Version }
func requestKey(x domain.AssetRequest) (string, int64) { return x.ID, x.Version }
func issueKey(x domain.AssetIssue) (string, int64)     { return x.ID, x.Version }
func eventKey(x domain.AssetEvent) (string, int64)     { return x.ID, 0 }

// run executes args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root, a := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(context.Background())
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(stderr, domain.Describe(err))
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
