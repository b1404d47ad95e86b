// ============================================================================
// Atomic-Ledger CLI
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command surface for running and inspecting an engine
//
// Command structure:
//   ledger
//   ├── run             # start a wallet-backed engine from a config file
//   │   └── --config, -c
//   ├── wal-scan        # paginated offline WAL inspection
//   │   └── --dir --partition --from --limit --backward --key --tx
//   ├── snapshot-dump   # print a partition's snapshot envelope
//   │   └── --dir --partition
//   └── version
//
// The run command wires the reference wallet domain so the binary is a
// working single-node ledger out of the box. Embedders building their own
// domain use pkg/engine directly and keep only the inspection commands.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vevoly/atomic-ledger/pkg/admin"
	"github.com/vevoly/atomic-ledger/pkg/config"
	"github.com/vevoly/atomic-ledger/pkg/engine"
	"github.com/vevoly/atomic-ledger/pkg/log"
	"github.com/vevoly/atomic-ledger/pkg/metrics"
	"github.com/vevoly/atomic-ledger/pkg/wallet"
)

// Version is stamped by the build.
var Version = "dev"

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Embeddable transactional ledger engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newWALScanCmd(), newSnapshotDumpCmd(), newVersionCmd())
	return root
}

// ============================================================================
// run
// ============================================================================

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a wallet-backed ledger engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runEngine(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/default.yaml", "config file path")
	return cmd
}

func runEngine(cfg config.Config) error {
	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("cli")

	collector := metrics.NewCollector(cfg.Metrics.Prefix, cfg.EngineName)
	if err := collector.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	eng, err := engine.New(cfg).
		WithProcessor(wallet.Processor{}).
		WithPersister(&logPersister{}).
		WithBootstrap(wallet.Bootstrap{}).
		WithMetrics(collector).
		Build()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		go func() {
			logger.Info().Int("port", cfg.Metrics.Port).Msg("metrics endpoint listening")
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	// Block until SIGINT or SIGTERM, then drain gracefully.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return eng.Stop(stopCtx)
}

// logPersister is the run command's sink: it logs movements instead of
// writing them to a database. Real deployments supply their own Persister.
type logPersister struct{}

func (*logPersister) Persist(batch []any) error {
	logger := log.WithComponent("persister")
	for _, e := range batch {
		if m, ok := e.(*wallet.Movement); ok {
			logger.Info().
				Str("tx", m.TxID).
				Str("account", m.Account).
				Int64("delta_minor", m.DeltaMinor).
				Int64("balance_minor", m.BalanceMinor).
				Msg("movement")
		}
	}
	return nil
}

// ============================================================================
// wal-scan
// ============================================================================

func newWALScanCmd() *cobra.Command {
	var (
		dir       string
		part      int
		from      uint64
		limit     int
		backward  bool
		key, txID string
	)

	cmd := &cobra.Command{
		Use:   "wal-scan",
		Short: "Page through a partition's WAL records",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := admin.ScanWAL(partitionDir(dir, part), wallet.Bootstrap{}.Decoders(), admin.PageQuery{
				From:       from,
				Limit:      limit,
				Backward:   backward,
				RoutingKey: key,
				TxID:       txID,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "engine data directory (e.g. <base_dir>/<engine_name>)")
	cmd.Flags().IntVar(&part, "partition", 0, "partition index")
	cmd.Flags().Uint64Var(&from, "from", 0, "cursor index to continue from")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().BoolVar(&backward, "backward", false, "page toward older records")
	cmd.Flags().StringVar(&key, "key", "", "filter by routing key")
	cmd.Flags().StringVar(&txID, "tx", "", "filter by transaction ID")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// ============================================================================
// snapshot-dump
// ============================================================================

func newSnapshotDumpCmd() *cobra.Command {
	var (
		dir  string
		part int
	)

	cmd := &cobra.Command{
		Use:   "snapshot-dump",
		Short: "Print a partition's snapshot envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := admin.DumpSnapshot(partitionDir(dir, part))
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "engine data directory (e.g. <base_dir>/<engine_name>)")
	cmd.Flags().IntVar(&part, "partition", 0, "partition index")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// ============================================================================
// version
// ============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "atomic-ledger %s\n", Version)
		},
	}
}

// ============================================================================
// helpers
// ============================================================================

// partitionDir resolves the on-disk directory of one partition under an
// engine data directory: <dir>/<engine>-p<k>, where <engine> is the last
// path element of dir.
func partitionDir(dir string, k int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-p%d", filepath.Base(dir), k))
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
