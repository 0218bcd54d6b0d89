package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/config"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/bootstrap"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/logging"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/metrics"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "rag",
	Short: "Hybrid knowledge-base retrieval",
	Long: `rag ingests documents into collections and answers queries by fusing
dense vector similarity with BM25 keyword ranking.

Example usage:
  rag ingest docs ./handbook          # Load files into the "docs" collection
  rag query -q "notice period"        # Query every collection
  rag search -q "§ 573" -c law        # Score-blend search in one collection
  rag sync law                        # Rebuild a lexical index from the vector store`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./rag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

// openRuntime builds the runtime for a command and starts the metrics
// endpoint when one is configured. The returned func releases both.
func openRuntime(cmd *cobra.Command) (*bootstrap.Runtime, func(), error) {
	ctx, cancel := context.WithCancel(cmd.Context())

	rt, err := bootstrap.New(ctx, GetConfig(), GetRootDir())
	if err != nil {
		cancel()
		return nil, nil, err
	}

	if addr := rt.Config.Metrics.Addr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, rt.Metrics); err != nil {
				slog.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	return rt, func() {
		cancel()
		if err := rt.Close(); err != nil {
			slog.Warn("failed to close runtime", "error", err)
		}
	}, nil
}

// parseFilters turns key=value pairs into a metadata filter.
func parseFilters(pairs []string) (domain.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(domain.Filter, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", p)
		}
		filter[key] = value
	}
	return filter, nil
}

func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
