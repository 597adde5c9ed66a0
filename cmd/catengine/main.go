package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-cat/internal/app"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/envutil"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

var log *logger.Logger

var rootCmd = &cobra.Command{
	Use:   "catengine",
	Short: "Adaptive testing and scoring engine",
	Long: `catengine administers computerized adaptive tests and scores them.

Commands:
  validate  - Load and validate an item bank (and optional forms)
  simulate  - Run simulated respondents through a plan
  score     - Score finished domain summaries into a composite report`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(envutil.String("LOG_MODE", "development"))
		if err != nil {
			return errors.Wrap(err, "initialize logger")
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd(), simulateCmd(), scoreCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// baseConfig reads the environment; flags then override individual fields.
func baseConfig() app.Config {
	return app.LoadConfig(log)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
