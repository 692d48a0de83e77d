package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PedramNavid/styleval/internal/generate"
)

var generateRetryJob string

var generateCmd = &cobra.Command{
	Use:   "generate <experiment-id>",
	Short: "Run generation for an experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		experimentID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		catalog, err := initCatalog()
		if err != nil {
			return err
		}

		reg, cleanup, err := initRegistry(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		orch := generate.NewOrchestrator(st, reg, catalog, cfg.Generate)

		if generateRetryJob != "" {
			if err := orch.RetryJob(ctx, generateRetryJob); err != nil {
				return eris.Wrap(err, "retry job")
			}
		} else {
			exp, err := st.GetExperiment(ctx, experimentID)
			if err != nil {
				return eris.Wrap(err, "get experiment")
			}

			jobs, err := st.ListJobs(ctx, experimentID)
			if err != nil {
				return eris.Wrap(err, "list jobs")
			}
			if len(jobs) == 0 {
				built, err := generate.BuildMatrix(ctx, st, catalog, reg.Names(), exp)
				if err != nil {
					return eris.Wrap(err, "build matrix")
				}
				zap.L().Info("job matrix built",
					zap.String("experiment_id", experimentID),
					zap.Int("jobs", len(built)),
				)
			}

			if err := orch.Run(ctx, experimentID); err != nil {
				return eris.Wrap(err, "run generation")
			}
		}

		progress, err := st.Progress(ctx, experimentID)
		if err != nil {
			return eris.Wrap(err, "read progress")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(progress)
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateRetryJob, "retry-job", "", "retry a single failed job by id instead of running the experiment")
	rootCmd.AddCommand(generateCmd)
}
