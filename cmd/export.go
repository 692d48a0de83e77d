package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PedramNavid/styleval/internal/analysis"
)

var (
	exportOut     string
	exportSummary bool
)

var exportCmd = &cobra.Command{
	Use:   "export <experiment-id>",
	Short: "Export experiment results to CSV or XLSX",
	Long:  "Writes one row per matrix job with generation metadata and evaluation scores. The output format follows the file extension (.csv or .xlsx).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		experimentID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if _, err := st.GetExperiment(ctx, experimentID); err != nil {
			return eris.Wrap(err, "get experiment")
		}

		records, err := analysis.Collect(ctx, st, experimentID)
		if err != nil {
			return eris.Wrap(err, "collect records")
		}

		if exportSummary {
			summary, err := analysis.Summarize(experimentID, records, analysis.Options{})
			if err != nil {
				return eris.Wrap(err, "summarize")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return eris.Wrap(err, "encode summary")
			}
		}

		out := exportOut
		if out == "" {
			out = "experiment-" + experimentID + ".csv"
		}

		switch strings.ToLower(filepath.Ext(out)) {
		case ".csv":
			err = analysis.ExportCSVFile(out, records)
		case ".xlsx":
			err = analysis.ExportXLSX(out, records)
		default:
			return eris.Errorf("unsupported export extension: %s", filepath.Ext(out))
		}
		if err != nil {
			return eris.Wrap(err, "write export")
		}

		zap.L().Info("export written",
			zap.String("experiment_id", experimentID),
			zap.String("path", out),
			zap.Int("rows", len(records)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (.csv or .xlsx, default experiment-<id>.csv)")
	exportCmd.Flags().BoolVar(&exportSummary, "summary", false, "print the analysis summary as JSON to stdout")
	rootCmd.AddCommand(exportCmd)
}
