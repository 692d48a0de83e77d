package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/PedramNavid/styleval/internal/evaluate"
	"github.com/PedramNavid/styleval/internal/generate"
	"github.com/PedramNavid/styleval/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the experiment API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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
		seq := evaluate.NewSequencer(st, catalog)
		srv := server.New(st, catalog, orch, seq, reg)

		serverCfg := cfg.Server
		if servePort != 0 {
			serverCfg.Port = servePort
		}

		return srv.ListenAndServe(ctx, serverCfg)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
