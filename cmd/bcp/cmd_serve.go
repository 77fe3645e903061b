package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/bcp/pkg/history"
	"github.com/odvcencio/bcp/pkg/paths"
	"github.com/odvcencio/bcp/pkg/server"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only view of the sweep over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("listen") {
				listen = a.cfg.Serve.Listen
			}
			opts := server.Options{
				Listen: listen,
				Store:  a.store(),
				Logger: a.logger,
			}
			if a.cfg.History.Enabled {
				archive, err := history.Open(paths.HistoryPath(a.dataDir, a.cfg.History.Path))
				if err != nil {
					a.logger.Warn("history archive unavailable", "error", err)
				} else {
					defer archive.Close()
					opts.History = archive
				}
			}
			return server.New(opts).Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, 127.0.0.1:7878)")
	return cmd
}
