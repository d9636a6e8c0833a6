package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/learnmate-backend/internal/app"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *cfgPath, app.Options{WithTemporal: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.Cfg.HTTP.Addr = addr
			}
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func workerCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker for asynchronous curriculum runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *cfgPath, app.Options{WithTemporal: true})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunWorker(cmd.Context())
		},
	}
}
