package main

import (
	"github.com/spf13/cobra"

	"agente-digital/core/appbootstrap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Inicia el servidor HTTP y los workers en segundo plano",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := appbootstrap.Open(ctx, configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.Serve(ctx)
		},
	}
}
