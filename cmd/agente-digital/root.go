package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agente-digital",
		Short:         "Plataforma de gestion de incidentes de ciberseguridad",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "ruta del archivo de configuracion")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newDiagnoseCmd())
	root.AddCommand(newRepairCmd())
	return root
}
