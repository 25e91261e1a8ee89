package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agente-digital/config"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("cargando configuracion: %w", err)
			}
			logger := utils.NewLogger()
			db, err := store.NewDB(cfg, logger)
			if err != nil {
				return fmt.Errorf("abriendo base de datos: %w", err)
			}
			defer db.Close()
			return store.ApplyMigrations(ctx, db, cfg, logger)
		},
	}
}
