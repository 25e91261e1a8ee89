package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"agente-digital/core/appbootstrap"
)

func newDiagnoseCmd() *cobra.Command {
	var incidentID int64
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Revisa la integridad de los incidentes almacenados",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := appbootstrap.Open(ctx, configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if incidentID > 0 {
				rep, err := rt.DiagSvc.Diagnose(ctx, incidentID)
				if err != nil {
					return err
				}
				return enc.Encode(rep)
			}
			reps, err := rt.DiagSvc.DiagnoseAll(ctx)
			if err != nil {
				return err
			}
			return enc.Encode(reps)
		},
	}
	cmd.Flags().Int64Var(&incidentID, "incidente", 0, "limita el diagnostico a un incidente")
	return cmd
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Recrea los directorios de trabajo que falten",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := appbootstrap.Open(ctx, configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			actions, err := rt.DiagSvc.Repair(ctx)
			if err != nil {
				return err
			}
			for _, a := range actions {
				cmd.Println(a)
			}
			return nil
		},
	}
}
