package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/internet-performance-optimizer/internal/database"
)

func newCmdMigrate(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(
		migrateCmd(a, "up", "Apply all pending migrations"),
		migrateCmd(a, "down", "Roll back the most recent migration"),
		migrateCmd(a, "status", "Show applied and pending migrations"),
	)
	return cmd
}

func migrateCmd(a *app, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := database.NewConnection(ctx, database.ConnectionConfigFrom(a.cfg.Database))
			if err != nil {
				return err
			}
			defer conn.Close()

			migrations, err := database.Migrations()
			if err != nil {
				return err
			}
			mm := database.NewMigrationManager(conn, a.logger)

			switch action {
			case "up":
				applied, err := mm.Up(ctx, migrations)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Applied %d migration(s)\n", applied)
			case "down":
				m, err := mm.Down(ctx, migrations)
				if err != nil {
					return err
				}
				if m == nil {
					fmt.Fprintln(a.out, "No migrations to roll back")
					return nil
				}
				fmt.Fprintf(a.out, "Rolled back %03d_%s\n", m.Version, m.Name)
			case "status":
				statuses, err := mm.Status(ctx, migrations)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
				for _, s := range statuses {
					applied := "pending"
					if s.Applied {
						applied = s.AppliedAt.Local().Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(tw, "%03d\t%s\t%s\n", s.Version, s.Name, applied)
				}
				tw.Flush()
			}
			return nil
		},
	}
}
