package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/service/staff"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := postgres.NewMigrator(a.db).Up(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			statuses, err := postgres.NewMigrator(a.db).Status(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
			for _, st := range statuses {
				appliedAt := "pending"
				if st.AppliedAt != nil {
					appliedAt = st.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%03d\t%s\t%s\n", st.Version, st.Name, appliedAt)
			}
			return w.Flush()
		},
	})

	return cmd
}

func bootstrapAdminCmd() *cobra.Command {
	var name, displayCode string

	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the root administrator",
		Long: "Create the root administrator. The passcode is read from " +
			"CLINIC_ADMIN_PASSCODE so it does not end up in shell history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			passcode := strings.TrimSpace(os.Getenv("CLINIC_ADMIN_PASSCODE"))
			if passcode == "" {
				return fmt.Errorf("CLINIC_ADMIN_PASSCODE must be set")
			}

			ctx := context.Background()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			svc := staff.NewService(a.store, security.NewBcryptHasher(a.cfg.Security.BcryptCost), a.log, a.metrics)
			admin, err := svc.BootstrapAdmin(ctx, name, displayCode, passcode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created root administrator %s (display code %s)\n", admin.ID, displayCode)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "Administrator", "administrator name")
	cmd.Flags().StringVar(&displayCode, "display-code", "ADMIN", "display code used to sign in")
	return cmd
}
