package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/migrate"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/seed"
	"github.com/voicescript/collector/internal/service"
	"github.com/voicescript/collector/migrations"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			applied, err := migrate.NewRunner(repo.Pool(), migrations.FS, a.logger).Up(ctx)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(a.out, "Schema is up to date.")
				return nil
			}
			for _, m := range applied {
				fmt.Fprintf(a.out, "Applied V%s %s\n", m.Version, m.Description)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			entries, err := migrate.NewRunner(repo.Pool(), migrations.FS, a.logger).Status(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, renderStatus(entries))
			return err
		},
	})
	return cmd
}

// renderStatus draws the migration status table.
func renderStatus(entries []migrate.StatusEntry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("VERSION", "DESCRIPTION", "STATE", "EXECUTED AT")
	for _, e := range entries {
		state, at := "pending", "-"
		if e.Applied {
			state = "applied"
			if e.ExecutedAt != nil {
				at = e.ExecutedAt.Format("2006-01-02 15:04:05")
			}
		}
		t.Row("V"+e.Version, e.Description, state, at)
	}
	return t.Render()
}

func (a *app) seedDemoCmd() *cobra.Command {
	var force, yes bool
	cmd := &cobra.Command{
		Use:   "seed-demo",
		Short: "Load demo accounts, scripts and languages",
		Long: `Load the demo dataset. Existing rows are kept, so the command can be
re-run safely. --force deletes the demo accounts first.

Every demo account uses the password demo123. Production requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.production() && !yes {
				return errors.New("refusing to seed demo data in production without --yes")
			}
			ctx := cmd.Context()
			ds, err := seed.Demo()
			if err != nil {
				return err
			}
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			sum, err := seed.New(repo, ds, a.logger).Run(ctx, seed.Options{Force: force})
			if err != nil {
				return err
			}
			if force {
				fmt.Fprintf(a.out, "Deleted %d demo users\n", sum.UsersDeleted)
			}
			fmt.Fprintf(a.out, "Created %d users, %d scripts, %d languages\n",
				sum.UsersCreated, sum.ScriptsCreated, sum.LanguagesCreated)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete demo users before seeding")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm seeding a production database")
	return cmd
}

func (a *app) createUserCmd() *cobra.Command {
	var in service.CreateUserInput
	var role, format string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a local account",
		Example: `  voicescript create-user --email admin@example.com --password 's3cret!' --role admin
  echo 's3cret!' | voicescript create-user --email ops@example.com --role admin --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				pw, err := a.readSecret()
				if err != nil {
					return err
				}
				in.Password = pw
			}
			in.Role = model.Role(role)

			ctx := cmd.Context()
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			user, err := service.NewUserService(repo, nil, a.logger).Create(ctx, in)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"id": user.ID, "email": user.Email, "role": user.Role})
			}
			fmt.Fprintf(a.out, "Created %s user %s (id %d)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "account email (required)")
	f.StringVar(&in.Password, "password", "", "account password; read from stdin when empty")
	f.StringVar(&role, "role", string(model.RoleProvider), "provider, reviewer or admin")
	f.StringVar(&in.FirstName, "first-name", "", "first name")
	f.StringVar(&in.LastName, "last-name", "", "last name")
	f.StringVar(&in.Gender, "gender", "", "gender")
	f.StringVar(&in.AgeGroup, "age-group", "", `age group, e.g. "Adult (20–59)"`)
	f.StringVar(&format, "format", "plain", "output format: plain or json")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the stored hash for a password",
		Long:  "Print the argon2id hash for a password. Reads stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				var err error
				if pw, err = a.readSecret(); err != nil {
					return err
				}
			}
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, hash)
			return nil
		},
	}
}

// readSecret reads one line from the CLI's input.
func (a *app) readSecret() (string, error) {
	line, err := bufio.NewReader(a.in).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("password is empty")
	}
	return line, nil
}
