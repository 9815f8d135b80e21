package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/civic-tracker-api/internal/app"
	"github.com/noah-isme/civic-tracker-api/internal/dto"
	"github.com/noah-isme/civic-tracker-api/internal/models"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

func seedCmd() *cobra.Command {
	var (
		departments   []string
		adminUsername string
		adminPassword string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create departments and an initial admin account",
		Long:  "Seeding is idempotent: departments and usernames that already exist are skipped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				out := cmd.OutOrStdout()
				for _, name := range departments {
					name = strings.TrimSpace(name)
					if name == "" {
						continue
					}
					dept, err := a.Directory.CreateDepartment(cmd.Context(), dto.DepartmentRequest{Name: name})
					switch {
					case errors.Is(err, appErrors.ErrConflict):
						fmt.Fprintf(out, "department %q exists\n", name)
					case err != nil:
						return err
					default:
						fmt.Fprintf(out, "department %q created (%s)\n", dept.Name, dept.ID)
					}
				}

				if adminUsername == "" {
					return nil
				}
				if adminPassword == "" {
					return fmt.Errorf("--admin-password is required with --admin-username")
				}
				res, err := a.Auth.Register(cmd.Context(), models.RegisterRequest{
					Username: adminUsername,
					Password: adminPassword,
					FullName: "Administrator",
					Role:     models.RoleAdmin,
				})
				switch {
				case errors.Is(err, appErrors.ErrConflict):
					fmt.Fprintf(out, "admin %q exists\n", adminUsername)
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(out, "admin %q created (%s)\n", res.User.Username, res.User.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&departments, "department", nil, "department name (repeatable)")
	cmd.Flags().StringVar(&adminUsername, "admin-username", "", "username of the admin account to create")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "password of the admin account")
	return cmd
}
