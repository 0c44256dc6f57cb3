package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/campus-genai/campusrag/pkg/rbac"
)

func newRegisterCmd() *cobra.Command {
	var username, email, roleFlag string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a portal account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx := cmd.Context()

			role, err := rbac.Parse(roleFlag)
			if err != nil {
				return err
			}

			creds, err := openAuthStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer creds.Close()

			password, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}

			user, err := creds.Register(ctx, username, email, password, role)
			if err != nil {
				return err
			}

			color.Green("✓ Created %s (%s)", user.Username, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&roleFlag, "role", "", "Portal role: parent, student, professor or dean")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
