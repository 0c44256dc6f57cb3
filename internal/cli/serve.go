package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/campus-genai/campusrag/internal/logger"
	"github.com/campus-genai/campusrag/pkg/auth"
	"github.com/campus-genai/campusrag/pkg/rbac"
	"github.com/campus-genai/campusrag/server"
)

// Demo accounts mirroring the role set, for trying the portal without
// real registration.
var demoUsers = map[string]rbac.Role{
	"parent_user":    rbac.Parent,
	"student_user":   rbac.Student,
	"professor_user": rbac.Professor,
	"dean_user":      rbac.Dean,
}

const demoPassword = "campus123"

func newServeCmd() *cobra.Command {
	var addr string
	var seedDemo bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve login and websocket chat over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			idx, err := openIndex(ctx, cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			creds, err := openAuthStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer creds.Close()

			if seedDemo {
				seedDemoUsers(ctx, creds, log)
			}

			asst, err := newAssistant(ctx, cfg, log, idx, creds)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = cfg.Server.Addr
			}

			srv, err := server.New(server.Config{
				Addr:      addr,
				JWTSecret: cfg.Server.JWTSecret,
				TokenTTL:  time.Duration(cfg.Server.TokenTTLMinutes) * time.Minute,
			}, creds, asst, log)
			if err != nil {
				return err
			}

			color.Cyan("Serving on %s", addr)
			if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			color.Cyan("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&seedDemo, "seed-demo", false, "Create the demo users if they do not exist")
	return cmd
}

func seedDemoUsers(ctx context.Context, creds *auth.Store, log *logger.Logger) {
	for username, role := range demoUsers {
		_, err := creds.Register(ctx, username, username+"@campus.example", demoPassword, role)
		if err != nil && !errors.Is(err, auth.ErrUserExists) {
			log.Warn("failed to seed demo user", "username", username, "error", err)
		}
	}
}
