package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/franchiseos/leadhub/internal/auth"
	"github.com/franchiseos/leadhub/internal/config"
	"github.com/franchiseos/leadhub/internal/db"
	"github.com/franchiseos/leadhub/internal/logger"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "leadhub",
		Short:   "LeadHub - messaging webhooks to franchise leads",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.toml (defaults to $CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("CONFIG_PATH")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and configuration API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			status, err := db.MigrateUp(logger.L, cfg.Postgres)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", status.Version, status.Dirty)
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (all when steps is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			status, err := db.MigrateDown(logger.L, cfg.Postgres, steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", status.Version, status.Dirty)
			return nil
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			status, err := db.MigrationVersion(cfg.Postgres)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", status.Version, status.Dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID      string
		franchiseID string
		role        string
		ttl         string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a configuration API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			if ttl == "" {
				ttl = cfg.Auth.JWTExpiresIn
			}
			expiresIn, err := time.ParseDuration(ttl)
			if err != nil {
				return fmt.Errorf("invalid ttl %q: %w", ttl, err)
			}
			if role != auth.RoleAdmin && role != auth.RolePlatformAdmin {
				return fmt.Errorf("role must be %s or %s", auth.RoleAdmin, auth.RolePlatformAdmin)
			}
			if role == auth.RoleAdmin && franchiseID == "" {
				return fmt.Errorf("--franchise is required for role %s", auth.RoleAdmin)
			}
			token, expiresAt, err := auth.GenerateToken(auth.Principal{
				UserID:      userID,
				FranchiseID: franchiseID,
				Role:        role,
			}, cfg.Auth.JWTSecret, expiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID the token is issued to")
	cmd.Flags().StringVar(&franchiseID, "franchise", "", "Franchise ID for franchise admins")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "Role: admin or platform_admin")
	cmd.Flags().StringVar(&ttl, "ttl", "", "Token lifetime (defaults to auth.jwt_expires_in)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "leadhub %s\n", Version)
		},
	}
}
