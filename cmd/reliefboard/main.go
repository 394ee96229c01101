// Command reliefboard runs the disaster-relief dashboard gateway.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/sevenitynet/reliefboard"
	"github.com/sevenitynet/reliefboard/config"
	"github.com/sevenitynet/reliefboard/pages"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "reliefboard",
		Short: "Dashboard gateway of the disaster-relief platform",
		Long: `reliefboard serves the relief dashboard. It keeps one session per browser,
guards every page by role and forwards data requests to the relief backend.

Configuration is read from REL__ environment variables and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reliefboard %s\n", Version)
		},
	})

	var routesFile string
	routes := &cobra.Command{
		Use:   "routes",
		Short: "Print the page table and the roles allowed on each page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if routesFile == "" {
				routesFile = os.Getenv("REL__ROUTES_FILE")
			}

			table := pages.Default()
			if routesFile != "" {
				var err error
				if table, err = pages.LoadFile(routesFile); err != nil {
					return err
				}
			}
			return printRoutes(cmd.OutOrStdout(), table)
		},
	}
	routes.Flags().StringVar(&routesFile, "file", "", "Page table to print instead of the built-in one")
	cmd.AddCommand(routes)

	return cmd
}

func setupLogging(w io.Writer, logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	inst, err := reliefboard.New(ctx, cfg)
	if err != nil {
		return err
	}

	slog.Info("reliefboard ready",
		"version", Version,
		"backend", cfg.BackendURL,
		"redis", cfg.RedisURL != "",
		"chat", inst.Chat != nil,
	)

	return inst.Run(ctx)
}

func printRoutes(w io.Writer, table *pages.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tVIEW\tROLES\tTITLE")

	for _, e := range table.Entries() {
		roles := "any"
		if len(e.Roles) > 0 {
			names := make([]string, len(e.Roles))
			for i, r := range e.Roles {
				names[i] = r.String()
			}
			roles = strings.Join(names, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Path, e.View, roles, e.Title)
	}

	return tw.Flush()
}
