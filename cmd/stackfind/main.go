package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbaille/stackfind/internal/api"
	"github.com/pbaille/stackfind/internal/config"
	"github.com/pbaille/stackfind/internal/finder"
	"github.com/pbaille/stackfind/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	configPath string
	cachePath  string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "stackfind",
		Short:        "Find Stack Overflow answers for an error message",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "response cache database path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// loadConfig applies the global flags on top of the loaded configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cachePath != "" {
		cfg.Cache.Path = cachePath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func searchCmd() *cobra.Command {
	var (
		maxResults int
		asJSON     bool
		all        bool
		bestEffort bool
	)

	cmd := &cobra.Command{
		Use:   "search [error message]",
		Short: "Search for answered questions matching an error message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if bestEffort {
				cfg.Search.Policy = config.PolicyBestEffort
			}
			if maxResults <= 0 {
				maxResults = cfg.Search.MaxResults
			}

			log := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := logging.WithContext(cmd.Context(), log)
			questions, err := a.finder.Search(ctx, message, maxResults)

			var partial *finder.PartialError
			if err != nil && !errors.As(err, &partial) {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(questions); err != nil {
					return fmt.Errorf("encode results: %w", err)
				}
			} else {
				renderQuestions(out, finder.DeriveQuery(message), questions, all)
			}

			if partial != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", partial)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxResults, "max", "n", 0, "maximum number of search results (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "show every answer, not just the best one")
	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, "keep results when some answer requests fail")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			log := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.New(a.finder, a.store, a.metrics, log, api.Options{
				Addr:           cfg.HTTP.Addr,
				RequestTimeout: cfg.HTTP.RequestTimeout,
				DefaultMax:     cfg.Search.MaxResults,
			})
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (default from config)")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the response cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.store.Stats(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache:   %s\n", cfg.Cache.Path)
			fmt.Fprintf(out, "TTL:     %s\n", cfg.Cache.TTL)
			fmt.Fprintf(out, "Entries: %d (%d expired)\n", st.Entries, st.Expired)
			fmt.Fprintf(out, "Size:    %s\n", formatBytes(st.Bytes))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.Prune(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired response(s).\n", n)
			}
			return nil
		},
	})

	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stackfind %s (commit: %s)\n", version, commit)
		},
	}
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
