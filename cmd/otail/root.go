package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frank-taylor-lieder/otail/internal/config"
	"github.com/frank-taylor-lieder/otail/internal/core"
	"github.com/frank-taylor-lieder/otail/internal/ffile"
	"github.com/frank-taylor-lieder/otail/internal/filterspec"
	"github.com/frank-taylor-lieder/otail/internal/ifile"
	"github.com/frank-taylor-lieder/otail/internal/remoteview"
	"github.com/frank-taylor-lieder/otail/internal/view"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "otail <path>",
	Short:   "A concurrent terminal log viewer core: tail, index, and live-filter a growing file",
	Version: version,
	Args:    cobra.ExactArgs(1),
	RunE:    runOtail,
}

func init() {
	rootCmd.Flags().StringP("config", "c", "", "path to an alternate otail.yaml (default: auto-discovered)")
	rootCmd.Flags().String("filter", "", "install a filter over the content pane at startup")
	rootCmd.Flags().String("filter-mode", "sensitive", "filter mode: sensitive, insensitive, or regex")
	rootCmd.Flags().String("listen", "", "optional host:port to expose the content pane over WebSocket (disabled by default)")
	rootCmd.Flags().String("listen-token", "", "bearer/query token required by --listen")
	rootCmd.Flags().String("listen-origins", "localhost:*", "comma-separated allowed origin patterns for --listen")

	viper.BindPFlag("config", rootCmd.Flags().Lookup("config"))
	viper.BindPFlag("filter", rootCmd.Flags().Lookup("filter"))
	viper.BindPFlag("filter-mode", rootCmd.Flags().Lookup("filter-mode"))
	viper.BindPFlag("listen", rootCmd.Flags().Lookup("listen"))
	viper.BindPFlag("listen-token", rootCmd.Flags().Lookup("listen-token"))
	viper.BindPFlag("listen-origins", rootCmd.Flags().Lookup("listen-origins"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runOtail(cmd *cobra.Command, args []string) error {
	path := args[0]

	configPath := viper.GetString("config")
	explicitConfig := configPath != ""
	if configPath == "" {
		configPath = config.Discover()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		if explicitConfig {
			return fmt.Errorf("otail: config: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "otail: config: %v (falling back to defaults)\n", err)
		cfg = config.Default()
		cfg.ReadOnly = true
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	f, err := ifile.New(ctx, path)
	if err != nil {
		return fmt.Errorf("otail: %w", err)
	}

	content := view.New(core.ClientID("content"), f.Requests())
	content.SetViewport(0, 4096)
	content.SetTail(true)

	var filterView *view.View
	if pattern := viper.GetString("filter"); pattern != "" {
		mode, err := parseFilterMode(viper.GetString("filter-mode"))
		if err != nil {
			return fmt.Errorf("otail: %w", err)
		}
		spec, err := filterspec.New(mode, pattern)
		if err != nil {
			return fmt.Errorf("otail: %w", err)
		}

		ff := ffile.New(ctx, f.Requests(), core.ClientID("ff-main"))
		if err := ff.SetFilter(ctx, &spec); err != nil {
			return fmt.Errorf("otail: %w", err)
		}

		filterView = view.New(core.ClientID("filter"), ff.Requests())
		filterView.SetViewport(0, 4096)
		filterView.SetTail(true)
	}

	if addr := viper.GetString("listen"); addr != "" {
		srv := remoteview.NewServer(f.Requests(), viper.GetString("listen-token"), strings.Split(viper.GetString("listen-origins"), ","))
		httpServer := &http.Server{Addr: addr, Handler: srv}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(cmd.ErrOrStderr(), "otail: listen: %v\n", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	runHeadless(ctx, cmd, cfg, content, filterView)
	return nil
}

func parseFilterMode(s string) (filterspec.Mode, error) {
	switch s {
	case "sensitive":
		return filterspec.CaseSensitive, nil
	case "insensitive":
		return filterspec.CaseInsensitive, nil
	case "regex":
		return filterspec.Regex, nil
	default:
		return 0, fmt.Errorf("unknown filter mode %q", s)
	}
}
