// Command tabfold groups open Chrome tabs by bookmark folder from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tabfold-mcp-server/internal/app"
	"tabfold-mcp-server/internal/config"
)

var (
	configPath   string
	workspaceDir string
	noWorkspace  bool
	assumeYes    bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "tabfold",
	Short: "Turn bookmark folders into Chrome tab groups",
	Long: `tabfold opens the links of a bookmark folder that are not open yet and
gathers the folder's tabs into a tab group named after the folder, one group
per window. Every change is previewed and needs your approval.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file layered over .tabfold/config.yaml")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "Workspace root to use instead of searching upward")
	rootCmd.PersistentFlags().BoolVar(&noWorkspace, "no-workspace", false, "Ignore .tabfold/ workspace config")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Approve every preview without asking")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr instead of the log file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}

// openRuntime loads the layered config and assembles the runtime. The
// returned closer releases it.
func openRuntime(ctx context.Context) (*app.Runtime, func(), error) {
	cfg, wsDir, err := config.LoadWithWorkspace(configPath, config.WorkspaceOptions{
		Disable:     noWorkspace,
		ExplicitDir: workspaceDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	redirectLog(cfg)
	if wsDir != "" {
		log.Printf("using workspace %s", wsDir)
	}

	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
	return rt, closer, nil
}

// openBrowser is openRuntime plus a connected tab backend.
func openBrowser(ctx context.Context) (*app.Runtime, func(), error) {
	rt, closer, err := openRuntime(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := rt.Tabs.Start(ctx); err != nil {
		closer()
		return nil, nil, fmt.Errorf("connect to browser: %w", err)
	}
	return rt, closer, nil
}

// redirectLog keeps engine logging out of the terminal unless --verbose.
func redirectLog(cfg config.Config) {
	if verbose {
		return
	}
	if cfg.Server.LogFile == "" {
		log.SetOutput(io.Discard)
		return
	}
	f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(f)
}
