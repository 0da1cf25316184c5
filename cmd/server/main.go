package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tabfold-mcp-server/internal/app"
	"tabfold-mcp-server/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to a TabFold config file (layered over .tabfold/config.yaml)")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	workspaceDir := flag.String("workspace-dir", "", "Workspace root to use instead of searching upward")
	noWorkspace := flag.Bool("no-workspace", false, "Ignore .tabfold/ workspace config")
	initWorkspace := flag.Bool("init", false, "Create a .tabfold/ workspace in the current directory and exit")
	flag.Parse()

	if *initWorkspace {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		if err := config.InitWorkspace(cwd); err != nil {
			log.Fatalf("failed to initialize workspace: %v", err)
		}
		log.Printf("created %s in %s", config.WorkspaceDirName, cwd)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, config.WorkspaceOptions{
		Disable:     *noWorkspace,
		ExplicitDir: *workspaceDir,
	})
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// If we can't open log file, disable logging to avoid stderr pollution
			log.SetOutput(io.Discard)
		}
	}
	if wsDir != "" {
		log.Printf("using workspace %s", wsDir)
	}

	rt, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize runtime: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if cfg.Browser.AutoStart {
		if err := rt.Tabs.Start(ctx); err != nil {
			log.Fatalf("failed to connect to Chrome: %v", err)
		}
	} else {
		log.Printf("browser auto-start disabled; use launch-browser to attach later")
	}

	server, err := rt.Server()
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting TabFold MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting TabFold MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Printf("server exited with error: %v", startErr)
		stop()
		os.Exit(1)
	}
}
