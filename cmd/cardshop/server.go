package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/derpdot/cardshop/internal/api"
	"github.com/derpdot/cardshop/internal/chat"
	"github.com/derpdot/cardshop/internal/composer"
	"github.com/derpdot/cardshop/internal/config"
	"github.com/derpdot/cardshop/internal/guard"
	"github.com/derpdot/cardshop/internal/inventory"
	"github.com/derpdot/cardshop/internal/match"
	"github.com/derpdot/cardshop/internal/ollama"
	"github.com/derpdot/cardshop/internal/session"
	"github.com/derpdot/cardshop/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cardshop server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running cardshop server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cardshop system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "cardshop.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "cardshop version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("cardshop is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("cardshop is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check generative backend readiness. A dead backend is not fatal: the
	// pipeline falls back to deterministic replies and health reports
	// degraded.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.ChatModel, os.Stderr); err != nil {
		printWarning("generative backend unavailable, replies degrade to inventory facts: %v", err)
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the inventory index. A missing or unreadable file leaves the
	// index empty; health reports degraded until an admin reload succeeds.
	index := inventory.New(match.New(), cfg.Guard.MinScore)
	if report, err := index.LoadFile(cfg.Inventory.Path); err != nil {
		slog.Warn("inventory load failed, starting with empty index", "path", cfg.Inventory.Path, "error", err)
	} else {
		slog.Info("inventory ready", "cards", report.Loaded, "rejected", len(report.Rejected))
	}

	// Wire the chat pipeline. The limiter is shared with the HTTP layer so
	// the X-RateLimit headers reflect the same window that throttles.
	limiter := guard.NewLimiter(cfg.Guard.RateLimit, time.Duration(cfg.Guard.RateWindowSeconds)*time.Second)
	orchestrator := chat.NewOrchestrator(chat.Deps{
		Index:           index,
		Validator:       guard.NewValidator(cfg.Guard.MaxMessageLen),
		Limiter:         limiter,
		Content:         guard.NewContentGuard(),
		Sessions:        session.NewStore(cfg.Guard.MaxTurns),
		Composer:        composer.New(0),
		Chatter:         ollamaClient,
		Model:           cfg.Ollama.ChatModel,
		GenerateTimeout: time.Duration(cfg.Guard.GenerateTimeoutSeconds) * time.Second,
		Transcripts:     store,
	})

	handler := api.NewHandler(api.Deps{
		Orchestrator:  orchestrator,
		Index:         index,
		Limiter:       limiter,
		Store:         store,
		Backend:       ollamaClient,
		Token:         cfg.API.AdminToken,
		InventoryPath: cfg.Inventory.Path,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// The MCP stdio transport blocks on stdin reads, so it runs outside the
	// group and is abandoned at exit rather than joined.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Index: index})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "cardshop listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("cardshop is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop cardshop (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to cardshop (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Status    string `json:"status"`
			Cards     int    `json:"cards"`
			BackendUp bool   `json:"backend_up"`
		}
		if decodeErr := decodeJSON(resp, &health); decodeErr == nil {
			printStatus("Server", "%s on port %d", health.Status, cfg.Server.Port)
			printStatus("Cards", "%d loaded", health.Cards)
		} else {
			printStatus("Server", "error reading health: %v", decodeErr)
		}
	}

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Chat model", "%s", cfg.Ollama.ChatModel)
	printStatus("Inventory", "%s", cfg.Inventory.Path)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
