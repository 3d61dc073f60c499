package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/marmot/internal/config"
	"github.com/user/marmot/internal/delivery"
	"github.com/user/marmot/internal/gateway"
	"github.com/user/marmot/internal/mcp"
	"github.com/user/marmot/internal/memtools"
	"github.com/user/marmot/internal/runtime"
	"github.com/user/marmot/internal/runtime/tools"
	"github.com/user/marmot/internal/scheduler"
	"github.com/user/marmot/internal/skills"
	"github.com/user/marmot/internal/state"
	"github.com/user/marmot/internal/telegram"
	"github.com/user/marmot/internal/types"
	"github.com/user/marmot/pkg/llm"
	"github.com/user/marmot/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the marmot daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "marmot.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// gatewayRunner routes scheduled task turns through the gateway so they
// share the same per-conversation lanes and concurrency limit as live
// messages.
type gatewayRunner struct {
	gw *gateway.Gateway
}

func (r *gatewayRunner) ProcessTurn(ctx context.Context, incoming *types.IncomingMessage, sink types.EventSink) (string, error) {
	done := make(chan string, 1)
	err := r.gw.HandleInbound(incoming,
		gateway.WithSink(sink),
		gateway.WithOnComplete(func(response string) { done <- response }))
	if err != nil {
		return "", err
	}
	select {
	case response := <-done:
		return response, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func mcpServerConfigs(cfg *config.Config) []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, 0, len(cfg.MCPServers))
	for _, s := range cfg.MCPServers {
		env := make([]string, 0, len(s.Env))
		for k, v := range s.Env {
			env = append(env, k+"="+v)
		}
		out = append(out, mcp.ServerConfig{
			Name:    s.Name,
			Command: s.Command,
			Args:    s.Args,
			Env:     env,
		})
	}
	return out
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	db, err := state.Open(filepath.Join(cfg.DataDir, "marmot.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	conversations := state.NewConversations(db)
	tasks := state.NewTasks(db)
	knowledge := state.NewKnowledge(db)

	// LLM provider
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	// Context trimmer
	trimmer, err := runtime.NewTrimmer(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return fmt.Errorf("create trimmer: %w", err)
	}

	// Skills
	skillReg := skills.NewRegistry()
	loaded, err := skills.LoadDir(cfg.Skills.Dir)
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}
	skillReg.Replace(loaded)

	// Tool registry: local tools
	registry := runtime.NewRegistry()
	sandbox, err := tools.NewSandbox(cfg.Sandbox.Dir)
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	registry.Register(runtime.CategoryLocal, tools.NewReadFile(sandbox))
	registry.Register(runtime.CategoryLocal, tools.NewWriteFile(sandbox))
	registry.Register(runtime.CategoryLocal, tools.NewListFiles(sandbox))
	registry.Register(runtime.CategoryLocal, tools.NewExecuteCommand(sandbox))
	registry.Register(runtime.CategoryLocal, tools.NewReadURL())
	if cfg.Brave.APIKey != "" {
		registry.Register(runtime.CategoryLocal, tools.NewBraveSearch(cfg.Brave.APIKey))
	}
	registry.Register(runtime.CategoryLocal, tools.NewWriteSkillFile(cfg.Skills.Dir))
	registry.Register(runtime.CategoryLocal, tools.NewReloadSkills(cfg.Skills.Dir, skillReg))

	// Memory tools
	registry.Register(runtime.CategoryMemory, memtools.NewRemember(knowledge))
	registry.Register(runtime.CategoryMemory, memtools.NewRecall(knowledge))
	registry.Register(runtime.CategoryMemory, memtools.NewSearchMemory(conversations, knowledge))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MCP servers
	mcpManager := mcp.NewManager()
	if len(cfg.MCPServers) > 0 {
		mcpManager.ConnectAll(ctx, mcpServerConfigs(cfg), registry)
	}
	defer mcpManager.Close()

	// Scheduler
	engine := scheduler.NewEngine()
	engine.Start()
	defer engine.Stop()

	deliveryReg := delivery.NewRegistry()
	staleAfter := time.Duration(cfg.Scheduler.StaleAfterMinutes) * time.Minute
	sched := scheduler.New(tasks, engine, deliveryReg, staleAfter)
	registry.Register(runtime.CategoryScheduling, scheduler.NewScheduleTask(sched))
	registry.Register(runtime.CategoryScheduling, scheduler.NewListScheduledTasks(tasks))
	registry.Register(runtime.CategoryScheduling, scheduler.NewCancelScheduledTask(sched))

	// Runtime
	rt := runtime.New(provider, conversations, registry, skillReg, trimmer, cfg.MaxToolRounds)
	rt.SetUserLocation(cfg.UserLocation)

	// Gateway
	gw := gateway.New(rt, int64(cfg.MaxConcurrent))
	gw.Start(ctx)
	defer gw.Stop()

	// Scheduled turns share the gateway lanes with live messages.
	sched.SetRunner(&gatewayRunner{gw: gw})
	if err := sched.RestoreAll(ctx); err != nil {
		return fmt.Errorf("restore scheduled tasks: %w", err)
	}

	slog.Info("marmot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"max_tool_rounds", cfg.MaxToolRounds,
		"llm_model", cfg.LLM.Model,
		"skills", skillReg.Len(),
		"pid_file", pidPath,
	)

	// Telegram adapter
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw, conversations, tasks, registry, skillReg, cfg.Telegram.AllowedUserIDs)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		deliveryReg.Register("telegram", adapter.Deliver)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
