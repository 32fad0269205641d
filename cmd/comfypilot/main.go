package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/soochol/comfypilot/internal/agent"
	"github.com/soochol/comfypilot/internal/api"
	"github.com/soochol/comfypilot/internal/config"
	"github.com/soochol/comfypilot/internal/knowledge"
	"github.com/soochol/comfypilot/internal/pilot"
	"github.com/soochol/comfypilot/internal/system"
	"github.com/soochol/comfypilot/internal/validation"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serve()
		return
	}
	fmt.Println("comfypilot v0.1.0")
	fmt.Println("Usage: comfypilot serve")
}

func serve() {
	// Optional .env for API keys and host overrides.
	godotenv.Load()

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	km := knowledge.NewManager(cfg.Knowledge.Dir)
	if err := km.LoadAll(); err != nil {
		slog.Warn("knowledge load failed", "err", err)
	} else {
		slog.Info("knowledge loaded", "documents", len(km.Documents()))
	}

	registry := validation.NewNodeRegistry(cfg.ComfyUI.URL)
	monitor := system.NewMonitor(cfg.ComfyUI.URL)

	agents := agent.NewRegistry()
	for name, agentCfg := range cfg.Agents {
		backend, ok := agent.Build(name, agentCfg)
		if !ok {
			slog.Warn("unknown agent type", "name", name, "type", agentCfg.Type)
			continue
		}
		agents.Register(backend)
		slog.Info("registered agent", "name", name, "type", agentCfg.Type)
	}
	if len(agents.Names()) == 0 {
		agents.Register(agent.NewOllamaBackend("ollama", "", nil))
		slog.Info("registered agent", "name", "ollama", "type", "ollama")
	}

	controller := pilot.NewController(km, registry, monitor, agents)
	if cfg.Chat.MaxCorrectionRetries > 0 {
		controller.MaxCorrectionRetries = cfg.Chat.MaxCorrectionRetries
	}

	// Background refresh keeps the node catalog and knowledge set current
	// without blocking requests.
	scheduler := cron.New()
	scheduler.AddFunc("@every 5m", func() {
		if registry.Fetch(context.Background()) {
			slog.Debug("node catalog refreshed")
		}
	})
	scheduler.AddFunc("@hourly", func() {
		if err := km.LoadAll(); err != nil {
			slog.Warn("knowledge reload failed", "err", err)
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	if registry.Fetch(context.Background()) {
		slog.Info("node catalog loaded", "node_count", len(registry.AllClassTypes()))
	} else {
		slog.Warn("node catalog unavailable", "url", cfg.ComfyUI.URL)
	}
	slog.Info("gpu status", "gpu", monitor.GPUInfo(context.Background()).Describe())

	srv := api.NewServer(controller, registry, monitor)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting comfypilot server", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
