// Package main provides the entry point for nacc-orchestrator.
//
// nacc-orchestrator is the hub half of NACC: it maintains the node
// registry and health state, runs the four-stage planner against a
// pluggable LLM backend, dispatches approved plans to the selected
// nodes, and records every privileged operation to an append-only audit
// log, per spec.md §2 and §4.
//
// Usage:
//
//	nacc-orchestrator                 Start the orchestrator (default)
//	nacc-orchestrator serve           Start the orchestrator
//	nacc-orchestrator version         Show version
//	nacc-orchestrator status          Show orchestrator status
//	nacc-orchestrator stop            Stop the running orchestrator
//	nacc-orchestrator init-config     Create example configuration file
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/api"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/audit"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/config"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/logger"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/node"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/planner"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/registry"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/service"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/transport"
	"github.com/Vasanthadithya-mundrathi/NACC/pkg/llm"
)

var version = "dev"

var configPath string

func main() {
	args := os.Args[1:]
	command := ""
	cmdArgs := []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			// unknown flag, ignored
		case command == "":
			command = arg
		default:
			cmdArgs = append(cmdArgs, arg)
		}
	}

	if command == "" {
		command = "serve"
	}

	var err error
	switch command {
	case "serve", "start":
		err = cmdServe(cmdArgs)
	case "version", "-v", "--version":
		fmt.Printf("nacc-orchestrator version %s\n", version)
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "init-config":
		err = cmdInitConfig()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`nacc-orchestrator - Orchestrator Core

Usage:
  nacc-orchestrator [flags] [command] [args]

Commands:
  serve         Start the orchestrator (default)
  version       Show version information
  status        Show orchestrator status
  stop          Stop the running orchestrator
  init-config   Create example configuration file
  help          Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.nacc-orchestrator/config.toml)

Environment:
  NACC_ORCHESTRATOR_CONFIG   Path to configuration file (alternative to --config)
  NACC_ORCHESTRATOR_HOST     Override listen host
  NACC_ORCHESTRATOR_PORT     Override listen port`)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("NACC_ORCHESTRATOR_CONFIG"); envPath != "" {
		return envPath
	}
	home, _ := os.UserHomeDir()
	return home + "/.nacc-orchestrator/config.toml"
}

func cmdServe(args []string) error {
	cfg, err := config.LoadOrchestratorConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("orchestrator already running (PID %d)", pid)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	log := logger.SetupLogger(cfg.Logging, cfg.Service.DataDir, "nacc-orchestrator.log")
	log.Info().Str("node_count", strconv.Itoa(len(cfg.Nodes))).Msg("starting nacc-orchestrator " + version)

	auditPath := cfg.AuditPath()
	if seg, err := audit.RotateIfOversize(auditPath, cfg.AuditRetentionMB); err != nil {
		log.Warn().Err(err).Msg("audit log rotation check failed")
	} else if seg != "" {
		log.Info().Str("segment", seg).Msg("rotated oversized audit log")
	}
	lastSeq, err := audit.LastSequence(auditPath)
	if err != nil {
		return fmt.Errorf("read audit log sequence: %w", err)
	}
	broadcaster := audit.NewBroadcaster()
	auditLog, err := audit.NewLogger(auditPath, lastSeq, broadcaster)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	reg := registry.New(time.Duration(cfg.HealthIntervalSec)*time.Second, auditLog)
	defer reg.Stop()

	for _, def := range cfg.Nodes {
		nodeDef := model.NodeDefinition{
			NodeID:          def.NodeID,
			Transport:       def.Transport,
			RootDir:         def.RootDir,
			BaseURL:         def.BaseURL,
			BearerToken:     def.BearerToken,
			Tags:            def.Tags,
			Description:     def.Description,
			AllowedCommands: def.AllowedCommands,
		}
		var t transport.Transport
		switch def.Transport {
		case "inprocess":
			root := node.NewRootContext(def.NodeID, def.RootDir, def.AllowedCommands, nil, def.Tags)
			t = transport.NewInProcess(root)
		case "http":
			t = transport.NewHTTP(def.BaseURL, def.BearerToken)
		default:
			return fmt.Errorf("node %s: unknown transport %q", def.NodeID, def.Transport)
		}
		if err := reg.Add(nodeDef, t); err != nil {
			return fmt.Errorf("register node %s: %w", def.NodeID, err)
		}
	}

	switcher, err := buildSwitcher(cfg)
	if err != nil {
		return fmt.Errorf("build LLM backends: %w", err)
	}

	pl := planner.New(switcher, reg, auditLog)

	apiServer := api.NewServer(reg, switcher, pl, auditLog, broadcaster, cfg.APIKey)

	daemon := service.NewDaemon(cfg, "nacc-orchestrator")
	if err := daemon.Start(apiServer.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("nacc-orchestrator v%s started on %s\n", version, cfg.Address())
	fmt.Printf("API: http://%s/nodes\n", cfg.Address())
	daemon.Wait()
	return nil
}

// buildSwitcher constructs every configured backend variant and makes
// cfg.ActiveBackend the initially active one, per spec.md §4.2's
// operator-selectable backend requirement.
func buildSwitcher(cfg *config.OrchestratorConfig) (*llm.Switcher, error) {
	built := make(map[string]llm.Backend, len(cfg.Backends))
	for name, variant := range cfg.Backends {
		llmCfg := llm.Config{
			Kind:             llm.Kind(variant.Kind),
			TimeoutSeconds:   variant.TimeoutSeconds,
			EndpointURL:      variant.EndpointURL,
			ModelName:        variant.ModelName,
			BearerToken:      variant.BearerToken,
			Command:          variant.Command,
			Environment:      variant.Environment,
			RateLimitPerHour: variant.RateLimitPerHour,
		}
		backend, err := newBackend(llmCfg)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		built[name] = backend
	}

	active, ok := built[cfg.ActiveBackend]
	if !ok {
		active = llm.NewHeuristicBackend()
	}
	switcher := llm.NewSwitcher(active)
	for _, b := range built {
		switcher.Register(b)
	}
	return switcher, nil
}

func newBackend(cfg llm.Config) (llm.Backend, error) {
	switch cfg.Kind {
	case llm.KindHeuristic, "":
		return llm.NewHeuristicBackend(), nil
	case llm.KindHTTPRemote:
		return llm.NewHTTPRemoteBackend(cfg), nil
	case llm.KindSubprocess:
		return llm.NewSubprocessBackend(cfg, 1), nil
	case llm.KindGemini:
		return llm.NewGeminiBackend(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

func cmdStatus() error {
	cfg, err := config.LoadOrchestratorConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("nacc-orchestrator: running (PID %d)\n", pid)
		fmt.Printf("Address: %s\n", cfg.Address())
		fmt.Printf("Nodes configured: %d\n", len(cfg.Nodes))
	} else {
		fmt.Println("nacc-orchestrator: stopped")
	}
	return nil
}

func cmdStop() error {
	cfg, err := config.LoadOrchestratorConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("nacc-orchestrator is not running")
		return nil
	}
	fmt.Printf("Stopping nacc-orchestrator (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}
	fmt.Println("nacc-orchestrator stopped")
	return nil
}

func cmdInitConfig() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	cfg := config.DefaultOrchestratorConfig()
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Created example configuration: %s\n", path)
	return nil
}
