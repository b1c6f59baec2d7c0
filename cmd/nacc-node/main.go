// Package main provides the entry point for nacc-node.
//
// nacc-node is the spoke half of NACC: a confined Node Tool Server
// exposing ListFiles/ReadFile/WriteFile/ExecuteCommand/SyncFiles/
// GetNodeInfo under one filesystem root, per spec.md §2.
//
// Usage:
//
//	nacc-node                    Start the node (default)
//	nacc-node serve              Start the node
//	nacc-node version            Show version
//	nacc-node status             Show node status
//	nacc-node stop               Stop the running node
//	nacc-node init-config        Create example configuration file
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/config"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/logger"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/node"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/service"
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
		fmt.Printf("nacc-node version %s\n", version)
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
	fmt.Println(`nacc-node - Node Tool Server

Usage:
  nacc-node [flags] [command] [args]

Commands:
  serve         Start the node (default)
  version       Show version information
  status        Show node status
  stop          Stop the running node
  init-config   Create example configuration file
  help          Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.nacc-node/config.toml)

Environment:
  NACC_NODE_CONFIG    Path to configuration file (alternative to --config)
  NACC_NODE_HOST      Override listen host
  NACC_NODE_PORT      Override listen port`)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("NACC_NODE_CONFIG"); envPath != "" {
		return envPath
	}
	home, _ := os.UserHomeDir()
	return home + "/.nacc-node/config.toml"
}

func cmdServe(args []string) error {
	cfg, err := config.LoadNodeConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("node already running (PID %d)", pid)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	log := logger.SetupLogger(cfg.Logging, cfg.Service.DataDir, "nacc-node.log")
	log.Info().Str("node_id", cfg.Service.NodeID).Str("root", cfg.Service.RootDir).Msg("starting nacc-node " + version)

	root := node.NewRootContext(cfg.Service.NodeID, cfg.Service.RootDir, cfg.Service.AllowedCommands, cfg.Service.SyncTargets, cfg.Service.Tags)
	server := node.NewServer(root, cfg.Service.BearerToken)

	daemon := service.NewDaemon(cfg, "nacc-node")
	if err := daemon.Start(server.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("nacc-node v%s started on %s (node_id=%s)\n", version, cfg.Address(), cfg.Service.NodeID)
	daemon.Wait()
	return nil
}

func cmdStatus() error {
	cfg, err := config.LoadNodeConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("nacc-node: running (PID %d)\n", pid)
		fmt.Printf("Address: %s\n", cfg.Address())
		fmt.Printf("Node ID: %s\n", cfg.Service.NodeID)
		fmt.Printf("Root: %s\n", cfg.Service.RootDir)
	} else {
		fmt.Println("nacc-node: stopped")
	}
	return nil
}

func cmdStop() error {
	cfg, err := config.LoadNodeConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("nacc-node is not running")
		return nil
	}
	fmt.Printf("Stopping nacc-node (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}
	fmt.Println("nacc-node stopped")
	return nil
}

func cmdInitConfig() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	cfg := config.DefaultNodeConfig()
	cfg.Service.NodeID = "node-1"
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Created example configuration: %s\n", path)
	return nil
}
