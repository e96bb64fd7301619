// Package main provides the entry point for the Kite MCP trading server.
// The binary either runs the HTTP service (MCP tool surface plus management
// endpoints) or executes a one-shot authentication command (--login,
// --exchange, --status) against the Zerodha Kite Connect API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiteMCP/internal/buildinfo"
	"github.com/router-for-me/KiteMCP/internal/cmd"
	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/logging"
	"github.com/router-for-me/KiteMCP/internal/util"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// main parses command-line flags, loads configuration, and runs either a
// one-shot authentication command or the long-lived server.
func main() {
	// Command-line flags to control the application's behavior.
	var login bool
	var force bool
	var noBrowser bool
	var exchange string
	var status bool
	var showVersion bool
	var configPath string

	flag.BoolVar(&login, "login", false, "Run the interactive Kite Connect login flow and exit")
	flag.BoolVar(&force, "force", false, "With -login, start a new flow even when a valid token exists")
	flag.BoolVar(&noBrowser, "no-browser", false, "With -login, print the login URL instead of opening a browser")
	flag.StringVar(&exchange, "exchange", "", "Exchange a request token (or pasted redirect URL) for an access token and exit")
	flag.BoolVar(&status, "status", false, "Print the stored token status and exit (exit code 0 when valid)")
	flag.BoolVar(&showVersion, "v", false, "Print version information and exit")
	flag.StringVar(&configPath, "config", "config.yaml", "Configure File Path")

	// Parse the command-line flags.
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.Summary())
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		os.Exit(1)
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		os.Exit(1)
	}

	// Set the log level based on the configuration.
	util.SetLogLevel(cfg)

	// Handle different command modes based on the provided flags.
	if login {
		os.Exit(cmd.DoLogin(cfg, &cmd.LoginOptions{NoBrowser: noBrowser, Force: force}))
	} else if exchange != "" {
		os.Exit(cmd.DoExchange(cfg, exchange))
	} else if status {
		os.Exit(cmd.DoStatus(cfg))
	} else {
		log.Infof("%s", buildinfo.Summary())
		cmd.StartService(cfg, configPath)
	}
}
