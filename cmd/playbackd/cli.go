package main

import (
	"flag"
	"fmt"
	"os"
)

// configFlags holds the application configuration from command-line flags
type configFlags struct {
	configFile string // Path to config file
	backendURL string // Tomeshelf backend URL
	token      string // Tomeshelf API token
	port       string // Control server port
	help       bool   // Show help
	version    bool   // Show version
}

// parseFlags parses command-line flags and returns the configuration
func parseFlags() *configFlags {
	var cfg configFlags

	flag.StringVar(&cfg.configFile, "config", "", "Path to config file (YAML)")
	flag.StringVar(&cfg.backendURL, "backend-url", "", "Tomeshelf backend URL")
	flag.StringVar(&cfg.token, "token", "", "Tomeshelf API token")
	flag.StringVar(&cfg.port, "port", "", "Control server port")
	flag.BoolVar(&cfg.help, "help", false, "Show help")
	flag.BoolVar(&cfg.version, "version", false, "Show version")

	flag.Parse()

	// Flags override the environment, which overrides the config file
	setEnvFromFlag(cfg.backendURL, "TOMESHELF_URL")
	setEnvFromFlag(cfg.token, "TOMESHELF_TOKEN")
	setEnvFromFlag(cfg.port, "PORT")

	return &cfg
}

// setEnvFromFlag sets an environment variable if the flag value is not empty
func setEnvFromFlag(value, envVar string) {
	if value != "" {
		os.Setenv(envVar, value)
	}
}

func showHelp() {
	fmt.Println("Tomeshelf Playback Engine")
	fmt.Println("\nUsage:")
	fmt.Println("  playbackd [flags]")

	fmt.Println("\nRequired Configuration (can be provided via flags or environment variables):")
	fmt.Println("  --backend-url URL")
	fmt.Println("  \tTomeshelf backend URL")
	fmt.Println("  \tEnvironment: TOMESHELF_URL")

	fmt.Println("  --token TOKEN")
	fmt.Println("  \tTomeshelf API token")
	fmt.Println("  \tEnvironment: TOMESHELF_TOKEN")

	fmt.Println("\nOptional Configuration:")
	fmt.Println("  --config FILE")
	fmt.Println("  \tPath to a YAML config file")

	fmt.Println("  --port PORT")
	fmt.Println("  \tControl server port (default: 7575)")
	fmt.Println("  \tEnvironment: PORT")

	fmt.Println("\nOther Options:")
	fmt.Println("  -h, --help")
	fmt.Println("  \tShow this help message")

	fmt.Println("  -v, --version")
	fmt.Println("  \tShow version information")

	fmt.Println("\nAdditional environment variables:")
	fmt.Println("  LOG_LEVEL")
	fmt.Println("  \tSet the log level (debug, info, warn, error)")

	fmt.Println("  PROGRESS_WRITE_INTERVAL")
	fmt.Println("  \tSteady-state progress write cadence (duration, minimum 15s)")

	fmt.Println("  PRELOAD_COUNT")
	fmt.Println("  \tNumber of upcoming files to keep warm (default: 3)")

	fmt.Println("  JOURNAL_FILE")
	fmt.Println("  \tPath of the offline progress journal database")

	fmt.Println("\nExample:")
	fmt.Println(`  playbackd \
    --backend-url https://tomeshelf.example.com \
    --token your-api-token`)
}

func showVersion() {
	fmt.Printf("playbackd version %s\n", version)
}
