package config

import (
	"os"
	"path/filepath"
	"time"
)

// TerminalConfig holds configuration for the point-of-sale terminal process.
type TerminalConfig struct {
	ServerURL     string        // license server base URL
	DataDir       string        // local state directory (cache database lives here)
	CheckInterval time.Duration // phone-home re-validation interval (default: 6h)
	SweepInterval time.Duration // local expiry sweep interval (default: 5m)
}

// LoadTerminalConfig reads terminal configuration from environment variables.
func LoadTerminalConfig() TerminalConfig {
	serverURL := os.Getenv("DINEX_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	dataDir := os.Getenv("DINEX_DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir()
	}

	checkInterval := getEnvDuration("DINEX_CHECK_INTERVAL", 6*time.Hour)
	if checkInterval <= 0 {
		checkInterval = 6 * time.Hour
	}

	sweepInterval := getEnvDuration("DINEX_SWEEP_INTERVAL", 5*time.Minute)
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}

	return TerminalConfig{
		ServerURL:     serverURL,
		DataDir:       dataDir,
		CheckInterval: checkInterval,
		SweepInterval: sweepInterval,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dinex"
	}
	return filepath.Join(home, ".dinex")
}
