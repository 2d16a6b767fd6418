// Package config handles process environment, the data directory layout, and
// the optional operator config.yml with notification and chat settings.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
)

// DockerSentinel marks a containerized environment when the env flag is unset.
const DockerSentinel = "/.dockerenv"

// ContainerDataDir is the data directory used inside containers.
const ContainerDataDir = "/app/data"

// Env is the process environment configuration.
type Env struct {
	// DataDir overrides the computed data directory.
	DataDir string `env:"TDM_DATA_DIR"`
	// Port is the control surface listen port.
	Port int `env:"TDM_PORT,default=8080"`
	// Container forces container path conventions.
	Container bool `env:"TDM_CONTAINER"`
	// ConfigFile points at the operator config.yml.
	ConfigFile string `env:"TDM_CONFIG,default=config.yml"`
}

// LoadEnv reads the environment and resolves the data directory: an explicit
// TDM_DATA_DIR wins, containers get /app/data, everything else uses a data
// directory next to the working directory.
func LoadEnv(ctx context.Context) (*Env, error) {
	var e Env
	if err := envconfig.Process(ctx, &e); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if !e.Container {
		if _, err := os.Stat(DockerSentinel); err == nil {
			e.Container = true
		}
	}
	if e.DataDir == "" {
		if e.Container {
			e.DataDir = ContainerDataDir
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("resolving working directory: %w", err)
			}
			e.DataDir = filepath.Join(cwd, "data")
		}
	}
	if e.Port <= 0 || e.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", e.Port)
	}
	return &e, nil
}

// Paths is the on-disk layout inside the data directory.
type Paths struct {
	DataDir      string
	CookiesFile  string
	SettingsFile string
	CacheDir     string
	LogDir       string
}

// NewPaths derives the standard layout from a data directory.
func NewPaths(dataDir string) Paths {
	return Paths{
		DataDir:      dataDir,
		CookiesFile:  filepath.Join(dataDir, "cookies.jar"),
		SettingsFile: filepath.Join(dataDir, "settings.json"),
		CacheDir:     filepath.Join(dataDir, "cache"),
		LogDir:       filepath.Join(dataDir, "logs"),
	}
}

// Ensure creates every directory in the layout.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.DataDir, p.CacheDir, p.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
