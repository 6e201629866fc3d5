// Package platform resolves per-user config, data, and log locations.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// defaultAppName is used when Options.AppName is blank.
const defaultAppName = "tavla"

// Paths holds the resolved locations for one app name.
type Paths struct {
	ConfigPath string
	DataDir    string
	// DBPath is the sandbox server database.
	DBPath string
	LogDir string
}

// Options selects the app name and whether dev-mode directories are used.
type Options struct {
	AppName string
	DevMode bool
}

// BaseDirs are the per-user roots reported by the OS before env overrides.
type BaseDirs struct {
	Config string
	Data   string
	// State falls back to Data when empty.
	State string
}

func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{})
}

// DefaultPathsWithOptions resolves paths for the running OS and user.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = defaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}
	bases, err := userBaseDirs(runtime.GOOS)
	if err != nil {
		return Paths{}, err
	}
	return PathsFor(runtime.GOOS, os.Getenv, bases, appName)
}

// userBaseDirs asks the OS for the config root and derives data and state roots from it.
func userBaseDirs(goos string) (BaseDirs, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return BaseDirs{}, fmt.Errorf("user config dir: %w", err)
	}
	bases := BaseDirs{Config: configDir, Data: configDir}
	if goos == "linux" {
		home, err := os.UserHomeDir()
		if err != nil {
			return BaseDirs{}, fmt.Errorf("user home dir: %w", err)
		}
		bases.Data = filepath.Join(home, ".local", "share")
		bases.State = filepath.Join(home, ".local", "state")
	}
	return bases, nil
}

// PathsFor applies OS-specific env overrides to bases and lays out the app directories.
func PathsFor(goos string, getenv func(string) string, bases BaseDirs, appName string) (Paths, error) {
	if bases.Config == "" || bases.Data == "" {
		return Paths{}, errors.New("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, errors.New("empty app name")
	}
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	if bases.State == "" {
		bases.State = bases.Data
	}

	override := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	switch goos {
	case "linux":
		override(&bases.Config, "XDG_CONFIG_HOME")
		override(&bases.Data, "XDG_DATA_HOME")
		override(&bases.State, "XDG_STATE_HOME")
	case "windows":
		override(&bases.Config, "APPDATA")
		override(&bases.Data, "LOCALAPPDATA")
		bases.State = bases.Data
	}

	dataDir := filepath.Join(bases.Data, appName)
	return Paths{
		ConfigPath: filepath.Join(bases.Config, appName, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+"-sandbox.db"),
		LogDir:     filepath.Join(bases.State, appName, "log"),
	}, nil
}
