package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const pathEnv = "DARKMOON_CONFIG"

var candidates = []string{
	"./config.yaml",
	"./config.yml",
	"/etc/darkmoon/config.yaml",
}

// Path resolves the config file from --config, then DARKMOON_CONFIG, then
// the first candidate that exists. An empty result means defaults only.
func Path(fset *flag.FlagSet, args []string) (string, error) {
	var configPath string
	fset.StringVar(&configPath, "config", "", "path to config file")
	if err := fset.Parse(args); err != nil {
		return "", fmt.Errorf("parse flags: %w", err)
	}

	if configPath == "" {
		configPath = os.Getenv(pathEnv)
	}
	if configPath == "" {
		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}
	return configPath, nil
}

// LoadDotEnv copies variables from .env files into the environment without
// overriding ones already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
