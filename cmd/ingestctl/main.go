// Command ingestctl feeds payload files through the ingestion pipeline and
// checks payloads offline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&ingestCmd{}, "")
	commander.Register(&validateCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// common holds the flags every subcommand shares.
type common struct {
	configPath string
	envFile    string
	source     string
}

func (c *common) setFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "configs/ledgerflow.yaml", "Path to YAML config")
	f.StringVar(&c.envFile, "env", ".env", "Optional .env file with secrets")
	f.StringVar(&c.source, "source", "", "Source id the payloads came from (required)")
}

func (c *common) loadConfig() (*config.Config, error) {
	if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", c.envFile, err)
	}
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", c.configPath, err)
	}
	return cfg, nil
}
