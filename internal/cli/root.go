// Package cli implements the katra CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ckoons/katra-sub002/internal/config"
	"github.com/ckoons/katra-sub002/internal/memory"
)

var (
	dataDir    string
	configPath string
	ownerFlag  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "katra",
	Short: "Tiered, self-consolidating memory for long-running agents",
	Long: "katra stores timestamped experience records in an append-only log,\n" +
		"indexes them for retrieval, and consolidates them during sleep cycles\n" +
		"so important memories survive while redundant ones fade.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "", "Data directory (default: $KATRA_DATA or ~/.katra)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <data>/katra.yaml)")
	RootCmd.PersistentFlags().StringVarP(&ownerFlag, "owner", "o", "", "Owner (CI) id (default: $KATRA_OWNER)")
}

func getDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if env := os.Getenv("KATRA_DATA"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".katra")
}

func getOwner() (string, error) {
	if ownerFlag != "" {
		return ownerFlag, nil
	}
	if env := os.Getenv("KATRA_OWNER"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("owner id required: set --owner or KATRA_OWNER")
}

func openStore() (*memory.Store, error) {
	dir := getDataDir()
	path := configPath
	if path == "" {
		path = filepath.Join(dir, "katra.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dir
	return memory.Open(cfg)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
