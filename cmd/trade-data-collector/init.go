package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/blueogin/trade-data-collector/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var flagForce bool

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample config file with the built-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := writeSampleConfig(cfgPath, flagForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
		return nil
	},
}

func writeSampleConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	body, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := "# trade-data-collector configuration.\n" +
		"# RPC endpoints and the Etherscan key are read from the *_env variables (a .env next to this file is loaded).\n"
	if err := os.WriteFile(path, append([]byte(header), body...), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
