package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Load the configuration file, merge it over the built-in defaults, and
print the effective values the server would run with.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		for _, name := range []string{"sql", "ipc_endpoint", "stream_endpoint", "fdw", "data_store"} {
			sec := cfg.Section(name)
			if sec == nil {
				continue
			}
			fmt.Printf("[%s]\n", name)
			for _, key := range sectionKeys(name) {
				if v, ok := sec.GetString(key); ok {
					fmt.Printf("%s=%s\n", key, v)
				}
			}
			fmt.Println()
		}
		return nil
	},
}

func sectionKeys(section string) []string {
	switch section {
	case "sql":
		return []string{"thread_pool_size", "lazy_worker"}
	case "ipc_endpoint":
		return []string{"database_name", "threads", "admin_sessions"}
	case "stream_endpoint":
		return []string{"port", "threads"}
	case "fdw":
		return []string{"name", "threads"}
	case "data_store":
		return []string{"log_location"}
	}
	return nil
}

func init() {
	configCmd.Flags().String("config", "", "Path to the INI configuration file")
}
