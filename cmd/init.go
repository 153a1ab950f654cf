package cmd

import (
	"fmt"

	"github.com/alantheprice/terminput/pkg/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new configuration in the current directory",
	Long:  `Creates a .terminput/config.json file in the current working directory, allowing for project-specific settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(); err != nil {
			return fmt.Errorf("initializing configuration: %w", err)
		}
		fmt.Printf("wrote %s/%s\n", config.ConfigDirName, config.ConfigFileName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
