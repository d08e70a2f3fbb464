package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pathsCmd represents the paths command
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show paths used by the application",
	Example: `  # Show all application paths
  youpac paths`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Config directory: %s\n", config.ConfigDir)
		fmt.Printf("Data directory: %s\n", config.DataDir)
		fmt.Printf("Cache directory: %s\n", config.CacheDir)
		fmt.Printf("Database: %s\n", config.DBPath)
		if config.StorageBackend == "s3" {
			fmt.Printf("Media: s3://%s\n", config.S3Bucket)
		} else {
			fmt.Printf("Media directory: %s\n", config.MediaDir)
		}
	},
}

func init() {
	rootCmd.AddCommand(pathsCmd)
}
