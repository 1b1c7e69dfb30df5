package commands

import (
	"fmt"

	"github.com/jamwil/terra/lib/bundle"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(bundleCmd)
}

var bundleCmd = &cobra.Command{
	Use:   "bundle <geojson> [geojson...]",
	Short: "Zips the titles, screenshots and geojson behind each output file into one archive.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}

		bundler := bundle.NewBundler(cfg.Bundle, nil)
		result, err := bundler.Create(cmd.Context(), args)
		if err != nil {
			return err
		}

		fmt.Println("bundled to", result.Path)
		if result.Skipped > 0 {
			fmt.Println("skipped", result.Skipped, "missing artifacts")
		}
		if result.Link != "" {
			fmt.Println(result.Link)
		}
		return nil
	},
}
