package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/probav/pkg/dataset"
	"github.com/scttfrdmn/probav/pkg/output"
)

var layersCmd = &cobra.Command{
	Use:               "layers [key...]",
	Short:             "Show the land cover layers and their output flags",
	RunE:              runLayers,
	ValidArgsFunction: completeLayer,
}

func init() {
	rootCmd.AddCommand(layersCmd)
}

func runLayers(cmd *cobra.Command, args []string) error {
	layers := dataset.Layers
	if len(args) > 0 {
		layers = nil
		for _, key := range args {
			layer, ok := dataset.LayerByKey(key)
			if !ok {
				return fmt.Errorf("unknown layer %q", key)
			}
			layers = append(layers, layer)
		}
	}
	return newPrinter().Print(layers, output.LayersTable(layers))
}
