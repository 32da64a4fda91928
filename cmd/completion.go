package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/probav/pkg/dataset"
)

// completeYear provides completion for --year
func completeYear(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var years []string
	for _, y := range dataset.Years() {
		years = append(years, strconv.Itoa(y)+"\trecord "+dataset.Records[y])
	}
	return years, cobra.ShellCompDirectiveNoFileComp
}

// completeLayer provides completion for layer keys
func completeLayer(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var keys []string
	for _, l := range dataset.Layers {
		if strings.HasPrefix(l.Key, toComplete) {
			keys = append(keys, l.Key+"\t"+l.Label)
		}
	}
	return keys, cobra.ShellCompDirectiveNoFileComp
}
