package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Layer is one product of a yearly record.
type Layer struct {
	// Key identifies the layer in flags and config (snake_case).
	Key string `json:"key" yaml:"key"`
	// Label is the human readable name.
	Label string `json:"label" yaml:"label"`
	// Fragment is the lower-case substring that identifies the layer's file.
	Fragment string `json:"fragment" yaml:"fragment"`
}

// Flag returns the command line flag name for the layer's output.
func (l Layer) Flag() string {
	return strings.ReplaceAll(l.Key, "_", "-") + "-output"
}

// Matches reports whether filename belongs to the layer.
func (l Layer) Matches(filename string) bool {
	return strings.Contains(strings.ToLower(filename), l.Fragment)
}

// DiscreteClassificationKey is the layer that carries land cover classes.
const DiscreteClassificationKey = "discrete_classification"

// Layers lists every product in the order they are processed.
var Layers = []Layer{
	{Key: DiscreteClassificationKey, Label: "discrete classification map", Fragment: "discrete-classification-map"},
	{Key: "bare_coverfraction", Label: "bare cover fraction map", Fragment: "bare-coverfraction"},
	{Key: "builtup_coverfraction", Label: "built-up cover fraction map", Fragment: "builtup-coverfraction"},
	{Key: "crops_coverfraction", Label: "crops cover fraction map", Fragment: "crops-coverfraction"},
	{Key: "change_confidence", Label: "change confidence map", Fragment: "change-confidence"},
	{Key: "data_density_indicator", Label: "data density indicator map", Fragment: "datadensityindicator"},
	{Key: "discrete_classification_proba", Label: "discrete classification proba map", Fragment: "discrete-classification-proba"},
	{Key: "forest_type", Label: "forest type map", Fragment: "forest-type"},
	{Key: "grass_coverfraction", Label: "grass cover fraction map", Fragment: "grass-coverfraction"},
	{Key: "moss_lichen_coverfraction", Label: "moss lichen cover fraction map", Fragment: "mosslichen-coverfraction"},
	{Key: "permanent_water_coverfraction", Label: "permanent water cover fraction map", Fragment: "permanentwater-coverfraction"},
	{Key: "seasonal_water_coverfraction", Label: "seasonal water cover fraction map", Fragment: "seasonalwater-coverfraction"},
	{Key: "shrub_coverfraction", Label: "shrub cover fraction map", Fragment: "shrub-coverfraction"},
	{Key: "snow_coverfraction", Label: "snow cover fraction map", Fragment: "snow-coverfraction"},
	{Key: "tree_coverfraction", Label: "tree cover fraction map", Fragment: "tree-coverfraction"},
}

// LayerByKey looks up a layer.
func LayerByKey(key string) (Layer, bool) {
	for _, l := range Layers {
		if l.Key == key {
			return l, true
		}
	}
	return Layer{}, false
}

// Selected is a remote file chosen for import.
type Selected struct {
	Filename string
	Layer    Layer
	Output   string
}

// Selection is the set of remote files to import, in processing order.
type Selection []Selected

// Filenames returns the selected remote filenames.
func (s Selection) Filenames() []string {
	names := make([]string, len(s))
	for i, sel := range s {
		names[i] = sel.Filename
	}
	return names
}

// Output returns the output raster name for a layer key, if selected.
func (s Selection) Output(key string) (string, bool) {
	for _, sel := range s {
		if sel.Layer.Key == key {
			return sel.Output, true
		}
	}
	return "", false
}

// ValidateOutputs checks that outputs only names known layers and that
// at least one output is set.
func ValidateOutputs(outputs map[string]string) error {
	n := 0
	for key, name := range outputs {
		if _, ok := LayerByKey(key); !ok {
			return fmt.Errorf("unknown layer %q", key)
		}
		if name != "" {
			n++
		}
	}
	if n == 0 {
		return ErrNoOutputs
	}
	return nil
}

// Select maps remote filenames to the output raster names requested in
// outputs (layer key -> raster name). Layers without an output name are
// ignored. When several layers match one file the later layer wins.
func Select(filenames []string, outputs map[string]string) (Selection, error) {
	if err := ValidateOutputs(outputs); err != nil {
		return nil, err
	}

	sorted := append([]string(nil), filenames...)
	sort.Strings(sorted)

	index := make(map[string]int)
	var sel Selection
	for _, layer := range Layers {
		out := outputs[layer.Key]
		if out == "" {
			continue
		}
		for _, name := range sorted {
			if !layer.Matches(name) {
				continue
			}
			if i, ok := index[name]; ok {
				sel[i] = Selected{Filename: name, Layer: layer, Output: out}
				continue
			}
			index[name] = len(sel)
			sel = append(sel, Selected{Filename: name, Layer: layer, Output: out})
		}
	}
	return sel, nil
}
