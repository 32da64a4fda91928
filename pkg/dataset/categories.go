package dataset

import (
	"fmt"
	"strings"
)

// Category is one class of a categorical raster.
type Category struct {
	Code  int
	Label string
}

// DiscreteClassificationCategories is the coding of the discrete
// classification map (product user manual, pp. 28-29).
var DiscreteClassificationCategories = []Category{
	{0, "No inputdata available"},
	{111, "Closed forest, evergreen needle leaf"},
	{113, "Closed forest, deciduous needle leaf"},
	{112, "Closed forest, evergreen, broad leaf"},
	{114, "Closed forest, deciduous broad leaf"},
	{115, "Closed forest, mixed"},
	{116, "Closed forest, unknown"},
	{121, "Open forest, evergreen needle leaf"},
	{123, "Open forest, deciduous needle leaf"},
	{122, "Open forest, evergreen broad leaf"},
	{124, "Open forest, deciduous broad leaf"},
	{125, "Open forest, mixed"},
	{126, "Open forest, unknown"},
	{20, "Shrubs"},
	{30, "Herbaceous vegetation"},
	{90, "Herbaceous wetland"},
	{100, "Moss and lichen"},
	{60, "Bare / sparse vegetation"},
	{40, "Cultivated and managed vegetation/agriculture (cropland)"},
	{50, "Urban/ built up"},
	{70, "Snow and Ice"},
	{80, "Permanent water bodies"},
	{200, "Open sea"},
}

// CategoryRules renders categories as pipe separated rules, one per line.
func CategoryRules(cats []Category) string {
	var b strings.Builder
	for _, c := range cats {
		fmt.Fprintf(&b, "%d|%s\n", c.Code, c.Label)
	}
	return b.String()
}
