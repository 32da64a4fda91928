package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/probav/pkg/archive"
	"github.com/scttfrdmn/probav/pkg/cache"
	"github.com/scttfrdmn/probav/pkg/config"
	"github.com/scttfrdmn/probav/pkg/dataset"
	"github.com/scttfrdmn/probav/pkg/importer"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatCSV   = "csv"
)

// Formats lists the accepted --output values.
var Formats = []string{FormatTable, FormatJSON, FormatYAML, FormatCSV}

// ValidateFormat checks an --output value.
func ValidateFormat(format string) error {
	for _, f := range Formats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("unknown output format %q (valid: %s)", format, strings.Join(Formats, ", "))
}

// Table is the tabular rendering of a value. CSV uses the same rows with
// snake_case headers.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Printer handles output formatting
type Printer struct {
	w        io.Writer
	format   string
	useColor bool
}

// NewPrinter creates a new output printer
func NewPrinter(w io.Writer, format string, useColor bool) *Printer {
	if format == "" {
		format = FormatTable
	}
	return &Printer{w: w, format: format, useColor: useColor}
}

// Print writes v in the printer's format. Table and CSV use t; JSON and YAML
// encode v.
func (p *Printer) Print(v interface{}, t Table) error {
	switch p.format {
	case FormatJSON:
		encoder := json.NewEncoder(p.w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case FormatYAML:
		encoder := yaml.NewEncoder(p.w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	case FormatCSV:
		return p.printCSV(t)
	case FormatTable:
		p.printTable(t)
		return nil
	default:
		return ValidateFormat(p.format)
	}
}

func (p *Printer) printTable(t Table) {
	if t.Title != "" {
		if p.useColor {
			cyan := color.New(color.FgCyan, color.Bold)
			cyan.Fprintf(p.w, "\n%s\n\n", t.Title)
		} else {
			fmt.Fprintf(p.w, "\n%s\n\n", t.Title)
		}
	}

	table := tablewriter.NewWriter(p.w)
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(t.Headers)

	// Colors must match number of headers
	if p.useColor {
		colors := make([]tablewriter.Colors, len(t.Headers))
		for i := range colors {
			colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor}
		}
		table.SetHeaderColor(colors...)
	}

	table.AppendBulk(t.Rows)
	table.Render()
}

func (p *Printer) printCSV(t Table) error {
	writer := csv.NewWriter(p.w)

	header := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = strings.ReplaceAll(strings.ToLower(h), " ", "_")
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// FilesTable renders the raster files of a record. Files matching a layer
// show the layer key.
func FilesTable(year int, listing *archive.Listing) Table {
	t := Table{
		Title:   fmt.Sprintf("Record %s (%d): %d file(s)", listing.Record, year, len(listing.Files)),
		Headers: []string{"File", "Layer", "Size", "MD5"},
	}
	for _, f := range listing.Files {
		layer := ""
		for _, l := range dataset.Layers {
			if l.Matches(f.Name) {
				layer = l.Key
				break
			}
		}
		t.Rows = append(t.Rows, []string{f.Name, layer, humanize.Bytes(uint64(f.Size)), f.MD5})
	}
	return t
}

// LayersTable renders the products with their flag names.
func LayersTable(layers []dataset.Layer) Table {
	t := Table{Headers: []string{"Key", "Flag", "Label", "Fragment"}}
	for _, l := range layers {
		t.Rows = append(t.Rows, []string{l.Key, "--" + l.Flag(), l.Label, l.Fragment})
	}
	return t
}

// PlanTable renders the download decision per file.
func PlanTable(plan cache.Plan) Table {
	t := Table{Headers: []string{"File", "Download", "Reason"}}
	for _, e := range plan {
		t.Rows = append(t.Rows, []string{e.Name, strconv.FormatBool(e.Download), string(e.Reason)})
	}
	return t
}

// ResultTable renders the maps imported by a run.
func ResultTable(res *importer.Result) Table {
	t := Table{
		Title: fmt.Sprintf("Year %d (record %s): %d downloaded (%s), %d skipped, %d imported",
			res.Year, res.Record, len(res.Downloaded), humanize.Bytes(uint64(res.Bytes)), len(res.Skipped), len(res.Imported)),
		Headers: []string{"Map", "Layer", "File", "Categories"},
	}
	for _, m := range res.Imported {
		cats := ""
		if m.Map == res.Categorized {
			cats = strconv.Itoa(len(dataset.DiscreteClassificationCategories))
		}
		t.Rows = append(t.Rows, []string{m.Map, m.Layer, m.File, cats})
	}
	return t
}

// MismatchTable renders the result of a cache verification.
func MismatchTable(dir string, checked int, bad []cache.Mismatch) Table {
	t := Table{
		Title:   fmt.Sprintf("%s: %d checked, %d mismatched", dir, checked, len(bad)),
		Headers: []string{"File", "Stored", "Actual", "Error"},
	}
	for _, m := range bad {
		t.Rows = append(t.Rows, []string{m.Name, m.Stored, m.Actual, m.Err})
	}
	return t
}

// ConfigTable renders each effective setting with its source.
func ConfigTable(l *config.Loaded) Table {
	c := l.Config
	values := map[string]string{
		"year":                           strconv.Itoa(c.Year),
		"directory":                      c.Directory,
		"temp_dir":                       c.TempDir,
		"zenodo.url":                     c.Zenodo.URL,
		"zenodo.retries":                 strconv.FormatUint(c.Zenodo.Retries, 10),
		"mirror.uri":                     c.Mirror.URI,
		"mirror.region":                  c.Mirror.Region,
		"mirror.discover":                strconv.FormatBool(c.Mirror.Discover),
		"grass.exec":                     strings.Join(c.GRASS.Exec, " "),
		"grass.gdalwarp":                 c.GRASS.GDALWarp,
		"audit.log":                      c.Audit.Log,
		"observability.metrics.textfile": c.Observability.Metrics.TextfilePath,
		"observability.tracing.enabled":  strconv.FormatBool(c.Observability.Tracing.Enabled),
		"outputs":                        formatOutputs(c.Outputs),
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := Table{Title: "Configuration " + l.Path, Headers: []string{"Setting", "Value", "Source"}}
	for _, k := range keys {
		t.Rows = append(t.Rows, []string{k, values[k], l.Sources[k]})
	}
	return t
}

func formatOutputs(outputs map[string]string) string {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + outputs[k]
	}
	return strings.Join(parts, ",")
}
