package grass

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/scttfrdmn/probav/pkg/command"
	"github.com/scttfrdmn/probav/pkg/dataset"
	"github.com/scttfrdmn/probav/pkg/testutil"
)

const regionOutput = `projection=1
zone=32
n=5800050
s=5700000
w=399960
e=509760
nsres=10
ewres=10
rows=10005
cols=10980
cells=109854900
`

func TestRegion(t *testing.T) {
	runner := testutil.NewFakeRunner()
	runner.Outputs["g.region"] = regionOutput

	r, err := NewSession(runner).Region(context.Background())
	if err != nil {
		t.Fatalf("Region() error: %v", err)
	}
	if r.North != 5800050 || r.South != 5700000 || r.East != 509760 || r.West != 399960 {
		t.Errorf("Region() = %+v", r)
	}
	if r.NSRes != 10 || r.EWRes != 10 {
		t.Errorf("resolution = %v/%v", r.NSRes, r.EWRes)
	}

	calls := runner.CallsTo("g.region")
	if len(calls) != 1 || calls[0].Args[0] != "-pagu" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestRegionMissingKey(t *testing.T) {
	runner := testutil.NewFakeRunner()
	runner.Outputs["g.region"] = "n=1\ns=0\ne=1\n"

	if _, err := NewSession(runner).Region(context.Background()); err == nil {
		t.Fatal("expected error for missing west edge")
	}
}

func TestRegionBounds(t *testing.T) {
	r := Region{North: 10, South: 20, East: 5, West: 15}
	xmin, ymin, xmax, ymax := r.Bounds()
	if xmin != 5 || ymin != 10 || xmax != 15 || ymax != 20 {
		t.Errorf("Bounds() = %v %v %v %v", xmin, ymin, xmax, ymax)
	}
}

func TestParseProjection(t *testing.T) {
	tests := []struct {
		name       string
		kv         map[string]string
		wantEPSG   int
		wantMetric bool
		wantErr    error
	}{
		{
			name:       "epsg key",
			kv:         map[string]string{"name": "WGS 84 / UTM zone 32N", "epsg": "32632", "unit": "meter"},
			wantEPSG:   32632,
			wantMetric: true,
		},
		{
			name:       "srid fallback",
			kv:         map[string]string{"srid": "EPSG:3035", "units": "Meters"},
			wantEPSG:   3035,
			wantMetric: true,
		},
		{
			name:     "geographic",
			kv:       map[string]string{"srid": "EPSG:4326", "unit": "degree"},
			wantEPSG: 4326,
		},
		{
			name:    "no code",
			kv:      map[string]string{"name": "custom", "unit": "meter"},
			wantErr: ErrNoEPSG,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProjection(tt.kv)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseProjection() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProjection() error: %v", err)
			}
			if p.EPSG != tt.wantEPSG {
				t.Errorf("EPSG = %d, want %d", p.EPSG, tt.wantEPSG)
			}
			if p.Metric() != tt.wantMetric {
				t.Errorf("Metric() = %v, want %v", p.Metric(), tt.wantMetric)
			}
		})
	}
}

func TestProjectionViaSession(t *testing.T) {
	runner := testutil.NewFakeRunner()
	runner.Outputs["g.proj"] = "name=ETRS89-extended / LAEA Europe\nsrid=EPSG:3035\nunit=meter\n"

	p, err := NewSession(runner).Projection(context.Background())
	if err != nil {
		t.Fatalf("Projection() error: %v", err)
	}
	if p.SRS() != "EPSG:3035" {
		t.Errorf("SRS() = %s", p.SRS())
	}
}

func TestImport(t *testing.T) {
	runner := testutil.NewFakeRunner()
	s := NewSession(runner)

	if err := s.Import(context.Background(), "/tmp/a.tif", "landcover", true); err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	calls := runner.CallsTo("r.import")
	if len(calls) != 1 {
		t.Fatalf("expected one r.import call, got %d", len(calls))
	}
	if in, _ := calls[0].Arg("input"); in != "/tmp/a.tif" {
		t.Errorf("input = %s", in)
	}
	if out, _ := calls[0].Arg("output"); out != "landcover" {
		t.Errorf("output = %s", out)
	}
	if calls[0].Args[len(calls[0].Args)-1] != "--overwrite" {
		t.Errorf("expected --overwrite, got %v", calls[0].Args)
	}
}

func TestImportFailure(t *testing.T) {
	runner := testutil.NewFakeRunner()
	runner.Errors["r.import"] = &command.ExitError{Cmd: "r.import", Stderr: "ERROR: option <output>: <lc> exists", Err: errors.New("exit status 1")}

	err := NewSession(runner).Import(context.Background(), "a.tif", "lc", false)
	if err == nil || !strings.Contains(err.Error(), "exists") {
		t.Errorf("expected import error with stderr, got %v", err)
	}
}

func TestSetCategories(t *testing.T) {
	runner := testutil.NewFakeRunner()

	err := NewSession(runner).SetCategories(context.Background(), "lc", dataset.DiscreteClassificationCategories)
	if err != nil {
		t.Fatalf("SetCategories() error: %v", err)
	}

	calls := runner.CallsTo("r.category")
	if len(calls) != 1 {
		t.Fatalf("expected one r.category call, got %d", len(calls))
	}
	c := calls[0]
	if m, _ := c.Arg("map"); m != "lc" {
		t.Errorf("map = %s", m)
	}
	if r, _ := c.Arg("rules"); r != "-" {
		t.Errorf("rules = %s", r)
	}
	if sep, _ := c.Arg("separator"); sep != "pipe" {
		t.Errorf("separator = %s", sep)
	}
	if !strings.HasPrefix(c.Stdin, "0|No inputdata available\n111|Closed forest, evergreen needle leaf\n") {
		t.Errorf("unexpected rules on stdin: %q", c.Stdin)
	}
}

func TestMapExists(t *testing.T) {
	runner := testutil.NewFakeRunner()
	runner.Outputs["g.findfile"] = "name='lc'\nmapset='PERMANENT'\nfullname='lc@PERMANENT'\n"

	ok, err := NewSession(runner).MapExists(context.Background(), "lc")
	if err != nil || !ok {
		t.Errorf("MapExists() = %v, %v", ok, err)
	}

	runner.Outputs["g.findfile"] = "name=\nmapset=\nfullname=\n"
	runner.Errors["g.findfile"] = errors.New("exit status 1")
	ok, err = NewSession(runner).MapExists(context.Background(), "lc")
	if err != nil || ok {
		t.Errorf("MapExists() = %v, %v", ok, err)
	}
}

func TestValidateMapName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"landcover_2019", false},
		{"_lc.tree-cover", false},
		{"2019_landcover", false},
		{"2019", false},
		{"lc+trees", false},
		{"", true},
		{".hidden", true},
		{"lc@PERMANENT", true},
		{"lc rm", true},
		{"lc/2019", true},
		{"lc,2019", true},
		{"lc=2019", true},
		{"lc*", true},
		{`lc"2019`, true},
		{"lc'2019", true},
		{"lc\t2019", true},
		{"forêt", true},
	}

	for _, tt := range tests {
		if err := ValidateMapName(tt.name); (err != nil) != tt.wantErr {
			t.Errorf("ValidateMapName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestCheckEnvironment(t *testing.T) {
	t.Setenv("GISRC", "")
	if err := CheckEnvironment(nil); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if err := CheckEnvironment([]string{"grass", "/data/loc/PERMANENT", "--exec"}); err != nil {
		t.Errorf("prefix should satisfy the check: %v", err)
	}

	t.Setenv("GISRC", "/home/user/.grass8/rc")
	if err := CheckEnvironment(nil); err != nil {
		t.Errorf("GISRC should satisfy the check: %v", err)
	}
}
