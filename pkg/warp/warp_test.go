package warp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/scttfrdmn/probav/pkg/grass"
	"github.com/scttfrdmn/probav/pkg/testutil"
)

func TestArgsMetric(t *testing.T) {
	r := grass.Region{North: 5800000, South: 5700000, East: 400000, West: 300000}
	p := grass.Projection{EPSG: 32632, Unit: "meter"}

	got := NewOptions(r, p).Args("in.tif", "out.tif")
	want := []string{
		"-s_srs", "EPSG:4326",
		"-t_srs", "EPSG:32632",
		"-te", "300000", "5700000", "400000", "5800000",
		"-te_srs", "EPSG:32632",
		"-tr", "100", "100", "-tap",
		"-r", "near", "-of", "GTiff", "-ovr", "5",
		"-co", "TILED=YES", "-co", "COMPRESS=LZW",
		"in.tif", "out.tif",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}
}

func TestArgsGeographic(t *testing.T) {
	r := grass.Region{North: 48.5, South: 47, East: 8.25, West: 7}
	p := grass.Projection{EPSG: 4326, Unit: "degree"}

	args := NewOptions(r, p).Args("in.tif", "out.tif")
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "-tr") || strings.Contains(joined, "-tap") {
		t.Errorf("degree locations must not force a resolution: %v", args)
	}
	if !strings.Contains(joined, "-te 7 47 8.25 48.5") {
		t.Errorf("unexpected bounds in %v", args)
	}
}

func TestEnv(t *testing.T) {
	tests := []struct {
		name string
		free FreeMemoryFunc
		want []string
	}{
		{
			name: "1000 MiB free",
			free: func() (uint64, error) { return 1000 * 1024 * 1024, nil },
			want: []string{"GDAL_CACHEMAX=800", "COMPRESS_OVERVIEW=LZW"},
		},
		{
			name: "unreadable",
			free: func() (uint64, error) { return 0, errors.New("no /proc") },
			want: []string{"COMPRESS_OVERVIEW=LZW"},
		},
		{
			name: "nil",
			want: []string{"COMPRESS_OVERVIEW=LZW"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Env(tt.free)); diff != "" {
				t.Errorf("Env() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	got := OutputPath("/tmp/x", "/data/2019/E000N60_PROBAV_LC100_global_v3.0.1_2019-nrt_Tree-CoverFraction-layer_EPSG-4326.tif", 42)
	want := "/tmp/x/E000N60_PROBAV_LC100_global_v3.0.1_2019-nrt_Tree-CoverFraction-layer_EPSG-4326_42.tif"
	if got != want {
		t.Errorf("OutputPath() = %s, want %s", got, want)
	}
}

func TestWarp(t *testing.T) {
	tmp := t.TempDir()
	runner := testutil.NewFakeRunner()
	runner.Hooks["gdalwarp"] = func(c testutil.Call) error {
		return os.WriteFile(c.Args[len(c.Args)-1], []byte("tif"), 0644)
	}

	w := New(runner, tmp, NewOptions(grass.Region{North: 1, East: 1}, grass.Projection{EPSG: 3035, Unit: "meter"}))
	w.SetFreeMemory(func() (uint64, error) { return 10 * 1024 * 1024, nil })

	out, err := w.Warp(context.Background(), "/data/a.tif")
	if err != nil {
		t.Fatalf("Warp() error: %v", err)
	}
	if filepath.Dir(out) != tmp {
		t.Errorf("output %s not in %s", out, tmp)
	}
	testutil.AssertFileExists(t, out)

	calls := runner.CallsTo("gdalwarp")
	if len(calls) != 1 {
		t.Fatalf("expected one gdalwarp call, got %d", len(calls))
	}
	if diff := cmp.Diff([]string{"GDAL_CACHEMAX=8", "COMPRESS_OVERVIEW=LZW"}, calls[0].Env); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
	if os.Getenv("COMPRESS_OVERVIEW") == "LZW" && os.Getenv("GDAL_CACHEMAX") == "8" {
		t.Error("process environment must not be modified")
	}
}

func TestWarpFailures(t *testing.T) {
	opts := NewOptions(grass.Region{North: 1, East: 1}, grass.Projection{EPSG: 3035, Unit: "meter"})

	t.Run("exit status", func(t *testing.T) {
		runner := testutil.NewFakeRunner()
		runner.Errors["gdalwarp"] = errors.New("exit status 1")

		_, err := New(runner, t.TempDir(), opts).Warp(context.Background(), "/data/a.tif")
		if !errors.Is(err, ErrFailed) {
			t.Fatalf("expected ErrFailed, got %v", err)
		}
		testutil.AssertStringContains(t, err.Error(), "Reprojection of scene /data/a.tif failed")
	})

	t.Run("no output", func(t *testing.T) {
		runner := testutil.NewFakeRunner()

		_, err := New(runner, t.TempDir(), opts).Warp(context.Background(), "/data/a.tif")
		if !errors.Is(err, ErrFailed) {
			t.Fatalf("expected ErrFailed, got %v", err)
		}
	})
}

func TestSetBinary(t *testing.T) {
	runner := testutil.NewFakeRunner()
	w := New(runner, t.TempDir(), Options{})
	w.SetBinary("/opt/gdal/bin/gdalwarp")
	w.SetBinary("")

	_, _ = w.Warp(context.Background(), "a.tif")
	if len(runner.CallsTo("/opt/gdal/bin/gdalwarp")) != 1 {
		t.Errorf("expected call to configured binary, got %+v", runner.Calls)
	}
}
