package command

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseKeyValue(t *testing.T) {
	out := `projection=99
zone=0
n=5800000
s=5700000
name='WGS 84 / UTM zone 32N'
 unit = meter

garbage
=novalue
`
	want := map[string]string{
		"projection": "99",
		"zone":       "0",
		"n":          "5800000",
		"s":          "5700000",
		"name":       "WGS 84 / UTM zone 32N",
		"unit":       "meter",
	}
	if diff := cmp.Diff(want, ParseKeyValue(out)); diff != "" {
		t.Errorf("ParseKeyValue() mismatch (-want +got):\n%s", diff)
	}
}

func TestCmdString(t *testing.T) {
	c := Cmd{Name: "r.import", Args: []string{"input=a.tif", "output=lc"}}
	if c.String() != "r.import input=a.tif output=lc" {
		t.Errorf("String() = %q", c.String())
	}
}

func TestExecRun(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	x := &Exec{}
	out, err := x.Run(context.Background(), Cmd{
		Name:  "sh",
		Args:  []string{"-c", "cat; echo \"$PROBAV_TEST\""},
		Stdin: strings.NewReader("from stdin\n"),
		Env:   []string{"PROBAV_TEST=from env"},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out != "from stdin\nfrom env\n" {
		t.Errorf("Run() output = %q", out)
	}
}

func TestExecPrefix(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	x := &Exec{Prefix: []string{"sh", "-c", `echo "$0 $1"`}}
	out, err := x.Run(context.Background(), Cmd{Name: "g.region", Args: []string{"-p"}})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if strings.TrimSpace(out) != "g.region -p" {
		t.Errorf("Run() output = %q", out)
	}
}

func TestExecFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	x := &Exec{}
	_, err := x.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})

	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if ee.ExitCode() != 3 {
		t.Errorf("ExitCode() = %d", ee.ExitCode())
	}
	if !strings.Contains(ee.Error(), "boom") {
		t.Errorf("error should include stderr: %v", ee)
	}
}
