package itree_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/itree"
	"github.com/google/go-cmp/cmp"
)

func TestNewConfig(t *testing.T) {
	c := itree.NewConfig()
	if !c.Interpolation {
		t.Fatal("expected interpolation enabled")
	} else if got, exp := c.SubsumptionTimeout, itree.DefaultSubsumptionTimeout; got != exp {
		t.Fatalf("SubsumptionTimeout=%s, expected %s", got, exp)
	} else if got, exp := c.Searcher, "dfs"; got != exp {
		t.Fatalf("Searcher=%q, expected %q", got, exp)
	} else if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		c, err := itree.ParseConfig(strings.NewReader(`
interpolation: false
subsumption_timeout: 5s
searcher: bfs,random
seed: 42
max_states: 100
output_tree: true
solver_log:
  min_query_time: 250ms
os: linux
arch: arm64
`))
		if err != nil {
			t.Fatal(err)
		}

		exp := itree.Config{
			SubsumptionTimeout: 5 * time.Second,
			Searcher:           "bfs,random",
			Seed:               42,
			MaxStates:          100,
			OutputTree:         true,
			SolverLog:          itree.SolverLogConfig{MinQueryTime: 250 * time.Millisecond},
			OS:                 "linux",
			Arch:               "arm64",
		}
		if diff := cmp.Diff(exp, c); diff != "" {
			t.Fatalf("unexpected config: %s", diff)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		c, err := itree.ParseConfig(strings.NewReader(""))
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(itree.NewConfig(), c); diff != "" {
			t.Fatalf("unexpected config: %s", diff)
		}
	})

	t.Run("ErrUnknownField", func(t *testing.T) {
		_, err := itree.ParseConfig(strings.NewReader("foo: bar\n"))
		if err == nil || !strings.Contains(err.Error(), "decode config") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrInvalid", func(t *testing.T) {
		_, err := itree.ParseConfig(strings.NewReader("max_states: -1\n"))
		if err == nil || err.Error() != "invalid max states: -1" {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name string
		fn   func(c *itree.Config)
		err  string
	}{
		{"SubsumptionTimeout", func(c *itree.Config) { c.SubsumptionTimeout = -1 }, "invalid subsumption timeout: -1ns"},
		{"OSWithoutArch", func(c *itree.Config) { c.OS = "linux" }, "os and arch must be set together"},
		{"OSArch", func(c *itree.Config) { c.OS, c.Arch = "linux", "z80" }, "invalid os/arch combination: linux/z80"},
		{"Searcher", func(c *itree.Config) { c.Searcher = "xyz" }, `invalid searcher: itree: unknown searcher: "xyz"`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := itree.NewConfig()
			tt.fn(&c)
			if err := c.Validate(); err == nil || err.Error() != tt.err {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "itree.yml")
	if err := ioutil.WriteFile(path, []byte("searcher: bfs\n"), 0666); err != nil {
		t.Fatal(err)
	}

	if c, err := itree.ReadConfigFile(path); err != nil {
		t.Fatal(err)
	} else if got, exp := c.Searcher, "bfs"; got != exp {
		t.Fatalf("Searcher=%q, expected %q", got, exp)
	}

	if _, err := itree.ReadConfigFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfig_Apply(t *testing.T) {
	prog := MustBuildProgram(t, "./testdata/pkg000_if")
	e := NewExecutor(MustFindFunction(t, prog, "simple"))
	defer e.Close()

	c := itree.NewConfig()
	c.Interpolation = false
	c.SubsumptionTimeout = time.Second
	c.Searcher = "bfs"
	c.MaxStates = 1
	if err := c.Apply(e.Executor); err != nil {
		t.Fatal(err)
	}

	if e.Interpolation {
		t.Fatal("expected interpolation disabled")
	} else if got, exp := e.SubsumptionTimeout, time.Second; got != exp {
		t.Fatalf("SubsumptionTimeout=%s, expected %s", got, exp)
	} else if got, exp := e.MaxStates, 1; got != exp {
		t.Fatalf("MaxStates=%d, expected %d", got, exp)
	} else if _, ok := e.Searcher.(*itree.BFSSearcher); !ok {
		t.Fatalf("unexpected searcher: %T", e.Searcher)
	}

	// Only the root state executes.
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	} else if got, exp := e.Stats().States, 3; got != exp {
		t.Fatalf("States=%d, expected %d", got, exp)
	}
}
