package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavanmanishd/bufarena"
	"github.com/pavanmanishd/bufarena/logger"
	"github.com/pavanmanishd/bufarena/output"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "BUFARENA_")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Arena.Size != bufarena.DefaultArenaSize || cfg.Arena.SkipAfter != bufarena.DefaultSkipAfter {
		t.Errorf("arena defaults = %+v", cfg.Arena)
	}
	if cfg.Arena.MaxIdle != 64 || cfg.Arena.Limit != 0 {
		t.Errorf("arena defaults = %+v", cfg.Arena)
	}
	if p, _ := cfg.Arena.Policy(); p != bufarena.ResetRelease {
		t.Errorf("default policy = %v", p)
	}
	want := Output{BufsNum: output.DefaultBufsNum, BufsSize: output.DefaultBufsSize, Alignment: output.DefaultAlignment}
	if cfg.Output != want {
		t.Errorf("output defaults = %+v, want %+v", cfg.Output, want)
	}
	if cfg.Log.Level != "INFO" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "bufarena.yaml", `
arena:
  size: 8192
  skip_after: 2
  reset_policy: cursors
output:
  bufs_num: 4
  bufs_size: 4096
  sendfile: true
  limit: 65536
log:
  level: debug
  format: text
`)

	cfg, err := Load(path, "BUFARENA")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Arena.Size != 8192 || cfg.Arena.SkipAfter != 2 {
		t.Errorf("arena = %+v", cfg.Arena)
	}
	if p, _ := cfg.Arena.Policy(); p != bufarena.ResetCursorsOnly {
		t.Errorf("policy = %v, want ResetCursorsOnly", p)
	}
	if !cfg.Output.Sendfile || cfg.Output.BufsNum != 4 || cfg.Output.Limit != 65536 {
		t.Errorf("output = %+v", cfg.Output)
	}
	// Keys absent from the file keep their defaults
	if cfg.Output.Alignment != output.DefaultAlignment || cfg.Arena.MaxIdle != 64 {
		t.Errorf("defaults lost: %+v %+v", cfg.Output, cfg.Arena)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "bufarena.json", `{"arena": {"size": 8192, "max_idle": 4}}`)
	t.Setenv("BUFARENA_ARENA_SIZE", "32768")
	t.Setenv("BUFARENA_OUTPUT_NEED_IN_TEMP", "true")

	cfg, err := Load(path, "BUFARENA_")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Arena.Size != 32768 {
		t.Errorf("arena.size = %d, want the environment's 32768", cfg.Arena.Size)
	}
	if cfg.Arena.MaxIdle != 4 {
		t.Errorf("arena.max_idle = %d, want the file's 4", cfg.Arena.MaxIdle)
	}
	if !cfg.Output.NeedInTemp {
		t.Error("output.need_in_temp not taken from the environment")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("missing file did not fail")
	}

	path := writeFile(t, "bad.yaml", "arena:\n  reset_policy: sometimes\n")
	if _, err := Load(path, ""); !errors.Is(err, ErrUnknownResetPolicy) {
		t.Errorf("bad policy error = %v, want ErrUnknownResetPolicy", err)
	}
}

func TestArenaPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    bufarena.ResetPolicy
		wantErr bool
	}{
		{"", bufarena.ResetRelease, false},
		{"release", bufarena.ResetRelease, false},
		{"RELEASE", bufarena.ResetRelease, false},
		{"cursors", bufarena.ResetCursorsOnly, false},
		{"cursors_only", bufarena.ResetCursorsOnly, false},
		{"keep", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Arena{ResetPolicy: tt.in}.Policy()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigBuildsComponents(t *testing.T) {
	cfg := &Config{
		Arena:  Arena{Size: 2048, SkipAfter: 1, Limit: 1 << 20, ResetPolicy: "cursors", MaxIdle: 1},
		Output: Output{BufsNum: 3, BufsSize: 512, Alignment: 4096, NeedInTemp: true, Limit: 100},
		Log:    logger.Config{Level: "ERROR", Format: "json"},
	}
	var logs bytes.Buffer
	log := logger.New(cfg.Log, &logs)

	r, err := cfg.NewRecycler(log)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	a, err := r.Get()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Put(a)

	if a.ArenaSize() != 2048 || a.Logger() != log {
		t.Errorf("arena size %d, logger configured %v", a.ArenaSize(), a.Logger() == log)
	}
	if _, err := a.Alloc(2 << 20); !errors.Is(err, bufarena.ErrOutOfMemory) {
		t.Errorf("allocation past the limit = %v, want ErrOutOfMemory", err)
	}

	opts := cfg.Output.Options()
	if opts.Bufs != (bufarena.Bufs{Num: 3, Size: 512}) || opts.Alignment != 4096 || !opts.NeedInTemp {
		t.Errorf("output options = %+v", opts)
	}
	if _, err := output.New(a, func(bufarena.Link) error { return nil }, opts); err != nil {
		t.Errorf("output.New rejected configured options: %v", err)
	}

	w := cfg.Output.NewWriter(a, &output.ConnSender{W: &bytes.Buffer{}})
	if w.Limit != 100 {
		t.Errorf("writer limit = %d, want 100", w.Limit)
	}
}

func TestArenaOptionsRejectsBadPolicy(t *testing.T) {
	bad := Arena{Size: 1024, ResetPolicy: "sometimes"}
	if _, err := bad.Options(nil); !errors.Is(err, ErrUnknownResetPolicy) {
		t.Errorf("Options error = %v, want ErrUnknownResetPolicy", err)
	}

	cfg := &Config{Arena: bad}
	if r, err := cfg.NewRecycler(nil); !errors.Is(err, ErrUnknownResetPolicy) || r != nil {
		t.Errorf("NewRecycler = %v, %v, want ErrUnknownResetPolicy", r, err)
	}

	opts, err := Arena{ResetPolicy: "cursors"}.Options(nil)
	if err != nil || len(opts) != 4 {
		t.Fatalf("Options = %d options, %v", len(opts), err)
	}
	a, err := bufarena.NewArena(1024, opts...)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Destroy()

	// Cursor-only resets keep large allocations
	a.Alloc(4096)
	a.Reset()
	if n, _ := a.LargeInUse(); n != 1 {
		t.Errorf("large allocations after Reset = %d, want 1", n)
	}
}
