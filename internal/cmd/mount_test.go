package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/dendrascience/circlefs/internal/config"
)

func TestResolveConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "circlefs.yaml")
	body := "mountpoint: /run/circle\nattr_ttl: 5s\nallow_other: true\nmetrics_addr: :9100\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		args   []string
		check  func(t *testing.T, cfg *config.Config)
		expect error
	}{
		{
			name: "file values",
			args: []string{"--config", cfgPath},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Mountpoint != "/run/circle" || cfg.AttrTTL != 5*time.Second || !cfg.AllowOther {
					t.Errorf("file values not applied: %+v", cfg)
				}
			},
		},
		{
			name: "flags override file",
			args: []string{"--config", cfgPath, "--attr-ttl", "10ms", "--allow-other=false", "/mnt/other"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Mountpoint != "/mnt/other" {
					t.Errorf("Mountpoint = %q, expected the positional argument", cfg.Mountpoint)
				}
				if cfg.AttrTTL != 10*time.Millisecond || cfg.AllowOther {
					t.Errorf("flags did not override file: %+v", cfg)
				}
				if cfg.MetricsAddr != ":9100" {
					t.Errorf("unset flag clobbered file value: %q", cfg.MetricsAddr)
				}
			},
		},
		{
			name: "defaults without file",
			args: []string{"/mnt/circle"},
			check: func(t *testing.T, cfg *config.Config) {
				if *cfg != (config.Config{Mountpoint: "/mnt/circle", FSName: "circlefs", AttrTTL: time.Second, ProcPath: "/proc"}) {
					t.Errorf("unexpected defaults: %+v", cfg)
				}
			},
		},
		{
			name:   "missing mountpoint",
			args:   []string{},
			expect: config.ErrNoMountpoint,
		},
		{
			name:   "mountpoint inside proc",
			args:   []string{"/proc/circle"},
			expect: config.ErrProcOverlap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &mountFlags{cfg: *config.Default()}
			cmd := newMountCmd(f)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags failed: %v", err)
			}
			cfg, err := resolveConfig(cmd, cmd.Flags().Args(), f)
			if tt.expect != nil {
				if !errors.Is(err, tt.expect) {
					t.Fatalf("resolveConfig() = %v, expected %v", err, tt.expect)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveConfig failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestUnmountOnSignalRetries(t *testing.T) {
	sigs := make(chan os.Signal, 3)
	var calls []string
	unmount := func(mountpoint string) error {
		calls = append(calls, mountpoint)
		if len(calls) == 1 {
			return syscall.EBUSY
		}
		return nil
	}

	sigs <- os.Interrupt
	sigs <- syscall.SIGTERM
	sigs <- os.Interrupt

	done := make(chan struct{})
	go func() {
		defer close(done)
		unmountOnSignal(sigs, "/mnt/circle", unmount)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("unmountOnSignal did not return after a successful unmount")
	}
	if len(calls) != 2 || calls[1] != "/mnt/circle" {
		t.Errorf("unmount calls = %v, expected two for /mnt/circle", calls)
	}
	if len(sigs) != 1 {
		t.Errorf("%d signals left queued, expected 1", len(sigs))
	}
}
