package cmd

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/dendrascience/circlefs/circlefs"
	"github.com/dendrascience/circlefs/internal/config"
	"github.com/dendrascience/circlefs/version"
	"github.com/spf13/cobra"
)

type mountFlags struct {
	configPath  string
	printConfig bool
	cfg         config.Config
}

// NewMountCmd creates and returns the mount subcommand for the circlefs CLI.
// Settings come from --config when given; flags set on the command line win.
func NewMountCmd() *cobra.Command {
	return newMountCmd(&mountFlags{cfg: *config.Default()})
}

func newMountCmd(f *mountFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount [MOUNTPOINT]",
		Short: "Mount circlefs",
		Long: `Mount circlefs at the specified mountpoint.

MOUNTPOINT may be omitted when the config file names one. Pass --allow-other
so that processes of other users can register sockets; this requires
user_allow_other in /etc/fuse.conf unless running as root.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := resolveConfig(cmd, args, f)
			if err != nil {
				log.Fatal(err)
			}
			if f.printConfig {
				out, err := cfg.Marshal()
				if err != nil {
					log.Fatal(err)
				}
				fmt.Print(string(out))
				return
			}
			runMount(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML config file")
	flags.BoolVar(&f.printConfig, "print-config", false, "Print the effective configuration and exit")
	flags.StringVar(&f.cfg.FSName, "fsname", f.cfg.FSName, "Filesystem name shown in the mount table")
	flags.BoolVar(&f.cfg.AllowOther, "allow-other", f.cfg.AllowOther, "Allow other users to access the mount")
	flags.DurationVar(&f.cfg.AttrTTL, "attr-ttl", f.cfg.AttrTTL, "How long the kernel may cache attributes")
	flags.StringVar(&f.cfg.ProcPath, "proc", f.cfg.ProcPath, "Mount point of procfs, used to check process liveness")
	flags.StringVar(&f.cfg.MetricsAddr, "metrics-addr", f.cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	flags.BoolVarP(&f.cfg.Debug, "debug", "d", f.cfg.Debug, "Log every FUSE request")

	return cmd
}

// resolveConfig layers the config file, explicitly set flags and the
// positional mountpoint, in that order, and validates the result.
func resolveConfig(cmd *cobra.Command, args []string, f *mountFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("fsname") {
		cfg.FSName = f.cfg.FSName
	}
	if flags.Changed("allow-other") {
		cfg.AllowOther = f.cfg.AllowOther
	}
	if flags.Changed("attr-ttl") {
		cfg.AttrTTL = f.cfg.AttrTTL
	}
	if flags.Changed("proc") {
		cfg.ProcPath = f.cfg.ProcPath
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = f.cfg.MetricsAddr
	}
	if flags.Changed("debug") {
		cfg.Debug = f.cfg.Debug
	}
	if len(args) == 1 {
		cfg.Mountpoint = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMount(cfg *config.Config) {
	fmt.Printf("circlefs %s starting...\n", version.GetFullVersion())

	metrics := circlefs.NewMetrics()
	svc := circlefs.NewService(circlefs.Options{
		Liveness: circlefs.NewLiveness(cfg.ProcPath),
		Metrics:  metrics,
	})
	filesystem := circlefs.NewFS(svc, cfg.AttrTTL, cfg.Debug)

	options := []fuse.MountOption{
		fuse.FSName(cfg.FSName),
		fuse.Subtype("circlefs"),
	}
	if cfg.AllowOther {
		options = append(options, fuse.AllowOther())
	}

	c, err := fuse.Mount(cfg.Mountpoint, options...)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metrics)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go unmountOnSignal(sigChan, cfg.Mountpoint, fuse.Unmount)

	serverConfig := &fs.Config{}
	if cfg.Debug {
		serverConfig.Debug = func(msg interface{}) { log.Print(msg) }
	}

	log.Printf("circlefs %s mounted at %s", version.GetVersion(), cfg.Mountpoint)
	if err := fs.New(c, serverConfig).Serve(filesystem); err != nil {
		log.Fatal(err)
	}
	log.Println("Shutdown complete")
}

// unmountOnSignal unmounts mountpoint on the first signal it can act on. A
// failed unmount, EBUSY while a shell sits in the mount for example, leaves it
// waiting for the next signal.
func unmountOnSignal(sigs <-chan os.Signal, mountpoint string, unmount func(string) error) {
	for sig := range sigs {
		log.Printf("Received %v, unmounting %s...", sig, mountpoint)
		if err := unmount(mountpoint); err != nil {
			log.Printf("Unmount failed: %v", err)
			continue
		}
		return
	}
}

func serveMetrics(addr string, metrics *circlefs.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("Serving metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server stopped: %v", err)
	}
}
