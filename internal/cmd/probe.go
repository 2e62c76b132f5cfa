package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewProbeCmd creates and returns the probe subcommand for the circlefs CLI.
// It is a smoke test against a live mount: it binds sockets, checks that
// the filesystem reports them and that clients can connect through the
// registered paths.
func NewProbeCmd() *cobra.Command {
	var (
		userName  string
		count     int
		hold      time.Duration
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "probe MOUNTPOINT",
		Short: "Bind test sockets in a mounted circlefs",
		Long: `Bind test sockets under MOUNTPOINT/USER and verify that each one is listed,
stats as a socket and accepts connections.

USER defaults to the current user. Socket names are random UUIDs so probes
never collide with real services.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mountpoint := args[0]
			if !skipCheck {
				if err := checkMounted(mountpoint); err != nil {
					log.Fatal(err)
				}
			}
			if userName == "" {
				me, err := user.Current()
				if err != nil {
					log.Fatalf("Failed to determine current user: %v", err)
				}
				userName = me.Username
			}

			if err := runProbe(cmd.Context(), filepath.Join(mountpoint, userName), count, hold); err != nil {
				fmt.Printf("probe - FAILURE: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("probe - SUCCESS")
		},
	}

	cmd.Flags().StringVarP(&userName, "user", "u", "", "User directory to bind in (default: current user)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of sockets to bind concurrently")
	cmd.Flags().DurationVar(&hold, "hold", 0, "Keep the sockets bound this long before closing them")
	cmd.Flags().BoolVar(&skipCheck, "skip-mount-check", false, "Do not verify that MOUNTPOINT is a circlefs mount")

	return cmd
}

// runProbe binds count sockets in dir, verifies them and closes them again.
func runProbe(ctx context.Context, dir string, count int, hold time.Duration) error {
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	var (
		mu        sync.Mutex
		listeners = make(map[string]net.Listener, count)
	)
	defer func() {
		for _, l := range listeners {
			l.Close()
		}
	}()

	var g errgroup.Group
	for i := 0; i < count; i++ {
		name := "probe-" + uuid.New().String()
		g.Go(func() error {
			l, err := bindSocket(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			mu.Lock()
			listeners[name] = l
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	listed := make(map[string]bool, len(entries))
	for _, e := range entries {
		listed[e.Name()] = true
	}

	for name := range listeners {
		if !listed[name] {
			return fmt.Errorf("%s is bound but missing from the listing of %s", name, dir)
		}
	}

	dialGroup, dialCtx := errgroup.WithContext(ctx)
	for name, l := range listeners {
		dialGroup.Go(func() error {
			return roundTrip(dialCtx, l, filepath.Join(dir, name), name)
		})
	}
	if err := dialGroup.Wait(); err != nil {
		return err
	}

	if hold > 0 {
		log.Printf("Holding %d socket(s) in %s for %v", len(listeners), dir, hold)
		select {
		case <-time.After(hold):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// bindSocket listens on path and checks that it now stats as a socket.
func bindSocket(path string) (net.Listener, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", path, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		l.Close()
		return nil, fmt.Errorf("%s has mode %v, expected a socket", path, fi.Mode())
	}
	return l, nil
}

// roundTrip connects to path and expects the listener to send token back.
func roundTrip(ctx context.Context, l net.Listener, path, token string) error {
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.WriteString(c, token)
	}()

	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))

	buf, err := io.ReadAll(c)
	if err != nil {
		return fmt.Errorf("reading from %s: %w", path, err)
	}
	if string(buf) != token {
		return fmt.Errorf("%s answered %q, expected %q", path, buf, token)
	}
	return nil
}
