package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/client"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/engine"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/store"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/view"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errFeedClosed = errors.New("snapshot feed closed")

var watchMonitor bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and print the activity feed on every update",
	Long: `Connect to the realtime server and re-render on every state change.

Keys (followed by enter):
  r      reconnect now
  t      switch monitor tab
  x N    expand or collapse score change row N (monitor only)`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchMonitor, "monitor", false, "render the tabbed monitor instead of the activity feed")
}

type watchKey struct {
	op  byte
	row int
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	st := store.NewStore(ctx, logger)
	mgr, err := client.NewManager(cfg.Realtime.ClientConfig(userID), st, logger)
	if err != nil {
		return err
	}
	logger.Info("watching", zap.String("endpoint", mgr.Endpoint()))

	out := make(chan store.Snapshot, 64)
	st.Inbox() <- store.Join{ClientID: "terminal", Outbox: out}

	keys := make(chan watchKey, 8)
	go readKeys(os.Stdin, keys)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error {
		return renderLoop(gctx, cmd.OutOrStdout(), out, keys, mgr, view.NewMonitor(nil))
	})
	return g.Wait()
}

func renderLoop(ctx context.Context, w io.Writer, out <-chan store.Snapshot, keys <-chan watchKey, mgr *client.Manager, mon *view.Monitor) error {
	var last engine.State
	for {
		select {
		case <-ctx.Done():
			return nil

		case snap, ok := <-out:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errFeedClosed
			}
			last = snap.State

		case k := <-keys:
			switch k.op {
			case 'r':
				mgr.Reconnect()
				continue
			case 't':
				if mon.ActiveTab() == view.TabInteractions {
					mon.SelectTab(view.TabScoreChanges)
				} else {
					mon.SelectTab(view.TabInteractions)
				}
			case 'x':
				if k.row < 1 || k.row > len(last.ScoreChanges) {
					continue
				}
				mon.Toggle(view.RowKey(last.ScoreChanges[k.row-1]))
			}
		}

		if err := render(w, last, mon); err != nil {
			return err
		}
	}
}

func render(w io.Writer, s engine.State, mon *view.Monitor) error {
	if isStdoutTTY() {
		fmt.Fprint(w, "\033[H\033[2J")
	}
	if watchMonitor {
		return view.WriteMonitor(w, mon.Render(s))
	}
	return view.WriteActivity(w, view.Activity(s, nil))
}

func readKeys(r io.Reader, keys chan<- watchKey) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		k := watchKey{op: fields[0][0]}
		if len(fields) > 1 {
			k.row, _ = strconv.Atoi(fields[1])
		}
		keys <- k
	}
}

// isStdoutTTY returns true if stdout is connected to a terminal.
func isStdoutTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
