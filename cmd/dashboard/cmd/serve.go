package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/httpapi"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/hub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var noDefaultSession bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions, views and the snapshot relay over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noDefaultSession, "no-default-session", false, "start with no mounted session")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	// Sessions outlive the signal so they can be closed after the listener.
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	h := hub.NewHub(hubCtx, cfg.Realtime.ClientConfig, logger)
	if !noDefaultSession {
		reply := make(chan hub.MountResult, 1)
		h.Inbox() <- hub.Mount{UserID: userID, Reply: reply}
		res := <-reply
		if res.Err != nil {
			return res.Err
		}
		logger.Info("default session mounted", zap.String("session", res.Session.ID))
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           httpapi.SetupRoutes(h, logger, nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		done := make(chan struct{})
		h.Inbox() <- hub.ShutdownHub{Done: done}
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("sessions did not close in time")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
