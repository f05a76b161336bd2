package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/pomotrack/internal/sessionapi"
	"github.com/fakeyudi/pomotrack/internal/store"
)

var (
	serveAddr  string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local session API that pomotrack can register with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base := cfg.DataDir
		if base == "" {
			var err error
			if base, err = store.DataDir(); err != nil {
				return err
			}
		}
		slot, err := store.OpenDiskSlot(filepath.Join(base, "server"))
		if err != nil {
			return err
		}
		repo, err := sessionapi.OpenRepository(slot)
		if err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		token := serveToken
		if token == "" && activeProfile != nil {
			token = activeProfile.APIToken
		}
		srv := &http.Server{
			Addr: addr,
			Handler: sessionapi.NewServer(sessionapi.Options{
				Repository: repo,
				Logger:     logger.With("component", "sessionapi"),
				Token:      token,
			}).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("session API listening", "addr", addr, "auth", token != "")
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config listen_addr)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "bearer token clients must send (default: profile API token)")
	rootCmd.AddCommand(serveCmd)
}
