package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caseflow-dev/caseflow/provider"
	"github.com/caseflow-dev/caseflow/provider/atlas"
	"github.com/caseflow-dev/caseflow/provider/common"
	"github.com/caseflow-dev/caseflow/provider/httpapi"
)

var (
	flagProvider string
	flagAddr     string
	flagDBPath   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve one capability provider over HTTP",
	Long: `Serve exposes a single provider's abilities as an HTTP service, so the
runtime can dispatch to it out of process via the provider's endpoint URL.`,
	RunE: serveProvider,
}

func init() {
	serveCmd.Flags().StringVarP(&flagProvider, "provider", "p", "", "provider to serve (COMMON or ATLAS)")
	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", ":8080", "listen address")
	serveCmd.Flags().StringVar(&flagDBPath, "db", "", "SQLite path for ATLAS (empty serves canned data)")
	_ = serveCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(serveCmd)
}

func serveProvider(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	var p provider.Provider
	switch flagProvider {
	case common.ProviderName:
		p = common.New()
	case atlas.ProviderName:
		if flagDBPath == "" {
			logger.Warn("serving ATLAS without a database; abilities answer with canned data")
			p = atlas.NewDetached()
		} else {
			a, err := atlas.New(flagDBPath)
			if err != nil {
				return err
			}
			defer a.Close()
			p = a
		}
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", flagProvider, common.ProviderName, atlas.ProviderName)
	}

	srv := &http.Server{
		Addr:              flagAddr,
		Handler:           httpapi.NewServer(p, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", flagAddr).Infof("serving provider %s", p.Name())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
