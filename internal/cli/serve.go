package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/zkapauthz/internal/nodeconfig"
	"github.com/roach88/zkapauthz/internal/resource"
)

// Serve settings.
const (
	ConfigListen  = "listen"
	DefaultListen = "127.0.0.1:3456"

	// PluginPath is where the resource tree is mounted.
	PluginPath = "/storage-plugins/privatestorageio-zkapauthz-v1"
	// MetricsPath serves the controller's Prometheus metrics.
	MetricsPath = "/metrics"

	shutdownTimeout = 10 * time.Second
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the voucher resource tree for a node",
		Long: `Open the node's ledger, resume redemption of any unredeemed vouchers and
serve the plugin's HTTP resources until interrupted.

The listen address comes from --listen, then the "listen" key of the plugin
section in the node configuration, then 127.0.0.1:3456.`,
		Example: `  zkapauthz serve --node-dir ~/.tahoe
  zkapauthz serve --node-dir ~/.tahoe --listen 127.0.0.1:0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address to listen on (overrides node configuration)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *ServeOptions) error {
	if err := requireNodeDir(opts.RootOptions); err != nil {
		return err
	}
	logger := configureLogging(opts.RootOptions)

	cfg, err := nodeconfig.Load(opts.NodeDir)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("[%s] failed to load node configuration", ErrCodeConfig), err)
	}

	registry := prometheus.NewRegistry()
	root, err := resource.FromConfiguration(ctx, cfg,
		resource.WithLogger(logger),
		resource.WithRegistry(registry),
	)
	if err != nil {
		return openStoreError(err)
	}
	defer root.Close()

	if _, err := root.Controller.Resume(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to resume redemption", err)
	}

	addr := opts.Listen
	if addr == "" {
		addr = cfg.Get(nodeconfig.PluginSection, ConfigListen, DefaultListen)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("[%s] failed to listen on %s", ErrCodeConfig, addr), err)
	}

	router := chi.NewRouter()
	router.Mount(PluginPath, root.Handler)
	router.Handle(MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	logger.Info("serving", "addr", ln.Addr().String(), "path", PluginPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := root.Controller.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		root.Controller.Stop()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server failed", err)
	}
	return nil
}
