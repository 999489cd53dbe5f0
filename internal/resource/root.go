package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/zkapauthz/internal/controller"
	"github.com/roach88/zkapauthz/internal/nodeconfig"
	"github.com/roach88/zkapauthz/internal/store"
)

// Plugin settings read from nodeconfig.PluginSection.
const (
	ConfigRedeemer   = "redeemer"
	ConfigRetryDelay = "redeem-retry-delay"

	DefaultRedeemer = "dummy"
)

// Root is the assembled client side of the plugin.
type Root struct {
	// Handler serves the resource tree.
	Handler http.Handler
	// Store is the ledger the tree reads and writes.
	Store *store.Store
	// Controller redeems submitted vouchers. The caller runs it.
	Controller *controller.PaymentController
}

// Close releases the ledger.
func (r *Root) Close() error {
	return r.Store.Close()
}

type rootOptions struct {
	store     *store.Store
	connector store.Connector
	redeemer  controller.Redeemer
	logger    *slog.Logger
	registry  prometheus.Registerer
}

// Option configures FromConfiguration.
type Option func(*rootOptions)

// WithStore uses s instead of opening the node's ledger.
func WithStore(s *store.Store) Option {
	return func(o *rootOptions) { o.store = s }
}

// WithConnector opens the node's ledger through c.
func WithConnector(c store.Connector) Option {
	return func(o *rootOptions) { o.connector = c }
}

// WithRedeemer overrides the redeemer named in the configuration.
func WithRedeemer(r controller.Redeemer) Option {
	return func(o *rootOptions) { o.redeemer = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *rootOptions) { o.logger = l }
}

// WithRegistry registers controller metrics with reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *rootOptions) { o.registry = reg }
}

// FromConfiguration assembles the plugin's resource tree for the node
// described by cfg:
//
//	storageclient.plugins.privatestorageio-zkapauthz-v1:
//	  redeemer: dummy            # or "non"
//	  redeem-retry-delay: 5s
//
// Errors opening the ledger are returned unchanged, so callers can tell a
// *store.StoreOpenError from a *store.SchemaError and refuse to serve.
func FromConfiguration(ctx context.Context, cfg nodeconfig.Config, opts ...Option) (*Root, error) {
	o := rootOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	redeemer := o.redeemer
	if redeemer == nil {
		r, err := controller.RedeemerByName(cfg.Get(nodeconfig.PluginSection, ConfigRedeemer, DefaultRedeemer))
		if err != nil {
			return nil, fmt.Errorf("configure redeemer: %w", err)
		}
		redeemer = r
	}

	retryDelay := controller.DefaultRetryDelay
	if raw := cfg.Get(nodeconfig.PluginSection, ConfigRetryDelay, ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("configure %s: %w", ConfigRetryDelay, err)
		}
		retryDelay = d
	}

	s := o.store
	if s == nil {
		opened, err := store.FromNodeConfig(ctx, cfg, o.connector)
		if err != nil {
			return nil, err
		}
		s = opened
	}

	controllerOpts := []controller.Option{
		controller.WithLogger(o.logger),
		controller.WithRetryDelay(retryDelay),
	}
	if o.registry != nil {
		controllerOpts = append(controllerOpts, controller.WithMetrics(controller.NewMetrics(o.registry)))
	}
	pc := controller.New(s, redeemer, controllerOpts...)

	return &Root{
		Handler:    NewRouter(New(s, pc, o.logger), o.logger),
		Store:      s,
		Controller: pc,
	}, nil
}

// NewRouter mounts h on a router with the standard middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(Logger(logger))
	h.Register(r)
	return r
}
