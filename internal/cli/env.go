package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultlink/vaultlink/internal/api"
	"github.com/vaultlink/vaultlink/internal/catalog"
	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/events"
	vhttp "github.com/vaultlink/vaultlink/internal/http"
	"github.com/vaultlink/vaultlink/internal/logging"
	"github.com/vaultlink/vaultlink/internal/metrics"
	"github.com/vaultlink/vaultlink/internal/notify"
	"github.com/vaultlink/vaultlink/internal/session"
)

// env is everything a command needs to talk to the service.
type env struct {
	cfg    *config.Config
	client *api.Client
	sess   *session.Session
	bus    *events.EventBus
	store  *catalog.Store
	center *notify.Center
	loc    *time.Location
	logger *logging.Logger
}

// loadConfig reads the config file, then applies environment variables and
// global flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if addressFlag != "" {
		cfg.Server.Address = strings.TrimRight(addressFlag, "/")
	}
	if usernameFlag != "" {
		cfg.Session.Username = usernameFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newEnv builds the client stack for op. The session is checked for op
// except for system parameters, which are fetched later by prepare.
func newEnv(cmd *cobra.Command, cfg *config.Config, op session.Operation) (*env, error) {
	log := GetLogger()

	sess, err := session.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if sess.Address() == "" || sess.Username() == "" {
		return nil, sess.Check(op)
	}

	if vhttp.NeedsProxyPassword(cfg.Proxy) {
		password, err := newPrompter(cmd).password(fmt.Sprintf("Proxy password for %s@%s: ", cfg.Proxy.User, cfg.Proxy.Host))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.Proxy.Password = password
	}

	client, err := api.NewClient(cfg, api.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	return &env{
		cfg:    cfg,
		client: client,
		sess:   sess,
		bus:    bus,
		store:  catalog.NewStore(catalog.WithLogger(log), catalog.WithEventBus(bus)),
		center: notify.NewCenter(notify.WithEventBus(bus), notify.WithLogger(log), notify.WithDesktop(cfg.Notify.Desktop)),
		loc:    loc,
		logger: log,
	}, nil
}

// catalogService returns a catalog service over the env's store.
func (e *env) catalogService() *catalog.Service {
	return catalog.NewService(e.store, e.client)
}

// refresh loads the user's listing into the store.
func (e *env) refresh(ctx context.Context) (*catalog.Snapshot, error) {
	snap, err := e.catalogService().Refresh(ctx, e.sess.Username())
	if err != nil {
		e.center.Error(err.Error())
		return nil, err
	}
	return snap, nil
}

// prepare fetches system parameters into the session and re-checks it for
// op, so that every missing parameter is reported at once.
func (e *env) prepare(ctx context.Context, op session.Operation) error {
	params, err := e.client.SystemParameters(ctx)
	if err != nil {
		e.center.Error("failed to fetch system parameters")
		return fmt.Errorf("failed to fetch system parameters: %w", err)
	}
	e.sess.SetSystemParams(params)
	return e.sess.Check(op)
}

// serveMetrics starts the metrics endpoint when --metrics-addr is set. It
// stops when ctx is done.
func (e *env) serveMetrics(ctx context.Context, src metrics.Sources) {
	if metricsAddr == "" {
		return
	}
	rec := metrics.New()
	rec.WatchDropped(e.bus)
	go rec.Follow(ctx, e.bus, src)
	go func() {
		if err := rec.Serve(ctx, metricsAddr, e.logger); err != nil {
			e.logger.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server stopped")
		}
	}()
}

func (e *env) close() {
	e.center.Close()
	e.bus.Close()
}
