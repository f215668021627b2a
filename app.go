package sessionx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// AppOptions supplies the collaborators an App does not build from Config.
// Every field is optional.
type AppOptions struct {
	Notifier   Notifier
	Logger     *slog.Logger
	Titles     TitleSink
	Registerer prometheus.Registerer
	// Medium overrides the medium chosen by Config.Store.
	Medium Medium
	// Fs backs the file medium; nil means the OS filesystem.
	Fs        afero.Fs
	Transport http.RoundTripper
	Validator *TokenValidator
}

// App is a fully wired client: one session manager shared by the guard,
// the request pipeline and the failure coordinator.
type App struct {
	Config      Config
	Store       *CredentialStore
	Client      *Client
	Users       *UserAPI
	Auth        Authenticator
	Manager     *Manager
	Router      *Router
	Guard       *Guard
	Navigator   *Navigator
	Coordinator *Coordinator
	Metrics     *Metrics

	closers []io.Closer
}

// NewApp wires an App from cfg. The session is hydrated from storage before
// NewApp returns.
func NewApp(ctx context.Context, cfg Config, opts AppOptions) (*App, error) {
	if err := cfg.Apply(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	app := &App{Config: cfg}
	medium, err := app.openMedium(opts)
	if err != nil {
		return nil, err
	}
	app.Store = NewCredentialStore(medium, logger)

	if app.Metrics, err = NewMetrics(opts.Registerer); err != nil {
		app.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	app.Client, err = NewClient(cfg.BaseURL, app.Store,
		WithBaseTransport(opts.Transport),
		WithTimeout(cfg.HTTPTimeout),
		WithMetrics(app.Metrics),
		WithClientLogger(logger),
	)
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Dev {
		dev := DefaultDevAuthenticator()
		dev.Store = app.Store
		app.Auth = dev
	} else {
		app.Users = NewUserAPI(app.Client)
		app.Auth = app.Users
	}

	managerOpts := []ManagerOption{WithNotifier(notifier), WithLogger(logger)}
	if opts.Validator != nil {
		managerOpts = append(managerOpts, WithValidator(*opts.Validator))
	}
	app.Manager = NewManager(ctx, app.Store, app.Auth, managerOpts...)

	if app.Router, err = NewRouter(DefaultRoutes()); err != nil {
		app.Close()
		return nil, err
	}
	app.Guard = NewGuard(app.Manager,
		WithGuardNotifier(notifier),
		WithTitleSink(opts.Titles),
		WithAppTitle(cfg.AppTitle),
		WithGuardLogger(logger),
	)
	app.Navigator = NewNavigator(app.Router, app.Guard)
	app.Coordinator = NewCoordinator(app.Manager, app.Navigator, notifier, logger)
	app.Client.SetFailureHandler(app.Coordinator)
	return app, nil
}

func (a *App) openMedium(opts AppOptions) (Medium, error) {
	if opts.Medium != nil {
		return opts.Medium, nil
	}
	switch a.Config.Store {
	case StoreMemory:
		return NewMemoryMedium(), nil
	case StoreRedis:
		m, err := NewRedisMediumFromURL(a.Config.RedisURL, a.Config.RedisPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, m)
		return m, nil
	default:
		path := a.Config.CredentialsPath
		if path == "" {
			var err error
			if path, err = DefaultCredentialsPath(appName); err != nil {
				return nil, err
			}
		}
		if opts.Fs != nil {
			return NewFileMediumFs(opts.Fs, path), nil
		}
		return NewFileMedium(path), nil
	}
}

// Close releases the storage connection, if any.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
