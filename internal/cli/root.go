// Package cli implements the rxflow command: one subcommand per pipeline
// scenario, all sharing configuration, logging, metrics and one event loop.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/vnykmshr/rxflow/internal/api"
	"github.com/vnykmshr/rxflow/internal/config"
	"github.com/vnykmshr/rxflow/internal/logging"
	"github.com/vnykmshr/rxflow/pkg/metrics"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/httpsource"
	"github.com/vnykmshr/rxflow/pkg/streaming/lifecycle"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder
	loop     *scheduler.Loop
	out      io.Writer

	metricsSrv  *http.Server
	metricsDone chan struct{}
}

// NewRootCommand builds the rxflow command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	var cfgFile string

	root := &cobra.Command{
		Use:   "rxflow",
		Short: "Reactive pipeline scenarios over a JSON API",
		Long: `rxflow runs small reactive pipelines against a JSON API with users,
posts and products resources: fallbacks, retries with backoff, debounced
search, cancellable counters, cron tickers and Redis pub/sub.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.NewViper(cfgFile)
			if err != nil {
				return err
			}
			for key, flag := range map[string]string{
				"api.base_url":   "api-url",
				"logging.level":  "log-level",
				"logging.format": "log-format",
				"metrics.addr":   "metrics-addr",
			} {
				if err := loaded.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("metrics-addr") {
				loaded.Set("metrics.enabled", true)
			}
			return a.init(cmd, loaded)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/rxflow/config.yaml)")
	flags.String("api-url", "", "base URL of the JSON API")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		newNumbersCommand(a),
		newUsersCommand(a),
		newProductsCommand(a),
		newSearchCommand(a),
		newUserPostsCommand(a),
		newCounterCommand(a),
		newCronCommand(a),
		newWatchCommand(a),
		newPublishCommand(a),
	)
	return root
}

// Execute runs the rxflow command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) init(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()

	a.logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.recorder = metrics.Nop{}
	var recorders metrics.Multi
	if cfg.Metrics.OTel {
		rec, err := metrics.NewOTel(otel.Meter("github.com/vnykmshr/rxflow"))
		if err != nil {
			return fmt.Errorf("create otel instruments: %w", err)
		}
		recorders = append(recorders, rec)
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorders = append(recorders, metrics.NewRegistryWithConfig(metrics.Config{
			Enabled:   true,
			Registry:  reg,
			Namespace: cfg.Metrics.Namespace,
		}))
		if err := a.serveMetrics(reg); err != nil {
			return err
		}
	}
	switch len(recorders) {
	case 0:
	case 1:
		a.recorder = recorders[0]
	default:
		a.recorder = recorders
	}

	a.loop = scheduler.NewLoopWithConfig(scheduler.Config{
		Name:     "rxflow",
		Logger:   a.logger,
		Recorder: a.recorder,
	})
	return nil
}

// serveMetrics binds the metrics address and serves reg on it until close.
func (a *app) serveMetrics(reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen on metrics address: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	a.metricsSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.metricsDone = make(chan struct{})
	a.logger.Info("metrics server starting", "addr", ln.Addr().String())

	srv, logger, done := a.metricsSrv, a.logger, a.metricsDone
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return nil
}

// runE wraps a subcommand so that everything init started is released on
// every exit path.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		return errors.Join(err, a.close())
	}
}

func (a *app) close() error {
	var errs []error
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metricsSrv.Shutdown(ctx))
		<-a.metricsDone
	}
	if a.loop != nil {
		<-a.loop.Shutdown()
	}
	return errors.Join(errs...)
}

func (a *app) client() (*httpsource.Client, error) {
	return httpsource.NewClient(a.cfg.API.BaseURL,
		httpsource.WithScheduler(a.loop),
		httpsource.WithLogger(a.logger),
		httpsource.WithRecorder(a.recorder),
		httpsource.WithTimeout(a.cfg.API.Timeout))
}

func (a *app) service() (*api.Service, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	return api.NewService(client,
		api.WithSettings(api.Settings{
			UsersLimit:     a.cfg.API.UsersLimit,
			SearchDebounce: a.cfg.Search.Debounce,
			RetryAttempts:  a.cfg.Retry.MaxAttempts,
			RetryDelay:     a.cfg.Retry.Delay,
			RetryBackoff:   a.cfg.Retry.Strategy(),
		}),
		api.WithScheduler(a.loop),
		api.WithLogger(a.logger),
		api.WithRecorder(a.recorder)), nil
}

func (a *app) redis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
}

// run consumes src inside a lifecycle scope named after the command until
// it terminates or ctx is cancelled, passing every value to print. An
// interrupt is a normal way to stop a pipeline and is not reported.
func run[T any](ctx context.Context, a *app, name string, src observable.Observable[T], print func(io.Writer, T)) error {
	err := lifecycle.Run(ctx, name, func(ctx context.Context, scope *lifecycle.Scope) error {
		var streamErr error
		_, err := lifecycle.Start(scope, src, observable.Handlers[T]{
			Next:  func(v T) { print(a.out, v) },
			Error: func(err error) { streamErr = err },
		})
		if err != nil {
			return err
		}
		if err := scope.Wait(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return streamErr
	}, lifecycle.WithLogger(a.logger), lifecycle.WithRecorder(a.recorder))

	if errors.Is(err, context.Canceled) {
		a.logger.Info("interrupted", "pipeline", name)
		return nil
	}
	return err
}
