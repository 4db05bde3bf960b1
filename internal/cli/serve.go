package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/airblackbox/runtime-aibom-emitter/internal/api"
	"github.com/airblackbox/runtime-aibom-emitter/internal/config"
	"github.com/airblackbox/runtime-aibom-emitter/internal/episode"
	"github.com/airblackbox/runtime-aibom-emitter/internal/kafkaconn"
	"github.com/airblackbox/runtime-aibom-emitter/internal/ledger"
	"github.com/airblackbox/runtime-aibom-emitter/internal/notify"
	"github.com/airblackbox/runtime-aibom-emitter/internal/observer"
	"github.com/airblackbox/runtime-aibom-emitter/internal/otel"
	"github.com/airblackbox/runtime-aibom-emitter/internal/publisher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the emitter HTTP service",
	RunE:  runServe,
}

var serveSignalNotify = signal.NotifyContext

func init() {
	rootCmd.AddCommand(serveCmd)
}

// emitterRuntime is the set of long-lived components behind one service.
type emitterRuntime struct {
	observer  *observer.Observer
	publisher *publisher.Publisher
	ledger    *ledger.Ledger
	server    *api.Server
	closers   []io.Closer
}

func newEmitterRuntime(cfg *config.Config) (*emitterRuntime, error) {
	rt := &emitterRuntime{}

	var source episode.Source
	switch cfg.Source.Kind {
	case config.SourceHTTP:
		source = episode.NewHTTPSource(cfg.Source.URL, cfg.Source.FetchTimeout())
	default:
		source = episode.NewSimulatedSource(cfg.Source.SimulatedEpisodes)
	}

	var sink publisher.Sink
	switch cfg.Sink.Kind {
	case config.SinkHTTP:
		sink = publisher.NewHTTPSink(cfg.Sink.APIURL)
	case config.SinkKafka:
		ks, err := publisher.NewKafkaSink(kafkaSettings(cfg.Kafka), cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, ks)
		sink = ks
	default:
		sink = publisher.LogSink{}
	}

	pubOpts := publisher.Options{Timeout: cfg.Sink.Timeout()}
	apiOpts := api.Options{Version: version}

	if path := strings.TrimSpace(cfg.Ledger.DBPath); path != "" {
		l, err := ledger.Open(path)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.ledger = l
		rt.closers = append(rt.closers, l)
		pubOpts.Recorder = l
		apiOpts.Ledger = l
	}

	if cfg.Slack.Enabled() {
		n, err := notify.NewSlackNotifier(notify.SlackConfig{
			BotToken: cfg.Slack.BotToken,
			Channel:  cfg.Slack.Channel,
			APIBase:  cfg.Slack.APIBase,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		pubOpts.Notifier = n
	}

	rt.observer = observer.New(source, observer.Config{MaxTrackedEpisodes: cfg.Observer.MaxTrackedEpisodes})
	rt.publisher = publisher.New(sink, pubOpts)
	rt.server = api.New(rt.observer, rt.publisher, apiOpts)

	slog.Info("Emitter: runtime ready",
		"source", cfg.Source.Kind,
		"sink", cfg.Sink.Kind,
		"ledger", rt.ledger != nil,
		"slack", cfg.Slack.Enabled())
	return rt, nil
}

// finalExport writes the shutdown snapshot when a path is configured.
func (rt *emitterRuntime) finalExport(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	n, err := rt.publisher.ExportSnapshot(path)
	if err != nil {
		return fmt.Errorf("final export: %w", err)
	}
	if rt.ledger != nil {
		if err := rt.ledger.RecordExport(path, n); err != nil {
			slog.Warn("Emitter: ledger export record failed", "error", err)
		}
	}
	slog.Info("Emitter: final snapshot written", "path", path, "count", n)
	return nil
}

// Close releases sinks and the ledger in reverse order of creation.
func (rt *emitterRuntime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func kafkaSettings(k config.KafkaConfig) kafkaconn.Settings {
	return kafkaconn.Settings{
		Brokers:          kafkaconn.SplitBrokers(k.Brokers),
		SecurityProtocol: k.SecurityProtocol,
		SASLMechanism:    k.SASLMechanism,
		Username:         k.Username,
		Password:         k.Password,
		CAFile:           k.CAFile,
		CertFile:         k.CertFile,
		KeyFile:          k.KeyFile,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(newLogHandler(cmd.ErrOrStderr(), cfg.Log)))

	ctx, stop := serveSignalNotify(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, otel.Options{
		ServiceName: cfg.Otel.ServiceName,
		Version:     version,
		Endpoint:    cfg.Otel.Endpoint,
		SampleRatio: cfg.Otel.SampleRatio,
	})
	if err != nil {
		slog.Warn("Emitter: tracing disabled", "error", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("Emitter: tracing shutdown", "error", err)
		}
	}()

	rt, err := newEmitterRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	printHeader(cmd.OutOrStdout(), "🛰️ Runtime AIBOM Emitter")
	fmt.Fprintf(cmd.OutOrStdout(), "API: http://%s/v1\n", addr)

	runErr := rt.server.Run(ctx, addr)
	if err := rt.finalExport(cfg.Export.OnShutdown); err != nil {
		slog.Error("Emitter: shutdown export failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func newLogHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
