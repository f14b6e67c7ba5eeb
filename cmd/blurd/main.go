package main

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

	"realtime"
	"realtime/config"
	"realtime/metrics"
	"realtime/mq"
	"realtime/store"
	"realtime/trigger"
	"realtime/view"

	"github.com/disintegration/imaging"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var (
	cfgFile string
	v       = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "blurd",
	Short: "Serve a real-time blurred rendering of an image",
	Long: `blurd keeps a blurred rendering of a source image up to date while its
blur parameters change. Changes arrive over gRPC, etcd or kafka; only the
latest one is guaranteed to be rendered.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
		}
		c, err := config.Load(v)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, c)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "YAML config file.")
	if err := config.BindFlags(rootCmd.Flags(), v); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, c config.Config) error {
	logger, err := newLogger(c.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, err := imaging.Open(c.Source)
	if err != nil {
		return fmt.Errorf("open source image: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	executor := realtime.New(logger.Named("executor"),
		realtime.WithConfig(c.PoolConfig()),
		realtime.WithMetrics(m))

	bv := view.New(executor, logger.Named("view"),
		view.WithBlurRadius(c.View.Radius),
		view.WithCompressScale(c.View.CompressScale),
		view.WithSmartUpdate(c.View.SmartUpdate),
		view.WithBlurInCaller(c.View.BlurInCaller))

	sinks, err := newSinks(c, logger.Named("sink"))
	if err != nil {
		return err
	}
	defer sinks.close()
	bv.OnRender(sinks.publish)
	bv.SetSource(src)

	handle := trigger.Handler(bv)
	triggers := &triggers{logger: logger.Named("trigger")}
	if err := triggers.start(ctx, c, handle); err != nil {
		triggers.stop()
		return err
	}

	var metricsServer *http.Server
	if c.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		metricsServer = &http.Server{Addr: c.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("[Blurd] metrics server", zap.Error(err))
			}
		}()
	}

	logger.Info(fmt.Sprintf("[Blurd] serving %s, grpc[%s] metrics[%s]", c.Source, c.GRPC.Address, c.Metrics.Address))
	<-ctx.Done()
	logger.Info("[Blurd] shutting down")

	triggers.stop()
	bv.Detach()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("[Blurd] metrics server shutdown", zap.Error(err))
		}
	}
	if err := executor.AwaitTermination(shutdownCtx); err != nil {
		logger.Warn("[Blurd] executor did not terminate", zap.Error(err))
	}
	return nil
}

// sinks receive every displayed result.
type sinks struct {
	logger   *zap.Logger
	redis    *redis.Client
	store    store.ResultStore
	producer mq.Producer
}

func newSinks(c config.Config, logger *zap.Logger) (*sinks, error) {
	s := &sinks{logger: logger}
	if c.Redis.Address != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Address,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		s.store = store.NewRedisStore(s.redis, c.Redis.Key, store.WithTTL(c.Redis.TTL))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.RenderTopic != "" {
		producer, err := mq.NewProducer(mq.Config{
			Brokers:  c.Kafka.Brokers,
			Topic:    c.Kafka.RenderTopic,
			Username: c.Kafka.Username,
			Password: c.Kafka.Password,
		}, logger)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("create render producer: %w", err)
		}
		s.producer = producer
	}
	return s, nil
}

func (s *sinks) publish(r view.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.store != nil {
		err := s.store.SaveLatest(ctx, store.Snapshot{
			Image:         r.Image,
			Radius:        r.Radius,
			CompressScale: r.CompressScale,
			Blurred:       r.Blurred,
			RenderedAt:    r.RenderedAt,
		})
		if err != nil {
			s.logger.Error("[Sink] save latest result", zap.Error(err))
		}
	}

	if s.producer != nil {
		size := r.Image.Bounds().Size()
		value, err := mq.NewRenderEvent(r.Radius, r.CompressScale, r.Blurred, size.X, size.Y, r.Elapsed, r.RenderedAt).Encode()
		if err != nil {
			s.logger.Error("[Sink] encode render event", zap.Error(err))
			return
		}
		if err := s.producer.Product(ctx, value); err != nil {
			s.logger.Error("[Sink] publish render event", zap.Error(err))
		}
	}
}

func (s *sinks) close() {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.Error("[Sink] close producer", zap.Error(err))
		}
	}
	if s.redis != nil {
		s.redis.Close()
	}
}

// triggers are the sources of blur parameter changes.
type triggers struct {
	logger *zap.Logger

	grpc   *grpc.Server
	etcd   *clientv3.Client
	cancel context.CancelFunc
	exit   chan struct{}
	done   chan struct{}
}

func (t *triggers) start(ctx context.Context, c config.Config, handle func(trigger.Params)) error {
	ctx, t.cancel = context.WithCancel(ctx)

	lis, err := net.Listen("tcp", c.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	t.grpc = grpc.NewServer()
	trigger.RegisterTriggerServer(t.grpc, trigger.NewTriggerServer(handle, t.logger))
	go func() {
		if err := t.grpc.Serve(lis); err != nil {
			t.logger.Error("[Trigger] grpc serve", zap.Error(err))
		}
	}()

	if len(c.Etcd.Endpoints) > 0 {
		t.etcd, err = clientv3.New(clientv3.Config{
			Endpoints:   c.Etcd.Endpoints,
			DialTimeout: c.Etcd.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		go func() {
			if err := trigger.WatchEtcd(ctx, t.etcd, c.Etcd.Key, t.logger, handle); err != nil {
				t.logger.Error("[Trigger] etcd watch", zap.Error(err))
			}
		}()
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.TriggerTopic != "" {
		consumer, err := mq.NewConsumer(mq.Config{
			Brokers:  c.Kafka.Brokers,
			Topic:    c.Kafka.TriggerTopic,
			GroupId:  c.Kafka.GroupID,
			Username: c.Kafka.Username,
			Password: c.Kafka.Password,
		}, t.logger)
		if err != nil {
			return fmt.Errorf("create trigger consumer: %w", err)
		}
		t.exit, t.done = make(chan struct{}), make(chan struct{})
		go func() {
			defer close(t.done)
			consumer.Consume(t.exit, func(value []byte) error {
				p, err := trigger.Decode(value)
				if err != nil {
					return err
				}
				handle(p)
				return nil
			})
		}()
	}
	return nil
}

func (t *triggers) stop() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.grpc != nil {
		t.grpc.GracefulStop()
	}
	if t.exit != nil {
		close(t.exit)
		<-t.done
	}
	if t.etcd != nil {
		t.etcd.Close()
	}
}
