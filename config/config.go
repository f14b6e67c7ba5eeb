package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"realtime/workerpool"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "BLURD"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// Source is the path of the image to blur.
	Source   string         `mapstructure:"source"`
	Executor ExecutorConfig `mapstructure:"executor"`
	View     ViewConfig     `mapstructure:"view"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
}

type ExecutorConfig struct {
	QueueSize int           `mapstructure:"queue-size"`
	CoreSize  int           `mapstructure:"core-size"`
	MaxSize   int           `mapstructure:"max-size"`
	KeepAlive time.Duration `mapstructure:"keep-alive"`
}

type ViewConfig struct {
	Radius        float64 `mapstructure:"radius"`
	CompressScale float64 `mapstructure:"compress-scale"`
	SmartUpdate   bool    `mapstructure:"smart-update"`
	BlurInCaller  bool    `mapstructure:"blur-in-caller"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Address of the /metrics endpoint, empty disables it.
	Address string `mapstructure:"address"`
}

type GRPCConfig struct {
	Address string `mapstructure:"address"`
}

type RedisConfig struct {
	// Address empty disables result persistence.
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	// TriggerTopic carries blur parameter changes, empty disables consuming.
	TriggerTopic string `mapstructure:"trigger-topic"`
	// RenderTopic receives render events, empty disables publishing.
	RenderTopic string `mapstructure:"render-topic"`
	GroupID     string `mapstructure:"group-id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type EtcdConfig struct {
	// Endpoints empty disables the etcd trigger.
	Endpoints   []string      `mapstructure:"endpoints"`
	Key         string        `mapstructure:"key"`
	DialTimeout time.Duration `mapstructure:"dial-timeout"`
}

// NewViper return a viper reading BLURD_ prefixed environment variables,
// e.g. BLURD_EXECUTOR_QUEUE_SIZE for executor.queue-size.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags define every configuration flag on flagSet and bind it to v.
func BindFlags(flagSet *pflag.FlagSet, v *viper.Viper) error {
	d := workerpool.DefaultConfig

	flagSet.String("source", "", "Path of the image to blur.")
	flagSet.Int("queue-size", d.QueueSize, "Max number of blur tasks waiting for a worker, the oldest is dropped when full.")
	flagSet.Int("core-size", d.CoreSize, "Number of workers kept alive.")
	flagSet.Int("max-size", d.MaxSize, "Max number of concurrent workers.")
	flagSet.Duration("keep-alive", d.KeepAlive, "Idle time after which workers above core-size exit.")
	flagSet.Float64("radius", 0, "Initial blur radius in [0, 25], 0 displays the source unchanged.")
	flagSet.Float64("compress-scale", 0.2, "Initial compress scale in [0, 1].")
	flagSet.Bool("smart-update", true, "Skip rendering when parameters did not change.")
	flagSet.Bool("blur-in-caller", false, "Render in the trigger goroutine instead of the executor.")
	flagSet.String("log-level", "info", "Log level: debug, info, warn, error.")
	flagSet.String("log-format", "json", "Log format: json or console.")
	flagSet.String("metrics-address", ":9090", "Address serving /metrics, empty disables it.")
	flagSet.String("grpc-address", ":9000", "Address of the gRPC trigger service.")
	flagSet.String("redis-address", "", "Redis address storing the latest result, empty disables it.")
	flagSet.String("redis-password", "", "Redis password.")
	flagSet.Int("redis-db", 0, "Redis database.")
	flagSet.String("redis-key", "blurd:latest", "Redis hash key of the latest result.")
	flagSet.Duration("redis-ttl", 24*time.Hour, "Expiry of the latest result.")
	flagSet.StringSlice("kafka-brokers", nil, "Kafka brokers, empty disables kafka.")
	flagSet.String("kafka-trigger-topic", "", "Topic of blur parameter changes.")
	flagSet.String("kafka-render-topic", "", "Topic receiving render events.")
	flagSet.String("kafka-group-id", "blurd", "Consumer group of the trigger topic.")
	flagSet.String("kafka-username", "", "SCRAM-SHA256 username.")
	flagSet.String("kafka-password", "", "SCRAM-SHA256 password.")
	flagSet.StringSlice("etcd-endpoints", nil, "Etcd endpoints, empty disables the etcd trigger.")
	flagSet.String("etcd-key", "/blurd/params", "Etcd key holding the blur parameters.")
	flagSet.Duration("etcd-dial-timeout", 5*time.Second, "Etcd dial timeout.")

	keys := map[string]string{
		"source":              "source",
		"queue-size":          "executor.queue-size",
		"core-size":           "executor.core-size",
		"max-size":            "executor.max-size",
		"keep-alive":          "executor.keep-alive",
		"radius":              "view.radius",
		"compress-scale":      "view.compress-scale",
		"smart-update":        "view.smart-update",
		"blur-in-caller":      "view.blur-in-caller",
		"log-level":           "logging.level",
		"log-format":          "logging.format",
		"metrics-address":     "metrics.address",
		"grpc-address":        "grpc.address",
		"redis-address":       "redis.address",
		"redis-password":      "redis.password",
		"redis-db":            "redis.db",
		"redis-key":           "redis.key",
		"redis-ttl":           "redis.ttl",
		"kafka-brokers":       "kafka.brokers",
		"kafka-trigger-topic": "kafka.trigger-topic",
		"kafka-render-topic":  "kafka.render-topic",
		"kafka-group-id":      "kafka.group-id",
		"kafka-username":      "kafka.username",
		"kafka-password":      "kafka.password",
		"etcd-endpoints":      "etcd.endpoints",
		"etcd-key":            "etcd.key",
		"etcd-dial-timeout":   "etcd.dial-timeout",
	}
	for name, key := range keys {
		if err := v.BindPFlag(key, flagSet.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// ReadFile merge the YAML file at path into v, flags and environment still
// take precedence.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error while reading the config file: %w", err)
	}
	return nil
}

// Load decode and validate the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("error while unmarshaling config: %w", err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}

	check(c.Source != "", "source is required")

	e := c.Executor
	check(e.QueueSize >= 1, "executor.queue-size must be at least 1, got %d", e.QueueSize)
	check(e.CoreSize >= 0, "executor.core-size must not be negative, got %d", e.CoreSize)
	check(e.MaxSize >= 1 && e.MaxSize >= e.CoreSize, "executor.max-size must be at least 1 and core-size, got %d", e.MaxSize)
	check(e.KeepAlive > 0, "executor.keep-alive must be positive, got %s", e.KeepAlive)

	check(c.View.Radius >= 0 && c.View.Radius <= 25, "view.radius must be in [0, 25], got %v", c.View.Radius)
	check(c.View.CompressScale >= 0 && c.View.CompressScale <= 1, "view.compress-scale must be in [0, 1], got %v", c.View.CompressScale)

	var level zapcore.Level
	check(level.UnmarshalText([]byte(c.Logging.Level)) == nil, "logging.level %q is unknown", c.Logging.Level)
	check(c.Logging.Format == "json" || c.Logging.Format == "console", "logging.format must be json or console, got %q", c.Logging.Format)

	check(c.GRPC.Address != "", "grpc.address is required")
	check(c.Redis.Address == "" || c.Redis.Key != "", "redis.key is required with redis.address")

	if len(c.Kafka.Brokers) > 0 {
		check(c.Kafka.TriggerTopic != "" || c.Kafka.RenderTopic != "", "kafka.brokers set without any topic")
		check(c.Kafka.TriggerTopic == "" || c.Kafka.GroupID != "", "kafka.group-id is required with kafka.trigger-topic")
	}
	check(len(c.Etcd.Endpoints) == 0 || c.Etcd.Key != "", "etcd.key is required with etcd.endpoints")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// PoolConfig return the executor section as a pool configuration.
func (c Config) PoolConfig() workerpool.Config {
	return workerpool.Config{
		QueueSize: c.Executor.QueueSize,
		CoreSize:  c.Executor.CoreSize,
		MaxSize:   c.Executor.MaxSize,
		KeepAlive: c.Executor.KeepAlive,
	}
}
