package mq

import (
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"
)

var ErrNoBrokers = errors.New("mq: no brokers configured")

type infoLogger struct {
	internal *zap.Logger
}

func (l infoLogger) Printf(format string, v ...interface{}) {
	l.internal.Info(fmt.Sprintf(format, v...))
}

type errorLogger struct {
	internal *zap.Logger
}

func (l errorLogger) Printf(format string, v ...interface{}) {
	l.internal.Error(fmt.Sprintf(format, v...))
}

type Config struct {
	Brokers  []string
	Topic    string
	GroupId  string
	Username string
	Password string
}

// dialer authenticate with SCRAM-SHA256 when credentials are set.
func (cfg Config) dialer() (*kafka.Dialer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	dialer := &kafka.Dialer{
		DualStack: true,
	}

	if cfg.Username != "" && cfg.Password != "" {
		mechanism, err := scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
		if err != nil {
			return nil, err
		}

		dialer.SASLMechanism = mechanism
	}
	return dialer, nil
}
