package kafka

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/stackfolio/stackfolio/pkg/common/logger"
)

// ConnectWithRetry establishes a Kafka connection with exponential backoff,
// retrying for up to 5 minutes starting at 5 second intervals. This covers
// brokers that come up after the service during a cold start.
func ConnectWithRetry(cfg *Config, log *logger.Logger) (*Broker, error) {
	var broker *Broker

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		var err error
		broker, err = NewBroker(cfg, log)
		return err
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return broker, nil
}
