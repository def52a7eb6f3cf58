package reporting

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/runner"
)

// Sinks are the persist and publish sinks built from a configuration. A
// sink is nil when the corresponding feature is disabled.
type Sinks struct {
	Persist runner.Sink
	Publish runner.Sink

	closers []func() error
}

// NewSinks builds the sinks enabled in cfg. A redis publisher must reach its
// server before NewSinks returns.
func NewSinks(ctx context.Context, cfg *config.Config, logger log.Logger) (*Sinks, error) {
	s := &Sinks{}
	if cfg.Disabled {
		return s, nil
	}
	if cfg.Save {
		s.Persist = NewFileStore(cfg.WorkspaceDir, cfg.CompressPayload, logger)
	}
	if !cfg.Publish {
		return s, nil
	}

	switch cfg.PublishTransport {
	case config.TransportHTTP:
		s.Publish = NewConnector(cfg.ServerURL, cfg.ServerAPIKey, cfg.Timeout(), logger)
	case config.TransportRedis:
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := CheckRedisConnection(ctx, client); err != nil {
			_ = client.Close()
			return nil, err
		}
		pub := NewRedisPublisher(client, cfg.RedisKey, logger)
		s.Publish = pub
		s.closers = append(s.closers, pub.Close)
	default:
		return nil, fmt.Errorf("unsupported publish transport: %s", cfg.PublishTransport)
	}
	return s, nil
}

// Close releases any connection held by the sinks
func (s *Sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	s.closers = nil
	return errors.Join(errs...)
}
