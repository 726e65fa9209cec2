package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnOptions addresses the Redis broker.
type ConnOptions struct {
	Host        string
	Port        int
	DB          int
	Password    string
	DialTimeout time.Duration
}

// DefaultConnOptions returns the conventional local endpoint.
func DefaultConnOptions() ConnOptions {
	return ConnOptions{Host: "localhost", Port: 6379, DialTimeout: 5 * time.Second}
}

// Addr returns host:port, filling in defaults.
func (o ConnOptions) Addr() string {
	host := o.Host
	if host == "" {
		host = "localhost"
	}
	port := o.Port
	if port == 0 {
		port = 6379
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (o ConnOptions) dialTimeout() time.Duration {
	if o.DialTimeout <= 0 {
		return 5 * time.Second
	}
	return o.DialTimeout
}

// connect opens a client and verifies the broker answers PING.
func connect(ctx context.Context, opts ConnOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr(),
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.dialTimeout(),
	})

	ctxPing, cancel := context.WithTimeout(ctx, opts.dialTimeout())
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w at %s: %w", ErrConnection, opts.Addr(), err)
	}
	return client, nil
}

// CheckBroker verifies that the broker accepts connections and that a
// pub/sub subscribe/unsubscribe round trip succeeds on channel.
func CheckBroker(ctx context.Context, opts ConnOptions, channel string) error {
	client, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	ps := client.Subscribe(ctx, channel)
	defer ps.Close()

	if _, err := ps.ReceiveTimeout(ctx, opts.dialTimeout()); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	if err := ps.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", channel, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
