// Package changefeed tells other instances over Redis pub/sub that the
// system of record moved, so they reconcile without waiting for the timer
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
)

// DefaultChannel carries change notices
const DefaultChannel = "governor:changes"

// Config holds Redis settings
type Config struct {
	Addresses   []string
	Password    string
	DB          int
	PoolSize    int
	ClusterMode bool
	Channel     string
}

// NewClient connects to Redis and pings it
func NewClient(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("redis: no addresses configured")
	}

	var rdb redis.UniversalClient
	if cfg.ClusterMode {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addresses,
			Password: cfg.Password,
			PoolSize: cfg.PoolSize,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Addresses[0],
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func channelOf(cfg Config) string {
	if cfg.Channel == "" {
		return DefaultChannel
	}
	return cfg.Channel
}

// Publisher implements port.ChangeNotifier
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

// NewPublisher creates a publisher on the configured channel
func NewPublisher(client redis.UniversalClient, cfg Config) *Publisher {
	return &Publisher{client: client, channel: channelOf(cfg)}
}

func (p *Publisher) Publish(ctx context.Context, notice port.ChangeNotice) error {
	payload, err := encode(notice)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// NoticeHandler receives notices from other instances
type NoticeHandler func(ctx context.Context, notice port.ChangeNotice)

// Listener is a worker subscribed to the change channel. Notices carrying
// this instance's origin are dropped.
type Listener struct {
	client  redis.UniversalClient
	channel string
	origin  string
	handler NoticeHandler
	logger  *zap.Logger

	mu        sync.Mutex
	isRunning bool
	sub       *redis.PubSub
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewListener creates a listener for the configured channel
func NewListener(client redis.UniversalClient, cfg Config, origin string, handler NoticeHandler, logger *zap.Logger) *Listener {
	return &Listener{
		client:  client,
		channel: channelOf(cfg),
		origin:  origin,
		handler: handler,
		logger:  logger,
	}
}

func (l *Listener) Name() string {
	return "change-feed"
}

// Start subscribes and waits for the subscription to be confirmed
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isRunning {
		return fmt.Errorf("change feed already running")
	}

	sub := l.client.Subscribe(ctx, l.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.sub = sub
	l.cancel = cancel
	l.done = make(chan struct{})
	l.isRunning = true

	go l.loop(runCtx, sub.Channel(), l.done)

	l.logger.Info("Change feed subscribed",
		zap.String("channel", l.channel),
		zap.String("origin", l.origin))
	return nil
}

// Stop closes the subscription and waits for the loop to exit
func (l *Listener) Stop() error {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return nil
	}
	l.isRunning = false
	sub, cancel, done := l.sub, l.cancel, l.done
	l.mu.Unlock()

	cancel()
	err := sub.Close()
	<-done
	l.logger.Info("Change feed stopped")
	return err
}

func (l *Listener) loop(ctx context.Context, messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	notice, err := decode(payload)
	if err != nil {
		l.logger.Warn("Dropping malformed change notice", zap.Error(err))
		return
	}
	if notice.Origin == l.origin {
		return
	}
	l.logger.Debug("Change notice received",
		zap.String("source", notice.Source),
		zap.String("request_id", notice.RequestID),
		zap.String("origin", notice.Origin))
	l.handler(ctx, notice)
}

func encode(notice port.ChangeNotice) ([]byte, error) {
	payload, err := json.Marshal(notice)
	if err != nil {
		return nil, fmt.Errorf("encode change notice: %w", err)
	}
	return payload, nil
}

func decode(payload string) (port.ChangeNotice, error) {
	var notice port.ChangeNotice
	if err := json.Unmarshal([]byte(payload), &notice); err != nil {
		return notice, err
	}
	if notice.Source == "" {
		return notice, fmt.Errorf("change notice without source")
	}
	return notice, nil
}
