package pubsub

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/23skdu/field/internal/core"
)

// Subscriber receives notifications from a daemon's websocket endpoint and
// reconnects after failures.
type Subscriber struct {
	url       string
	dialer    *websocket.Dialer
	logger    zerolog.Logger
	reconnect time.Duration
}

func NewSubscriber(url string, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		url:       url,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
		reconnect: 2 * time.Second,
	}
}

// WithReconnectDelay sets the pause between connection attempts.
func (s *Subscriber) WithReconnectDelay(d time.Duration) *Subscriber {
	s.reconnect = d
	return s
}

// Run delivers notifications to fn until ctx is done. onConnect, when set,
// runs after every successful (re)connect.
func (s *Subscriber) Run(ctx context.Context, fn func(core.Notification), onConnect func()) error {
	for {
		err := s.session(ctx, fn, onConnect)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Str("url", s.url).Dur("retry_in", s.reconnect).Msg("Notification stream lost")

		t := time.NewTimer(s.reconnect)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Subscriber) session(ctx context.Context, fn func(core.Notification), onConnect func()) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if onConnect != nil {
		onConnect()
	}
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		n, err := Decode(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed notification")
			continue
		}
		fn(n)
	}
}
