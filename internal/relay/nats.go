package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/store"
)

// NATS relays messages over a core NATS subject.
type NATS struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
	log     *zerolog.Logger
}

// DialNATS connects to the NATS server at url.
func DialNATS(url, subject string, logger *zerolog.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("practicechat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("nats error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATS{conn: nc, subject: subject, log: logger}, nil
}

// Broadcast publishes the message to every subscribed process.
func (n *NATS) Broadcast(_ context.Context, conversationID int64, msg *store.Message) error {
	data, err := Encode(conversationID, msg)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe delivers every envelope on the subject to d.
func (n *NATS) Subscribe(_ context.Context, d Deliverer) error {
	if n.sub != nil {
		return errors.New("nats relay already subscribed")
	}
	sub, err := n.conn.Subscribe(n.subject, func(m *nats.Msg) {
		deliver(n.log, d, m.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}
	n.sub = sub
	n.log.Info().Str("subject", n.subject).Msg("nats relay subscribed")
	return nil
}

// Close drains the subscription and the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
