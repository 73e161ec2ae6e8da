package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/auth"
	"github.com/vovakirdan/practicechat/internal/core"
	"github.com/vovakirdan/practicechat/internal/messaging"
	"github.com/vovakirdan/practicechat/internal/metrics"
	"github.com/vovakirdan/practicechat/internal/proto"
)

const maxInboundFrameBytes = 4096

var errHubClosed = errors.New("hub closed")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub          *core.Hub
	auth         *auth.Service
	framesPerSec float64
	frameBurst   int
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, framesPerSec float64, frameBurst int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:          hub,
		auth:         authService,
		framesPerSec: framesPerSec,
		frameBurst:   frameBurst,
		log:          logger,
	}
}

// ServeHTTP authenticates the handshake the same way AuthMiddleware does and
// serves the connection until either side closes it.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.log.Debug().Msg("ws handshake without authorization")
		writePlainError(w, stdhttp.StatusUnauthorized, "missing authorization")
		return
	}
	id, err := h.auth.CurrentUser(r.Context(), token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake with invalid token")
		writePlainError(w, stdhttp.StatusUnauthorized, "invalid token")
		return
	}
	if !scopeMatches(r.URL.Query(), id) {
		writePlainError(w, stdhttp.StatusUnauthorized, "session does not match request")
		return
	}

	h.serve(w, r, id)
}

func (h *WSHandler) serve(w stdhttp.ResponseWriter, r *stdhttp.Request, id messaging.Identity) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(maxInboundFrameBytes)

	client := core.NewClient(id.UserID, id.PracticeID)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	client.MarkClosing()
	// Close must precede cancel or the pending Read closes with 1008.
	status, reason := h.closeStatus(client, err)
	conn.Close(status, reason)
	cancel() // stop the other goroutine
	<-errCh
}

func (h *WSHandler) closeStatus(client *core.Client, err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, errHubClosed):
		return websocket.StatusGoingAway, "server shutting down"
	}
	if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
		return websocket.StatusNormalClosure, "closing"
	}
	h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newFrameLimiter(h.framesPerSec, h.frameBurst)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				h.log.Debug().Err(err).Str("client_id", client.ID).Msg("read ws inbound")
			}
			return err
		}

		if !limiter.allow() {
			metrics.WSFramesDropped.WithLabelValues("inbound", "rate_limited").Inc()
			h.log.Warn().Str("client_id", client.ID).Msg("dropping rate limited frame")
			continue
		}

		join, err := proto.DecodeInbound(data)
		if err != nil {
			label := "invalid"
			if errors.Is(err, proto.ErrUnknownFrame) {
				label = "unknown_type"
			}
			metrics.WSFramesDropped.WithLabelValues("inbound", label).Inc()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("dropping inbound frame")
			continue
		}

		if err := h.hub.Join(client, join.ConversationID); err != nil {
			// The hub released this client; the writer reports the shutdown.
			return errHubClosed
		}
		h.log.Debug().
			Str("client_id", client.ID).
			Int64("conversation_id", join.ConversationID).
			Msg("client joined conversation")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case frame := <-client.Events:
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws frame")
				return err
			}
		case <-client.Done():
			return errHubClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
