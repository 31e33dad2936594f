package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/auth"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/proto"
)

const helloTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections and streams a user's notifications.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	claims, protoErr := h.handshake(ctx, conn)
	if protoErr != nil {
		_ = wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr})
		conn.Close(websocket.StatusPolicyViolation, protoErr.Code)
		return
	}

	client := core.NewClient(uuid.NewString(), claims.UserID, claims.Username)
	if !h.hub.RegisterClient(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.UnregisterClient(client)

	ready := proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventReady,
		Data: proto.EventReadyData{
			UserID:   claims.UserID,
			Username: claims.Username,
			Protocol: proto.ProtocolVersion,
		},
	}
	if err := wsjson.Write(ctx, conn, ready); err != nil {
		h.log.Warn().Err(err).Str("client_id", client.ID).Msg("write ready event")
		return
	}
	h.log.Debug().Str("client_id", client.ID).Int64("user_id", client.UserID).Msg("ws client ready")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake reads the hello frame and authenticates its token.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (*auth.Claims, *proto.Error) {
	ctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(ctx, conn, &inbound); err != nil {
		h.log.Debug().Err(err).Msg("read ws hello")
		return nil, &proto.Error{Code: proto.ErrCodeHelloRequired, Msg: "hello frame required"}
	}
	if inbound.Type != proto.InboundTypeHello {
		return nil, &proto.Error{Code: proto.ErrCodeHelloRequired, Msg: "first frame must be hello"}
	}

	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return nil, &proto.Error{Code: proto.ErrCodeInvalidMessage, Msg: "invalid hello payload"}
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return nil, &proto.Error{Code: proto.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}
	}

	claims, err := h.auth.ValidateToken(hello.Token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws hello rejected")
		return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}
	}
	return claims, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("read ws inbound")
			return err
		}

		var out proto.Outbound
		switch inbound.Type {
		case proto.InboundTypePing:
			out = proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventPong}
		default:
			out = proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: proto.ErrCodeInvalidMessage, Msg: "unknown message type"},
			}
		}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
