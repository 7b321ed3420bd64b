package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/avatar-tour/internal/avatar"
	"github.com/ent0n29/avatar-tour/internal/protocol"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleSessionEvents streams status changes and the demo hand-off to the host
// and accepts start/stop/ping controls. Closing the socket counts as the host
// going away and stops the controller.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	controller, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected", s.sessions.ActiveCount())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	notices, unsubscribe := controller.Subscribe(32)
	defer unsubscribe()

	outbound := make(chan any, 64)
	outbound <- statusMessage(sessionID, controller.Status())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notices:
				if !ok {
					return
				}
				msg = noticeMessage(sessionID, n)
			case m := <-outbound:
				msg = m
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		_ = s.sessions.Touch(sessionID)

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}

		control, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		if control.SessionID != sessionID {
			s.enqueue(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "session_mismatch",
				Detail:    "client_control session_id does not match this stream",
			})
			continue
		}
		switch control.Action {
		case protocol.ActionStart:
			if controller.Start() {
				s.metrics.ObserveSessionEvent("started", s.sessions.ActiveCount())
			}
		case protocol.ActionStop:
			stopCtx, stopCancel := stopContext(ctx, control.GraceMS)
			controller.Stop(stopCtx)
			stopCancel()
			s.metrics.ObserveSessionEvent("stopped", s.sessions.ActiveCount())
		case protocol.ActionPing:
			s.enqueue(outbound, protocol.Pong{Type: protocol.TypePong, SessionID: sessionID})
		}
	}

	cancel()
	<-writerDone

	stopCtx, stopCancel := stopContext(context.Background(), 0)
	controller.Stop(stopCtx)
	stopCancel()
	log.Printf("httpapi: session %s events stream closed", sessionID)
	s.metrics.ObserveSessionEvent("ws_disconnected", s.sessions.ActiveCount())
}

func (s *Server) enqueue(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		// Writes stay single-threaded; drop when the writer is saturated.
		if t, ok := messageTypeOf(msg); ok {
			s.metrics.ObserveWSMessage("dropped", string(t))
		}
	}
}

func noticeMessage(sessionID string, n avatar.Notice) any {
	if n.Kind == avatar.NoticeNavigateToDemo {
		return protocol.NavigateToDemo{Type: protocol.TypeNavigateToDemo, SessionID: sessionID}
	}
	return statusMessage(sessionID, n.Status)
}

func statusMessage(sessionID string, st avatar.Status) protocol.StatusChanged {
	return protocol.StatusChanged{
		Type:          protocol.TypeStatusChanged,
		SessionID:     sessionID,
		State:         string(st.State),
		Display:       st.Display(),
		Label:         st.Label,
		Error:         st.Error,
		ErrorKind:     string(st.ErrorKind),
		Retryable:     st.Retryable,
		DemoRequested: st.DemoRequested,
		TSMs:          st.UpdatedAt.UnixMilli(),
	}
}
