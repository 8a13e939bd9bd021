package host

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type streamInbound struct {
	Type   string            `json:"type"`
	Text   string            `json:"text,omitempty"`
	Value  string            `json:"value,omitempty"`
	Action string            `json:"action,omitempty"`
	Input  map[string]string `json:"input,omitempty"`
}

type streamOutbound struct {
	Type     string    `json:"type"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// handleStream pushes a snapshot on connect and after every change. Inbound
// messages drive the session like the REST endpoints do.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
		s.Logger.Warn("stream set read deadline failed", "session", sess.ID, "err", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	changes, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	writeCh := make(chan streamOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()

		write := func(out streamOutbound) bool {
			if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
				return false
			}
			return conn.WriteJSON(out) == nil
		}
		snapshot := func() bool {
			snap := sess.Snapshot()
			return write(streamOutbound{Type: "snapshot", Snapshot: &snap})
		}

		if !snapshot() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
					return
				}
				if !snapshot() {
					return
				}
			case out := <-writeCh:
				if !write(out) {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		var in streamInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		var applyErr error
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "search":
			applyErr = sess.Search(in.Text)
		case "filter":
			applyErr = sess.Filter(in.Value)
		case "action":
			applyErr = sess.Perform(ctx, in.Action, in.Input)
		case "ping":
			pushStream(writeCh, streamOutbound{Type: "pong"})
			continue
		case "":
			pushStream(writeCh, streamOutbound{Type: "error", Code: "invalid_argument", Message: "type is required"})
			continue
		default:
			pushStream(writeCh, streamOutbound{Type: "error", Code: "invalid_argument", Message: "unknown type " + in.Type})
			continue
		}
		if applyErr != nil {
			pushStream(writeCh, streamOutbound{Type: "error", Code: "failed", Message: applyErr.Error()})
		}
	}
}

// pushStream drops the message when the writer is backed up.
func pushStream(ch chan<- streamOutbound, out streamOutbound) {
	select {
	case ch <- out:
	default:
	}
}
