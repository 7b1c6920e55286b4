package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sven-run/sven/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin is already checked by CheckCSRF ahead of the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func writeDeadline() time.Time { return time.Now().Add(10 * time.Second) }

// WebSocketHandler serves the §4.8 WebSocket transport: one ControlCommand
// per text frame, subscription implicit on connection, pings echoed as
// pongs.
type WebSocketHandler struct {
	Store  *Store
	Logger *slog.Logger
}

func (h *WebSocketHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger().Warn("controlplane: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), writeDeadline())
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws := &wsSession{conn: conn, store: h.Store, subs: make(map[string]*Subscriber)}
	defer ws.closeAll()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd ControlCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			ws.send(ControlEvent{Kind: EvtGatewayError, Code: "bad_request", Message: err.Error()})
			continue
		}
		ws.handle(ctx, cmd)
	}
}

// wsSession tracks one WebSocket connection's subscriptions and serializes
// writes to the underlying gorilla/websocket.Conn, which is not itself
// safe for concurrent writers.
type wsSession struct {
	conn  *websocket.Conn
	store *Store

	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[string]*Subscriber // session id -> subscriber
}

func (ws *wsSession) send(evt ControlEvent) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.SetWriteDeadline(writeDeadline())
	_ = ws.conn.WriteMessage(websocket.TextMessage, raw)
}

func (ws *wsSession) handle(ctx context.Context, cmd ControlCommand) {
	switch cmd.Kind {
	case CmdNewSession:
		sess, err := ws.store.NewSession(cmd.SessionID, models.AgentMode(cmd.Mode), cmd.WorkingDir)
		if err != nil {
			ws.send(ControlEvent{Kind: EvtAgentError, Message: err.Error()})
			return
		}
		ws.subscribe(sess)
		ws.send(ControlEvent{Kind: EvtSessionState, SessionID: sess.ID, State: sess.State()})

	case CmdSendInput:
		sess, ok := ws.store.Get(cmd.SessionID)
		if !ok {
			ws.send(ControlEvent{Kind: EvtGatewayError, Code: "unknown_session", Message: cmd.SessionID})
			return
		}
		go func() { _ = sess.SendInput(ctx, cmd.Text) }()

	case CmdCancelSession:
		if sess, ok := ws.store.Get(cmd.SessionID); ok {
			sess.Cancel()
		}

	case CmdApproveTool:
		if sess, ok := ws.store.Get(cmd.SessionID); ok {
			sess.Approve(cmd.CallID)
		}

	case CmdDenyTool:
		if sess, ok := ws.store.Get(cmd.SessionID); ok {
			sess.Deny(cmd.CallID)
		}

	case CmdSubscribe:
		if sess, ok := ws.store.Get(cmd.SessionID); ok {
			ws.subscribe(sess)
		}

	case CmdUnsubscribe:
		ws.unsubscribe(cmd.SessionID)

	case CmdListSessions:
		ws.send(ControlEvent{Kind: EvtSessionList, Sessions: ws.store.List()})

	case CmdListTools:
		sess, ok := ws.store.Get(cmd.SessionID)
		if !ok {
			ws.send(ControlEvent{Kind: EvtGatewayError, Code: "unknown_session", Message: cmd.SessionID})
			return
		}
		names := sess.ag.Registry().AllNames()
		ws.send(ControlEvent{Kind: EvtSessionList, Message: joinNames(names)})

	case CmdCallTool:
		sess, ok := ws.store.Get(cmd.SessionID)
		if !ok {
			ws.send(ControlEvent{Kind: EvtGatewayError, Code: "unknown_session", Message: cmd.SessionID})
			return
		}
		out := sess.ag.Registry().Execute(ctx, models.ToolCall{ID: cmd.CallID, Name: cmd.Name, Args: cmd.Args})
		ws.send(ControlEvent{Kind: EvtToolResult, SessionID: cmd.SessionID, CallID: cmd.CallID, ToolName: cmd.Name, Output: out.Content(), IsError: out.IsError})

	default:
		ws.send(ControlEvent{Kind: EvtGatewayError, Code: "unknown_command", Message: string(cmd.Kind)})
	}
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

func (ws *wsSession) subscribe(sess *Session) {
	ws.subMu.Lock()
	if _, already := ws.subs[sess.ID]; already {
		ws.subMu.Unlock()
		return
	}
	sub := sess.Subscribe()
	ws.subs[sess.ID] = sub
	ws.subMu.Unlock()

	go func() {
		for evt := range sub.Events() {
			ws.send(evt)
		}
	}()
}

func (ws *wsSession) unsubscribe(sessionID string) {
	ws.subMu.Lock()
	sub, ok := ws.subs[sessionID]
	delete(ws.subs, sessionID)
	ws.subMu.Unlock()
	if !ok {
		return
	}
	if sess, ok := ws.store.Get(sessionID); ok {
		sess.Unsubscribe(sub)
	}
}

func (ws *wsSession) closeAll() {
	ws.subMu.Lock()
	ids := make([]string, 0, len(ws.subs))
	for id := range ws.subs {
		ids = append(ids, id)
	}
	ws.subMu.Unlock()
	for _, id := range ids {
		ws.unsubscribe(id)
	}
}
