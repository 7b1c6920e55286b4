package controlplane

import (
	"context"
	"io"

	"github.com/sven-run/sven/internal/p2p/protocol"
	"github.com/sven-run/sven/pkg/models"
)

// ServeP2PStream drives the §4.8 P2P control-plane transport over one
// long-lived Yamux substream: every inbound frame is a CBOR-encoded
// ControlCommand, and every resulting ControlEvent (including the
// subscribed session's ongoing event stream) is written back as its own
// CBOR frame on the same substream. This collapses the spec's
// "request_response with a parallel event stream" into a single duplex
// stream, since sven's P2P fabric multiplexes via Yamux substreams rather
// than two independently-addressed channels per session.
func ServeP2PStream(ctx context.Context, rw io.ReadWriter, store *Store) {
	out := make(chan ControlEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case evt, ok := <-out:
				if !ok {
					return
				}
				if err := protocol.WriteFrame(rw, evt); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	defer func() {
		close(out)
		<-done
	}()

	ps := &p2pSession{store: store, out: out, subs: make(map[string]*Subscriber)}
	defer ps.closeAll()

	for {
		var cmd ControlCommand
		if err := protocol.ReadFrame(rw, &cmd); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		ps.handle(ctx, cmd)
	}
}

// p2pSession mirrors wsSession's command handling but emits onto a plain
// channel rather than writing a websocket frame directly, since the P2P
// transport's writer goroutine owns the substream.
type p2pSession struct {
	store *Store
	out   chan<- ControlEvent
	subs  map[string]*Subscriber
}

func (ps *p2pSession) send(evt ControlEvent) {
	select {
	case ps.out <- evt:
	default:
	}
}

func (ps *p2pSession) handle(ctx context.Context, cmd ControlCommand) {
	switch cmd.Kind {
	case CmdNewSession:
		sess, err := ps.store.NewSession(cmd.SessionID, models.AgentMode(cmd.Mode), cmd.WorkingDir)
		if err != nil {
			ps.send(ControlEvent{Kind: EvtAgentError, Message: err.Error()})
			return
		}
		ps.subscribe(sess)
		ps.send(ControlEvent{Kind: EvtSessionState, SessionID: sess.ID, State: sess.State()})

	case CmdSendInput:
		if sess, ok := ps.store.Get(cmd.SessionID); ok {
			go func() { _ = sess.SendInput(ctx, cmd.Text) }()
		}

	case CmdCancelSession:
		if sess, ok := ps.store.Get(cmd.SessionID); ok {
			sess.Cancel()
		}

	case CmdApproveTool:
		if sess, ok := ps.store.Get(cmd.SessionID); ok {
			sess.Approve(cmd.CallID)
		}

	case CmdDenyTool:
		if sess, ok := ps.store.Get(cmd.SessionID); ok {
			sess.Deny(cmd.CallID)
		}

	case CmdSubscribe:
		if sess, ok := ps.store.Get(cmd.SessionID); ok {
			ps.subscribe(sess)
		}

	case CmdUnsubscribe:
		ps.unsubscribe(cmd.SessionID)

	case CmdListSessions:
		ps.send(ControlEvent{Kind: EvtSessionList, Sessions: ps.store.List()})

	case CmdListTools:
		sess, ok := ps.store.Get(cmd.SessionID)
		if !ok {
			ps.send(ControlEvent{Kind: EvtGatewayError, Code: "unknown_session", Message: cmd.SessionID})
			return
		}
		ps.send(ControlEvent{Kind: EvtSessionList, Message: joinNames(sess.ag.Registry().AllNames())})

	case CmdCallTool:
		sess, ok := ps.store.Get(cmd.SessionID)
		if !ok {
			ps.send(ControlEvent{Kind: EvtGatewayError, Code: "unknown_session", Message: cmd.SessionID})
			return
		}
		out := sess.ag.Registry().Execute(ctx, models.ToolCall{ID: cmd.CallID, Name: cmd.Name, Args: cmd.Args})
		ps.send(ControlEvent{Kind: EvtToolResult, SessionID: cmd.SessionID, CallID: cmd.CallID, ToolName: cmd.Name, Output: out.Content(), IsError: out.IsError})

	default:
		ps.send(ControlEvent{Kind: EvtGatewayError, Code: "unknown_command", Message: string(cmd.Kind)})
	}
}

func (ps *p2pSession) subscribe(sess *Session) {
	if _, already := ps.subs[sess.ID]; already {
		return
	}
	sub := sess.Subscribe()
	ps.subs[sess.ID] = sub
	go func() {
		for evt := range sub.Events() {
			ps.send(evt)
		}
	}()
}

func (ps *p2pSession) unsubscribe(sessionID string) {
	sub, ok := ps.subs[sessionID]
	if !ok {
		return
	}
	delete(ps.subs, sessionID)
	if sess, ok := ps.store.Get(sessionID); ok {
		sess.Unsubscribe(sub)
	}
}

func (ps *p2pSession) closeAll() {
	for id := range ps.subs {
		ps.unsubscribe(id)
	}
}
