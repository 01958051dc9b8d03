package wsgateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/eventbus"
	"go.uber.org/zap"
)

// outboundBufferSize is the per-session bounded buffer depth, per
// spec.md §4.8 ("default 64 messages").
const outboundBufferSize = 64

// outboundWriteTimeout bounds how long a blocking send may wait once the
// buffer is full before the session is closed with a protocol error.
const outboundWriteTimeout = 5 * time.Second

// session is one duplex WebSocket connection. It multiplexes command,
// query, and event-stream handling over the same conn, with commands
// serialized per session (spec.md §4.8: "at most one in flight").
type session struct {
	id        string
	conn      *websocket.Conn
	log       *zap.Logger
	gateway   *Gateway
	campaignID domain.ID
	unsub     eventbus.Unsubscribe

	cmdMu sync.Mutex // serializes command handling

	outbound     chan outboundMsg
	closeOnce    sync.Once
	closed       chan struct{}
}

type outboundMsg struct {
	envelope Envelope
	kind     eventbus.Kind // KindBotSnapshotCaptured marks this as coalescable
}

func newSession(id string, conn *websocket.Conn, log *zap.Logger, gw *Gateway) *session {
	s := &session{
		id:       id,
		conn:     conn,
		log:      log,
		gateway:  gw,
		outbound: make(chan outboundMsg, outboundBufferSize),
		closed:   make(chan struct{}),
	}
	return s
}

// writeLoop drains the outbound channel to the socket. It runs on its own
// goroutine for the session's lifetime.
func (s *session) writeLoop() {
	for {
		select {
		case msg, ok := <-s.outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(msg.envelope)
			if err != nil {
				s.log.Error("marshal outbound envelope", zap.Error(err))
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(outboundWriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				s.log.Warn("write failed, closing session", zap.Error(err))
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

// send enqueues an envelope for delivery. When the outbound buffer is full
// and the envelope is a bot_snapshot, the oldest queued snapshot is
// dropped to make room — "coalesce-latest" per spec.md §4.8. Any other
// message type blocks briefly; on timeout the session is closed with a
// protocol error.
func (s *session) send(env Envelope, kind eventbus.Kind) {
	msg := outboundMsg{envelope: env, kind: kind}

	select {
	case s.outbound <- msg:
		return
	default:
	}

	if kind == eventbus.KindBotSnapshotCaptured {
		s.dropOldestSnapshot()
		select {
		case s.outbound <- msg:
			return
		default:
			return // buffer still full of non-snapshot traffic; drop this snapshot too
		}
	}

	select {
	case s.outbound <- msg:
	case <-time.After(outboundWriteTimeout):
		s.sendProtocolErrorAndClose("outbound buffer full")
	case <-s.closed:
	}
}

// dropOldestSnapshot removes the single oldest queued bot_snapshot message
// to make room for a fresher one, preserving every non-snapshot message's
// position.
func (s *session) dropOldestSnapshot() {
	drained := make([]outboundMsg, 0, outboundBufferSize)
	for {
		select {
		case m := <-s.outbound:
			drained = append(drained, m)
		default:
			goto refill
		}
	}
refill:
	droppedOne := false
	for _, m := range drained {
		if !droppedOne && m.kind == eventbus.KindBotSnapshotCaptured {
			droppedOne = true
			continue
		}
		select {
		case s.outbound <- m:
		default:
		}
	}
}

func (s *session) sendProtocolErrorAndClose(msg string) {
	raw, _ := json.Marshal(Envelope{
		Type: TypeError,
		Data: mustJSON(ErrorData{Message: msg}),
	})
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.TextMessage, raw)
	s.Close()
}

// Close tears the session down: unsubscribes from the event bus and
// closes the underlying connection. Idempotent.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.unsub != nil {
			s.unsub()
		}
		_ = s.conn.Close()
	})
}

func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
