package wsgateway

import (
	"fmt"
	"testing"

	"github.com/placescout/scoutengine/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSession builds a session with no backing connection. send and
// dropOldestSnapshot touch conn/log only when a non-snapshot message meets
// a full outbound buffer, which these tests avoid.
func newTestSession() *session {
	return &session{
		outbound: make(chan outboundMsg, outboundBufferSize),
		closed:   make(chan struct{}),
	}
}

func drainOutbound(s *session) []outboundMsg {
	var out []outboundMsg
	for {
		select {
		case m := <-s.outbound:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestSendDropsOldestSnapshotAndPreservesOtherEvents(t *testing.T) {
	s := newTestSession()

	// Fill the buffer to capacity: one stale snapshot plus
	// outboundBufferSize-1 non-snapshot events.
	s.outbound <- outboundMsg{envelope: Envelope{Type: TypeBotSnapshot, Name: "stale"}, kind: eventbus.KindBotSnapshotCaptured}
	for i := 0; i < outboundBufferSize-1; i++ {
		s.outbound <- outboundMsg{
			envelope: Envelope{Type: TypeBotStatus, Name: fmt.Sprintf("status-%d", i)},
			kind:     eventbus.KindBotTaskAssigned,
		}
	}
	require.Len(t, s.outbound, outboundBufferSize)

	s.send(Envelope{Type: TypeBotSnapshot, Name: "fresh"}, eventbus.KindBotSnapshotCaptured)

	msgs := drainOutbound(s)
	require.Len(t, msgs, outboundBufferSize, "buffer should remain at capacity after coalescing")

	var snapshots []outboundMsg
	var others []outboundMsg
	for _, m := range msgs {
		if m.kind == eventbus.KindBotSnapshotCaptured {
			snapshots = append(snapshots, m)
		} else {
			others = append(others, m)
		}
	}

	require.Len(t, snapshots, 1, "only the fresh snapshot should remain")
	assert.Equal(t, "fresh", snapshots[0].envelope.Name)
	assert.Len(t, others, outboundBufferSize-1, "every non-snapshot event must survive coalescing")
	for i, m := range others {
		assert.Equal(t, fmt.Sprintf("status-%d", i), m.envelope.Name)
	}
}

func TestSendDropsNewSnapshotWhenBufferHasNoExistingSnapshot(t *testing.T) {
	s := newTestSession()

	for i := 0; i < outboundBufferSize; i++ {
		s.outbound <- outboundMsg{
			envelope: Envelope{Type: TypeBotStatus, Name: fmt.Sprintf("status-%d", i)},
			kind:     eventbus.KindBotTaskAssigned,
		}
	}

	s.send(Envelope{Type: TypeBotSnapshot, Name: "dropped"}, eventbus.KindBotSnapshotCaptured)

	msgs := drainOutbound(s)
	require.Len(t, msgs, outboundBufferSize)
	for _, m := range msgs {
		assert.NotEqual(t, eventbus.KindBotSnapshotCaptured, m.kind)
	}
}

func TestSendEnqueuesWhenBufferHasRoom(t *testing.T) {
	s := newTestSession()
	s.send(Envelope{Type: TypeBotStatus, Name: "first"}, eventbus.KindBotTaskAssigned)

	require.Len(t, s.outbound, 1)
	msg := <-s.outbound
	assert.Equal(t, "first", msg.envelope.Name)
}
