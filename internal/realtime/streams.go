package realtime

import (
	"slices"
	"strings"
)

// Named realtime streams. An event belongs to the stream named by the prefix
// before its first dot, so "execution.updated" is delivered on StreamExecution.
const (
	StreamExecution = "execution"
	StreamTicket    = "ticket"
	StreamMessage   = "message"
)

// Events published outside of the flow engine.
const (
	EventTicketUpdated   = "ticket.updated"
	EventMessageReceived = "message.received"
)

// AllStreams lists every stream a client may subscribe to.
var AllStreams = []string{StreamExecution, StreamTicket, StreamMessage}

func streamOf(event string) string {
	stream, _, _ := strings.Cut(normalizeStream(event), ".")
	return stream
}

func knownStream(stream string) bool {
	return slices.Contains(AllStreams, stream)
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}
