package message

import "time"

type Kind uint8

const (
	KindMetadata Kind = iota
	KindBinaryPayload
)

func (k Kind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindBinaryPayload:
		return "binary"
	}
	return "unknown"
}

// InboundMessage is one classified message off the camera feed. For
// KindMetadata a nil Metadata is a structurally empty update ("unavailable").
type InboundMessage struct {
	Kind     Kind
	Metadata *Metadata
	// Standalone marks a metadata update that no image will follow.
	Standalone bool
	Payload    []byte
	ReceivedAt time.Time
}

func NewMetadataMessage(m *Metadata, receivedAt time.Time) InboundMessage {
	return InboundMessage{Kind: KindMetadata, Metadata: m, ReceivedAt: receivedAt}
}

// NewStandaloneMetadataMessage builds a metadata update that does not announce
// an image, e.g. a polled "unavailable" document.
func NewStandaloneMetadataMessage(m *Metadata, receivedAt time.Time) InboundMessage {
	return InboundMessage{Kind: KindMetadata, Metadata: m, Standalone: true, ReceivedAt: receivedAt}
}

func NewBinaryMessage(payload []byte, receivedAt time.Time) InboundMessage {
	return InboundMessage{Kind: KindBinaryPayload, Payload: payload, ReceivedAt: receivedAt}
}
