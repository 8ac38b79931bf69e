package frame

import (
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/message"
	"go.uber.org/zap"
)

// Frame is one (metadata, image) pair as shown to the operator. Metadata is nil
// when unavailable, Image is nil before the first image arrives.
type Frame struct {
	Metadata *message.Metadata
	Image    *ImageRef
}

// Update is the display state after one message: the frame plus whether an
// image for the newest metadata is still on its way.
type Update struct {
	Frame        Frame
	ImageLoading bool
}

type AssemblerParams struct {
	Images *ImageStore
	Logger *zap.Logger
}

// Assembler turns the metadata/image message sequence into frames. It is not
// safe for concurrent use; a single goroutine owns it.
type Assembler struct {
	images *ImageStore
	log    *zap.Logger

	current      Frame
	loading      bool
	lastComplete Frame

	// fresh is set after a connection loss until the next metadata arrives.
	// Metadata shown from before the loss belongs to an older shot, so an image
	// arriving first on the new connection has none.
	fresh bool
}

func NewAssembler(params AssemblerParams) *Assembler {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	images := params.Images
	if images == nil {
		images = NewImageStore()
	}

	return &Assembler{
		images: images,
		log:    logger.With(zap.String("component", "FrameAssembler")),
	}
}

func (a *Assembler) Images() *ImageStore {
	return a.images
}

func (a *Assembler) State() Update {
	return Update{Frame: a.current, ImageLoading: a.loading}
}

// OnMessage applies one classified message. An image that cannot be decoded
// leaves the state untouched and returns a malformed-message error.
func (a *Assembler) OnMessage(msg message.InboundMessage) (Update, error) {
	switch msg.Kind {
	case message.KindMetadata:
		a.onMetadata(msg.Metadata, msg.Standalone)
	case message.KindBinaryPayload:
		if err := a.onImage(msg); err != nil {
			return a.State(), err
		}
	default:
		a.log.Warn("Dropping message of unknown kind", zap.Stringer("kind", msg.Kind))
	}
	return a.State(), nil
}

// onMetadata shows m at once over the previous image. Unless standalone, the
// image for m is now expected.
func (a *Assembler) onMetadata(m *message.Metadata, standalone bool) {
	if a.loading {
		a.log.Debug("Metadata superseded before its image arrived", zap.Stringer("category", errors.CategoryProtocol))
	}
	a.current = Frame{Metadata: m, Image: a.current.Image}
	a.loading = !standalone
	a.fresh = false
}

func (a *Assembler) onImage(msg message.InboundMessage) error {
	ref, err := a.images.Create(msg.Payload, msg.ReceivedAt)
	if err != nil {
		return err
	}

	if !a.loading {
		a.log.Debug("Image arrived without preceding metadata", zap.Stringer("category", errors.CategoryProtocol), zap.Bool("afterConnectionLoss", a.fresh))
	}

	metadata := a.current.Metadata
	if a.fresh {
		metadata = nil
		a.fresh = false
	}

	previous := a.current.Image
	a.current = Frame{Metadata: metadata, Image: ref}
	a.loading = false
	a.lastComplete = a.current

	if previous != nil {
		a.images.Revoke(previous.ID)
	}
	return nil
}

// ConnectionLost drops metadata whose image can no longer arrive and falls
// back to the last complete frame, which stays on screen across the reconnect
// until the new connection delivers.
func (a *Assembler) ConnectionLost() Update {
	if a.loading {
		a.log.Debug("Discarding pending metadata after connection loss")
		a.current = a.lastComplete
		a.loading = false
	}
	a.fresh = true
	return a.State()
}

// Release revokes the image still held by the assembler and clears the state.
func (a *Assembler) Release() {
	if a.current.Image != nil {
		a.images.Revoke(a.current.Image.ID)
	}
	a.current = Frame{}
	a.lastComplete = Frame{}
	a.loading = false
	a.fresh = false
}
