package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/message"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func meta(gain float64) *message.Metadata {
	return &message.Metadata{Gain: gain, Period: 10, ShotDatetime: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func newTestAssembler() *Assembler {
	return NewAssembler(AssemblerParams{Logger: zap.NewNop()})
}

func TestAssembler_OnMessage_metadataThenImage(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	m1 := meta(1)
	u, err := a.OnMessage(message.NewMetadataMessage(m1, now))
	require.NoError(t, err)
	assert.True(t, u.ImageLoading)
	assert.Same(t, m1, u.Frame.Metadata)
	assert.Nil(t, u.Frame.Image)

	u, err = a.OnMessage(message.NewBinaryMessage(pngBytes(t, 4, 3), now))
	require.NoError(t, err)
	assert.False(t, u.ImageLoading)
	assert.Same(t, m1, u.Frame.Metadata)
	require.NotNil(t, u.Frame.Image)
	assert.Equal(t, "png", u.Frame.Image.Format)
	assert.Equal(t, "image/png", u.Frame.Image.ContentType)
	assert.Equal(t, 4, u.Frame.Image.Width)
	assert.Equal(t, 3, u.Frame.Image.Height)
}

func TestAssembler_OnMessage_newMetadataKeepsPreviousImage(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	_, _ = a.OnMessage(message.NewMetadataMessage(meta(1), now))
	u1, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 2, 2), now))
	require.NoError(t, err)

	m2 := meta(2)
	u2, err := a.OnMessage(message.NewMetadataMessage(m2, now))
	require.NoError(t, err)
	assert.True(t, u2.ImageLoading)
	assert.Same(t, m2, u2.Frame.Metadata)
	assert.Equal(t, u1.Frame.Image, u2.Frame.Image)
}

func TestAssembler_OnMessage_imagePairsWithLatestMetadata(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	// Any sequence: an image always pairs with the most recent metadata.
	seq := []message.InboundMessage{
		message.NewBinaryMessage(pngBytes(t, 1, 1), now),
		message.NewMetadataMessage(meta(1), now),
		message.NewMetadataMessage(meta(2), now),
		message.NewBinaryMessage(pngBytes(t, 1, 1), now),
		message.NewBinaryMessage(pngBytes(t, 1, 1), now),
		message.NewMetadataMessage(nil, now),
		message.NewBinaryMessage(pngBytes(t, 1, 1), now),
	}

	var latest *message.Metadata
	var prevImage *ImageRef
	for i, msg := range seq {
		u, err := a.OnMessage(msg)
		require.NoError(t, err)
		if msg.Kind == message.KindMetadata {
			latest = msg.Metadata
			continue
		}
		assert.Same(t, latest, u.Frame.Metadata, "step %d", i)
		require.NotNil(t, u.Frame.Image)
		if prevImage != nil {
			assert.NotEqual(t, prevImage.ID, u.Frame.Image.ID, "step %d", i)
		}
		prevImage = u.Frame.Image
	}
}

func TestAssembler_OnMessage_imageWithoutMetadata(t *testing.T) {
	a := newTestAssembler()

	u, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 2, 2), time.Now()))
	require.NoError(t, err)
	assert.Nil(t, u.Frame.Metadata)
	require.NotNil(t, u.Frame.Image)
	assert.False(t, u.ImageLoading)

	_, _, ok := a.Images().Get(u.Frame.Image.ID)
	assert.True(t, ok)
}

func TestAssembler_OnMessage_secondMetadataWins(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	_, _ = a.OnMessage(message.NewMetadataMessage(meta(1), now))
	m2 := meta(2)
	u, _ := a.OnMessage(message.NewMetadataMessage(m2, now))
	assert.True(t, u.ImageLoading)

	u, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 1, 1), now))
	require.NoError(t, err)
	assert.Same(t, m2, u.Frame.Metadata)
}

func TestAssembler_OnMessage_releasesSupersededImages(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	var ids []*ImageRef
	for i := 0; i < 5; i++ {
		_, _ = a.OnMessage(message.NewMetadataMessage(meta(float64(i)), now))
		u, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 1, 1), now))
		require.NoError(t, err)
		ids = append(ids, u.Frame.Image)
	}

	assert.Equal(t, 1, a.Images().Len())
	for _, ref := range ids[:4] {
		_, _, ok := a.Images().Get(ref.ID)
		assert.False(t, ok)
	}

	a.Release()
	assert.Equal(t, 0, a.Images().Len())
	assert.Nil(t, a.State().Frame.Image)
}

func TestAssembler_OnMessage_undecodableImage(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	m1 := meta(1)
	_, _ = a.OnMessage(message.NewMetadataMessage(m1, now))
	u, err := a.OnMessage(message.NewBinaryMessage([]byte("definitely not an image"), now))
	assert.True(t, errors.IsMalformed(err))
	assert.True(t, u.ImageLoading)
	assert.Same(t, m1, u.Frame.Metadata)
	assert.Equal(t, 0, a.Images().Len())
}

func TestAssembler_ConnectionLost_retainsLastCompleteFrame(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	m1 := meta(1)
	_, _ = a.OnMessage(message.NewMetadataMessage(m1, now))
	complete, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 1, 1), now))
	require.NoError(t, err)
	_, _ = a.OnMessage(message.NewMetadataMessage(meta(2), now))

	u := a.ConnectionLost()
	assert.False(t, u.ImageLoading)
	assert.Equal(t, complete.Frame, u.Frame)

	// Nothing pending: a second loss changes nothing.
	assert.Equal(t, u, a.ConnectionLost())
}

func TestAssembler_OnMessage_imageFirstAfterConnectionLoss(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	m1 := meta(1)
	_, _ = a.OnMessage(message.NewMetadataMessage(m1, now))
	complete, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 1, 1), now))
	require.NoError(t, err)
	_, _ = a.OnMessage(message.NewMetadataMessage(meta(2), now))

	retained := a.ConnectionLost()
	assert.Same(t, m1, retained.Frame.Metadata)
	assert.Equal(t, complete.Frame.Image, retained.Frame.Image)

	// An undecodable image does not disturb the retained frame.
	_, err = a.OnMessage(message.NewBinaryMessage([]byte("garbage"), now))
	require.Error(t, err)
	assert.Same(t, m1, a.State().Frame.Metadata)

	u, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 2, 2), now))
	require.NoError(t, err)
	assert.Nil(t, u.Frame.Metadata, "the new image belongs to no metadata seen on this connection")
	require.NotNil(t, u.Frame.Image)
	assert.NotEqual(t, complete.Frame.Image.ID, u.Frame.Image.ID)
	assert.False(t, u.ImageLoading)

	// Pairing resumes with the next metadata.
	m3 := meta(3)
	_, _ = a.OnMessage(message.NewMetadataMessage(m3, now))
	u, err = a.OnMessage(message.NewBinaryMessage(pngBytes(t, 1, 1), now))
	require.NoError(t, err)
	assert.Same(t, m3, u.Frame.Metadata)
}

func TestAssembler_OnMessage_metadataAfterConnectionLossPairs(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	_, _ = a.OnMessage(message.NewMetadataMessage(meta(1), now))
	_, _ = a.OnMessage(message.NewBinaryMessage(pngBytes(t, 1, 1), now))
	a.ConnectionLost()

	m2 := meta(2)
	_, _ = a.OnMessage(message.NewMetadataMessage(m2, now))
	u, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 1, 1), now))
	require.NoError(t, err)
	assert.Same(t, m2, u.Frame.Metadata)
}

func TestAssembler_OnMessage_standaloneMetadataIsNotLoading(t *testing.T) {
	a := newTestAssembler()
	now := time.Now()

	_, _ = a.OnMessage(message.NewMetadataMessage(meta(1), now))
	complete, err := a.OnMessage(message.NewBinaryMessage(pngBytes(t, 1, 1), now))
	require.NoError(t, err)

	u, err := a.OnMessage(message.NewStandaloneMetadataMessage(nil, now))
	require.NoError(t, err)
	assert.Nil(t, u.Frame.Metadata)
	assert.False(t, u.ImageLoading)
	assert.Equal(t, complete.Frame.Image, u.Frame.Image)
}
