package capture_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/sentinel/internal/capture"
	"github.com/dropDatabas3/sentinel/internal/capture/synthetic"
)

func newSynthetic() *synthetic.Device {
	return synthetic.New(synthetic.Config{Width: 16, Height: 12})
}

func TestStartCaptureReleases(t *testing.T) {
	dev := newSynthetic()
	c := capture.NewController(dev, capture.Options{FrameTimeout: time.Second})

	assert.Equal(t, capture.Idle, c.State().Phase)
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, capture.Ready, c.State().Phase)
	assert.True(t, dev.Held())

	f, err := c.Capture()
	require.NoError(t, err)
	assert.NotNil(t, f.Image)
	assert.Equal(t, capture.Captured, c.State().Phase)
	assert.Equal(t, f, c.State().Frame)
	assert.False(t, dev.Held(), "capture must release the stream")
}

func TestCaptureOnlyFromReady(t *testing.T) {
	c := capture.NewController(newSynthetic(), capture.Options{})
	_, err := c.Capture()
	assert.ErrorIs(t, err, capture.ErrInvalidTransition)
}

func TestStartOnlyFromIdle(t *testing.T) {
	c := capture.NewController(newSynthetic(), capture.Options{})
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), capture.ErrInvalidTransition)
	c.Close()
}

func TestPermissionDeniedThenRetake(t *testing.T) {
	dev := synthetic.New(synthetic.Config{Deny: true, Width: 8, Height: 8})
	c := capture.NewController(dev, capture.Options{})

	err := c.Start(context.Background())
	var de *capture.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, capture.PermissionDenied, de.Reason)
	assert.NotEmpty(t, de.Hint())

	st := c.State()
	assert.Equal(t, capture.Failed, st.Phase)
	assert.Equal(t, capture.PermissionDenied, st.Err.Reason)
	assert.False(t, dev.Held())

	dev.SetDenied(false)
	require.NoError(t, c.Retake(context.Background()))
	assert.Equal(t, capture.Ready, c.State().Phase)
	c.Close()
	assert.False(t, dev.Held())
}

func TestReasonsMapping(t *testing.T) {
	tests := []struct {
		err  error
		want capture.Reason
	}{
		{capture.ErrPermissionDenied, capture.PermissionDenied},
		{fmt.Errorf("wrapped: %w", capture.ErrDeviceNotFound), capture.DeviceNotFound},
		{capture.ErrDeviceBusy, capture.DeviceBusy},
		{errors.New("driver crashed"), capture.Unknown},
		{context.DeadlineExceeded, capture.Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, capture.Classify(tt.err), "%v", tt.err)
		assert.NotEmpty(t, tt.want.Hint())
	}
}

func TestBusyDevice(t *testing.T) {
	dev := newSynthetic()
	other := capture.NewController(dev, capture.Options{})
	require.NoError(t, other.Start(context.Background()))

	c := capture.NewController(dev, capture.Options{})
	var de *capture.DeviceError
	require.ErrorAs(t, c.Start(context.Background()), &de)
	assert.Equal(t, capture.DeviceBusy, de.Reason)

	other.Close()
	require.NoError(t, c.Retake(context.Background()))
	c.Close()
	assert.False(t, dev.Held())
}

func TestFrameTimeoutReleasesStream(t *testing.T) {
	dev := synthetic.New(synthetic.Config{Warmup: time.Hour, Width: 8, Height: 8})
	c := capture.NewController(dev, capture.Options{FrameTimeout: 15 * time.Millisecond})

	var de *capture.DeviceError
	require.ErrorAs(t, c.Start(context.Background()), &de)
	assert.Equal(t, capture.Unknown, de.Reason)
	assert.ErrorIs(t, de, context.DeadlineExceeded)
	assert.False(t, dev.Held(), "stream must be released on timeout")
}

func TestRetakeFromCaptured(t *testing.T) {
	dev := newSynthetic()
	c := capture.NewController(dev, capture.Options{})
	require.NoError(t, c.Start(context.Background()))
	first, err := c.Capture()
	require.NoError(t, err)

	require.NoError(t, c.Retake(context.Background()))
	assert.Equal(t, capture.Ready, c.State().Phase)
	assert.Nil(t, c.State().Frame)

	second, err := c.Capture()
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCloseIsTerminal(t *testing.T) {
	dev := newSynthetic()
	c := capture.NewController(dev, capture.Options{})
	require.NoError(t, c.Start(context.Background()))
	c.Close()
	c.Close()
	assert.False(t, dev.Held())
	assert.Equal(t, capture.Closed, c.State().Phase)
	assert.ErrorIs(t, c.Start(context.Background()), capture.ErrClosed)
	assert.ErrorIs(t, c.Retake(context.Background()), capture.ErrClosed)
	_, err := c.Capture()
	assert.ErrorIs(t, err, capture.ErrClosed)
}

// slowDevice bloquea Acquire hasta que se cierre gate y registra releases.
type slowDevice struct {
	gate     chan struct{}
	mu       sync.Mutex
	released []string
}

type fakeStream string

func (s fakeStream) ID() string { return string(s) }

func (d *slowDevice) Acquire(ctx context.Context) (capture.Stream, error) {
	<-d.gate
	return fakeStream("late"), nil
}
func (d *slowDevice) WaitFrame(context.Context, capture.Stream) error { return nil }
func (d *slowDevice) Sample(capture.Stream) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}
func (d *slowDevice) Release(s capture.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = append(d.released, s.ID())
	return nil
}

func TestLateAcquisitionAfterCloseIsReleased(t *testing.T) {
	dev := &slowDevice{gate: make(chan struct{})}
	c := capture.NewController(dev, capture.Options{})

	errc := make(chan error, 1)
	go func() { errc <- c.Start(context.Background()) }()
	require.Eventually(t, func() bool { return c.State().Phase == capture.Initializing }, time.Second, time.Millisecond)

	c.Close()
	close(dev.gate)

	assert.ErrorIs(t, <-errc, capture.ErrCancelled)
	dev.mu.Lock()
	defer dev.mu.Unlock()
	assert.Equal(t, []string{"late"}, dev.released)
	assert.Equal(t, capture.Closed, c.State().Phase)
}
