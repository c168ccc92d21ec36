package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/sentinel/internal/assets"
	"github.com/dropDatabas3/sentinel/internal/capture"
	"github.com/dropDatabas3/sentinel/internal/capture/synthetic"
	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/email"
	"github.com/dropDatabas3/sentinel/internal/enrollment"
	"github.com/dropDatabas3/sentinel/internal/guard"
	"github.com/dropDatabas3/sentinel/internal/session"
	"github.com/dropDatabas3/sentinel/internal/store/adapters/memory"
)

// fakeSessions emite cada cambio de forma síncrona, como session.Store.
type fakeSessions struct {
	mu        sync.Mutex
	cur       *repository.Session
	listeners []session.Listener
}

func (f *fakeSessions) Current() *repository.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeSessions) Subscribe(l session.Listener) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, l)
	cur := f.cur
	f.mu.Unlock()
	l(cur)
	return func() {}
}

func (f *fakeSessions) set(s *repository.Session) {
	f.mu.Lock()
	f.cur = s
	ls := append([]session.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		l(s)
	}
}

type countingGuard struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGuard) Refresh(context.Context) guard.State {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return guard.State{Screen: guard.Dashboard}
}

type chanNotifier chan email.Notice

func (c chanNotifier) VerificationComplete(_ context.Context, n email.Notice) { c <- n }

// gatedAssets bloquea Upload hasta que se cierre gate.
type gatedAssets struct {
	*assets.Memory
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedAssets) Upload(ctx context.Context, key string, data []byte, ct string) error {
	if g.entered != nil {
		close(g.entered)
		g.entered = nil
	}
	<-g.gate
	return g.Memory.Upload(ctx, key, data, ct)
}

type fixture struct {
	flow     *Flow
	sessions *fakeSessions
	profiles *memory.ProfileRepository
	guard    *countingGuard
	notices  chanNotifier
}

func newFixture(t *testing.T, sess *repository.Session, store repository.AssetRepository) fixture {
	t.Helper()
	profiles := memory.NewProfileRepository()
	if sess != nil {
		require.NoError(t, profiles.Create(context.Background(), sess.SubjectID))
	}
	if store == nil {
		store = assets.NewMemory("users", "http://localhost/assets")
	}
	g := &countingGuard{}
	notices := make(chanNotifier, 1)
	sessions := &fakeSessions{cur: sess}
	f := New(Config{
		Sessions: sessions,
		Guard:    g,
		Pipeline: enrollment.New(enrollment.Config{Assets: store, Profiles: profiles}),
		Device:   synthetic.New(synthetic.Config{Width: 32, Height: 24}),
		Capture:  capture.Options{FrameTimeout: time.Second},
		Notifier: notices,
		AppName:  "Sentinel",
	})
	t.Cleanup(f.Close)
	return fixture{flow: f, sessions: sessions, profiles: profiles, guard: g, notices: notices}
}

func testSession() *repository.Session {
	return &repository.Session{AccessToken: "t", SubjectID: "u1", Email: "ada@example.com", ExpiresAt: time.Now().Add(time.Hour)}
}

func TestFlow_RequiresSession(t *testing.T) {
	fx := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := fx.flow.SetSocial(repository.SocialHandles{X: "@ada"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = fx.flow.StartCamera(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = fx.flow.Submit(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestFlow_HappyPath(t *testing.T) {
	fx := newFixture(t, testSession(), nil)
	ctx := context.Background()

	h, err := fx.flow.SetSocial(repository.SocialHandles{X: " @ada ", LinkedIn: "https://linkedin.com/in/ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada", h.X)

	st, err := fx.flow.StartCamera(ctx)
	require.NoError(t, err)
	assert.Equal(t, capture.Ready, st.Phase)

	_, err = fx.flow.Capture()
	require.NoError(t, err)
	assert.Equal(t, capture.Captured, fx.flow.Camera().Phase)

	res, err := fx.flow.Submit(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.FaceImageRef)

	rec, err := fx.profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Complete())
	assert.Equal(t, "ada", rec.Social.X)

	assert.Equal(t, 1, fx.guard.calls)
	assert.Equal(t, capture.Idle, fx.flow.Camera().Phase, "camera is torn down after success")
	assert.Equal(t, enrollment.Done, fx.flow.Progress().Stage)

	select {
	case n := <-fx.notices:
		assert.Equal(t, "ada@example.com", n.To)
		assert.Equal(t, "u1", n.SubjectID)
	case <-time.After(time.Second):
		t.Fatal("notification not sent")
	}
}

func TestFlow_SubmitWithoutFrame(t *testing.T) {
	fx := newFixture(t, testSession(), nil)
	ctx := context.Background()

	_, err := fx.flow.Submit(ctx)
	assert.ErrorIs(t, err, ErrNoFrame)

	_, err = fx.flow.StartCamera(ctx)
	require.NoError(t, err)
	_, err = fx.flow.Submit(ctx)
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestFlow_CameraLockedWhileSubmitting(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{})
	store := &gatedAssets{Memory: assets.NewMemory("users", "http://localhost/assets"), gate: gate, entered: entered}
	fx := newFixture(t, testSession(), store)
	ctx := context.Background()

	_, err := fx.flow.StartCamera(ctx)
	require.NoError(t, err)
	_, err = fx.flow.Capture()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := fx.flow.Submit(ctx)
		done <- err
	}()
	<-entered

	_, err = fx.flow.Retake(ctx)
	assert.ErrorIs(t, err, ErrSubmissionPending)
	_, err = fx.flow.StartCamera(ctx)
	assert.ErrorIs(t, err, ErrSubmissionPending)
	_, err = fx.flow.Submit(ctx)
	assert.ErrorIs(t, err, ErrSubmissionPending)

	close(gate)
	require.NoError(t, <-done)
}

func TestFlow_RetakeAndLeave(t *testing.T) {
	fx := newFixture(t, testSession(), nil)
	ctx := context.Background()

	_, err := fx.flow.Retake(ctx)
	assert.ErrorIs(t, err, ErrNoCamera)

	_, err = fx.flow.StartCamera(ctx)
	require.NoError(t, err)
	first, err := fx.flow.Capture()
	require.NoError(t, err)

	st, err := fx.flow.Retake(ctx)
	require.NoError(t, err)
	assert.Equal(t, capture.Ready, st.Phase)
	second, err := fx.flow.Capture()
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	fx.flow.Leave()
	assert.Equal(t, capture.Idle, fx.flow.Camera().Phase)
	_, err = fx.flow.Capture()
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestFlow_StartCameraAfterDenied(t *testing.T) {
	fx := newFixture(t, testSession(), nil)
	dev := synthetic.New(synthetic.Config{Deny: true})
	fx.flow.cfg.Device = dev
	ctx := context.Background()

	st, err := fx.flow.StartCamera(ctx)
	require.Error(t, err)
	assert.Equal(t, capture.Failed, st.Phase)
	require.NotNil(t, st.Err)
	assert.Equal(t, capture.PermissionDenied, st.Err.Reason)

	dev.SetDenied(false)
	st, err = fx.flow.StartCamera(ctx)
	require.NoError(t, err)
	assert.Equal(t, capture.Ready, st.Phase)
}

func TestFlow_SubjectChangeDiscardsDraftAndFrame(t *testing.T) {
	fx := newFixture(t, testSession(), nil)
	ctx := context.Background()

	_, err := fx.flow.SetSocial(repository.SocialHandles{X: "ada"})
	require.NoError(t, err)
	_, err = fx.flow.StartCamera(ctx)
	require.NoError(t, err)
	_, err = fx.flow.Capture()
	require.NoError(t, err)

	fx.sessions.set(nil)
	assert.Equal(t, capture.Idle, fx.flow.Camera().Phase)
	assert.Equal(t, repository.SocialHandles{}, fx.flow.Social())

	other := &repository.Session{AccessToken: "t2", SubjectID: "u2", Email: "bob@example.com", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, fx.profiles.Create(ctx, "u2"))
	fx.sessions.set(other)

	_, err = fx.flow.Submit(ctx)
	assert.ErrorIs(t, err, ErrNoFrame)
	rec, err := fx.profiles.Get(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, rec.Complete(), "a frame taken by another subject is never linked")
}

func TestFlow_SameSubjectRefreshKeepsDraft(t *testing.T) {
	fx := newFixture(t, testSession(), nil)
	ctx := context.Background()

	_, err := fx.flow.SetSocial(repository.SocialHandles{X: "ada"})
	require.NoError(t, err)
	_, err = fx.flow.StartCamera(ctx)
	require.NoError(t, err)
	_, err = fx.flow.Capture()
	require.NoError(t, err)

	fx.sessions.set(testSession())
	assert.Equal(t, capture.Captured, fx.flow.Camera().Phase)
	assert.Equal(t, "ada", fx.flow.Social().X)
}
