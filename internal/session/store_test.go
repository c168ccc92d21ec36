package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
)

type fakeProvider struct {
	mu        sync.Mutex
	listeners map[int]func(repository.SessionEvent)
	next      int
	getCalls  int

	// getSession se invoca en GetSession; por default retorna session/err.
	getSession func(ctx context.Context) (*repository.Session, error)
	session    *repository.Session
	err        error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{listeners: map[int]func(repository.SessionEvent){}}
}

func (f *fakeProvider) GetSession(ctx context.Context) (*repository.Session, error) {
	f.mu.Lock()
	f.getCalls++
	fn := f.getSession
	s, err := f.session, f.err
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return s, err
}

func (f *fakeProvider) OnSessionChange(l func(repository.SessionEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeProvider) SignOut(context.Context) error {
	f.push(repository.SessionEvent{Kind: repository.SessionSignedOut})
	return nil
}

func (f *fakeProvider) push(ev repository.SessionEvent) {
	f.mu.Lock()
	ls := make([]func(repository.SessionEvent), 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

func (f *fakeProvider) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func TestNewStore_InitialFetch(t *testing.T) {
	p := newFakeProvider()
	p.session = &repository.Session{SubjectID: "u1", AccessToken: "t"}

	s := NewStore(context.Background(), p)
	defer s.Close()

	if p.getCalls != 1 {
		t.Fatalf("GetSession calls=%d, want exactly 1", p.getCalls)
	}
	if s.Current() == nil || s.Current().SubjectID != "u1" {
		t.Fatalf("Current=%+v, want u1", s.Current())
	}
	if s.Err() != nil {
		t.Fatalf("Err=%v, want nil", s.Err())
	}
}

func TestNewStore_FetchFailureIsUnauthenticated(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("network down")

	s := NewStore(context.Background(), p)
	defer s.Close()

	if s.Current() != nil {
		t.Fatalf("Current must be nil after failed fetch")
	}
	if !IsAuthError(s.Err()) {
		t.Fatalf("Err=%v, want AuthError", s.Err())
	}

	var got []*repository.Session
	unsub := s.Subscribe(func(sess *repository.Session) { got = append(got, sess) })
	defer unsub()
	if len(got) != 1 || got[0] != nil {
		t.Fatalf("subscriber must immediately receive nil, got %v", got)
	}
}

func TestSubscribe_ReceivesCurrentThenChanges(t *testing.T) {
	p := newFakeProvider()
	p.session = &repository.Session{SubjectID: "u1"}
	s := NewStore(context.Background(), p)
	defer s.Close()

	var got []string
	unsub := s.Subscribe(func(sess *repository.Session) {
		if sess == nil {
			got = append(got, "<nil>")
			return
		}
		got = append(got, sess.SubjectID)
	})

	p.push(repository.SessionEvent{Kind: repository.SessionRefreshed, Session: &repository.Session{SubjectID: "u1"}})
	p.push(repository.SessionEvent{Kind: repository.SessionSignedOut})
	p.push(repository.SessionEvent{Kind: repository.SessionSignedIn, Session: &repository.Session{SubjectID: "u2"}})
	unsub()
	p.push(repository.SessionEvent{Kind: repository.SessionSignedOut})

	want := []string{"u1", "u1", "<nil>", "u2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestNewStore_EventDuringFetchWins(t *testing.T) {
	p := newFakeProvider()
	p.getSession = func(context.Context) (*repository.Session, error) {
		// El proveedor empuja un sign-out mientras el fetch inicial está en vuelo;
		// el fetch luego retorna un valor viejo.
		p.push(repository.SessionEvent{Kind: repository.SessionSignedOut})
		return &repository.Session{SubjectID: "stale"}, nil
	}

	s := NewStore(context.Background(), p)
	defer s.Close()
	if s.Current() != nil {
		t.Fatalf("Current=%+v, want nil (event must win over stale fetch)", s.Current())
	}
}

func TestClose_Unsubscribes(t *testing.T) {
	p := newFakeProvider()
	s := NewStore(context.Background(), p)
	if p.subscribers() != 1 {
		t.Fatalf("store must subscribe to provider")
	}
	calls := 0
	s.Subscribe(func(*repository.Session) { calls++ })
	s.Close()
	s.Close()
	if p.subscribers() != 0 {
		t.Fatalf("Close must unsubscribe from provider")
	}
	if calls != 1 {
		t.Fatalf("listener calls=%d, want 1 (only the replay)", calls)
	}
}

func TestCurrent_DropsExpiredSession(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := newFakeProvider()
	p.session = &repository.Session{SubjectID: "u1", ExpiresAt: now.Add(time.Minute)}

	s := NewStore(context.Background(), p)
	defer s.Close()
	s.now = func() time.Time { return now }
	if s.Current() == nil {
		t.Fatalf("session must be live before its expiry")
	}

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	if s.Current() != nil {
		t.Fatalf("Current=%+v, want nil once expired", s.Current())
	}

	var got []*repository.Session
	unsub := s.Subscribe(func(sess *repository.Session) { got = append(got, sess) })
	defer unsub()
	p.push(repository.SessionEvent{Kind: repository.SessionRefreshed, Session: &repository.Session{SubjectID: "u1", ExpiresAt: now}})
	if len(got) != 2 || got[0] != nil || got[1] != nil {
		t.Fatalf("listeners must never receive an expired session, got %v", got)
	}
}
