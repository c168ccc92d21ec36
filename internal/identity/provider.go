package identity

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/sentinel/internal/cache"
	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

var (
	// ErrInvalidCredentials email o password incorrectos.
	ErrInvalidCredentials = fmt.Errorf("identity: invalid credentials: %w", repository.ErrUnauthorized)

	// ErrEmailTaken ya existe una cuenta con ese email.
	ErrEmailTaken = fmt.Errorf("identity: email already registered: %w", repository.ErrConflict)

	// ErrWeakPassword la password no cumple el largo mínimo.
	ErrWeakPassword = fmt.Errorf("identity: password too short: %w", repository.ErrInvalidInput)

	// ErrInvalidEmail el email no es una dirección válida.
	ErrInvalidEmail = fmt.Errorf("identity: invalid email: %w", repository.ErrInvalidInput)

	// ErrNoSession Refresh sin sesión vigente.
	ErrNoSession = fmt.Errorf("identity: no active session: %w", repository.ErrUnauthorized)
)

const (
	sessionKey = "session:current"
	credPrefix = "cred:"
)

// Config parámetros del proveedor local.
type Config struct {
	Issuer            string
	SigningKey        []byte // vacío => clave efímera (las sesiones no sobreviven reinicios)
	SessionTTL        time.Duration
	BcryptCost        int
	MinPasswordLength int
}

type credential struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email"`
	Hash      string `json:"hash"`
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwtv5.RegisteredClaims
}

// timer es la parte de *time.Timer que usa el provider.
type timer interface{ Stop() bool }

func realAfterFunc(d time.Duration, f func()) timer { return time.AfterFunc(d, f) }

// Provider es el proveedor de identidad local.
type Provider struct {
	cache     cache.Client
	cfg       Config
	now       func() time.Time
	afterFunc func(time.Duration, func()) timer

	mu        sync.Mutex
	listeners map[int]func(repository.SessionEvent)
	nextID    int

	// lifeMu serializa inicio, fin y expiración de la sesión (incluida la
	// emisión), así un vencimiento viejo nunca pisa una sesión nueva.
	lifeMu    sync.Mutex
	expiry    timer
	expiryGen uint64
}

var _ repository.IdentityProvider = (*Provider)(nil)

// New crea el proveedor sobre el cache client dado.
func New(c cache.Client, cfg Config) (*Provider, error) {
	if c == nil {
		return nil, errors.New("identity: cache client is nil")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "sentinel-local"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 8
	}
	if len(cfg.SigningKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("identity: generate signing key: %w", err)
		}
		cfg.SigningKey = key
		logger.L().Warn("identity: no signing key configured, using an ephemeral one",
			logger.Component("identity"))
	}
	return &Provider{
		cache:     c,
		cfg:       cfg,
		now:       time.Now,
		afterFunc: realAfterFunc,
		listeners: make(map[int]func(repository.SessionEvent)),
	}, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// SignUp registra credenciales nuevas e inicia sesión con ellas.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*repository.Session, error) {
	cred, err := p.register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return p.startSession(ctx, cred, repository.SessionSignedIn)
}

// Register crea la cuenta sin iniciar sesión (seed de desarrollo). Retorna
// el subject asignado.
func (p *Provider) Register(ctx context.Context, email, password string) (string, error) {
	cred, err := p.register(ctx, email, password)
	if err != nil {
		return "", err
	}
	return cred.SubjectID, nil
}

func (p *Provider) register(ctx context.Context, email, password string) (credential, error) {
	log := logger.From(ctx).With(logger.Component("identity"), logger.Op("Register"))

	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return credential{}, ErrInvalidEmail
	}
	if len(password) < p.cfg.MinPasswordLength {
		return credential{}, ErrWeakPassword
	}

	if _, err := p.cache.Get(ctx, credPrefix+email); err == nil {
		return credential{}, ErrEmailTaken
	} else if !cache.IsNotFound(err) {
		return credential{}, fmt.Errorf("identity: lookup credential: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return credential{}, fmt.Errorf("identity: hash password: %w", err)
	}
	cred := credential{SubjectID: uuid.NewString(), Email: email, Hash: string(hash)}
	raw, err := json.Marshal(cred)
	if err != nil {
		return credential{}, err
	}
	if err := p.cache.Set(ctx, credPrefix+email, string(raw), 0); err != nil {
		return credential{}, fmt.Errorf("identity: store credential: %w", err)
	}
	log.Info("account registered", logger.Email(email), logger.SubjectID(cred.SubjectID))
	return cred, nil
}

// SignIn verifica credenciales y crea una sesión nueva.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*repository.Session, error) {
	log := logger.From(ctx).With(logger.Component("identity"), logger.Op("SignIn"))

	email = normalizeEmail(email)
	raw, err := p.cache.Get(ctx, credPrefix+email)
	if cache.IsNotFound(err) {
		// Compara contra un hash fijo: el tiempo no depende de si el email existe.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("identity: lookup credential: %w", err)
	}

	var cred credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, fmt.Errorf("identity: decode credential: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.Hash), []byte(password)); err != nil {
		log.Info("sign-in rejected", logger.Email(email))
		return nil, ErrInvalidCredentials
	}
	return p.startSession(ctx, cred, repository.SessionSignedIn)
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sentinel-dummy-password"), bcrypt.MinCost)

// Refresh re-emite el token de la sesión vigente con una expiración nueva.
func (p *Provider) Refresh(ctx context.Context) (*repository.Session, error) {
	s, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return p.startSession(ctx, credential{SubjectID: s.SubjectID, Email: s.Email}, repository.SessionRefreshed)
}

func (p *Provider) startSession(ctx context.Context, cred credential, kind repository.SessionEventKind) (*repository.Session, error) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	now := p.now()
	exp := now.Add(p.cfg.SessionTTL)
	claims := sessionClaims{
		Email: cred.Email,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   cred.SubjectID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(p.cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("identity: sign token: %w", err)
	}
	if err := p.cache.Set(ctx, sessionKey, token, p.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("identity: persist session: %w", err)
	}

	s := &repository.Session{
		AccessToken: token,
		SubjectID:   cred.SubjectID,
		Email:       cred.Email,
		ExpiresAt:   exp.Truncate(time.Second),
	}
	p.armExpiryLocked(s.ExpiresAt.Sub(now))
	logger.From(ctx).Info("session started",
		logger.Component("identity"), logger.SubjectID(s.SubjectID), logger.String("kind", string(kind)))
	p.emit(repository.SessionEvent{Kind: kind, Session: s})
	return s, nil
}

// GetSession retorna la sesión persistida o nil si no hay una válida.
func (p *Provider) GetSession(ctx context.Context) (*repository.Session, error) {
	token, err := p.cache.Get(ctx, sessionKey)
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: read session: %w", err)
	}

	s, err := p.parse(token)
	if err != nil {
		logger.From(ctx).Debug("discarding persisted session",
			logger.Component("identity"), logger.Err(err))
		_ = p.cache.Delete(ctx, sessionKey)
		return nil, nil
	}

	// Sesión persistida por un proceso anterior: nadie armó su vencimiento.
	p.lifeMu.Lock()
	if p.expiry == nil {
		p.armExpiryLocked(s.ExpiresAt.Sub(p.now()))
	}
	p.lifeMu.Unlock()
	return s, nil
}

// armExpiryLocked programa la emisión de SessionExpired en d. Reemplaza
// cualquier vencimiento previo. Requiere lifeMu.
func (p *Provider) armExpiryLocked(d time.Duration) {
	p.stopExpiryLocked()
	gen := p.expiryGen
	p.expiry = p.afterFunc(d, func() { p.expire(gen) })
}

func (p *Provider) stopExpiryLocked() {
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	p.expiryGen++
}

// expire destruye la sesión vencida y lo notifica. Un vencimiento de una
// sesión ya reemplazada o cerrada se ignora.
func (p *Provider) expire(gen uint64) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if gen != p.expiryGen {
		return
	}
	p.expiry = nil
	p.expiryGen++

	log := logger.L().With(logger.Component("identity"), logger.Op("expire"))
	if err := p.cache.Delete(context.Background(), sessionKey); err != nil {
		log.Warn("delete expired session failed", logger.Err(err))
	}
	log.Info("session expired")
	p.emit(repository.SessionEvent{Kind: repository.SessionExpired})
}

func (p *Provider) parse(token string) (*repository.Session, error) {
	var claims sessionClaims
	_, err := jwtv5.ParseWithClaims(token, &claims,
		func(*jwtv5.Token) (any, error) { return p.cfg.SigningKey, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(p.cfg.Issuer),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("identity: token without subject")
	}
	return &repository.Session{
		AccessToken: token,
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// OnSessionChange registra un listener. Los listeners se invocan en la
// goroutine que produjo el cambio.
func (p *Provider) OnSessionChange(listener func(repository.SessionEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// SignOut elimina la sesión persistida y notifica a los listeners.
func (p *Provider) SignOut(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	p.stopExpiryLocked()
	if err := p.cache.Delete(ctx, sessionKey); err != nil {
		return fmt.Errorf("identity: delete session: %w", err)
	}
	logger.From(ctx).Info("signed out", logger.Component("identity"))
	p.emit(repository.SessionEvent{Kind: repository.SessionSignedOut})
	return nil
}

// Close cancela el vencimiento programado. La sesión persistida no se toca.
func (p *Provider) Close() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	p.stopExpiryLocked()
}

func (p *Provider) emit(ev repository.SessionEvent) {
	p.mu.Lock()
	ls := make([]func(repository.SessionEvent), 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}
