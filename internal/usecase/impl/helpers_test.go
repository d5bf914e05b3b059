package impl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"pulse/config"
	"pulse/internal/domain/entity"
	"pulse/internal/domain/repository"
	"pulse/internal/domain/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig(maxActiveSessions int) *config.Config {
	cfg := &config.Config{}
	cfg.Auth = &config.AuthConfig{
		BcryptCost:        12,
		MaxActiveSessions: maxActiveSessions,
	}

	return cfg
}

// fakeStore is a shared in-memory database backing the fake repositories. The
// transaction manager snapshots it before each Execute and restores it when
// the closure fails, mirroring commit/rollback semantics.
type fakeStore struct {
	identities    map[uuid.UUID]*entity.Identity
	refreshTokens map[uuid.UUID]*entity.RefreshToken
	sessions      map[uuid.UUID]*entity.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities:    make(map[uuid.UUID]*entity.Identity),
		refreshTokens: make(map[uuid.UUID]*entity.RefreshToken),
		sessions:      make(map[uuid.UUID]*entity.Session),
	}
}

func (s *fakeStore) snapshot() *fakeStore {
	snap := newFakeStore()
	for id, identity := range s.identities {
		clone := *identity
		clone.Roles = append(entity.Roles(nil), identity.Roles...)
		snap.identities[id] = &clone
	}
	for id, token := range s.refreshTokens {
		clone := *token
		snap.refreshTokens[id] = &clone
	}
	for id, session := range s.sessions {
		clone := *session
		snap.sessions[id] = &clone
	}

	return snap
}

func (s *fakeStore) restore(snap *fakeStore) {
	s.identities = snap.identities
	s.refreshTokens = snap.refreshTokens
	s.sessions = snap.sessions
}

// fakeTxManager runs the closure against the shared store with rollback on error.
type fakeTxManager struct {
	store   *fakeStore
	factory *fakeFactory
}

func newFakeTxManager(store *fakeStore, factory *fakeFactory) *fakeTxManager {
	return &fakeTxManager{store: store, factory: factory}
}

func (m *fakeTxManager) Execute(_ context.Context, fn func(repository.RepositoryFactory) error) error {
	snap := m.store.snapshot()
	if err := fn(m.factory); err != nil {
		m.store.restore(snap)

		return err
	}

	return nil
}

type fakeFactory struct {
	identityRepo *fakeIdentityRepo
	refreshRepo  *fakeRefreshTokenRepo
	sessionRepo  *fakeSessionRepo
}

func (f *fakeFactory) IdentityRepo() repository.IdentityRepository         { return f.identityRepo }
func (f *fakeFactory) RefreshTokenRepo() repository.RefreshTokenRepository { return f.refreshRepo }
func (f *fakeFactory) SessionRepo() repository.SessionRepository           { return f.sessionRepo }

type fakeIdentityRepo struct {
	store *fakeStore

	findErr   error
	createErr error
	updateErr error
}

func (r *fakeIdentityRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Identity, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	identity, ok := r.store.identities[id]
	if !ok {
		return nil, repository.ErrIdentityNotFound
	}

	return identity, nil
}

func (r *fakeIdentityRepo) FindByEmail(_ context.Context, email string) (*entity.Identity, error) {
	for _, identity := range r.store.identities {
		if identity.Email == email {
			return identity, nil
		}
	}

	return nil, repository.ErrIdentityNotFound
}

func (r *fakeIdentityRepo) FindByProviderSubject(_ context.Context, subject string) (*entity.Identity, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, identity := range r.store.identities {
		if identity.ProviderSubject == subject {
			return identity, nil
		}
	}

	return nil, repository.ErrIdentityNotFound
}

func (r *fakeIdentityRepo) Create(_ context.Context, identity *entity.Identity) error {
	if r.createErr != nil {
		return r.createErr
	}
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	identity.CreatedAt = time.Now()
	identity.UpdatedAt = identity.CreatedAt
	r.store.identities[identity.ID] = identity

	return nil
}

func (r *fakeIdentityRepo) Update(_ context.Context, identity *entity.Identity) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.store.identities[identity.ID]; !ok {
		return repository.ErrIdentityNotFound
	}
	identity.UpdatedAt = time.Now()
	r.store.identities[identity.ID] = identity

	return nil
}

func (r *fakeIdentityRepo) AcquireSessionMutex(_ context.Context, id uuid.UUID) error {
	if _, ok := r.store.identities[id]; !ok {
		return repository.ErrIdentityNotFound
	}

	return nil
}

type fakeRefreshTokenRepo struct {
	store *fakeStore

	createErr error
}

func (r *fakeRefreshTokenRepo) Create(_ context.Context, token *entity.RefreshToken) error {
	if r.createErr != nil {
		return r.createErr
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()
	r.store.refreshTokens[token.ID] = token

	return nil
}

func (r *fakeRefreshTokenRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.RefreshToken, error) {
	token, ok := r.store.refreshTokens[id]
	if !ok {
		return nil, repository.ErrRefreshTokenNotFound
	}

	return token, nil
}

func (r *fakeRefreshTokenRepo) FindByIdentityID(_ context.Context, identityID uuid.UUID) ([]*entity.RefreshToken, error) {
	var tokens []*entity.RefreshToken
	for _, token := range r.store.refreshTokens {
		if token.IdentityID == identityID {
			tokens = append(tokens, token)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.After(tokens[j].CreatedAt) })

	return tokens, nil
}

func (r *fakeRefreshTokenRepo) MarkUsed(_ context.Context, id uuid.UUID) error {
	token, ok := r.store.refreshTokens[id]
	if !ok {
		return repository.ErrRefreshTokenNotFound
	}
	if token.Used {
		return repository.ErrRefreshTokenUsed
	}
	token.Used = true

	return nil
}

func (r *fakeRefreshTokenRepo) Revoke(_ context.Context, id uuid.UUID) error {
	token, ok := r.store.refreshTokens[id]
	if !ok {
		return repository.ErrRefreshTokenNotFound
	}
	token.Revoke(time.Now())

	return nil
}

func (r *fakeRefreshTokenRepo) DeleteByIdentityID(_ context.Context, identityID uuid.UUID) error {
	for id, token := range r.store.refreshTokens {
		if token.IdentityID == identityID {
			delete(r.store.refreshTokens, id)
		}
	}

	return nil
}

func (r *fakeRefreshTokenRepo) DeleteExpired(_ context.Context) error {
	now := time.Now()
	for id, token := range r.store.refreshTokens {
		if token.IsExpired(now) {
			delete(r.store.refreshTokens, id)
		}
	}

	return nil
}

func (r *fakeRefreshTokenRepo) CountActiveByIdentityID(_ context.Context, identityID uuid.UUID) (int, error) {
	now := time.Now()
	count := 0
	for _, token := range r.store.refreshTokens {
		if token.IdentityID == identityID && !token.Used && !token.IsRevoked() && !token.IsExpired(now) {
			count++
		}
	}

	return count, nil
}

type fakeSessionRepo struct {
	store *fakeStore
}

func (r *fakeSessionRepo) Create(_ context.Context, session *entity.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	if session.LastUsedAt.IsZero() {
		session.LastUsedAt = session.CreatedAt
	}
	r.store.sessions[session.ID] = session

	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	session, ok := r.store.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}

	return session, nil
}

func (r *fakeSessionRepo) FindByRefreshTokenID(_ context.Context, refreshTokenID uuid.UUID) (*entity.Session, error) {
	for _, session := range r.store.sessions {
		if session.RefreshTokenID == refreshTokenID {
			return session, nil
		}
	}

	return nil, repository.ErrSessionNotFound
}

func (r *fakeSessionRepo) FindActiveByIdentityID(_ context.Context, identityID uuid.UUID) ([]*entity.Session, error) {
	now := time.Now()
	var sessions []*entity.Session
	for _, session := range r.store.sessions {
		if session.IdentityID == identityID && session.IsActive(now) {
			sessions = append(sessions, session)
		}
	}

	return sessions, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, session *entity.Session) error {
	if _, ok := r.store.sessions[session.ID]; !ok {
		return repository.ErrSessionNotFound
	}
	r.store.sessions[session.ID] = session

	return nil
}

func (r *fakeSessionRepo) DeleteByIdentityID(_ context.Context, identityID uuid.UUID) error {
	for id, session := range r.store.sessions {
		if session.IdentityID == identityID {
			delete(r.store.sessions, id)
		}
	}

	return nil
}

func (r *fakeSessionRepo) DeleteExpired(_ context.Context) error {
	now := time.Now()
	for id, session := range r.store.sessions {
		if !session.IsActive(now) {
			delete(r.store.sessions, id)
		}
	}

	return nil
}

// fakeCodec issues deterministic raw tokens and tracks revocations in memory.
type fakeCodec struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
	counter    int
	claims     map[string]*service.Claims
	revoked    map[uuid.UUID]bool
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		claims:     make(map[string]*service.Claims),
		revoked:    make(map[uuid.UUID]bool),
	}
}

func (c *fakeCodec) Issue(identityID uuid.UUID, roles []string) (*service.CredentialPair, error) {
	c.counter++
	now := time.Now()

	accessRaw := fmt.Sprintf("access-%d", c.counter)
	refreshRaw := fmt.Sprintf("refresh-%d", c.counter)

	c.claims[accessRaw] = &service.Claims{
		IdentityID: identityID,
		Roles:      roles,
		TokenID:    uuid.New(),
		TokenType:  "access",
		IssuedAt:   now,
		ExpiresAt:  now.Add(c.accessTTL),
	}
	c.claims[refreshRaw] = &service.Claims{
		IdentityID: identityID,
		Roles:      roles,
		TokenID:    uuid.New(),
		TokenType:  "refresh",
		IssuedAt:   now,
		ExpiresAt:  now.Add(c.refreshTTL),
	}

	return &service.CredentialPair{
		AccessToken:         accessRaw,
		RefreshToken:        refreshRaw,
		AccessExpirySeconds: int64(c.accessTTL.Seconds()),
	}, nil
}

func (c *fakeCodec) verify(raw, tokenType string) (*service.Claims, error) {
	claims, ok := c.claims[raw]
	if !ok || claims.TokenType != tokenType {
		return nil, errors.New("invalid token")
	}
	if time.Now().After(claims.ExpiresAt) {
		return nil, errors.New("token expired")
	}
	if c.revoked[claims.TokenID] {
		return nil, errors.New("token revoked")
	}

	return claims, nil
}

func (c *fakeCodec) VerifyAccess(_ context.Context, raw string) (*service.Claims, error) {
	return c.verify(raw, "access")
}

func (c *fakeCodec) VerifyRefresh(_ context.Context, raw string) (*service.Claims, error) {
	return c.verify(raw, "refresh")
}

func (c *fakeCodec) Decode(raw string) (*service.Claims, error) {
	claims, ok := c.claims[raw]
	if !ok {
		return nil, errors.New("malformed token")
	}

	return claims, nil
}

func (c *fakeCodec) RevokeByID(_ context.Context, tokenID uuid.UUID, _ time.Time) error {
	c.revoked[tokenID] = true

	return nil
}

func (c *fakeCodec) RefreshTokenDuration() time.Duration {
	return c.refreshTTL
}

// fakeHasher is a reversible stand-in for the bcrypt hasher.
type fakeHasher struct{}

func (fakeHasher) Hash(raw string) (string, error) {
	return "hashed:" + raw, nil
}

func (fakeHasher) Check(raw, hash string) bool {
	return hash == "hashed:"+raw
}

type fakeProvider struct {
	tokens *service.ProviderTokens
	claims *service.ProviderClaims

	exchangeErr error
	validateErr error
}

func (p *fakeProvider) ExchangeCode(_ context.Context, _, _ string) (*service.ProviderTokens, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}

	return p.tokens, nil
}

func (p *fakeProvider) ValidateToken(_ context.Context, _ string) (*service.ProviderClaims, error) {
	if p.validateErr != nil {
		return nil, p.validateErr
	}

	return p.claims, nil
}

func (p *fakeProvider) RefreshTokens(_ context.Context, _ string) (*service.ProviderTokens, error) {
	return p.tokens, nil
}

func (p *fakeProvider) RevokeToken(_ context.Context, _ string) error {
	return nil
}

func (p *fakeProvider) FetchUserInfo(_ context.Context, _ string) (*service.ProviderClaims, error) {
	return p.claims, nil
}

type fakePublisher struct {
	events []*service.SecurityEvent
}

func (p *fakePublisher) PublishSecurityEvent(_ context.Context, event *service.SecurityEvent) error {
	p.events = append(p.events, event)

	return nil
}

func (p *fakePublisher) Close() error {
	return nil
}

func (p *fakePublisher) eventTypes() []string {
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}

	return types
}

type fakeRevocationStore struct {
	entries map[uuid.UUID]time.Time
}

func newFakeRevocationStore() *fakeRevocationStore {
	return &fakeRevocationStore{entries: make(map[uuid.UUID]time.Time)}
}

func (s *fakeRevocationStore) Revoke(_ context.Context, tokenID uuid.UUID, expiresAt time.Time) error {
	s.entries[tokenID] = expiresAt

	return nil
}

func (s *fakeRevocationStore) IsRevoked(_ context.Context, tokenID uuid.UUID) (bool, error) {
	_, ok := s.entries[tokenID]

	return ok, nil
}

func (s *fakeRevocationStore) PurgeExpired(_ context.Context) error {
	now := time.Now()
	for id, expiresAt := range s.entries {
		if now.After(expiresAt) {
			delete(s.entries, id)
		}
	}

	return nil
}

// authFixture bundles an authService wired against the in-memory fakes.
type authFixture struct {
	store        *fakeStore
	identityRepo *fakeIdentityRepo
	refreshRepo  *fakeRefreshTokenRepo
	sessionRepo  *fakeSessionRepo
	codec        *fakeCodec
	provider     *fakeProvider
	publisher    *fakePublisher
	service      *authService
}

func newAuthFixture(maxActiveSessions int) *authFixture {
	store := newFakeStore()
	identityRepo := &fakeIdentityRepo{store: store}
	refreshRepo := &fakeRefreshTokenRepo{store: store}
	sessionRepo := &fakeSessionRepo{store: store}
	factory := &fakeFactory{
		identityRepo: identityRepo,
		refreshRepo:  refreshRepo,
		sessionRepo:  sessionRepo,
	}

	codec := newFakeCodec()
	provider := &fakeProvider{
		tokens: &service.ProviderTokens{AccessToken: "provider-access", TokenType: "Bearer"},
		claims: &service.ProviderClaims{Subject: "subject-1", Email: "dana@example.com", Name: "Dana"},
	}
	publisher := &fakePublisher{}

	svc := NewAuthService(AuthServiceParams{
		TxManager:    newFakeTxManager(store, factory),
		IdentityRepo: identityRepo,
		Codec:        codec,
		Hasher:       fakeHasher{},
		Provider:     provider,
		Publisher:    publisher,
		Config:       newTestConfig(maxActiveSessions),
		Logger:       newDiscardLogger(),
	})

	return &authFixture{
		store:        store,
		identityRepo: identityRepo,
		refreshRepo:  refreshRepo,
		sessionRepo:  sessionRepo,
		codec:        codec,
		provider:     provider,
		publisher:    publisher,
		service:      svc.(*authService),
	}
}

// seedIdentity inserts an identity directly into the store.
func (f *authFixture) seedIdentity(subject, email, name string, roles entity.Roles, active bool) *entity.Identity {
	identity := &entity.Identity{
		ID:              uuid.New(),
		Email:           email,
		Name:            name,
		ProviderSubject: subject,
		Roles:           roles,
		Active:          active,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	f.store.identities[identity.ID] = identity

	return identity
}
