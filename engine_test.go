package praxis

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

// testClock is a controllable time source shared between the engine and
// the in-memory store so expiry tests can time travel consistently.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory Store used by the engine tests. It mirrors the
// semantics of the Postgres implementation, including the validation order
// of Rotate and the used guard of ConsumeAndResetPassword.
type memStore struct {
	mu    sync.Mutex
	clock *testClock

	users       map[string]*User
	emails      map[string]string
	refresh     map[string]*RefreshToken
	backup      map[string][]*BackupCode
	creds       []*WebAuthnCredential
	resets      map[string]*ResetToken
	history     []*LoginRecord
	failNextErr error
}

func newMemStore(clock *testClock) *memStore {
	return &memStore{
		clock:   clock,
		users:   map[string]*User{},
		emails:  map[string]string{},
		refresh: map[string]*RefreshToken{},
		backup:  map[string][]*BackupCode{},
		resets:  map[string]*ResetToken{},
	}
}

// failNext makes the next store call return err, for backend-failure tests.
func (m *memStore) failNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextErr = err
}

func (m *memStore) takeFailure() error {
	err := m.failNextErr
	m.failNextErr = nil
	return err
}

func (m *memStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.emails[u.Email]; ok {
		return ErrDuplicateRecord
	}
	cp := *u
	m.users[u.ID] = &cp
	m.emails[u.Email] = u.ID
	return nil
}

func (m *memStore) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	id, ok := m.emails[email]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *memStore) UserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrRecordNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memStore) SetTOTP(_ context.Context, userID string, secretEnc []byte, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrRecordNotFound
	}
	u.TOTPSecretEnc = append([]byte(nil), secretEnc...)
	u.TOTPEnabled = enabled
	if !enabled && secretEnc == nil {
		u.TOTPSecretEnc = nil
		u.TOTPLastCounter = 0
	}
	return nil
}

func (m *memStore) UpdateTOTPCounter(_ context.Context, userID string, counter int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrRecordNotFound
	}
	u.TOTPLastCounter = counter
	return nil
}

func (m *memStore) InsertRefreshToken(_ context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.refresh[t.ID]; ok {
		return ErrDuplicateRecord
	}
	cp := *t
	m.refresh[t.ID] = &cp
	return nil
}

func (m *memStore) RefreshTokenByID(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) Rotate(_ context.Context, oldID string, presentedHash []byte, next *RefreshToken, absoluteLifetime time.Duration) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.refresh[oldID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *old

	now := m.clock.Now()
	switch {
	case old.Revoked && old.RevokedReason == RevokeReasonSuperseded:
		return &cp, ErrTokenSuperseded
	case old.Revoked:
		return &cp, ErrTokenRevoked
	case subtle.ConstantTimeCompare(old.TokenHash, presentedHash) != 1:
		return &cp, ErrTokenValueMismatch
	case now.After(old.ExpiresAt):
		return &cp, ErrTokenExpired
	case absoluteLifetime > 0 && now.After(old.RootIssuedAt.Add(absoluteLifetime)):
		return &cp, ErrChainLifetimeExceeded
	}

	old.Revoked = true
	old.RevokedReason = RevokeReasonSuperseded

	next.UserID = old.UserID
	next.ParentID = old.ID
	next.RootID = old.RootID
	next.RootIssuedAt = old.RootIssuedAt
	inserted := *next
	m.refresh[next.ID] = &inserted
	return &cp, nil
}

func (m *memStore) RevokeRefreshToken(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[id]
	if !ok || t.Revoked {
		return ErrRecordNotFound
	}
	t.Revoked = true
	t.RevokedReason = reason
	return nil
}

func (m *memStore) RevokeChain(_ context.Context, rootID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.refresh {
		if t.RootID == rootID && !t.Revoked {
			t.Revoked = true
			t.RevokedReason = reason
		}
	}
	return nil
}

func (m *memStore) RevokeAllRefreshTokens(_ context.Context, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.refresh {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			t.RevokedReason = reason
		}
	}
	return nil
}

func (m *memStore) ActiveRefreshTokens(_ context.Context, userID string) ([]*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	var out []*RefreshToken
	for _, t := range m.refresh {
		if t.UserID == userID && !t.Revoked && t.ExpiresAt.After(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (m *memStore) ReplaceBackupCodes(_ context.Context, userID string, codes []*BackupCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	replacement := make([]*BackupCode, 0, len(codes))
	for _, c := range codes {
		cp := *c
		replacement = append(replacement, &cp)
	}
	m.backup[userID] = replacement
	return nil
}

func (m *memStore) UnusedBackupCodes(_ context.Context, userID string) ([]*BackupCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BackupCode
	for _, c := range m.backup[userID] {
		if !c.Used {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ConsumeBackupCode(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, codes := range m.backup {
		for _, c := range codes {
			if c.ID != id {
				continue
			}
			if c.Used {
				return false, nil
			}
			c.Used = true
			at := m.clock.Now()
			c.UsedAt = &at
			return true, nil
		}
	}
	return false, ErrRecordNotFound
}

func (m *memStore) CountUnusedBackupCodes(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.backup[userID] {
		if !c.Used {
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteBackupCodes(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backup, userID)
	return nil
}

func (m *memStore) InsertWebAuthnCredential(_ context.Context, c *WebAuthnCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.creds {
		if string(existing.CredentialID) == string(c.CredentialID) {
			return ErrDuplicateRecord
		}
	}
	cp := *c
	m.creds = append(m.creds, &cp)
	return nil
}

func (m *memStore) WebAuthnCredentialsByUser(_ context.Context, userID string) ([]*WebAuthnCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*WebAuthnCredential
	for _, c := range m.creds {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) WebAuthnCredentialByCredentialID(_ context.Context, credentialID []byte) (*WebAuthnCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if string(c.CredentialID) == string(credentialID) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *memStore) UpdateWebAuthnCredentialUsage(_ context.Context, id string, signCount uint32, lastUsedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.ID == id {
			c.SignCount = signCount
			at := lastUsedAt
			c.LastUsedAt = &at
			return nil
		}
	}
	return ErrRecordNotFound
}

func (m *memStore) RenameWebAuthnCredential(_ context.Context, userID, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.ID == id && c.UserID == userID {
			c.Name = name
			return nil
		}
	}
	return ErrRecordNotFound
}

func (m *memStore) DeleteWebAuthnCredential(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.creds {
		if c.ID == id && c.UserID == userID {
			m.creds = append(m.creds[:i], m.creds[i+1:]...)
			return nil
		}
	}
	return ErrRecordNotFound
}

func (m *memStore) InsertResetToken(_ context.Context, t *ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.resets[t.ID] = &cp
	return nil
}

func (m *memStore) ResetTokenByID(_ context.Context, id string) (*ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) InvalidateResetTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.resets {
		if t.UserID == userID && !t.Used {
			t.Used = true
		}
	}
	return nil
}

func (m *memStore) IncrementResetAttempts(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[id]
	if !ok {
		return 0, ErrRecordNotFound
	}
	t.VerificationCount++
	return t.VerificationCount, nil
}

func (m *memStore) ConsumeAndResetPassword(_ context.Context, tokenID, userID, newHash, usedIP string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[tokenID]
	if !ok || t.Used {
		return ErrRecordNotFound
	}
	t.Used = true
	t.UsedIP = usedIP

	u, ok := m.users[userID]
	if !ok {
		return ErrRecordNotFound
	}
	u.PasswordHash = newHash

	for _, rt := range m.refresh {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			rt.RevokedReason = RevokeReasonPasswordReset
		}
	}
	return nil
}

func (m *memStore) AppendLoginRecord(_ context.Context, r *LoginRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.history = append(m.history, &cp)
	return nil
}

func (m *memStore) LoginRecords(_ context.Context, userID string, limit int) ([]*LoginRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LoginRecord
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		if m.history[i].UserID == userID {
			cp := *m.history[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) SeenLogin(_ context.Context, userID string, ipHash, fpHash []byte) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ipSeen, fpSeen bool
	for _, r := range m.history {
		if r.UserID != userID || !r.Success {
			continue
		}
		if ipHash != nil && string(r.IPHash) == string(ipHash) {
			ipSeen = true
		}
		if fpHash != nil && string(r.FingerprintHash) == string(fpHash) {
			fpSeen = true
		}
	}
	return ipSeen, fpSeen, nil
}

func (m *memStore) PruneLoginRecords(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*LoginRecord
	var pruned int64
	for _, r := range m.history {
		if r.At.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, r)
	}
	m.history = kept
	return pruned, nil
}

var _ Store = (*memStore)(nil)

// mailRecorder captures reset mails for assertions.
type mailRecorder struct {
	mu    sync.Mutex
	to    []string
	links []string
	fail  error
}

func (m *mailRecorder) SendResetLink(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.to = append(m.to, to)
	m.links = append(m.links, link)
	return nil
}

func (m *mailRecorder) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *mailRecorder) lastLink() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		return ""
	}
	return m.links[len(m.links)-1]
}

type staticGeoIP struct {
	loc Location
}

func (g staticGeoIP) Lookup(context.Context, string) (Location, error) {
	return g.loc, nil
}

type testEnv struct {
	engine *Engine
	store  *memStore
	clock  *testClock
	mini   *miniredis.Miniredis
	mails  *mailRecorder
	sink   *ChannelSink
}

func engineTestConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = "HS256"
	cfg.Token.HMACSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.EncryptionKey = []byte("an-exactly-32-byte-test-key!!!##")[:32]
	cfg.Reset.LinkBase = "https://id.example.com/reset#"
	return cfg
}

func newTestEnv(t *testing.T, cfg Config) (*testEnv, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	clock := newTestClock()
	st := newMemStore(clock)
	mails := &mailRecorder{}
	sink := NewChannelSink(64)

	engine, err := New().
		WithConfig(cfg).
		WithStore(st).
		WithRedis(rdb).
		WithMailer(mails).
		WithAuditSink(sink).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	engine.now = clock.Now

	env := &testEnv{
		engine: engine,
		store:  st,
		clock:  clock,
		mini:   mr,
		mails:  mails,
		sink:   sink,
	}
	return env, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func (env *testEnv) createUser(t *testing.T, email, pass string) *User {
	t.Helper()
	hash := ""
	if pass != "" {
		var err error
		hash, err = env.engine.hasher.Hash(pass)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
	}
	u := &User{
		ID:           uuid.NewString(),
		Email:        canonicalEmail(email),
		Username:     email,
		PasswordHash: hash,
		Verified:     true,
		CreatedAt:    env.clock.Now(),
	}
	if err := env.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// totpCode computes the code an authenticator would show at the env clock
// plus stepOffset periods.
func (env *testEnv) totpCode(t *testing.T, secret string, stepOffset int) string {
	t.Helper()
	period := env.engine.cfg.TOTP.Period
	at := env.clock.Now().Add(time.Duration(stepOffset*period) * time.Second)
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    uint(period),
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate totp code: %v", err)
	}
	return code
}

// enrollTOTP walks the full enrollment for userID and returns the shared
// secret and the initial backup-code batch. The clock is advanced one
// period afterwards so the confirmation code is not the next login's code.
func (env *testEnv) enrollTOTP(t *testing.T, userID string) (string, []string) {
	t.Helper()
	enrollment, err := env.engine.BeginTOTPEnrollment(context.Background(), userID)
	if err != nil {
		t.Fatalf("BeginTOTPEnrollment failed: %v", err)
	}
	codes, err := env.engine.ConfirmTOTPEnrollment(context.Background(), userID, env.totpCode(t, enrollment.SecretBase32, 0))
	if err != nil {
		t.Fatalf("ConfirmTOTPEnrollment failed: %v", err)
	}
	env.clock.Advance(time.Duration(env.engine.cfg.TOTP.Period) * time.Second)
	return enrollment.SecretBase32, codes
}

func testDevice() DeviceInfo {
	return DeviceInfo{
		IP:          "203.0.113.7",
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		Fingerprint: "fp-alpha",
	}
}
