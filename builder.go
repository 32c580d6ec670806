package praxis

import (
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"

	"github.com/praxis-id/praxis/cryptoutil"
	"github.com/praxis-id/praxis/internal/limiters"
	"github.com/praxis-id/praxis/internal/stores"
	"github.com/praxis-id/praxis/jwt"
	"github.com/praxis-id/praxis/password"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	store  Store
	redis  redis.UniversalClient

	mailer    Mailer
	geoip     GeoIP
	auditSink AuditSink
	logger    Logger

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithGeoIP(g GeoIP) *Builder {
	b.geoip = g
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the configuration, wires every component, and returns
// a ready Engine. WebAuthn is optional: when no relying party is
// configured the WebAuthn operations return ErrWebAuthnVerification.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.Argon)
	if err != nil {
		return nil, err
	}

	jwtCfg := jwt.Config{
		AccessTTL: cfg.Token.AccessTTL,
		Issuer:    cfg.Token.Issuer,
		Audience:  cfg.Token.Audience,
		Leeway:    cfg.Token.Leeway,
	}
	switch cfg.Token.SigningMethod {
	case "HS256":
		jwtCfg.SigningMethod = jwt.MethodHS256
		jwtCfg.PrivateKey = cfg.Token.HMACSecret
	default:
		jwtCfg.SigningMethod = jwt.MethodEd25519
		jwtCfg.PrivateKey = cfg.Token.PrivateKey
		jwtCfg.PublicKey = cfg.Token.PublicKey
	}
	tokens, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}

	cipher, err := cryptoutil.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	var wan *webauthn.WebAuthn
	if cfg.WebAuthn.RPID != "" {
		wan, err = webauthn.New(&webauthn.Config{
			RPDisplayName: cfg.WebAuthn.RPDisplayName,
			RPID:          cfg.WebAuthn.RPID,
			RPOrigins:     cfg.WebAuthn.RPOrigins,
		})
		if err != nil {
			return nil, err
		}
	}

	engine := &Engine{
		cfg:        cfg,
		store:      b.store,
		redis:      b.redis,
		hasher:     hasher,
		tokens:     tokens,
		cipher:     cipher,
		decrypt:    cryptoutil.NewDecryptCache(cfg.History.DecryptCacheSize),
		totp:       newTOTPManager(cfg.TOTP),
		wan:        wan,
		pending:    stores.NewPending2FAStore(b.redis, "p2fa"),
		ceremonies: stores.NewCeremonyStore(b.redis, "wan"),
		loginLimiter: limiters.NewLoginLimiter(b.redis, limiters.LoginConfig{
			MaxAttempts: cfg.Limits.LoginMaxAttempts,
			Window:      cfg.Limits.LoginWindow,
			ThrottleIP:  true,
		}),
		resetLimiter: limiters.NewResetLimiter(b.redis, limiters.ResetConfig{
			MaxRequests: cfg.Limits.ResetMaxRequests,
			Window:      cfg.Limits.ResetWindow,
			ThrottleIP:  true,
		}),
		sfLimiter: limiters.NewSecondFactorLimiter(b.redis, limiters.SecondFactorConfig{
			MaxAttempts: cfg.Limits.SecondFactorMax,
			Window:      cfg.Limits.SecondFactorWindow,
		}),
		mailer:  b.mailer,
		geoip:   b.geoip,
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  b.logger,
		now:     time.Now,
	}

	return engine, nil
}
