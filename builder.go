package authgate

import (
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by authgate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	backend    Backend
	httpClient *http.Client
	tokens     TokenStore
	auditSink  AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend installs a custom [Backend]. When omitted, Build constructs an
// [HTTPBackend] from Config.Backend.BaseURL.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithHTTPClient overrides the http.Client used by the default
// [HTTPBackend]; ignored when WithBackend is set.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithTokenStore describes the withtokenstore operation and its observable behavior.
func (b *Builder) WithTokenStore(store TokenStore) *Builder {
	b.tokens = store
	return b
}

// WithRedis is a convenience for fleet deployments: it installs a
// [RedisTokenStore] using Config.Session.KeyPrefix.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.tokens = NewRedisTokenStore(client, b.config.Session.KeyPrefix)
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.tokens == nil {
		return nil, errors.New("token store required")
	}

	backend := b.backend
	if backend == nil {
		if cfg.Backend.BaseURL == "" {
			return nil, errors.New("backend required: set Config.Backend.BaseURL or use WithBackend")
		}
		backend = NewHTTPBackend(cfg.Backend, b.httpClient)
	}

	engine := &Engine{
		config:    cfg,
		backend:   backend,
		tokens:    b.tokens,
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:   NewMetrics(cfg.Metrics),
		qrTracked: make(map[string]*qrRequestState),
		now:       time.Now,
	}

	b.built = true

	return engine, nil
}
