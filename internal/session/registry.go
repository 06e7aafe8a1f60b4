package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cr8-studio/relay/internal/broadcast"
	"github.com/cr8-studio/relay/internal/framestore"
	"github.com/cr8-studio/relay/internal/journal"
	"github.com/cr8-studio/relay/internal/model"
)

// Registry is the sole mutator of session lifecycle. Cross-identity
// operations only contend on the short-lived map lock; per-identity state is
// serialized on the Session itself.
type Registry struct {
	store    framestore.Store
	interval time.Duration
	log      zerolog.Logger
	rec      journal.Recorder

	mu       sync.RWMutex
	sessions map[string]*Session
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Store framestore.Store
	// FrameInterval is the broadcast cadence handed to each session engine.
	FrameInterval time.Duration
	Log           zerolog.Logger
	Recorder      journal.Recorder
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Recorder == nil {
		cfg.Recorder = journal.Nop{}
	}
	return &Registry{
		store:    cfg.Store,
		interval: cfg.FrameInterval,
		log:      cfg.Log,
		rec:      cfg.Recorder,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for identity, creating it (and starting
// its broadcast engine actor) on first use. Idempotent: the same identity
// always maps to the same live session.
func (r *Registry) GetOrCreate(identity string) *Session {
	r.mu.RLock()
	sess, ok := r.sessions[identity]
	r.mu.RUnlock()
	if ok {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[identity]; ok {
		return sess
	}

	sess = &Session{identity: identity}
	sess.engine = broadcast.NewEngine(broadcast.Config{
		Identity: identity,
		Store:    r.store,
		Browser:  sess.Browser,
		Interval: r.interval,
		Log:      r.log,
		Recorder: r.rec,
	})
	go sess.engine.Run()

	r.sessions[identity] = sess
	r.rec.Record(identity, journal.EventSessionCreated, "")
	r.log.Info().Str("identity", identity).Msg("session created")
	return sess
}

// Get returns the session for identity, nil if absent.
func (r *Registry) Get(identity string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[identity]
}

// Remove destroys the session for identity. Valid only once both endpoints
// are detached and no broadcast run is live; a violation is a caller bug and
// is reported as ErrSessionBusy without touching the session.
func (r *Registry) Remove(identity string) error {
	r.mu.RLock()
	sess, ok := r.sessions[identity]
	r.mu.RUnlock()
	if !ok {
		return model.ErrSessionNotFound
	}

	// The engine query blocks on the actor, so it must happen outside the
	// map lock to keep other identities' lookups moving.
	if !sess.idle() || sess.engine.Snapshot().State == broadcast.StateBroadcasting {
		return model.ErrSessionBusy
	}

	r.mu.Lock()
	cur, ok := r.sessions[identity]
	if !ok || cur != sess {
		r.mu.Unlock()
		return model.ErrSessionNotFound
	}
	// An endpoint may have reattached between the unlocked check and here.
	if !cur.idle() {
		r.mu.Unlock()
		return model.ErrSessionBusy
	}
	delete(r.sessions, identity)
	r.mu.Unlock()

	sess.engine.Shutdown(0)
	r.rec.Record(identity, journal.EventSessionRemoved, "")
	r.log.Info().Str("identity", identity).Msg("session removed")
	return nil
}

// Close shuts down every session's engine. Used on server shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.engine.Stop(5 * time.Second)
		sess.engine.Shutdown(time.Second)
	}
}
