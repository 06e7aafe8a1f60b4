// Package broadcast streams frame artifacts to a session's browser endpoint
// at a fixed cadence, with cooperative stop and resume.
package broadcast

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cr8-studio/relay/internal/endpoint"
	"github.com/cr8-studio/relay/internal/framestore"
	"github.com/cr8-studio/relay/internal/journal"
	"github.com/cr8-studio/relay/internal/model"
)

// State of a session's broadcast.
type State string

const (
	StateIdle         State = "Idle"
	StateBroadcasting State = "Broadcasting"
)

// DefaultInterval is the nominal inter-frame cadence (~30 fps).
const DefaultInterval = 33 * time.Millisecond

// ErrTimeout is returned when the engine does not acknowledge a command
// within the caller's wait bound.
var ErrTimeout = errors.New("broadcast engine: command timed out")

// Snapshot is the externally visible broadcast state of a session.
type Snapshot struct {
	State         State
	LastSentIndex int
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdQuery
	cmdShutdown
)

type command struct {
	kind cmdKind
	done chan Snapshot
}

// Engine is a per-session actor. It owns the session's broadcast state
// (state and last-sent frame index) exclusively; the router talks to it only
// through the command channel, so there is at most one live streaming loop
// per session by construction.
type Engine struct {
	identity string
	store    framestore.Store
	browser  func() endpoint.Endpoint
	interval time.Duration
	log      zerolog.Logger
	rec      journal.Recorder

	cmds chan command
}

// Config configures a per-session engine.
type Config struct {
	Identity string
	Store    framestore.Store
	// Browser resolves the session's current browser endpoint, nil if none
	// is attached. Resolved fresh on each run so a reconnect takes effect.
	Browser  func() endpoint.Endpoint
	Interval time.Duration
	Log      zerolog.Logger
	Recorder journal.Recorder
}

// NewEngine creates the engine. The caller must start the actor with
// `go eng.Run()` and end it with Shutdown.
func NewEngine(cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Recorder == nil {
		cfg.Recorder = journal.Nop{}
	}
	return &Engine{
		identity: cfg.Identity,
		store:    cfg.Store,
		browser:  cfg.Browser,
		interval: cfg.Interval,
		log:      cfg.Log,
		rec:      cfg.Recorder,
		cmds:     make(chan command),
	}
}

// Run is the actor loop. It owns state and the resume pointer; nothing else
// reads or writes them.
func (e *Engine) Run() {
	state := StateIdle
	last := -1

	for {
		cmd := <-e.cmds
		switch cmd.kind {
		case cmdQuery, cmdStop:
			// No live run: stop is a no-op, both just report.
			cmd.done <- Snapshot{State: state, LastSentIndex: last}
		case cmdShutdown:
			cmd.done <- Snapshot{State: state, LastSentIndex: last}
			return
		case cmdStart:
			state = StateBroadcasting
			cmd.done <- Snapshot{State: state, LastSentIndex: last}
			e.rec.Record(e.identity, journal.EventBroadcastStarted, fmt.Sprintf("resume_from=%d", last+1))

			// However the run ends, completion included, the machine
			// settles back to Idle.
			var interrupt *command
			last, interrupt = e.stream(last)
			state = StateIdle

			if interrupt != nil {
				// Reply only now, after the run has fully unwound.
				e.rec.Record(e.identity, journal.EventBroadcastStopped, fmt.Sprintf("last_index=%d", last))
				interrupt.done <- Snapshot{State: state, LastSentIndex: last}
				if interrupt.kind == cmdShutdown {
					return
				}
			}
		}
	}
}

// stream runs one broadcast run starting after the last-sent index. It
// returns the updated resume pointer and, if the run was interrupted, the
// stop or shutdown command awaiting the unwind. The pointer resets to -1
// only when every available frame was delivered.
func (e *Engine) stream(last int) (int, *command) {
	browser := e.browser()
	if browser == nil {
		e.log.Debug().Str("identity", e.identity).Msg("broadcast: no browser endpoint")
		return last, nil
	}

	frames, err := e.store.ListFrames(e.identity)
	if err != nil {
		e.log.Error().Err(err).Str("identity", e.identity).Msg("broadcast: frame listing failed")
		return last, nil
	}

	for _, frame := range frames {
		if frame.Index <= last {
			continue
		}

		// Cooperative cancellation point, checked before the send.
		if cmd := e.poll(last); cmd != nil {
			return last, cmd
		}

		data, err := frame.Read()
		if err != nil {
			e.log.Error().Err(err).Str("identity", e.identity).Int("frame_index", frame.Index).
				Msg("broadcast: frame read failed, aborting run")
			return last, nil
		}

		msg := model.FrameMessage{
			Type:       model.TypeFrame,
			Data:       base64.StdEncoding.EncodeToString(data),
			FrameIndex: frame.Index,
		}
		if err := browser.SendJSON(msg); err != nil {
			e.log.Warn().Err(err).Str("identity", e.identity).Int("frame_index", frame.Index).
				Msg("broadcast: frame send failed, aborting run")
			return last, nil
		}

		// Confirmed send, advance the resume pointer.
		last = frame.Index

		if cmd := e.wait(e.interval, last); cmd != nil {
			return last, cmd
		}
	}

	// Every available frame delivered: true completion.
	if err := browser.SendJSON(model.BroadcastComplete{Type: model.TypeBroadcastComplete}); err != nil {
		e.log.Warn().Err(err).Str("identity", e.identity).Msg("broadcast: completion notice send failed")
	}
	e.rec.Record(e.identity, journal.EventBroadcastCompleted, fmt.Sprintf("last_index=%d", last))
	e.log.Info().Str("identity", e.identity).Int("last_index", last).Msg("broadcast complete")
	return -1, nil
}

// answer services a command received mid-run. Start and Query are answered
// in place; Stop and Shutdown interrupt the run.
func (e *Engine) answer(cmd command, last int) (interrupts bool) {
	switch cmd.kind {
	case cmdStart, cmdQuery:
		// A start while live is a no-op: one run per session.
		cmd.done <- Snapshot{State: StateBroadcasting, LastSentIndex: last}
		return false
	default:
		return true
	}
}

// poll drains queued commands without blocking.
func (e *Engine) poll(last int) *command {
	for {
		select {
		case cmd := <-e.cmds:
			if e.answer(cmd, last) {
				return &cmd
			}
		default:
			return nil
		}
	}
}

// wait holds the inter-frame cadence while staying responsive to commands.
func (e *Engine) wait(d time.Duration, last int) *command {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case cmd := <-e.cmds:
			if e.answer(cmd, last) {
				return &cmd
			}
		case <-timer.C:
			return nil
		}
	}
}

// do submits a command and waits for the actor's reply. A wait of zero
// blocks indefinitely.
func (e *Engine) do(kind cmdKind, wait time.Duration) (Snapshot, error) {
	cmd := command{kind: kind, done: make(chan Snapshot, 1)}

	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case e.cmds <- cmd:
	case <-timeout:
		return Snapshot{}, ErrTimeout
	}

	select {
	case snap := <-cmd.done:
		return snap, nil
	case <-timeout:
		return Snapshot{}, ErrTimeout
	}
}

// Start begins a broadcast run, or does nothing if one is already live. The
// resume pointer is deliberately preserved across runs.
func (e *Engine) Start() Snapshot {
	snap, _ := e.do(cmdStart, 0)
	return snap
}

// Stop cancels the live run, if any, and waits up to the given bound for the
// run to unwind. The resume pointer survives a stop.
func (e *Engine) Stop(wait time.Duration) (Snapshot, error) {
	return e.do(cmdStop, wait)
}

// Snapshot reports the current broadcast state.
func (e *Engine) Snapshot() Snapshot {
	snap, _ := e.do(cmdQuery, 0)
	return snap
}

// Shutdown stops any live run and terminates the actor.
func (e *Engine) Shutdown(wait time.Duration) error {
	_, err := e.do(cmdShutdown, wait)
	return err
}
