// Package router classifies every inbound envelope and dispatches it to the
// matching relay operation.
package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cr8-studio/relay/internal/model"
	"github.com/cr8-studio/relay/internal/session"
)

// DefaultStopWait bounds how long a stop_broadcast handler waits for the
// streaming loop to unwind before acknowledging anyway.
const DefaultStopWait = 5 * time.Second

// Router is the entry point for every inbound message. One Router serves all
// sessions; per-session state lives in the registry and the session engines.
type Router struct {
	registry *session.Registry
	pending  *pendingTable
	stopWait time.Duration
	log      zerolog.Logger
}

// Config configures a Router.
type Config struct {
	Registry *session.Registry
	StopWait time.Duration
	Log      zerolog.Logger
}

// New creates a Router.
func New(cfg Config) *Router {
	if cfg.StopWait <= 0 {
		cfg.StopWait = DefaultStopWait
	}
	return &Router{
		registry: cfg.Registry,
		pending:  newPendingTable(),
		stopWait: cfg.StopWait,
		log:      cfg.Log,
	}
}

// PendingCount reports the number of outstanding request correlations.
func (r *Router) PendingCount() int {
	return r.pending.Len()
}

// HandleMessage routes one inbound envelope from the given sender. Nothing
// escapes to the transport layer: failures degrade to a logged event plus,
// where a recipient is known, an ERROR envelope. A missing counterpart
// endpoint is reported back to the requesting side; handler panics and
// forward failures are reported across the relay to the opposite role.
func (r *Router) HandleMessage(identity string, role model.Role, env *model.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportError(identity, role.Opposite(), fmt.Errorf("message processing error: %v", rec))
		}
	}()

	if env.Status == model.StatusConnected {
		r.log.Info().Str("identity", identity).Str("role", string(role)).Msg("client connected")
		return
	}
	if env.Status == model.StatusCompleted {
		r.handleCommandCompleted(identity, env)
		return
	}

	var err error
	switch env.Kind() {
	case model.CommandStartPreviewRendering:
		err = r.handleStartPreviewRendering(identity, role, env)
	case model.CommandGenerateVideo:
		err = r.handleGenerateVideo(identity, role, env)
	case model.CommandStartBroadcast:
		err = r.handleStartBroadcast(identity)
	case model.CommandStopBroadcast:
		err = r.handleStopBroadcast(identity)
	case model.CommandGetTemplateControls:
		err = r.handleGetTemplateControls(identity)
	case model.CommandTemplateControls:
		err = r.handleTemplateControls(env)
	case model.CommandUnknown:
		r.log.Warn().Str("identity", identity).Str("command", env.Command).Str("action", env.Action).
			Msg("unhandled command dropped")
	}

	if err != nil {
		target := role.Opposite()
		if errors.Is(err, model.ErrWorkerNotConnected) || errors.Is(err, model.ErrBrowserNotConnected) {
			// The absent endpoint cannot hear about its own absence; the
			// requester can.
			target = role
		}
		r.reportError(identity, target, err)
	}
}

// reportError logs err and delivers an ERROR envelope to the given role's
// endpoint, when one exists.
func (r *Router) reportError(identity string, role model.Role, err error) {
	r.log.Error().Err(err).Str("identity", identity).Str("target_role", string(role)).
		Msg("message processing error")

	sess := r.registry.Get(identity)
	if sess == nil {
		return
	}
	target := sess.Endpoint(role)
	if target == nil {
		return
	}
	if sendErr := target.SendJSON(model.Ack{Status: model.AckError, Message: err.Error()}); sendErr != nil {
		r.log.Warn().Err(sendErr).Str("identity", identity).Msg("error report send failed")
	}
}

// ack sends an OK acknowledgment to the session's browser endpoint,
// best-effort.
func (r *Router) ack(sess *session.Session, message string) {
	browser := sess.Browser()
	if browser == nil {
		return
	}
	if err := browser.SendJSON(model.Ack{Status: model.AckOK, Message: message}); err != nil {
		r.log.Warn().Err(err).Str("identity", sess.Identity()).Msg("ack send failed")
	}
}

// handleStartPreviewRendering forwards a browser preview request to the
// worker with a fresh correlation id and acknowledges the browser. Not
// queued: a missing worker endpoint fails the request immediately.
func (r *Router) handleStartPreviewRendering(identity string, role model.Role, env *model.Envelope) error {
	if role != model.RoleBrowser {
		return nil
	}

	sess := r.registry.Get(identity)
	if sess == nil {
		return model.ErrWorkerNotConnected
	}
	worker := sess.Worker()
	if worker == nil {
		return model.ErrWorkerNotConnected
	}

	correlationID := uuid.NewString()
	r.pending.Add(correlationID, identity)

	forward := model.Envelope{
		Command:   env.Command,
		Params:    env.Params,
		MessageID: correlationID,
	}
	if err := worker.SendJSON(&forward); err != nil {
		r.pending.Delete(correlationID)
		return fmt.Errorf("forward preview request: %w", err)
	}

	r.ack(sess, "Preview rendering started")
	return nil
}

// handleGenerateVideo forwards the original envelope verbatim to the worker
// and acknowledges the browser.
func (r *Router) handleGenerateVideo(identity string, role model.Role, env *model.Envelope) error {
	if role != model.RoleBrowser {
		return nil
	}

	sess := r.registry.Get(identity)
	if sess == nil {
		return model.ErrWorkerNotConnected
	}
	worker := sess.Worker()
	if worker == nil {
		return model.ErrWorkerNotConnected
	}

	if err := worker.SendJSON(env); err != nil {
		return fmt.Errorf("forward video request: %w", err)
	}

	r.ack(sess, "Video generation started")
	return nil
}

// handleStartBroadcast starts (or resumes) the session's broadcast run. The
// resume pointer is preserved; only a run that completes resets it.
func (r *Router) handleStartBroadcast(identity string) error {
	sess := r.registry.Get(identity)
	if sess == nil {
		return nil
	}

	snap := sess.Engine().Start()
	r.log.Info().Str("identity", identity).Int("resume_from", snap.LastSentIndex+1).
		Msg("broadcast start requested")

	r.ack(sess, "Frame broadcast started")
	return nil
}

// handleStopBroadcast cancels the live run, awaits its unwind within the
// stop bound, and acknowledges the browser whether or not a run existed.
func (r *Router) handleStopBroadcast(identity string) error {
	sess := r.registry.Get(identity)
	if sess == nil {
		return nil
	}

	if _, err := sess.Engine().Stop(r.stopWait); err != nil {
		r.log.Warn().Err(err).Str("identity", identity).Msg("broadcast stop not confirmed in time")
	}

	r.ack(sess, "Frame broadcast stopped")
	return nil
}

// handleGetTemplateControls asks the worker to rescan its template. The
// correlated template_controls reply is the browser's acknowledgment; none
// is sent here.
func (r *Router) handleGetTemplateControls(identity string) error {
	sess := r.registry.Get(identity)
	if sess == nil {
		return model.ErrWorkerNotConnected
	}
	worker := sess.Worker()
	if worker == nil {
		return model.ErrWorkerNotConnected
	}

	correlationID := uuid.NewString()
	r.pending.Add(correlationID, identity)

	forward := model.Envelope{
		Command:   model.VerbRescanTemplate,
		MessageID: correlationID,
	}
	if err := worker.SendJSON(&forward); err != nil {
		r.pending.Delete(correlationID)
		return fmt.Errorf("forward rescan request: %w", err)
	}
	return nil
}

// handleTemplateControls resolves a worker reply against the pending table
// and delivers the controllables to the initiator's browser endpoint. A
// missing or unknown correlation id is dropped with a warning.
func (r *Router) handleTemplateControls(env *model.Envelope) error {
	correlationID, _ := env.Data["message_id"].(string)
	if correlationID == "" {
		r.log.Warn().Msg("template controls reply without correlation id dropped")
		return nil
	}

	initiator, ok := r.pending.Take(correlationID)
	if !ok {
		r.log.Warn().Str("correlation_id", correlationID).
			Msg("template controls reply with no pending request dropped")
		return nil
	}

	sess := r.registry.Get(initiator)
	if sess == nil {
		return nil
	}
	browser := sess.Browser()
	if browser == nil {
		return nil
	}

	reply := model.TemplateControls{
		Command:       model.VerbTemplateControls,
		Controllables: env.Data["controllables"],
	}
	if err := browser.SendJSON(reply); err != nil {
		return fmt.Errorf("deliver template controls: %w", err)
	}
	return nil
}

// handleCommandCompleted forwards a worker completion notice to the sender's
// browser endpoint. Silent no-op when the session or endpoint is absent.
func (r *Router) handleCommandCompleted(identity string, env *model.Envelope) {
	sess := r.registry.Get(identity)
	if sess == nil {
		return
	}
	browser := sess.Browser()
	if browser == nil {
		return
	}

	command := env.Command
	if command == "" {
		command = "unknown"
	}
	notice := model.CommandCompleted{
		Type:      model.TypeCommandCompleted,
		Command:   command,
		MessageID: env.MessageID,
		Status:    model.StatusSuccess,
	}
	if err := browser.SendJSON(notice); err != nil {
		r.log.Warn().Err(err).Str("identity", identity).Msg("completion notice send failed")
	}
}

