// Package agent drives a conversation between a model provider and a set of
// tool handlers.
//
// An Agent alternates between calling the provider with the chat log and
// dispatching the tool calls of the reply, until the model stops calling
// tools, a handler finishes or suspends the run, or the step budget runs out.
// Progress is reported on the channel returned by Run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fetchr/chatlog"
	"fetchr/content"
	"fetchr/provider"
	"fetchr/tools"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

const (
	DefaultMaxSteps = 10

	internalErrorMessage = "Internal error processing tool"
)

// ErrAlreadyResolved is returned by Resolve for a call that has a final
// result.
var ErrAlreadyResolved = errors.New("tool call already has a result")

// Config describes one agent.
type Config struct {
	ChatID string
	// SystemPrompt and Opening seed an empty log.
	SystemPrompt string
	Opening      []content.Turn
	// Tools names the registered tools offered to the model. All registered
	// tools are offered when empty.
	Tools    []string
	MaxSteps int
	// RollbackOnFailure restores the log to its state before the run when
	// the provider call fails.
	RollbackOnFailure bool
}

type Option func(*Agent)

func WithRegistry(r *tools.Registry) Option {
	return func(a *Agent) { a.registry = r }
}

// WithOutputHandler replaces AcceptOutput.
func WithOutputHandler(h OutputHandler) Option {
	return func(a *Agent) { a.output = h }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(a *Agent) { a.logger = l }
}

// Agent runs one conversation. Runs of one Agent must not overlap.
type Agent struct {
	cfg      Config
	chats    *chatlog.Service
	provider provider.Provider
	handler  Handler
	registry *tools.Registry
	output   OutputHandler
	logger   *zap.SugaredLogger
	schemas  []mcptypes.Tool
	offered  map[string]bool

	mu    sync.Mutex
	state State
	log   *chatlog.Log
}

// New creates an agent. It fails when cfg names a tool the registry does not
// know.
func New(cfg Config, chats *chatlog.Service, p provider.Provider, h Handler, opts ...Option) (*Agent, error) {
	a := &Agent{
		cfg:      cfg,
		chats:    chats,
		provider: p,
		handler:  h,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = tools.Default()
	}
	if a.output == nil {
		a.output = AcceptOutput()
	}
	if a.logger == nil {
		a.logger = zap.NewNop().Sugar()
	}
	if a.cfg.MaxSteps <= 0 {
		a.cfg.MaxSteps = DefaultMaxSteps
	}

	schemas, err := a.registry.MCPTools(cfg.Tools...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool schemas: %w", err)
	}
	a.schemas = schemas
	a.offered = make(map[string]bool, len(schemas))
	for _, s := range schemas {
		a.offered[s.Name] = true
	}
	return a, nil
}

// Init loads the chat log, creating it when missing, and seeds an empty log
// with the system prompt and opening turns.
func (a *Agent) Init(ctx context.Context) error {
	log, err := a.chats.Load(ctx, a.cfg.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load chat %s: %w", a.cfg.ChatID, err)
	}
	if log.Len() == 0 {
		var seed []content.Turn
		if a.cfg.SystemPrompt != "" {
			seed = append(seed, content.TextTurn(content.RoleSystem, a.cfg.SystemPrompt))
		}
		seed = append(seed, a.cfg.Opening...)
		if len(seed) > 0 {
			log.Append(seed...)
		}
	}

	a.mu.Lock()
	a.log = log
	a.mu.Unlock()
	return nil
}

// Log returns the chat log, or nil before Init.
func (a *Agent) Log() *chatlog.Log {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.log
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Run drives the conversation in a new goroutine. The returned channel is
// closed when the run completes, fails or suspends, or when ctx ends.
func (a *Agent) Run(ctx context.Context) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		r := &run{agent: a, ctx: ctx, events: events}
		r.loop()
	}()
	return events
}

// Resolve delivers the result of a call that was handed to an external actor.
// The placeholder result recorded when the call was dispatched is replaced; a
// call without any result gets one appended.
func (a *Agent) Resolve(toolUseID string, payload content.ResponsePayload) error {
	log := a.Log()
	if log == nil {
		return errors.New("agent is not initialized")
	}

	res, err := log.ToolResult(toolUseID)
	switch {
	case errors.Is(err, chatlog.ErrNotFound):
		return log.AddToolResult(payload, toolUseID)
	case err != nil:
		return err
	case tools.IsPlaceholder(res.Payload):
		return log.UpdateToolResult(toolUseID, payload)
	default:
		return fmt.Errorf("%s: %w", toolUseID, ErrAlreadyResolved)
	}
}

// run is the state of one Run call.
type run struct {
	agent  *Agent
	ctx    context.Context
	events chan<- Event
	step   int
}

// emit delivers ev unless the caller went away.
func (r *run) emit(ev Event) bool {
	ev.Step = r.step
	select {
	case r.events <- ev:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// stepResult is what dispatching one reply decided.
type stepResult struct {
	finish  bool
	suspend bool
}

func (r *run) loop() {
	a := r.agent
	if a.Log() == nil {
		if err := a.Init(r.ctx); err != nil {
			a.setState(StateFailed)
			r.emit(Event{Type: EventError, Err: err})
			return
		}
	}
	log := a.Log()
	logger := a.logger.With("chatID", log.ID())

	var snapshot string
	if a.cfg.RollbackOnFailure {
		id, err := log.TakeSnapshot(r.ctx)
		if err != nil {
			logger.Warnw("Failed to take snapshot, run cannot be rolled back", "error", err)
		} else {
			snapshot = id
			defer func() {
				if err := log.DropSnapshot(context.WithoutCancel(r.ctx), id); err != nil {
					logger.Warnw("Failed to drop snapshot", "snapshot", id, "error", err)
				}
			}()
		}
	}

	a.setState(StateRunning)
	for {
		if r.ctx.Err() != nil {
			a.setState(StateFailed)
			return
		}

		turns, err := log.Normalize()
		if err != nil {
			r.fail(fmt.Errorf("failed to prepare chat log: %w", err), snapshot)
			return
		}
		reply, err := a.provider.Complete(r.ctx, provider.Request{Turns: turns, Tools: a.schemas})
		if err != nil {
			r.fail(err, snapshot)
			return
		}
		log.Append(reply)

		uses := reply.ToolUses()
		logger.Debugw("Model replied", "step", r.step, "toolCalls", len(uses))

		accepted := true
		if text := replyText(reply); text != "" {
			accepted = a.output.HandleOutput(r.ctx, log, text)
		}
		if len(uses) == 0 && accepted {
			r.complete(&reply)
			return
		}

		res, err := r.dispatchAll(uses)
		if err != nil {
			r.fail(err, snapshot)
			return
		}
		if r.ctx.Err() != nil {
			a.setState(StateFailed)
			return
		}
		if res.suspend {
			logger.Debugw("Run suspended", "step", r.step)
			a.setState(StateSuspended)
			return
		}
		if res.finish {
			r.complete(&reply)
			return
		}

		r.step++
		if r.step >= a.cfg.MaxSteps {
			logger.Infow("Max steps reached", "maxSteps", a.cfg.MaxSteps)
			r.complete(&reply)
			return
		}
	}
}

func (r *run) complete(final *content.Turn) {
	r.agent.setState(StateComplete)
	r.emit(Event{Type: EventComplete, FinalTurn: final})
}

// fail ends the run. With a snapshot the log is restored first so the caller
// never sees a partial step.
func (r *run) fail(err error, snapshot string) {
	a := r.agent
	a.logger.Errorw("Run failed", "chatID", a.cfg.ChatID, "step", r.step, "error", err)
	if snapshot != "" {
		if rerr := a.Log().RestoreSnapshot(context.WithoutCancel(r.ctx), snapshot); rerr != nil {
			a.logger.Errorw("Failed to roll back chat log", "chatID", a.cfg.ChatID, "snapshot", snapshot, "error", rerr)
		}
	}
	a.setState(StateFailed)
	r.emit(Event{Type: EventError, Err: err})
}

func (r *run) dispatchAll(uses []*content.ToolUse) (stepResult, error) {
	a := r.agent
	log := a.Log()
	var res stepResult

	for _, use := range uses {
		outcome, err := r.dispatch(use)
		if err != nil {
			a.logger.Errorw("Tool failed", "chatID", log.ID(), "tool", use.Name, "toolUseID", use.ID, "error", err)
			if !r.emit(Event{Type: EventError, Err: err}) {
				return res, nil
			}
			outcome = ExecutionFailed(internalErrorMessage)
		}

		var payload content.ResponsePayload
		switch outcome.Kind {
		case OutcomeRespond:
			payload = outcome.Payload
		case OutcomeFinish:
			payload = outcome.Payload
			if payload == nil {
				payload = tools.NewExecutingNonBlockingResponse()
			}
			res.finish = true
		case OutcomeToolNotFound:
			payload = tools.NewErrorResponse(fmt.Sprintf("Tool %s not found", use.Name))
		case OutcomeExecutionFailed:
			payload = tools.NewErrorResponse(outcome.Message)
		case OutcomeNonBlocking:
			payload = tools.NewExecutingNonBlockingResponse()
		case OutcomeExecutingOutside, OutcomeExecutingOutsideSilent:
			payload = tools.NewExecutingOutsideResponse()
			res.suspend = true
		default:
			return res, fmt.Errorf("unknown outcome %d for tool %s", outcome.Kind, use.Name)
		}
		if payload == nil {
			payload = tools.NewErrorResponse(internalErrorMessage)
		}

		if err := log.AddToolResult(payload, use.ID); err != nil {
			return res, fmt.Errorf("failed to record result of %s: %w", use.ID, err)
		}
		if outcome.Kind == OutcomeExecutingOutside {
			if !r.emit(Event{Type: EventPendingToolUsage, ToolUse: use}) {
				return res, nil
			}
		}
	}
	return res, nil
}

// dispatch resolves one call. Calls for tools the agent does not offer and
// calls whose input failed validation never reach the handler.
func (r *run) dispatch(use *content.ToolUse) (out Outcome, err error) {
	a := r.agent
	if !a.offered[use.Name] {
		return ToolNotFound(), nil
	}
	if _, raw := use.Payload.(*content.RawRequest); raw {
		if verr := a.registry.Validate(use.Name, use.Input); verr != nil {
			return ExecutionFailed(verr.Error()), nil
		}
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", use.Name, p)
		}
	}()
	report := func(status string) {
		r.emit(Event{Type: EventStatus, Status: status})
	}
	return a.handler.HandleToolUse(r.ctx, use, report)
}

func replyText(turn content.Turn) string {
	if turn.IsString() {
		return turn.Text
	}
	var parts []string
	for _, b := range turn.Blocks {
		if t, ok := b.(*content.Text); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}
