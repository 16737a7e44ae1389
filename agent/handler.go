package agent

import (
	"context"
	"fmt"

	"fetchr/chatlog"
	"fetchr/content"
)

// Reporter surfaces a status update to the caller without touching the log.
type Reporter func(status string)

// Handler executes tool calls.
//
// Every call resolves to exactly one Outcome. A returned error is treated as
// an internal failure of the tool: the model sees a generic error result and
// the caller gets an error event.
type Handler interface {
	HandleToolUse(ctx context.Context, use *content.ToolUse, report Reporter) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, use *content.ToolUse, report Reporter) (Outcome, error)

func (f HandlerFunc) HandleToolUse(ctx context.Context, use *content.ToolUse, report Reporter) (Outcome, error) {
	return f(ctx, use, report)
}

// Router dispatches tool calls to per-tool handlers. Calls without a handler
// resolve to ToolNotFound.
type Router struct {
	handlers map[string]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle registers h for tool name, replacing any previous handler.
func (r *Router) Handle(name string, h Handler) {
	r.handlers[name] = h
}

func (r *Router) HandleFunc(name string, f HandlerFunc) {
	r.Handle(name, f)
}

func (r *Router) HandleToolUse(ctx context.Context, use *content.ToolUse, report Reporter) (Outcome, error) {
	h, ok := r.handlers[use.Name]
	if !ok {
		return ToolNotFound(), nil
	}
	return h.HandleToolUse(ctx, use, report)
}

// OutputHandler decides what the prose of a model reply means.
type OutputHandler interface {
	// HandleOutput is called with the prose of every reply, which is already
	// recorded in log. It reports whether the prose is an acceptable answer.
	HandleOutput(ctx context.Context, log *chatlog.Log, text string) bool
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(ctx context.Context, log *chatlog.Log, text string) bool

func (f OutputHandlerFunc) HandleOutput(ctx context.Context, log *chatlog.Log, text string) bool {
	return f(ctx, log, text)
}

// AcceptOutput treats prose as the answer. A reply without tool calls then
// completes the run.
func AcceptOutput() OutputHandler {
	return OutputHandlerFunc(func(context.Context, *chatlog.Log, string) bool { return true })
}

// RequireToolOutput is for agents that must talk to the user through tool.
// Bare prose is answered with an error turn so the model retries with the
// tool.
func RequireToolOutput(tool string) OutputHandler {
	return OutputHandlerFunc(func(ctx context.Context, log *chatlog.Log, text string) bool {
		log.Append(content.TextTurn(content.RoleUser,
			fmt.Sprintf("Error: plain text replies are not delivered. Use the %s tool to respond.", tool)))
		return false
	})
}
