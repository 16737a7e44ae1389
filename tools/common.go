package tools

import "fetchr/content"

// Response types shared by every tool.
const (
	TypeError                = "error"
	TypeExecutingOutside     = "executing_outside"
	TypeExecutingNonBlocking = "executing_non_blocking"
)

const (
	nonBlockingMessage = "Tool executed. Continue"
	outsideMessage     = "Executing tool in the background. Will respond back when done (if response is needed)."
	interruptedMessage = "Tool usage request was never completed due to interrupted chat session. Please try again."
)

// ErrorResponse is an error result shown to the model.
type ErrorResponse struct {
	content.ResponseBase
	Error string `json:"error"`
}

// NewErrorResponse creates an error result with message msg.
func NewErrorResponse(msg string) *ErrorResponse {
	return &ErrorResponse{ResponseBase: content.ResponseBase{Type: TypeError}, Error: msg}
}

func (r *ErrorResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: r.Error, IsError: true}
}

// ExecutingNonBlockingResponse acknowledges a tool that ran without making
// the agent wait.
type ExecutingNonBlockingResponse struct {
	content.ResponseBase
	Message string `json:"message"`
}

func NewExecutingNonBlockingResponse() *ExecutingNonBlockingResponse {
	return &ExecutingNonBlockingResponse{
		ResponseBase: content.ResponseBase{Type: TypeExecutingNonBlocking},
		Message:      nonBlockingMessage,
	}
}

func (r *ExecutingNonBlockingResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: r.Message}
}

// ExecutingOutsideResponse marks a tool call handed off to an external actor.
type ExecutingOutsideResponse struct {
	content.ResponseBase
	Message string `json:"message"`
}

func NewExecutingOutsideResponse() *ExecutingOutsideResponse {
	return &ExecutingOutsideResponse{
		ResponseBase: content.ResponseBase{Type: TypeExecutingOutside},
		Message:      outsideMessage,
	}
}

func (r *ExecutingOutsideResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: r.Message}
}

// IsPlaceholder reports whether p only stands in for a result that an
// external actor will deliver later.
func IsPlaceholder(p content.ResponsePayload) bool {
	if p == nil {
		return false
	}
	switch p.ToolType() {
	case TypeExecutingOutside, TypeExecutingNonBlocking:
		return true
	}
	return false
}

// InterruptedResponse is the result synthesized for a tool call that never
// received one. Preference tools answer with an empty preference list; every
// other tool gets an error.
func InterruptedResponse(toolName string) content.ResponsePayload {
	switch toolName {
	case SuggestProductsToUser:
		return NewSuggestProductsToUserResponse(nil)
	case SuggestStylesToUser:
		return NewSuggestStylesToUserResponse(nil)
	default:
		return NewErrorResponse(interruptedMessage)
	}
}
