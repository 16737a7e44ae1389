package agent

import (
	"fetchr/content"
)

// State is the lifecycle position of a run.
type State int

const (
	StateRunning State = iota
	// StateSuspended means a tool call was handed to an external actor. The
	// run resumes when the caller runs the agent again.
	StateSuspended
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done reports whether the run stopped, for good or until resumed.
func (s State) Done() bool { return s != StateRunning }

// EventType tags an Event.
type EventType string

const (
	EventStatus           EventType = "status"
	EventPendingToolUsage EventType = "pending_tool_usage"
	EventError            EventType = "error"
	EventComplete         EventType = "complete"
)

// Event is surfaced to the caller while a run progresses.
type Event struct {
	Type EventType
	Step int

	// Status is set on EventStatus.
	Status string
	// ToolUse is set on EventPendingToolUsage.
	ToolUse *content.ToolUse
	// Err is set on EventError.
	Err error
	// FinalTurn is the last model reply, set on EventComplete.
	FinalTurn *content.Turn
}

// OutcomeKind says how a tool call was resolved.
type OutcomeKind int

const (
	OutcomeRespond OutcomeKind = iota
	OutcomeFinish
	OutcomeToolNotFound
	OutcomeExecutionFailed
	OutcomeNonBlocking
	OutcomeExecutingOutside
	OutcomeExecutingOutsideSilent
)

// Outcome is the single resolution of one tool call.
type Outcome struct {
	Kind    OutcomeKind
	Payload content.ResponsePayload
	Message string
}

// Respond answers the call with payload and lets the run continue.
func Respond(payload content.ResponsePayload) Outcome {
	return Outcome{Kind: OutcomeRespond, Payload: payload}
}

// Finish answers the call with payload, which may be nil, and completes the
// run once every call of the reply has been dispatched.
func Finish(payload content.ResponsePayload) Outcome {
	return Outcome{Kind: OutcomeFinish, Payload: payload}
}

func ToolNotFound() Outcome { return Outcome{Kind: OutcomeToolNotFound} }

// ExecutionFailed answers the call with an error the model can read.
func ExecutionFailed(msg string) Outcome {
	return Outcome{Kind: OutcomeExecutionFailed, Message: msg}
}

// NonBlocking acknowledges a call whose effect needs no answer.
func NonBlocking() Outcome { return Outcome{Kind: OutcomeNonBlocking} }

// ExecutingOutside hands the call to an external actor, reports it as a
// pending tool usage and suspends the run.
func ExecutingOutside() Outcome { return Outcome{Kind: OutcomeExecutingOutside} }

// ExecutingOutsideSilent is ExecutingOutside without the pending event.
func ExecutingOutsideSilent() Outcome { return Outcome{Kind: OutcomeExecutingOutsideSilent} }
