package main

import (
	"context"
	"fmt"
	"io"

	"fetchr/agent"
	"fetchr/content"
	"fetchr/tools"
)

// newShopper routes the tools a terminal user can act on. Tools without a
// handler are answered with a not found error.
func newShopper(out io.Writer) *agent.Router {
	r := agent.NewRouter()

	r.HandleFunc(tools.MessageUser, func(ctx context.Context, use *content.ToolUse, report agent.Reporter) (agent.Outcome, error) {
		req, ok := use.Payload.(*tools.MessageUserRequest)
		if !ok {
			return agent.ExecutionFailed("message_user input could not be read"), nil
		}
		fmt.Fprintf(out, "assistant: %s\n", req.Message)
		for i, s := range req.SuggestedResponses {
			fmt.Fprintf(out, "  %d. %s\n", i+1, s)
		}
		if req.Blocking {
			return agent.ExecutingOutside(), nil
		}
		return agent.NonBlocking(), nil
	})

	r.HandleFunc(tools.GenerateTitle, func(ctx context.Context, use *content.ToolUse, report agent.Reporter) (agent.Outcome, error) {
		req, ok := use.Payload.(*tools.GenerateTitleRequest)
		if !ok {
			return agent.ExecutionFailed("generate_title input could not be read"), nil
		}
		fmt.Fprintf(out, "title: %s\n", req.GeneratedTitle)
		return agent.NonBlocking(), nil
	})

	r.HandleFunc(tools.PlaceOrder, func(ctx context.Context, use *content.ToolUse, report agent.Reporter) (agent.Outcome, error) {
		req, ok := use.Payload.(*tools.PlaceOrderRequest)
		if !ok {
			return agent.ExecutionFailed("place_order input could not be read"), nil
		}
		report(fmt.Sprintf("Placing order %s", req.OrderID))
		return agent.Finish(tools.NewPlaceOrderResponse()), nil
	})

	return r
}
