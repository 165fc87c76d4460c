// Package done provides the terminal "task finished" marker tool. Calling
// it is purely declarative — it touches nothing in the sandbox, so it never
// needs replay — and its call is what CodingAgent.HandleToolResults looks
// for, when FinishHandler issues CheckCompletion, to decide the agent's task
// is complete.
package done

import (
	"context"
	"encoding/json"

	"github.com/dabgent/dabgent"
)

// Name is the tool name InnerAgent implementations should match against in
// HandleToolResults to recognize a completion call.
const Name = "done"

type doneArgs struct {
	Summary string `json:"summary"`
}

// Tool returns the done tool.
func Tool() dabgent.Tool {
	return dabgent.Tool{
		Name:        Name,
		Description: "Signal that the task is complete. Call this once you are finished, with a short summary of what was done.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"summary":{"type":"string","description":"Short summary of the completed work"}},"required":["summary"]}`),
		NeedsReplay: false,
		Invoke:      invoke,
	}
}

func invoke(ctx context.Context, sb dabgent.Sandbox, args json.RawMessage) (json.RawMessage, error) {
	var a doneArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, &dabgent.ToolArgumentError{Tool: Name, Message: err.Error()}
	}
	return json.Marshal(map[string]string{"acknowledged": a.Summary})
}
