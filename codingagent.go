package dabgent

import "encoding/json"

// CodingAgent is the reference InnerAgent: a coding task is complete once
// the "done" tool has been called among a batch of tool results. It carries
// no state of its own beyond what AgentData already holds.
type CodingAgent struct {
	// DoneTool is the tool name that marks completion, e.g. "done".
	DoneTool string
}

// NewCodingAgent returns a CodingAgent that treats a call to doneTool as
// task completion.
func NewCodingAgent(doneTool string) *CodingAgent {
	return &CodingAgent{DoneTool: doneTool}
}

func (a *CodingAgent) Type() string { return "coding-agent" }

func (a *CodingAgent) HandleToolResults(_ AgentData, paired []PairedToolResult) (AgentEvent, bool) {
	for _, p := range paired {
		if p.Call.Name != a.DoneTool {
			continue
		}
		var payload struct {
			Acknowledged string `json:"acknowledged"`
			Error        string `json:"error"`
		}
		_ = json.Unmarshal(p.Result.Content, &payload)
		summary := payload.Acknowledged
		success := p.Result.Error == "" && payload.Error == ""
		if !success {
			summary = payload.Error
			if p.Result.Error != "" {
				summary = p.Result.Error
			}
		}
		return TaskCompletedEvent{Success: success, Summary: summary}, true
	}
	return nil, false
}

func (a *CodingAgent) Apply(event AgentEvent) {
	// CodingAgent declares no events of its own beyond TaskCompletedEvent,
	// which AgentState.Apply already folds before delegating here.
}
