package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for agent runtime observability spans and metrics.
var (
	AttrAggregateType = attribute.Key("aggregate.type")
	AttrAggregateID   = attribute.Key("aggregate.id")
	AttrStreamID      = attribute.Key("stream.id")

	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")
	AttrToolReplayed     = attribute.Key("tool.replayed")

	AttrAgentStatus = attribute.Key("agent.status")

	AttrCommandType = attribute.Key("command.type")
	AttrEventType   = attribute.Key("event.type")
)
