package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for agent observability spans and metrics.
var (
	AttrLLMModel  = attribute.Key("llm.model")
	AttrLLMClient = attribute.Key("llm.client")
	AttrLLMMethod = attribute.Key("llm.method")

	AttrToolCount = attribute.Key("llm.tool_count")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")

	AttrAgentStatus = attribute.Key("agent.status")
	AttrAgentRounds = attribute.Key("agent.rounds")
)
