package agent

import (
	"github.com/obsmesh/obsmesh/model"
	"github.com/obsmesh/obsmesh/tool"
)

// Agent names used for routing and handoffs.
const (
	ResearchAgentName = "research"
	InsightsAgentName = "insights"
	AlertingAgentName = "alerting"
)

const researchInstructions = `You are the research agent, specializing in semantic queries over the
observability graph.

Tools at your disposal:
1) flow_search: semantic search over network flow records.
2) log_search: semantic search over device log lines.
3) telemetry_search: semantic search over device telemetry samples.

Guidelines:
- Use flow_search when the user asks about traffic by textual or conceptual
  content (for example "suspicious activity" or "large outbound transfers").
- Use log_search when the user asks about log content (for example "critical
  trap" or "error").
- Use telemetry_search when the user asks about metrics by concept (for
  example "CPU usage over 90%").
- If the user references a specific device, pass device_id in the arguments.
- Return ONLY the final answer. Do not show intermediate reasoning.`

const insightsInstructions = `You are the insights agent, tasked with providing numeric or
data-driven summaries from the observability graph.

Tools at your disposal:
1) flow_lookup: lists the most recent flow records for the caller's devices.
2) log_lookup: lists the most recent log lines.
3) telemetry_lookup: lists the most recent telemetry samples.

Guidelines:
- Use the lookup tools when the user wants recent raw data or counts rather
  than a conceptual search.
- Summarize or highlight interesting numeric findings once you have the data.
- If the user references a specific device, pass device_id in the arguments.
- Return ONLY the final answer. Do not show intermediate reasoning.`

const alertingInstructions = `You are the alerting agent, responsible for creating alert reports.

Use the create_alert tool whenever the user asks to raise, save or export an
alert. Provide a concise title, an appropriate severity (info, warning or
critical) and a one-paragraph summary; put supporting evidence into details.

Return ONLY the final answer, including the path of the written report.`

// NewResearchAgent builds the semantic-search specialist.
func NewResearchAgent(m model.Model, reg *tool.Registry, optFns ...func(o *Options)) *LLMAgent {
	base := []func(o *Options){
		WithInstructions(researchInstructions),
		WithTools(descriptorsFor(reg, "flow_search", "log_search", "telemetry_search")...),
		WithHandoffTargets(map[string]string{
			InsightsAgentName: "numeric summaries and recent raw data listings",
			AlertingAgentName: "creating alert reports",
		}),
	}
	return NewLLMAgent(ResearchAgentName,
		"Semantic search over flows, logs and telemetry; best for conceptual questions about what happened.",
		m, append(base, optFns...)...)
}

// NewInsightsAgent builds the numeric/recency specialist.
func NewInsightsAgent(m model.Model, reg *tool.Registry, optFns ...func(o *Options)) *LLMAgent {
	base := []func(o *Options){
		WithInstructions(insightsInstructions),
		WithTools(descriptorsFor(reg, "flow_lookup", "log_lookup", "telemetry_lookup")...),
		WithHandoffTargets(map[string]string{
			ResearchAgentName: "conceptual or semantic questions over flows, logs and telemetry",
			AlertingAgentName: "creating alert reports",
		}),
	}
	return NewLLMAgent(InsightsAgentName,
		"Numeric summaries over the most recent flows, logs and telemetry for the caller's devices.",
		m, append(base, optFns...)...)
}

// NewAlertingAgent builds the alert-report specialist.
func NewAlertingAgent(m model.Model, reg *tool.Registry, optFns ...func(o *Options)) *LLMAgent {
	base := []func(o *Options){
		WithInstructions(alertingInstructions),
		WithTools(descriptorsFor(reg, "create_alert")...),
		WithHandoffTargets(map[string]string{
			ResearchAgentName: "gathering evidence before an alert is raised",
		}),
	}
	return NewLLMAgent(AlertingAgentName,
		"Creates HTML alert reports for findings the user wants to persist or escalate.",
		m, append(base, optFns...)...)
}

// descriptorsFor pulls the named tool contracts from the registry, skipping
// any that are not registered in this deployment.
func descriptorsFor(reg *tool.Registry, names ...string) []tool.Descriptor {
	descs := make([]tool.Descriptor, 0, len(names))
	for _, name := range names {
		if d, err := reg.Resolve(name); err == nil {
			descs = append(descs, d)
		}
	}
	return descs
}
