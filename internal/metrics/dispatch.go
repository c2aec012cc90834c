package metrics

import "fmt"

// Dispatch outcomes.
const (
	OutcomeMatched  = "matched"
	OutcomeFailed   = "failed"
	OutcomeFallback = "fallback"
)

var skillLatencyBuckets = []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10}

// RecordDispatch counts one routed input. skill is empty for fallback replies.
func RecordDispatch(skill, pass, outcome string) {
	Collector.Counter("skillbot_dispatch_total", "Inputs routed, by skill, matching pass and outcome",
		fmt.Sprintf(`skill=%q,pass=%q,outcome=%q`, skill, pass, outcome)).Inc()
}

// ObserveSkillLatency records how long one Execute call took.
func ObserveSkillLatency(skill string, seconds float64) {
	Collector.Histogram("skillbot_skill_latency_seconds", "Skill execution latency in seconds",
		fmt.Sprintf(`skill=%q`, skill), skillLatencyBuckets).Observe(seconds)
}

// RecordSkillFallback counts a data skill answering from its built-in dataset.
func RecordSkillFallback(skill, reason string) {
	Collector.Counter("skillbot_skill_fallbacks_total", "Data skill lookups answered from synthetic data",
		fmt.Sprintf(`skill=%q,reason=%q`, skill, reason)).Inc()
}

// RecordCommand counts a built-in chat command handled before dispatch.
func RecordCommand(name string) {
	Collector.Counter("skillbot_commands_total", "Built-in chat commands handled",
		fmt.Sprintf(`command=%q`, name)).Inc()
}
