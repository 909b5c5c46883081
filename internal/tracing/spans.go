package tracing

// Span attribute keys.
const (
	AttrTaskName     = "task.name"
	AttrTaskRun      = "task.run"
	AttrTaskCanceled = "task.cancelled"

	AttrPluginID     = "plugin.id"
	AttrPluginAction = "plugin.action"
	AttrPluginCount  = "plugin.count"

	AttrJobName = "worker.job"
	AttrInLoop  = "worker.in_loop"
)

// Span name prefixes.
const (
	SpanPrefixTask   = "task."
	SpanPrefixPlugin = "plugin."
	SpanPrefixJob    = "worker."
)

// EventCascade is the span event recorded for each cascade pass.
const EventCascade = "plugin.cascade"
