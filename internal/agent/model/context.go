package model

// TurnContext carries the read-only material every graph invocation shares:
// the prompt registry and the sandbox bootstrap sources. It is loaded once
// per process and never mutated while a graph runs: state evolves, context
// does not. Per-turn values travel in TurnInput.
type TurnContext struct {
	// Prompts maps stage names (and "_from_<stage>" re-entry variants) to
	// rendered system prompt templates.
	Prompts map[string]string

	// AnalyticalBootstrap maps an analysis type to the sandbox source that
	// imports the required libraries and loads the working dataset.
	AnalyticalBootstrap map[AnalysisType]string

	// InfographicBootstrap is the sandbox source prepended to plotting steps.
	InfographicBootstrap string
}
