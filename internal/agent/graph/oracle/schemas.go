package oracle

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Output schema names, one per structured decision contract.
const (
	SchemaIntentComprehension      = "IntentComprehension"
	SchemaRequestClassification    = "RequestClassification"
	SchemaAnalyticalRequirement    = "AnalyticalRequirement"
	SchemaDataAvailability         = "DataAvailability"
	SchemaDataRetrievalPlan        = "DataRetrievalPlan"
	SchemaDataRetrievalObservation = "DataRetrievalObservation"
	SchemaAnalyticalPlan           = "AnalyticalPlan"
	SchemaAnalyticalObservation    = "AnalyticalObservation"
	SchemaInfographicRequirement   = "InfographicRequirement"
	SchemaInfographicPlan          = "InfographicPlan"
	SchemaInfographicObservation   = "InfographicObservation"
)

const analyticalStepSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "integer", "minimum": 1},
		"description": {"type": "string"},
		"input_df": {"type": ["string", "null"]},
		"output_df": {"type": "string"},
		"python_code": {"type": "string"},
		"rationale": {"type": "string"}
	},
	"required": ["number", "description", "output_df", "python_code", "rationale"],
	"additionalProperties": false
}`

const infographicStepSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "integer", "minimum": 1},
		"description": {"type": "string"},
		"input_df": {"type": ["string", "null"]},
		"output_graph_path": {"type": "string"},
		"python_code": {"type": "string"},
		"rationale": {"type": "string"}
	},
	"required": ["number", "description", "output_graph_path", "python_code", "rationale"],
	"additionalProperties": false
}`

func booleanDecisionSchema(field string) string {
	return fmt.Sprintf(`{
	"type": "object",
	"properties": {
		"%s": {"type": "boolean"},
		"rationale": {"type": "string"}
	},
	"required": ["%s", "rationale"],
	"additionalProperties": false
}`, field, field)
}

// outputSchemas maps schema names to their JSON schema documents. The same
// documents are embedded into the system prompts and enforced on the replies.
var outputSchemas = map[string]string{
	SchemaIntentComprehension: `{
	"type": "object",
	"properties": {
		"relevant_turns": {"type": "array", "items": {"type": "string", "pattern": "^[0-9]+$"}},
		"rationale": {"type": "string"}
	},
	"required": ["relevant_turns", "rationale"],
	"additionalProperties": false
}`,
	SchemaRequestClassification:    booleanDecisionSchema("request_is_business_analytical_domain"),
	SchemaAnalyticalRequirement:    booleanDecisionSchema("analytical_process_is_required"),
	SchemaDataAvailability:         booleanDecisionSchema("data_is_available"),
	SchemaDataRetrievalObservation: booleanDecisionSchema("result_is_sufficient"),
	SchemaAnalyticalObservation:    booleanDecisionSchema("result_is_sufficient"),
	SchemaInfographicRequirement:   booleanDecisionSchema("infographic_is_required"),
	SchemaInfographicObservation:   booleanDecisionSchema("result_is_sufficient"),
	SchemaDataRetrievalPlan: `{
	"type": "object",
	"properties": {
		"sql_query": {"type": ["string", "null"]},
		"rationale": {"type": "string"}
	},
	"required": ["sql_query", "rationale"],
	"additionalProperties": false
}`,
	SchemaAnalyticalPlan: `{
	"type": "object",
	"properties": {
		"analysis_type": {"type": "string", "enum": ["descriptive", "diagnostic", "predictive", "inferential"]},
		"plan": {"type": "array", "minItems": 1, "items": ` + analyticalStepSchema + `},
		"rationale": {"type": "string"}
	},
	"required": ["analysis_type", "plan", "rationale"],
	"additionalProperties": false
}`,
	SchemaInfographicPlan: `{
	"type": "object",
	"properties": {
		"plan": {"type": "array", "minItems": 1, "items": ` + infographicStepSchema + `},
		"rationale": {"type": "string"}
	},
	"required": ["plan", "rationale"],
	"additionalProperties": false
}`,
}

func schemaLoader(name string) (gojsonschema.JSONLoader, bool) {
	doc, ok := outputSchemas[name]
	if !ok {
		return nil, false
	}
	return gojsonschema.NewStringLoader(doc), true
}

// SchemaInstruction renders the output contract block appended to a system
// prompt, so the schema the model sees is the one its reply is validated
// against.
func SchemaInstruction(name string) (string, error) {
	doc, ok := outputSchemas[name]
	if !ok {
		return "", fmt.Errorf("unknown output schema %q", name)
	}
	var b strings.Builder
	b.WriteString("\nOUTPUT FORMAT\n")
	b.WriteString(fmt.Sprintf("Respond with a single JSON object conforming to the %s JSON schema:\n", name))
	b.WriteString(doc)
	b.WriteString("\nDo not wrap the JSON in markdown fences or add any text outside the object.\n")
	return b.String(), nil
}

func formatSchemaErrors(result *gojsonschema.Result) string {
	msgs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		msgs = append(msgs, re.String())
	}
	return strings.Join(msgs, "; ")
}
