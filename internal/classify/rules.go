package classify

import "github.com/dukerupert/healthnotify/internal/model"

// ruleUnresolvedCompletion is the only rule whose matches are degraded.
const ruleUnresolvedCompletion = "completion-request-unresolved"

type rule struct {
	name  string
	match func(in *input) bool
	typ   model.Type
}

// rules is evaluated top to bottom; the first match wins. Anything that falls
// through resolves to model.TypeGeneral.
var rules = []rule{
	{
		name: "medication-reference",
		match: func(in *input) bool {
			return in.raw.MedicationRequestID != nil || in.raw.MedicationScheduleID != nil
		},
		typ: model.TypeMedication,
	},
	{
		name:  "vaccination-reference",
		match: func(in *input) bool { return in.raw.VaccinationFormID != nil },
		typ:   model.TypeVaccination,
	},
	{
		name:  "health-check-reference",
		match: func(in *input) bool { return in.raw.HealthCheckFormID != nil },
		typ:   model.TypeHealth,
	},
	{
		name: "completion-request",
		match: func(in *input) bool {
			return in.completionMarker &&
				(in.resolvableCompletion || containsAny(in.text, completionRequestPhrases))
		},
		typ: model.TypeCompletionRequest,
	},
	{
		// Legacy records: marked as completion requests but carrying no usable
		// reference. Kept actionable; Classify flags them as degraded.
		name:  ruleUnresolvedCompletion,
		match: func(in *input) bool { return in.completionMarker },
		typ:   model.TypeCompletionRequest,
	},
	{
		name:  "campaign-status",
		match: func(in *input) bool { return containsAny(in.text, campaignStatusPhrases) },
		typ:   model.TypeStatusUpdate,
	},
	{
		name:  "medication-keyword",
		match: func(in *input) bool { return containsAny(in.text, medicationKeywords) },
		typ:   model.TypeMedication,
	},
	{
		name:  "vaccination-keyword",
		match: func(in *input) bool { return containsAny(in.text, vaccinationKeywords) },
		typ:   model.TypeVaccination,
	},
	{
		name: "health-check-result-keyword",
		match: func(in *input) bool {
			return containsAny(in.text, healthCheckKeywords) && containsAny(in.text, resultKeywords)
		},
		typ: model.TypeHealthCheckResult,
	},
	{
		name:  "health-check-keyword",
		match: func(in *input) bool { return containsAny(in.text, healthCheckKeywords) },
		typ:   model.TypeHealth,
	},
}

// RuleNames lists the rules in evaluation order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}
