package execution

// mergeParams overlays static parameters on top of the AI-provided ones.
// Static values always win on key collision so an organization-fixed value
// (a hard-coded destination number, say) can never be overridden by the
// model or a malicious caller.
func mergeParams(aiParams, static map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(aiParams)+len(static))
	for key, value := range aiParams {
		merged[key] = value
	}
	for key, value := range static {
		merged[key] = value
	}
	return merged
}
