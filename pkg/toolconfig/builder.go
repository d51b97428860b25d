package toolconfig

// DummyField is a placeholder property added to function schemas that would
// otherwise have no AI-visible parameters, so the platform's schema
// validation accepts the tool. The execution boundary strips it from
// incoming requests.
const DummyField = "__dummy"

// BuildFunctionSchema derives the AI-facing parameter schema from a tool
// configuration. Static parameters are excluded: the AI never sees values
// the organization fixed.
func BuildFunctionSchema(cfg Config) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, p := range cfg.Parameters {
		if p.Static {
			continue
		}

		paramType := p.Type
		if paramType == "" {
			paramType = "string"
		}

		prop := map[string]interface{}{
			"type": paramType,
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}

		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	if len(properties) == 0 {
		properties[DummyField] = map[string]interface{}{
			"type":        "string",
			"description": "Ignored. Always pass an empty string.",
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// BuildStaticConfig derives the organization-fixed parameter set from a tool
// configuration. Variable placeholders inside values are preserved verbatim;
// substitution happens at execution time, not at build time.
func BuildStaticConfig(cfg Config) map[string]interface{} {
	static := make(map[string]interface{})
	for _, p := range cfg.Parameters {
		if p.Static {
			static[p.Name] = p.Value
		}
	}
	return static
}
