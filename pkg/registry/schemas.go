package registry

func stringProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"minLength":   1,
		"description": description,
	}
}

func boolProperty(description string) map[string]any {
	return map[string]any{
		"type":        "boolean",
		"description": description,
	}
}

func objectSchema(properties map[string]any) map[string]any {
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": properties,
	}
}

func assigneeProperties() map[string]any {
	return map[string]any{
		"assigned_user_id":  stringProperty("Fixed assignee for the step"),
		"role_id":           stringProperty("Resolve the assignee among holders of this role"),
		"department_id":     stringProperty("Resolve the assignee among owners of this department"),
		"requires_decision": boolProperty("Require a decision when completing the step"),
	}
}

func actionableSettingsSchema(autoAdvance bool) map[string]any {
	properties := assigneeProperties()
	if !autoAdvance {
		schema := objectSchema(properties)
		schema["not"] = map[string]any{"required": []any{"auto_advance"}}

		return schema
	}

	properties["auto_advance"] = boolProperty("Complete the step right after assignment")

	return objectSchema(properties)
}

func syncSettingsSchema() map[string]any {
	return objectSchema(map[string]any{
		"require_all": boolProperty("Hold the downstream step until every required source arrived"),
		"required_sources": map[string]any{
			"type":        "array",
			"description": "Predecessor node ids the join waits for",
			"items":       stringProperty("Node id"),
			"uniqueItems": true,
		},
	})
}

func emptySettingsSchema() map[string]any {
	return objectSchema(map[string]any{})
}
