package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map, used to validate the model's invoice object before field
// normalization. Amount and date formats are deliberately NOT constrained
// here: the extractor normalizes them afterwards and keeps the original
// string on failure.
func BuildInvoiceJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_invoice":     map[string]any{"type": "boolean"},
			"vendor":         map[string]any{"type": "string"},
			"invoice_number": map[string]any{"type": "string"},
			"amount":         stringOrNumberProp(),
			"currency":       map[string]any{"type": "string"},
			"due_date":       map[string]any{"type": "string"},
			"invoice_date":   map[string]any{"type": "string"},
			"ocr":            map[string]any{"type": "string"},
			"description":    map[string]any{"type": "string"},
			"confidence":     map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"is_invoice"},
	}
}

// BuildCategorizationJSONSchema constrains the categorization response to the
// configured vocabulary. Membership of the (category, subcategory) pair is
// still re-checked by the policy; the schema only bounds the individual
// fields.
func BuildCategorizationJSONSchema(categories, subcategories []string) map[string]any {
	catProp := map[string]any{"type": "string"}
	subProp := map[string]any{"type": "string"}
	if len(categories) > 0 {
		catProp["enum"] = categories
	}
	if len(subcategories) > 0 {
		subProp["enum"] = subcategories
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category":    catProp,
			"subcategory": subProp,
			"confidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"reasoning":   map[string]any{"type": "string"},
		},
		"required": []string{"category", "subcategory"},
	}
}

func stringOrNumberProp() map[string]any {
	return map[string]any{
		"type": []string{"string", "number"},
	}
}
