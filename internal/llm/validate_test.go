package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroinbox/mailsift/internal/common"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestValidateObjectInvoiceSchema(t *testing.T) {
	schema := BuildInvoiceJSONSchema()

	assert.NoError(t, ValidateObject(schema, decode(t, `{"is_invoice": true, "amount": "1250.5"}`)))
	assert.NoError(t, ValidateObject(schema, decode(t, `{"is_invoice": false}`)))
	assert.NoError(t, ValidateObject(schema, decode(t, `{"is_invoice": true, "amount": 1250.5}`)))

	err := ValidateObject(schema, decode(t, `{"vendor": "Vattenfall"}`))
	require.Error(t, err, "is_invoice is required")
	assert.True(t, errors.Is(err, common.ErrValidation))

	err = ValidateObject(schema, decode(t, `{"is_invoice": "yes"}`))
	require.Error(t, err, "is_invoice must be a boolean")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestValidateObjectCategorizationEnum(t *testing.T) {
	schema := BuildCategorizationJSONSchema([]string{"Economy", "Other"}, []string{"Invoices", "Rest"})

	assert.NoError(t, ValidateObject(schema, decode(t, `{"category": "Economy", "subcategory": "Invoices", "confidence": 0.9}`)))

	err := ValidateObject(schema, decode(t, `{"category": "Spam", "subcategory": "Invoices"}`))
	require.Error(t, err, "category outside the enum")
	assert.True(t, errors.Is(err, common.ErrValidation))

	err = ValidateObject(schema, decode(t, `{"category": "Economy"}`))
	require.Error(t, err, "subcategory is required")
	assert.True(t, errors.Is(err, common.ErrValidation))
}
