package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStruct(t *testing.T) {
	type createRuleRequest struct {
		Name        string `validate:"required,min=1,max=200"`
		Content     string `validate:"required"`
		TargetLayer string `validate:"required,oneof=organization team project"`
	}

	t.Run("valid struct", func(t *testing.T) {
		err := ValidateStruct(createRuleRequest{
			Name:        "no-secrets-in-config",
			Content:     "Secrets must come from the vault.",
			TargetLayer: "team",
		})
		assert.NoError(t, err)
	})

	t.Run("missing required fields", func(t *testing.T) {
		err := ValidateStruct(createRuleRequest{})
		require.Error(t, err)
		require.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "Name")
		assert.Contains(t, fields, "Content")
		assert.Contains(t, fields, "TargetLayer")
	})

	t.Run("oneof violation", func(t *testing.T) {
		err := ValidateStruct(createRuleRequest{
			Name:        "x",
			Content:     "y",
			TargetLayer: "galaxy",
		})
		require.Error(t, err)
		fields := GetValidationFields(err)
		assert.Contains(t, fields["TargetLayer"], "must be one of")
	})
}

func TestValidateUUID(t *testing.T) {
	assert.NoError(t, ValidateUUID(uuid.New().String()))
	assert.Error(t, ValidateUUID("not-a-uuid"))
	assert.Error(t, ValidateUUID(""))
}

func TestValidateRequired(t *testing.T) {
	assert.NoError(t, ValidateRequired("value", "field"))
	assert.EqualError(t, ValidateRequired("", "comment"), "comment is required")
}

func TestValidateOneOf(t *testing.T) {
	allowed := []string{"block", "temporary", "warning"}
	assert.NoError(t, ValidateOneOf("block", "enforcement_mode", allowed))
	assert.Error(t, ValidateOneOf("advisory", "enforcement_mode", allowed))
}
