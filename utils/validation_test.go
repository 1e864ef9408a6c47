package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageQuery struct {
	Limit  int    `validate:"min=1,max=200"`
	Offset int    `validate:"min=0"`
	Email  string `validate:"omitempty,email"`
}

func TestValidateStruct_Valid(t *testing.T) {
	err := ValidateStruct(pageQuery{Limit: 50, Offset: 0})
	assert.NoError(t, err)
}

func TestValidateStruct_OutOfRange(t *testing.T) {
	err := ValidateStruct(pageQuery{Limit: 1000, Offset: -1})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "Limit")
	assert.Contains(t, verr.Fields, "Offset")
	assert.Contains(t, verr.Fields["Limit"], "at most 200")
}

func TestValidateStruct_BadEmail(t *testing.T) {
	err := ValidateStruct(pageQuery{Limit: 1, Email: "not-an-email"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["Email"], "valid email")
}
