package validator_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("all rules pass", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("name", "Oak & Barrel"),
			validator.ValidEmail("email", "club@oakbarrel.example"),
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("name", "  "),
			validator.ValidEmail("email", "not-an-email"),
			validator.CountryCode("country", "USA"),
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, validator.ErrValidationFailed)

		ve := validator.ExtractValidationErrors(err)
		require.Len(t, ve, 3)
		assert.Equal(t, []string{"is required"}, ve.Get("name"))
		assert.True(t, ve.Has("email"))
		assert.True(t, ve.Has("country"))
		assert.False(t, ve.Has("slug"))
		assert.Contains(t, err.Error(), "name: is required")
	})

	t.Run("extract from unrelated error", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, validator.ExtractValidationErrors(errors.New("boom")))
		assert.Nil(t, validator.ExtractValidationErrors(nil))
	})
}

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule validator.Rule
		ok   bool
	}{
		{"required empty", validator.RequiredString("f", ""), false},
		{"required uuid nil", validator.RequiredUUID("f", uuid.Nil), false},
		{"required uuid set", validator.RequiredUUID("f", uuid.New()), true},
		{"max len runes", validator.MaxLenString("f", "Château", 7), true},
		{"max len exceeded", validator.MaxLenString("f", "Château!", 7), false},
		{"email empty is optional", validator.ValidEmail("f", ""), true},
		{"email with display name", validator.ValidEmail("f", "Ann <ann@example.com>"), false},
		{"url relative", validator.AbsoluteURL("f", "/return"), false},
		{"url ftp", validator.AbsoluteURL("f", "ftp://example.com"), false},
		{"url https", validator.AbsoluteURL("f", "https://example.com/return"), true},
		{"country lower", validator.CountryCode("f", "us"), true},
		{"country digits", validator.CountryCode("f", "U1"), false},
		{"date valid", validator.DateOnly("f", "2025-02-28"), true},
		{"date invalid", validator.DateOnly("f", "2025-02-30"), false},
		{"when false skips", validator.When(false, validator.RequiredString("f", "")), true},
		{"when true applies", validator.When(true, validator.RequiredString("f", "")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ok, tt.rule.Check())
		})
	}
}
