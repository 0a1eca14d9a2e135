package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-engine/internal/domain"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestProposalValidatorWithoutSchemaAcceptsEverything(t *testing.T) {
	validator, err := NewProposalValidator("")
	require.NoError(t, err)
	assert.NoError(t, validator.Validate(domain.ChangeProposal{
		FieldChanges: map[string]any{"anything": map[string]any{"goes": true}},
	}))
}

func TestProposalValidatorEnforcesSchema(t *testing.T) {
	path := writeTempFile(t, "schema.json", `{
		"type": "object",
		"properties": {
			"title": {"type": "string", "maxLength": 10},
			"count": {"type": "integer", "minimum": 0}
		}
	}`)
	validator, err := NewProposalValidator(path)
	require.NoError(t, err)

	assert.NoError(t, validator.Validate(domain.ChangeProposal{
		FieldChanges: map[string]any{"title": "short", "count": 3},
	}))

	err = validator.Validate(domain.ChangeProposal{
		FieldChanges: map[string]any{"title": "far too long for the schema"},
	})
	assert.True(t, apperrors.IsValidation(err))

	err = validator.Validate(domain.ChangeProposal{
		FieldChanges: map[string]any{"count": -1},
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestProposalValidatorPartialDocuments(t *testing.T) {
	// Changes touch a subset of fields; absent properties must not fail.
	path := writeTempFile(t, "schema.json", `{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"body": {"type": "string"}
		}
	}`)
	validator, err := NewProposalValidator(path)
	require.NoError(t, err)
	assert.NoError(t, validator.Validate(domain.ChangeProposal{
		FieldChanges: map[string]any{"body": "only the body"},
	}))
}

func TestProposalValidatorBadSchemaFile(t *testing.T) {
	_, err := NewProposalValidator(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	path := writeTempFile(t, "schema.json", `{"type": 42}`)
	_, err = NewProposalValidator(path)
	assert.Error(t, err)
}
