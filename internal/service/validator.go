package service

import (
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/spec-kit/collab-engine/internal/domain"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// ProposalValidator checks proposed field values before they reach the
// detector. The schema is owned by the host application; the engine only
// enforces it.
type ProposalValidator interface {
	Validate(proposal domain.ChangeProposal) error
}

// noopValidator accepts everything; used when no schema is configured.
type noopValidator struct{}

func (noopValidator) Validate(domain.ChangeProposal) error { return nil }

type schemaValidator struct {
	schema *gojsonschema.Schema
}

// NewProposalValidator loads the host-supplied JSON Schema. Field changes
// are validated as a partial document, so the schema should avoid top-level
// required clauses.
func NewProposalValidator(schemaPath string) (ProposalValidator, error) {
	if schemaPath == "" {
		return noopValidator{}, nil
	}
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(content))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &schemaValidator{schema: schema}, nil
}

func (v *schemaValidator) Validate(proposal domain.ChangeProposal) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(proposal.FieldChanges))
	if err != nil {
		return apperrors.NewValidationError("field changes are not valid JSON", nil)
	}
	if result.Valid() {
		return nil
	}
	details := map[string]any{}
	for _, issue := range result.Errors() {
		details[issue.Field()] = issue.Description()
	}
	return apperrors.NewValidationError("field changes violate schema", details)
}
