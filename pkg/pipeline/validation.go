package pipeline

import (
	"context"
	"errors"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// Validator checks one aspect of a message before it reaches the handler.
// Implementations return nil for a valid message and a descriptive error
// otherwise.
type Validator interface {
	Validate(ctx context.Context, msg messaging.Message) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, msg messaging.Message) error

func (f ValidatorFunc) Validate(ctx context.Context, msg messaging.Message) error {
	return f(ctx, msg)
}

// ValidationStage runs validators in registration order and rejects the
// message on the first failure, without invoking the handler.
type ValidationStage struct {
	validators []Validator
	next       Processor
}

// NewValidationStage wraps next with the given validators.
func NewValidationStage(next Processor, validators ...Validator) *ValidationStage {
	return &ValidationStage{validators: validators, next: next}
}

func (s *ValidationStage) Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult {
	for _, v := range s.validators {
		if err := v.Validate(ctx, msg); err != nil {
			var ve *faults.ValidationError
			if !errors.As(err, &ve) {
				ve = &faults.ValidationError{Errors: []string{err.Error()}}
			}
			return messaging.Failure(ve, "validation failed")
		}
	}
	return s.next.Process(ctx, msg, pc)
}

// StructValidator validates the message payload against its struct tags
// using go-playground/validator. Correlation-decorated messages are unwrapped
// to the original payload first.
type StructValidator struct {
	validate *validatorv10.Validate
}

// NewStructValidator creates a tag-based struct validator.
func NewStructValidator() *StructValidator {
	return &StructValidator{validate: validatorv10.New(validatorv10.WithRequiredStructEnabled())}
}

func (v *StructValidator) Validate(ctx context.Context, msg messaging.Message) error {
	payload := messaging.Unwrapped(msg)
	err := v.validate.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}

	var invalid *validatorv10.InvalidValidationError
	if errors.As(err, &invalid) {
		// Non-struct payloads have nothing to validate against.
		return nil
	}

	var fieldErrs validatorv10.ValidationErrors
	if errors.As(err, &fieldErrs) {
		messages := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			messages = append(messages, fe.Error())
		}
		return &faults.ValidationError{Errors: messages}
	}
	return &faults.ValidationError{Errors: []string{err.Error()}}
}
