// Package validation checks requests against the rules declared in their `validate` struct tags
// before any handler runs.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/go-playground/validator/v10"
)

// Validator evaluates every rule of a request and reports all violations at once.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// RuleChecker can be implemented by requests with rules that cannot be expressed as struct tags.
// Its violations are merged with the ones found using the tags.
type RuleChecker interface {
	CheckRules() errdef.Violations
}

func New() (*Validator, error) {
	v := &Validator{
		validate: validator.New(),
		now:      time.Now,
	}

	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	rules := map[string]validator.Func{
		"notblank": notBlank,
		"oneOf":    oneOf,
		"future":   v.future,
	}
	for tag, fn := range rules {
		if err := v.validate.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("failed to register validation %q: %v", tag, err)
		}
	}

	return v, nil
}

// Validate returns an errdef.ValidationFailed listing every violated field of request or nil if
// request is valid. Requests which aren't structs have no rules.
func (v *Validator) Validate(request any) error {
	violations := errdef.Violations{}

	err := v.validate.Struct(request)
	var invalid *validator.InvalidValidationError
	if err != nil && !errors.As(err, &invalid) {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return fmt.Errorf("failed to validate request: %v", err)
		}
		for _, fieldError := range fieldErrors {
			field := fieldError.Field()
			violations[field] = append(violations[field], message(fieldError))
		}
	}

	if checker, ok := request.(RuleChecker); ok {
		for field, messages := range checker.CheckRules() {
			violations[field] = append(violations[field], messages...)
		}
	}

	if len(violations) > 0 {
		return errdef.NewValidationFailed(violations)
	}
	return nil
}

// Behavior returns the pipeline behavior short-circuiting invalid requests with a
// errdef.ValidationFailed error.
func Behavior(v *Validator) mediator.Behavior {
	return func(ctx context.Context, request mediator.Request, next mediator.Next) (any, error) {
		if err := v.Validate(request); err != nil {
			return nil, err
		}
		return next(ctx, request)
	}
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid id", field)
	case "future":
		return fmt.Sprintf("%s must be in the future", field)
	case "oneOf":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
