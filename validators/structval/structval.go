// Package structval adapts go-playground/validator struct validation to the
// formsync validation contract. A typed schema struct carries the validation
// tags; each run decodes the current model value into a fresh schema instance
// and reports tag violations keyed by model path.
package structval

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ngx-vest-forms/formsync"
	"github.com/ngx-vest-forms/formsync/fieldpath"
)

type options struct {
	message     func(validator.FieldError) string
	warningTags map[string]struct{}
}

// Option configures the adapter.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithMessageFunc overrides how a tag violation is rendered into a message.
func WithMessageFunc(fn func(validator.FieldError) string) Option {
	return optionFunc(func(o *options) { o.message = fn })
}

// WithWarningTags routes violations of the named tags into the warnings map
// instead of the errors map, so they inform without blocking submission.
func WithWarningTags(tags ...string) Option {
	return optionFunc(func(o *options) {
		if o.warningTags == nil {
			o.warningTags = make(map[string]struct{}, len(tags))
		}
		for _, tag := range tags {
			o.warningTags[tag] = struct{}{}
		}
	})
}

// ValidateFuncFor builds a formsync.ValidateFunc that validates the model
// against the tags of schema type T. Field names come from json tags, so
// reported paths line up with the model paths the coordinator uses.
//
// Every run validates the whole schema and reports every violated path; the
// scheduler's per-path merge keeps untouched fields' results intact.
func ValidateFuncFor[T any](opts ...Option) formsync.ValidateFunc {
	cfg := options{message: defaultMessage}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return func(ctx context.Context, model formsync.ModelValue, fieldPath string) (formsync.ValidationOutcome, error) {
		schema, err := decode[T](model)
		if err != nil {
			return formsync.ValidationOutcome{}, err
		}

		outcome := formsync.ValidationOutcome{
			Errors:   make(map[string][]string),
			Warnings: make(map[string][]string),
		}
		err = v.StructCtx(ctx, schema)
		if err == nil {
			return outcome, nil
		}

		var fieldErrs validator.ValidationErrors
		if !asValidationErrors(err, &fieldErrs) {
			return formsync.ValidationOutcome{}, err
		}

		for _, fe := range fieldErrs {
			path := modelPath(fe.Namespace())
			if path == "" {
				path = formsync.RootFormKey
			}
			msg := cfg.message(fe)
			if _, warn := cfg.warningTags[fe.Tag()]; warn {
				outcome.Warnings[path] = append(outcome.Warnings[path], msg)
			} else {
				outcome.Errors[path] = append(outcome.Errors[path], msg)
			}
		}
		return outcome, nil
	}
}

// decode round-trips the loose model value into the typed schema. Fields the
// schema does not declare are ignored; type mismatches fail the run.
func decode[T any](model formsync.ModelValue) (T, error) {
	var schema T
	raw, err := json.Marshal(model)
	if err != nil {
		return schema, fmt.Errorf("failed to encode model for validation: %w", err)
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return schema, fmt.Errorf("model does not fit validation schema: %w", err)
	}
	return schema, nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// modelPath strips the schema type name from a validator namespace and
// canonicalizes the rest, so "Profile.user.addresses[0].street" becomes
// "user.addresses[0].street".
func modelPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	} else {
		return ""
	}
	return fieldpath.Parse(namespace).String()
}

func defaultMessage(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s=%s validation", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}
