package tools

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// futureTimeTag marks scheduling arguments: the value must carry both a date
// and a time component and must not lie in the past.
const futureTimeTag = "futuretime"

// Layouts accepted for scheduling arguments. All carry both a date and a
// time component; bare dates and bare times are rejected on purpose.
var timeLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Validator runs pre-execution checks on tool arguments: structural rules
// from the tool spec plus domain sanity checks on time expressions.
// Stateless apart from the clock, which tests override.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator() *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}

	// The structural pass treats futuretime as satisfied; Check runs the
	// real time checks afterwards so failures carry a precise message.
	_ = v.validate.RegisterValidation(futureTimeTag, func(validator.FieldLevel) bool {
		return true
	})

	return v
}

// Check validates args against spec.Rules. A failure is returned as a
// validation-coded error naming the offending fields; such errors are
// never retried.
func (v *Validator) Check(spec Spec, args map[string]any) error {
	if len(spec.Rules) == 0 {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}

	fieldErrors := v.validate.ValidateMap(args, spec.Rules)
	if len(fieldErrors) > 0 {
		var bad []string
		for field := range fieldErrors {
			bad = append(bad, field)
		}
		return oops.
			Code(CodeValidation).
			With("tool", spec.Name).
			With("fields", bad).
			Errorf("invalid arguments for tool %s: %s", spec.Name, strings.Join(bad, ", "))
	}

	for field, rule := range spec.Rules {
		ruleStr, ok := rule.(string)
		if !ok || !strings.Contains(ruleStr, futureTimeTag) {
			continue
		}
		raw, present := args[field]
		if !present {
			continue // required-ness was the structural pass's job
		}
		if err := v.checkTimeExpression(raw); err != nil {
			return oops.
				Code(CodeValidation).
				With("tool", spec.Name).
				With("field", field).
				Wrapf(err, "invalid time expression for %q", field)
		}
	}

	return nil
}

func (v *Validator) checkTimeExpression(raw any) error {
	str, ok := raw.(string)
	if !ok {
		return oops.Errorf("expected a string timestamp, got %T", raw)
	}

	var parsed time.Time
	var err error
	for _, layout := range timeLayouts {
		parsed, err = time.ParseInLocation(layout, str, time.Local)
		if err == nil {
			break
		}
	}
	if err != nil {
		return oops.Errorf("timestamp %q must contain both a date and a time", str)
	}

	if parsed.Before(v.now()) {
		return oops.Errorf("requested time %q is in the past", str)
	}

	return nil
}
