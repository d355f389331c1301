package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ppiankov/ratchet/internal/bucket"
	"github.com/ppiankov/ratchet/internal/model"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// FieldError is one failed rule, named by its config key
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every problem found in a configuration
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// report config keys rather than Go field names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags and the rules that span several fields
func Validate(cfg model.Config) error {
	verr := &ValidationError{}

	if err := structValidator().Struct(cfg); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range ves {
			verr.add(configKey(fe.Namespace()), "%s", describe(fe))
		}
	}

	checkGroups(cfg, verr)
	checkDates(cfg, verr)
	checkOutcome(cfg, verr)

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// configKey drops the root struct name from a validator namespace
func configKey(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + fe.Param()
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "datetime":
		return fmt.Sprintf("must be a date in %s form, got %v", fe.Param(), fe.Value())
	case "min":
		return "needs at least " + fe.Param() + " entries"
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s, got %v", fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
}

func checkGroups(cfg model.Config, verr *ValidationError) {
	seen := map[string]bool{cfg.Treatment: true}
	for _, c := range cfg.Controls {
		if c == cfg.Treatment {
			verr.add("controls", "treatment %q cannot be its own control", c)
			continue
		}
		if seen[c] {
			verr.add("controls", "duplicate control %q", c)
		}
		seen[c] = true
	}
}

func checkDates(cfg model.Config, verr *ValidationError) {
	if _, err := bucket.CutoffsFromConfig(cfg.Periods); err != nil {
		verr.add("periods", "%v", err)
	}

	start, err1 := bucket.ParseDate(cfg.Range.Start)
	end, err2 := bucket.ParseDate(cfg.Range.End)
	iv, err3 := bucket.ParseDate(cfg.Intervention)
	if err1 != nil || err2 != nil {
		return
	}
	if end.Before(start) {
		verr.add("range", "end %s is before start %s", cfg.Range.End, cfg.Range.Start)
		return
	}
	if err3 == nil && (iv.Before(start) || iv.After(end)) {
		verr.add("intervention", "%s is outside the panel range %s..%s", cfg.Intervention, cfg.Range.Start, cfg.Range.End)
	}
}

func checkOutcome(cfg model.Config, verr *ValidationError) {
	if cfg.Outcome.Kind == "share" && cfg.Outcome.ShareLabel != "" {
		if _, err := model.ParseFrame(cfg.Outcome.ShareLabel); err != nil {
			verr.add("outcome.share_label", "%v", err)
		}
	}
	if cfg.Outcome.Kind == "scale" {
		for k := range cfg.Scale.Values {
			if _, err := model.ParseFrame(k); err != nil {
				verr.add("scale.values", "%v", err)
			}
		}
	}
}
