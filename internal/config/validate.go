package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aatumaykin/ytharvest/internal/trigger"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator reports field names by their toml keys.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("toml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate проверяет валидность конфигурации и возвращает все найденные ошибки
func (c *Config) Validate() []error {
	var errs []error

	if err := structValidator().Struct(c); err != nil {
		errs = append(errs, translate(err, "Config.", "")...)
	}

	loc, err := c.Location()
	if err != nil {
		errs = append(errs, wrapFieldError("scheduler.timezone", err))
	}
	day, err := c.Weekday()
	if err != nil {
		errs = append(errs, wrapFieldError("scheduler.first_weekday", err))
	}
	calc := trigger.NewCalculator(trigger.WithLocation(loc), trigger.WithFirstWeekday(day))
	if c.Store.Driver != "memory" && c.Store.Driver != "postgres" && c.Store.Path == "" {
		errs = append(errs, fieldError("store.path", "is required for driver "+c.Store.Driver))
	}

	seen := map[string]int{}
	now := time.Now()
	for i, j := range c.Jobs {
		prefix := fmt.Sprintf("jobs[%d]", i)
		if err := structValidator().Struct(j); err != nil {
			errs = append(errs, translate(err, "JobConfig.", prefix+".")...)
			continue
		}
		// conversion catches target and trigger problems the tags cannot express
		spec, err := j.Spec(now)
		if err == nil {
			err = calc.Validate(spec.Trigger)
		}
		if err != nil {
			errs = append(errs, wrapFieldError(prefix, err))
			continue
		}
		if j.ID == "" {
			continue
		}
		if prev, ok := seen[spec.ID]; ok {
			errs = append(errs, fieldError(prefix+".id", fmt.Sprintf("duplicates jobs[%d].id %q", prev, spec.ID)))
			continue
		}
		seen[spec.ID] = i
	}

	return errs
}

// translate turns validator errors into ValidationErrors keyed by their
// dotted toml path, e.g. "scraper.max_results" or "jobs[0].channel_id".
func translate(err error, root, prefix string) []error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}

	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		field := prefix + strings.TrimPrefix(fe.Namespace(), root)
		out = append(out, fieldError(field, describe(fe)))
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("invalid value %v (expected one of: %s)", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("must be >= %s (got %v)", fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("must be > %s (got %v)", fe.Param(), fe.Value())
	case "hostname_port":
		return fmt.Sprintf("invalid listen address %q (expected host:port)", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
