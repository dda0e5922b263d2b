package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/classify"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for:
//   - struct-level rules declared in tags
//   - ISO-4217 codes and a base currency inside the configured subset
//   - positive exchange rates
//   - a Redis address when the redis backend is selected
//   - compilable classifier paths and rules
//
// Every problem is reported, not just the first.
func Validate(cfg *Config) error {
	var errs []string

	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q (value %v)", fieldPath(fe), tagWithParam(fe), fe.Value()))
		}
	}

	p := cfg.Pipeline
	subset := make(map[string]bool, len(p.Currencies))
	for _, c := range p.Currencies {
		code := strings.ToUpper(c)
		if money.GetCurrency(code) == nil {
			errs = append(errs, fmt.Sprintf("pipeline.currencies: %q is not an ISO-4217 code", c))
		}
		subset[code] = true
	}
	if p.BaseCurrency != "" && !subset[strings.ToUpper(p.BaseCurrency)] {
		errs = append(errs, fmt.Sprintf("pipeline.base_currency: %q is not in pipeline.currencies", p.BaseCurrency))
	}
	for code, rate := range p.Rates {
		if !subset[strings.ToUpper(code)] {
			errs = append(errs, fmt.Sprintf("pipeline.rates: %q is not in pipeline.currencies", code))
		}
		if rate <= 0 {
			errs = append(errs, fmt.Sprintf("pipeline.rates: %s rate must be positive, got %v", code, rate))
		}
	}

	if cfg.Dedup.Backend == "redis" && cfg.Dedup.Redis.Addr == "" {
		errs = append(errs, "dedup.redis.addr: required when backend is redis")
	}

	if err := cfg.Classifier.Hints.Check(); err != nil {
		errs = append(errs, "classifier: "+err.Error())
	}
	if _, err := classify.CompileRules(cfg.Classifier.Rules); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func tagWithParam(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
