package pipeline

import (
	"github.com/gyaneshwarpardhi/ledgerflow/internal/classify"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/normalize"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/validate"
)

// RateTableFromConfig builds the exchange-rate snapshot for cfg.
func RateTableFromConfig(cfg *config.Config) *normalize.RateTable {
	return normalize.NewRateTableFromFloats(cfg.Pipeline.BaseCurrency, cfg.Pipeline.Rates)
}

// StagesFromConfig builds the validator, normalizer and classifier for cfg.
// The normalizer reads rates from rates so they can be swapped separately.
func StagesFromConfig(cfg *config.Config, rates normalize.RateSource) (*Stages, error) {
	rules, err := classify.CompileRules(cfg.Classifier.Rules)
	if err != nil {
		return nil, err
	}
	return &Stages{
		WorkspaceID: cfg.Pipeline.WorkspaceID,
		Validator: validate.New(validate.Options{
			Currencies:   cfg.Pipeline.Currencies,
			KnownSources: cfg.Pipeline.KnownSources,
		}),
		Normalizer: normalize.New(rates, normalize.Options{
			WorkspaceID: cfg.Pipeline.WorkspaceID,
			Rounding:    normalize.Rounding(cfg.Pipeline.Rounding),
		}),
		Classifier: classify.New(classify.Options{
			Hints: cfg.Classifier.Hints,
			Rules: rules,
		}),
	}, nil
}
