// Package validation provides struct-tag validation backed by
// go-playground/validator.
//
//	type Config struct {
//	    MaxTotal int `mapstructure:"max_total" validate:"gte=1"`
//	}
//
//	if err := validation.Validate(cfg); err != nil {
//	    // err is a *validation.Error listing every failing field
//	}
package validation
