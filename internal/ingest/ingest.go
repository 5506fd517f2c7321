// Package ingest maps raw chain payloads from the page scraper onto the
// strict option chain model. Nothing looser than models.OptionChain leaves
// this package.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"option-analyzer/internal/analysis/chain"
	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Decode reads one raw chain JSON document, fills gaps that can be recovered
// from contract names and validates the result.
func Decode(r io.Reader) (*models.OptionChain, error) {
	var c models.OptionChain
	dec := json.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedChain, err)
	}
	Normalize(&c)
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Normalize infers missing contract types and the expiration date from
// contract names, and upper-cases the symbol.
func Normalize(c *models.OptionChain) {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.ExpirationDate = strings.TrimSpace(c.ExpirationDate)

	for i := range c.Strikes {
		row := &c.Strikes[i]
		row.Type = models.ContractType(strings.ToLower(string(row.Type)))
		if row.Type.Valid() && row.Strike > 0 && c.ExpirationDate != "" {
			continue
		}
		parsed, ok := chain.ParseContractName(row.ContractName)
		if !ok {
			continue
		}
		if !row.Type.Valid() {
			row.Type = parsed.Type
		}
		if row.Strike <= 0 {
			row.Strike = parsed.Strike
		}
		if c.ExpirationDate == "" {
			c.ExpirationDate = parsed.Expiration.Format("2006-01-02")
		}
	}
}

// Validate checks the chain against the model's struct tags.
func Validate(c *models.OptionChain) error {
	return ValidateStruct(c)
}

// ValidateStruct checks any model against its validate tags and reports
// every failing field by its JSON path.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !apperrors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedChain, err)
	}
	out := make(apperrors.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apperrors.NewValidationError(fieldPath(fe), fe.Value(), fieldMessage(fe)))
	}
	return out
}

// fieldPath drops the root struct name: "OptionChain.strikes[3].strike" -> "strikes[3].strike".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
