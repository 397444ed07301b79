package tools

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/koustreak/sqlgate/internal/errs"
)

// DatabaseArgs selects an optional logical database.
type DatabaseArgs struct {
	Database string `mapstructure:"database_name"`
}

// DatabaseInfoArgs names a logical database.
type DatabaseInfoArgs struct {
	Database string `mapstructure:"database_name" validate:"required"`
}

// QueryArgs is one caller statement.
type QueryArgs struct {
	Query    string         `mapstructure:"query" validate:"required"`
	Params   []any          `mapstructure:"params"`
	Named    map[string]any `mapstructure:"named_params"`
	Database string         `mapstructure:"database_name"`
}

// TableArgs names a table.
type TableArgs struct {
	Table    string `mapstructure:"table" validate:"required"`
	Database string `mapstructure:"database_name"`
}

// ResetArgs are the arguments of reset_auto_increment.
type ResetArgs struct {
	Table      string `mapstructure:"table" validate:"required"`
	StartValue int64  `mapstructure:"start_value" validate:"gte=1"`
	Database   string `mapstructure:"database_name"`
}

// TruncateArgs are the arguments of truncate_table.
type TruncateArgs struct {
	Table    string `mapstructure:"table" validate:"required"`
	Confirm  bool   `mapstructure:"confirm"`
	Database string `mapstructure:"database_name"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}

// decode fills out from raw and validates it. Numbers may arrive as
// float64 or strings and booleans as "true"/"false"; unknown keys are an
// error. Fields absent from raw keep the value out already holds.
func decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid arguments", err)
	}
	if err := dec.Decode(raw); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid arguments", err)
	}
	if err := validate.Struct(out); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid arguments", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return errs.Newf(errs.ErrKindInvalidInput, "%s is required", fe.Field())
	case "gte":
		return errs.Newf(errs.ErrKindInvalidInput, "%s must be at least %s", fe.Field(), fe.Param())
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "%s is invalid", fe.Field())
	}
}
