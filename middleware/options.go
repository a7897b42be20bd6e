package middleware

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode converts loosely typed options into a typed config struct and
// validates its `validate` tags.
func Decode(opts Options, dst any) error {
	raw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return validate.Struct(dst)
}

// StringList accepts either a single string or a list of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("want a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

// decoder returns a Validate func that decodes into a fresh T.
func decoder[T any](check func(*T) error) func(Options) error {
	return func(opts Options) error {
		var cfg T
		if err := Decode(opts, &cfg); err != nil {
			return err
		}
		if check != nil {
			return check(&cfg)
		}
		return nil
	}
}
