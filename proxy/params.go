package proxy

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ParamType is the declared type of a path parameter.
type ParamType int

const (
	ParamString ParamType = iota
	ParamInt
	ParamInt64
	ParamFloat
	ParamBool
	ParamUUID
)

func (t ParamType) String() string {
	switch t {
	case ParamInt:
		return "int"
	case ParamInt64:
		return "int64"
	case ParamFloat:
		return "float"
	case ParamBool:
		return "bool"
	case ParamUUID:
		return "uuid"
	default:
		return "string"
	}
}

// parse converts a raw path value into the declared type.
func (t ParamType) parse(raw string) (interface{}, error) {
	switch t {
	case ParamInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("Input should be a valid integer, unable to parse string as an integer")
		}
		return n, nil
	case ParamInt64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("Input should be a valid integer, unable to parse string as an integer")
		}
		return n, nil
	case ParamFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.New("Input should be a valid number, unable to parse string as a number")
		}
		return f, nil
	case ParamBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("Input should be a valid boolean, unable to interpret input")
		}
		return b, nil
	case ParamUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, errors.Errorf("Input should be a valid UUID, %v", err)
		}
		return id, nil
	default:
		return raw, nil
	}
}

func (t ParamType) errorType() string {
	switch t {
	case ParamInt, ParamInt64:
		return "int_parsing"
	case ParamFloat:
		return "float_parsing"
	case ParamBool:
		return "bool_parsing"
	case ParamUUID:
		return "uuid_parsing"
	default:
		return "string_type"
	}
}

// ParamSpec declares the type and validation rules of a path parameter.
// Rules use go-playground/validator tag syntax, e.g. "min=1,max=10".
type ParamSpec struct {
	Name  string
	Type  ParamType
	Rules string
}

// StringParam declares a string path parameter.
func StringParam(name string, rules ...string) ParamSpec {
	return newParamSpec(name, ParamString, rules)
}

// IntParam declares an int path parameter.
func IntParam(name string, rules ...string) ParamSpec {
	return newParamSpec(name, ParamInt, rules)
}

// Int64Param declares an int64 path parameter.
func Int64Param(name string, rules ...string) ParamSpec {
	return newParamSpec(name, ParamInt64, rules)
}

// FloatParam declares a float64 path parameter.
func FloatParam(name string, rules ...string) ParamSpec {
	return newParamSpec(name, ParamFloat, rules)
}

// BoolParam declares a bool path parameter.
func BoolParam(name string, rules ...string) ParamSpec {
	return newParamSpec(name, ParamBool, rules)
}

// UUIDParam declares a uuid.UUID path parameter.
func UUIDParam(name string, rules ...string) ParamSpec {
	return newParamSpec(name, ParamUUID, rules)
}

func newParamSpec(name string, t ParamType, rules []string) ParamSpec {
	spec := ParamSpec{Name: name, Type: t}
	if len(rules) > 0 {
		spec.Rules = rules[0]
	}
	return spec
}

// Validator validates a bound path parameter value against its rules.
type Validator interface {
	ValidateParam(name string, value interface{}, rules string) error
}

type tagValidator struct {
	validate *validator.Validate
}

// NewValidator returns the default Validator backed by go-playground/validator.
func NewValidator() Validator {
	return &tagValidator{validate: validator.New()}
}

func (v *tagValidator) ValidateParam(name string, value interface{}, rules string) error {
	if rules == "" {
		return nil
	}

	err := v.validate.Var(value, rules)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("Input failed the '%s=%s' rule", fe.Tag(), fe.Param())
		}
		return fmt.Errorf("Input failed the '%s' rule", fe.Tag())
	}

	return errors.Wrapf(err, "failed validating %s", name)
}

// bindParams converts the raw captures of a matched route into the declared
// parameter types. When validation is disabled every capture is passed
// through as a string.
func bindParams(specs []ParamSpec, raw map[string]string, validate bool, v Validator) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(raw))
	for name, value := range raw {
		params[name] = value
	}

	if !validate {
		return params, nil
	}

	verr := &ValidationError{}

	for _, spec := range specs {
		value, ok := raw[spec.Name]
		if !ok {
			continue
		}

		typed, err := spec.Type.parse(value)
		if err != nil {
			verr.Fields = append(verr.Fields, FieldError{
				Location: "path",
				Name:     spec.Name,
				Type:     spec.Type.errorType(),
				Message:  err.Error(),
			})
			continue
		}

		if v != nil {
			if err := v.ValidateParam(spec.Name, typed, spec.Rules); err != nil {
				verr.Fields = append(verr.Fields, FieldError{
					Location: "path",
					Name:     spec.Name,
					Type:     "value_error",
					Message:  err.Error(),
				})
				continue
			}
		}

		params[spec.Name] = typed
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}

	return params, nil
}
