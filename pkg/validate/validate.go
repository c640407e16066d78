// Package validate checks request structs against `validate` struct tags.
//
// Rules are comma-separated:
//
//	required      field must not be empty (strings are trimmed first)
//	nullable      if empty, skip the remaining rules for this field
//	email         valid email address
//	objectid      24-character hex document id
//	hex           hexadecimal string
//	min=N         string: min length | number: min value
//	max=N         string: max length | number: max value
//	digits=N      exactly N decimal digits
//	in=a,b,c      value must be one of the listed items (case-sensitive)
//
// Example:
//
//	type ResetInput struct {
//	    Token    string `json:"token"    validate:"required,hex"`
//	    Password string `json:"password" validate:"required,min=6"`
//	}
package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Struct validates the exported, tagged fields of v. The result maps the
// JSON field name to the message of its first failing rule.
func Struct(v interface{}) map[string]string {
	errs := make(map[string]string)
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return errs
	}
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" || !field.IsExported() {
			continue
		}

		value := rv.Field(i)
		if value.Kind() == reflect.Ptr {
			if value.IsNil() {
				if strings.Contains(tag, "required") {
					errs[jsonFieldName(field)] = fmt.Sprintf("The %s field is required.", jsonFieldName(field))
				}
				continue
			}
			value = value.Elem()
		}

		name := jsonFieldName(field)
		rules := splitRules(tag)
		if hasRule(rules, "nullable") && isEmpty(value) {
			continue
		}

		for _, rule := range rules {
			if msg := applyRule(rule, name, value); msg != "" {
				errs[name] = msg
				break
			}
		}
	}

	return errs
}

// HasErrors reports whether errs is non-empty.
func HasErrors(errs map[string]string) bool { return len(errs) > 0 }

func applyRule(rule, field string, v reflect.Value) string {
	raw := fmt.Sprintf("%v", v.Interface())
	key, param, _ := strings.Cut(rule, "=")

	switch key {
	case "nullable":
	case "required":
		if isEmpty(v) {
			return fmt.Sprintf("The %s field is required.", field)
		}
	case "email":
		if !emailRE.MatchString(raw) {
			return fmt.Sprintf("The %s must be a valid email address.", field)
		}
	case "objectid":
		if !primitive.IsValidObjectID(raw) {
			return fmt.Sprintf("The %s must be a valid id.", field)
		}
	case "hex":
		if !hexRE.MatchString(raw) {
			return fmt.Sprintf("The %s must be hexadecimal.", field)
		}
	case "min":
		n := parseFloat(param)
		if isNumericKind(v) {
			if toFloat(v) < n {
				return fmt.Sprintf("The %s must be at least %s.", field, param)
			}
		} else if float64(len([]rune(raw))) < n {
			return fmt.Sprintf("The %s must be at least %s characters.", field, param)
		}
	case "max":
		n := parseFloat(param)
		if isNumericKind(v) {
			if toFloat(v) > n {
				return fmt.Sprintf("The %s must not be greater than %s.", field, param)
			}
		} else if float64(len([]rune(raw))) > n {
			return fmt.Sprintf("The %s must not exceed %s characters.", field, param)
		}
	case "digits":
		n, _ := strconv.Atoi(param)
		if !digitsRE.MatchString(raw) || len(raw) != n {
			return fmt.Sprintf("The %s must be %s digits.", field, param)
		}
	case "in":
		for _, a := range strings.Split(param, ",") {
			if raw == strings.TrimSpace(a) {
				return ""
			}
		}
		return fmt.Sprintf("The selected %s is invalid.", field)
	default:
		panic(fmt.Sprintf("validate: unknown rule %q on field %s", key, field))
	}

	return ""
}

var (
	emailRE  = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	hexRE    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	digitsRE = regexp.MustCompile(`^\d+$`)
)

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	}
	return false
}

func isNumericKind(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func toFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	}
	return 0
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return strings.ToLower(f.Name)
	}
	return name
}

var ruleNames = map[string]bool{
	"required": true, "nullable": true, "email": true, "objectid": true,
	"hex": true, "min": true, "max": true, "digits": true, "in": true,
}

// splitRules splits on commas, except that a token which is not itself a
// rule continues the value list of a preceding in= rule.
//
//	"required,in=ADMIN,USER,max=10" → ["required", "in=ADMIN,USER", "max=10"]
func splitRules(tag string) []string {
	var rules []string
	for _, tok := range strings.Split(tag, ",") {
		tok = strings.TrimSpace(tok)
		name, _, _ := strings.Cut(tok, "=")
		n := len(rules)
		if !ruleNames[name] && n > 0 && strings.HasPrefix(rules[n-1], "in=") {
			rules[n-1] += "," + tok
			continue
		}
		rules = append(rules, tok)
	}
	return rules
}

func hasRule(rules []string, target string) bool {
	for _, r := range rules {
		if r == target {
			return true
		}
	}
	return false
}
