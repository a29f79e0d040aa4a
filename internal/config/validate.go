package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one configuration problem. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct rules and cross-field constraints. Issues are
// sorted by path.
func (c *Config) Validate() []Issue {
	var issues []Issue

	if err := validate.Struct(c); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return []Issue{{Severity: SeverityError, Path: "", Message: err.Error()}}
		}
		for _, fe := range ves {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fieldPath(fe.Namespace()),
				Message:  ruleMessage(fe),
			})
		}
	}

	if c.Storage.DSN == "" && c.Storage.Kind != "sqlite" && c.Storage.Kind != "duckdb" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  fmt.Sprintf("required for storage kind %q", c.Storage.Kind),
		})
	}
	if c.Metrics.Backend == "datadog" && c.Lock.RedisAddr == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "lock.redis_addr",
			Message:  "empty; concurrent appends rely on the primary key alone",
		})
	}
	if _, ok := c.Input.HeaderMap["ORDERDATE"]; !ok && len(c.Input.HeaderMap) > 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "input.header_map",
			Message:  "no mapping for ORDERDATE; headers fall back to lower snake case",
		})
	}

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// fieldPath turns "Config.storage.kind" into "storage.kind".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be > %s", fe.Param())
	case "hostname_port":
		return "must be host:port"
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}
