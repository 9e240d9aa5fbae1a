package filter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
)

// ErrNoActiveRequest is reported when stopping a filter that has nothing in flight.
var ErrNoActiveRequest = errors.New("no active request for filter")

// ConfigError reports a malformed service description. No I/O is attempted
// when it is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid service config: %s: %s", e.Field, e.Reason)
}

// ValidateService returns a *ConfigError when svc cannot be queried: a
// missing or non-absolute http(s) url, an empty collection or a negative limit.
func ValidateService(svc model.Service) error {
	raw := strings.TrimSpace(svc.URL)
	if raw == "" {
		return &ConfigError{Field: "url", Reason: "required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigError{Field: "url", Reason: err.Error()}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "url", Reason: fmt.Sprintf("%q is not an absolute http(s) url", raw)}
	}
	if strings.TrimSpace(svc.Collection) == "" {
		return &ConfigError{Field: "collection", Reason: "required"}
	}
	if svc.Limit < 0 {
		return &ConfigError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}
