package authz

import (
	"fmt"

	"perimeter/internal/identity"
)

// DeniedError reports a failed authorization decision. Prefix is the rule
// that matched; it stays empty when no rule matched at all (default deny).
// The gateway maps every DeniedError to the same 403 response.
type DeniedError struct {
	Path     string
	Prefix   string
	Required identity.RoleSet
}

func (e *DeniedError) Error() string {
	if e.Prefix == "" {
		return fmt.Sprintf("access denied: no rule matches %s", e.Path)
	}
	return fmt.Sprintf("access denied: %s requires one of [%s]", e.Path, e.Required.Join(", "))
}
