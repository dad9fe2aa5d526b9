package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Permission grants an action on a resource. Either field may be the
// wildcard "*".
//
//	Permission{Resource: "seasonality", Action: "read"}
//	Permission{Resource: "*", Action: "*"} // full access
type Permission struct {
	Resource string
	Action   string
}

// String returns "resource:action".
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Match reports whether p grants action on resource.
func (p Permission) Match(resource, action string) bool {
	return (p.Resource == "*" || p.Resource == resource) &&
		(p.Action == "*" || p.Action == action)
}

// ParsePermission parses "resource:action". Both parts must be non-empty.
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok {
		return Permission{}, fmt.Errorf("auth: invalid permission string %q: missing colon separator", s)
	}
	if resource == "" {
		return Permission{}, errors.New("auth: invalid permission string: empty resource")
	}
	if action == "" {
		return Permission{}, errors.New("auth: invalid permission string: empty action")
	}
	return Permission{Resource: resource, Action: action}, nil
}

// ParsePermissions parses each entry with [ParsePermission], skipping
// malformed entries. Stored keys may carry grants written by older tools;
// one bad entry must not make the key unusable.
func ParsePermissions(raw []string) []Permission {
	perms := make([]Permission, 0, len(raw))
	for _, s := range raw {
		p, err := ParsePermission(s)
		if err != nil {
			continue
		}
		perms = append(perms, p)
	}
	return perms
}

// RolePermissionMap maps a role to the grants held by bearer-token
// callers with that role. API key callers are limited to the key's own
// permission set instead.
type RolePermissionMap map[Role][]Permission

// DefaultRolePermissions gives admins full access and standard principals
// read access to every resource.
func DefaultRolePermissions() RolePermissionMap {
	return RolePermissionMap{
		RoleAdmin:    {{Resource: "*", Action: "*"}},
		RoleStandard: {{Resource: "*", Action: "read"}},
	}
}

func hasPermission(permissions []Permission, resource, action string) bool {
	for _, p := range permissions {
		if p.Match(resource, action) {
			return true
		}
	}
	return false
}
