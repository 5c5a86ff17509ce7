package permissions

import (
	"fmt"
	"sort"
	"strings"
)

// Built-in role names.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

// Permission names.
const (
	UserView    = "user.view"
	UserCreate  = "user.create"
	UserUpdate  = "user.update"
	UserDelete  = "user.delete"
	RoleManage  = "role.manage"
	SystemAdmin = "system.admin"
)

// Definition describes a permission.
type Definition struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

// RoleDefinition describes a seeded role and its permission bundle.
type RoleDefinition struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
}

// NormalizePermissions trims, de-duplicates, and sorts permissions.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

// ValidatePermissions validates that all permissions exist in the definition set.
func ValidatePermissions(perms []string) error {
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := definitionMap[trimmed]; !ok {
			return fmt.Errorf("invalid permission: %s", trimmed)
		}
	}
	return nil
}

// HasPermission reports whether perms grants key.
func HasPermission(perms []string, key string) bool {
	for _, perm := range perms {
		if perm == key {
			return true
		}
	}
	return false
}

// Definitions returns the permission catalogue.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap returns the catalogue keyed by permission name.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitionMap))
	for key, def := range definitionMap {
		out[key] = def
	}
	return out
}

// DefaultRoles returns the roles seeded on migration.
func DefaultRoles() []RoleDefinition {
	all := make([]string, 0, len(definitions))
	for _, def := range definitions {
		all = append(all, def.Key)
	}
	return []RoleDefinition{
		{
			Name:        RoleAdmin,
			DisplayName: "Administrator",
			Description: "Full access to every feature",
			Permissions: NormalizePermissions(all),
		},
		{
			Name:        RoleModerator,
			DisplayName: "Moderator",
			Description: "Can view and update users",
			Permissions: NormalizePermissions([]string{UserView, UserUpdate}),
		},
		{
			Name:        RoleUser,
			DisplayName: "User",
			Description: "Standard account",
			Permissions: []string{UserView},
		},
	}
}

var definitions = []Definition{
	{Key: UserView, Label: "View users", Module: "Users"},
	{Key: UserCreate, Label: "Create users", Module: "Users"},
	{Key: UserUpdate, Label: "Update users", Module: "Users"},
	{Key: UserDelete, Label: "Delete users", Module: "Users"},
	{Key: RoleManage, Label: "Manage roles", Module: "Roles"},
	{Key: SystemAdmin, Label: "System administration", Module: "System"},
}

var definitionMap = func() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}()
