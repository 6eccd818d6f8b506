// Package directory answers role, department and user lookups for assignee resolution.
package directory

import (
	"context"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// User is one person known to the directory.
type User struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Config is the on-disk layout of a static directory.
//
//	users:
//	  - id: u-1
//	    name: Mia Manager
//	roles:
//	  role-manager: [u-1]
//	departments:
//	  dept-legal: [u-2]
type Config struct {
	Users       []User              `yaml:"users"`
	Roles       map[string][]string `yaml:"roles"`
	Departments map[string][]string `yaml:"departments"`
}

// Static is an immutable in-memory directory.
type Static struct {
	names       map[string]string
	roles       map[string][]string
	departments map[string][]string
}

func NewStatic(config Config) *Static {
	s := &Static{
		names:       make(map[string]string, len(config.Users)),
		roles:       make(map[string][]string, len(config.Roles)),
		departments: make(map[string][]string, len(config.Departments)),
	}

	for _, user := range config.Users {
		s.names[user.ID] = user.Name
	}

	for roleID, members := range config.Roles {
		s.roles[roleID] = slices.Clone(members)
	}

	for departmentID, owners := range config.Departments {
		s.departments[departmentID] = slices.Clone(owners)
	}

	return s
}

// Parse decodes a YAML directory document.
func Parse(data []byte) (*Static, error) {
	var config Config

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse directory: %w", err)
	}

	for roleID, members := range config.Roles {
		if slices.Contains(members, "") {
			return nil, fmt.Errorf("role %s lists an empty user id", roleID)
		}
	}

	for departmentID, owners := range config.Departments {
		if slices.Contains(owners, "") {
			return nil, fmt.Errorf("department %s lists an empty user id", departmentID)
		}
	}

	return NewStatic(config), nil
}

// Load reads a YAML directory file.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file %s: %w", path, err)
	}

	return Parse(data)
}

func (s *Static) RoleMembers(_ context.Context, roleID string) ([]string, error) {
	return slices.Clone(s.roles[roleID]), nil
}

func (s *Static) DepartmentOwners(_ context.Context, departmentID string) ([]string, error) {
	return slices.Clone(s.departments[departmentID]), nil
}

func (s *Static) UserName(_ context.Context, userID string) (string, error) {
	return s.names[userID], nil
}
