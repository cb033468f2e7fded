/*
Package agent defines the named agents, their fixed pipelines, and the
executor that threads a task-state record through each pipeline's stages.
*/
package agent

import "fmt"

// Type identifies one of the fixed named agents. The set is closed: each
// type is bound to exactly one linear pipeline.
type Type string

const (
	TypeEcho  Type = "echo"
	TypeElon  Type = "elon"
	TypeHenry Type = "henry"
)

// AllTypes returns the agent types in their canonical order.
func AllTypes() []Type {
	return []Type{TypeEcho, TypeElon, TypeHenry}
}

// ParseType validates an agent type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeEcho, TypeElon, TypeHenry:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown agent type: %s", s)
}

// Role is the generation persona a pipeline stage speaks as. Top-level
// agents delegate to specialized sub-roles (Elon's stages run as architect,
// coder, qa and reviewer; Henry's as researcher, writer and networker).
type Role string

const (
	RoleEcho       Role = "echo"
	RoleArchitect  Role = "architect"
	RoleCoder      Role = "coder"
	RoleQA         Role = "qa"
	RoleReviewer   Role = "reviewer"
	RoleResearcher Role = "researcher"
	RoleWriter     Role = "writer"
	RoleNetworker  Role = "networker"
)

// Config describes an agent for the external configuration boundary.
type Config struct {
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Personality  string   `json:"personality,omitempty"`
	Capabilities []string `json:"capabilities"`
}

var configs = map[Type]Config{
	TypeEcho: {
		Name:         "Echo",
		Role:         "chief assistant",
		Personality:  "product-minded coordinator who translates intent into work",
		Capabilities: []string{"intent parsing", "context management", "task dispatch"},
	},
	TypeElon: {
		Name:         "Elon",
		Role:         "cto",
		Personality:  "hands-on systems engineer",
		Capabilities: []string{"architecture design", "coding", "testing", "code review"},
	},
	TypeHenry: {
		Name:         "Henry",
		Role:         "cmo",
		Personality:  "community operator with a feel for what resonates",
		Capabilities: []string{"community research", "content creation", "social engagement"},
	},
}

// ConfigFor returns the configuration for an agent type.
func ConfigFor(t Type) (Config, bool) {
	cfg, ok := configs[t]
	return cfg, ok
}
