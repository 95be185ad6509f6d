// Package profile holds the closed registry of agent roles.
//
// Each [Role] has exactly one [Profile]: its default container name,
// the skills installed into the session, and the role banner mounted
// as the assistant's system prompt. Adding a role is an edit to the
// registry table below, never runtime configuration.
package profile

import (
	"errors"
	"fmt"
	"strings"
)

// Role names one agent persona.
type Role string

// The supported roles, in display order.
const (
	Planner      Role = "planner"
	Orchestrator Role = "orchestrator"
	Worker       Role = "worker"
	Reviewer     Role = "reviewer"
	Researcher   Role = "researcher"
)

// ErrUnknownRole is returned by [Lookup] for names outside the registry.
var ErrUnknownRole = errors.New("unknown agent role")

// UnknownRoleError carries the rejected name and the valid choices.
type UnknownRoleError struct {
	Name  string
	Valid []string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown agent type %q (available: %s)", e.Name, strings.Join(e.Valid, ", "))
}

// Unwrap lets errors.Is match [ErrUnknownRole].
func (e *UnknownRoleError) Unwrap() error { return ErrUnknownRole }

// Profile is the static definition of one role.
type Profile struct {
	Role          Role
	ContainerName string
	Skills        []string
	Banner        string
}

var order = []Role{Planner, Orchestrator, Worker, Reviewer, Researcher}

var registry = map[Role]Profile{
	Planner: {
		Role:          Planner,
		ContainerName: "tinker-planner",
		Skills:        []string{"ticket-management", "memory"},
		Banner: banner("PLANNER - ARCHITECT",
			"Requirements analysis and work definition, in interactive chat with a human.",
			"Explore the codebase, clarify requirements, propose a breakdown, and create tickets once the plan is confirmed.",
			"Never write implementation code or make commits."),
	},
	Orchestrator: {
		Role:          Orchestrator,
		ContainerName: "tinker-autonomous-orchestrator",
		Skills:        []string{"orchestrator-workflow", "ticket-management", "memory"},
		Banner: banner("ORCHESTRATOR - ROLE ENFORCEMENT",
			"Strategic coordination and active work assignment, fully autonomous.",
			"Assign tickets to idle workers and always message them after assignment.",
			"Never write, modify, or refactor code directly."),
	},
	Worker: {
		Role:          Worker,
		ContainerName: "tinker-autonomous-worker",
		Skills:        []string{"git-workflow", "worker-workflow", "memory"},
		Banner: banner("WORKER - ROLE ENFORCEMENT",
			"Autonomous code implementation of assigned tickets.",
			"Implement the ticket, push a branch, and open a pull request for review.",
			"Never merge your own pull requests or reassign tickets."),
	},
	Reviewer: {
		Role:          Reviewer,
		ContainerName: "tinker-autonomous-reviewer",
		Skills:        []string{"review-workflow", "memory", "proposal-reviewer"},
		Banner: banner("REVIEWER - ROLE ENFORCEMENT",
			"Autonomous code review of pull requests.",
			"Review code quality, tests, and documentation, then pass or fail the audit with clear feedback.",
			"Never push commits to the branches you review."),
	},
	Researcher: {
		Role:          Researcher,
		ContainerName: "tinker-autonomous-researcher",
		Skills:        []string{"researcher-workflow", "memory", "proposal-execution", "memory-consolidation", "retrospective"},
		Banner: banner("RESEARCHER - ROLE ENFORCEMENT",
			"Autonomous research and analysis of the codebase.",
			"Investigate architecture and patterns and record findings in memory for the other agents.",
			"Never send messages to other agents or change your own busy/idle status."),
	},
}

func banner(title, role, duties, forbidden string) string {
	var b strings.Builder
	b.WriteString("TINKER " + title + "\n\n")
	b.WriteString("YOUR ROLE: " + role + "\n\n")
	b.WriteString("CORE RESPONSIBILITIES:\n  " + duties + "\n\n")
	b.WriteString("ABSOLUTELY FORBIDDEN:\n  " + forbidden + "\n")
	return b.String()
}

// Lookup returns the profile for name. Unknown names yield an
// [*UnknownRoleError] that lists the valid roles.
func Lookup(name string) (Profile, error) {
	p, ok := registry[Role(name)]
	if !ok {
		return Profile{}, &UnknownRoleError{Name: name, Valid: Names()}
	}
	return p, nil
}

// Roles returns every registered role in display order.
func Roles() []Role {
	out := make([]Role, len(order))
	copy(out, order)
	return out
}

// Names returns the registered role names in display order.
func Names() []string {
	out := make([]string, len(order))
	for i, r := range order {
		out[i] = string(r)
	}
	return out
}

// SkillList returns the skills as the comma-separated form passed to
// the container's SKILLS variable.
func (p Profile) SkillList() string {
	return strings.Join(p.Skills, ",")
}
