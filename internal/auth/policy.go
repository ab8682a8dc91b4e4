package auth

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Document is the normalized form of a policy document. Whatever shape a
// policy arrives in (managed policy default version, inline JSON string),
// ParseDocument reduces it to this.
type Document struct {
	Version    string
	Statements []Statement
}

// Statement is one Allow/Deny rule. Exactly one of Action/NotAction is set.
// Resource, NotResource, and Condition are parsed so documents round-trip,
// but evaluation treats them as always matching; only action matching is
// implemented.
type Statement struct {
	Sid       string
	Effect    string
	Action    []string
	NotAction []string
	Resource  json.RawMessage
	Condition json.RawMessage
}

// stringList accepts a JSON string or list of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = many
	return nil
}

type rawStatement struct {
	Sid         string          `json:"Sid"`
	Effect      string          `json:"Effect"`
	Action      *stringList     `json:"Action"`
	NotAction   *stringList     `json:"NotAction"`
	Resource    json.RawMessage `json:"Resource"`
	NotResource json.RawMessage `json:"NotResource"`
	Condition   json.RawMessage `json:"Condition"`
}

// statementList accepts a single statement object or a list of them.
type statementList []rawStatement

func (l *statementList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var single rawStatement
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*l = []rawStatement{single}
		return nil
	}
	var many []rawStatement
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type rawDocument struct {
	Version   string        `json:"Version"`
	Statement statementList `json:"Statement"`
}

// ParseDocument parses a JSON policy document into its normalized form.
func ParseDocument(doc string) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("malformed policy document: %w", err)
	}

	out := &Document{Version: raw.Version}
	for _, rs := range raw.Statement {
		st := Statement{
			Sid:       rs.Sid,
			Effect:    rs.Effect,
			Resource:  rs.Resource,
			Condition: rs.Condition,
		}
		if rs.Action != nil {
			st.Action = *rs.Action
		}
		if rs.NotAction != nil {
			st.NotAction = *rs.NotAction
		}
		out.Statements = append(out.Statements, st)
	}
	return out, nil
}

// IsActionPermitted evaluates the document against an action. Statements
// are evaluated in document order; an explicit deny short-circuits the
// whole document.
func (d *Document) IsActionPermitted(action string) PermissionResult {
	permitted := false
	for i := range d.Statements {
		switch d.Statements[i].isActionPermitted(action) {
		case PermissionDenied:
			return PermissionDenied
		case PermissionPermitted:
			permitted = true
		}
	}
	if permitted {
		return PermissionPermitted
	}
	return PermissionNeutral
}

// isActionPermitted decides whether this statement concerns the action and,
// if so, what its effect yields.
func (s *Statement) isActionPermitted(action string) PermissionResult {
	concerned := false
	if len(s.NotAction) > 0 {
		if !matchesAny(s.NotAction, action) {
			concerned = true
		}
	} else {
		if matchesAny(s.Action, action) {
			concerned = true
		}
	}

	// Resource/NotResource/Condition are intentionally not evaluated; a
	// concerned statement applies regardless of the request's resource.

	if !concerned {
		return PermissionNeutral
	}
	if s.Effect == "Allow" {
		return PermissionPermitted
	}
	return PermissionDenied
}

func matchesAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if matchPattern(p, value) {
			return true
		}
	}
	return false
}

// matchPattern does full-string, case-sensitive glob matching where * is the
// only special character (matches any substring, including empty).
func matchPattern(pattern, value string) bool {
	escaped := strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*")
	matched, err := regexp.MatchString("^"+escaped+"$", value)
	if err != nil {
		return false
	}
	return matched
}
