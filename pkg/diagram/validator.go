// Package diagram validates generated Mermaid markup before it is accepted.
package diagram

import (
	"fmt"
	"strings"
)

// Type is a diagram kind as understood by the validator.
type Type string

const (
	TypeHLD      Type = "hld"
	TypeLLD      Type = "lld"
	TypeDBD      Type = "dbd"
	TypeSequence Type = "sequence"
	TypeState    Type = "state"
	TypeGantt    Type = "gantt"
	TypeMindmap  Type = "mindmap"
	TypeJourney  Type = "journey"
)

// Code identifies which rule rejected a diagram.
type Code string

const (
	CodeTooShort             Code = "too_short"
	CodeWrongPrefix          Code = "wrong_prefix"
	CodeClassDiagramRequired Code = "class_diagram_required"
	CodeMissingClassKeyword  Code = "missing_class_keyword"
	CodeUnbalancedBrackets   Code = "unbalanced_brackets"
)

// MinLength is the shortest text that can be a diagram.
const MinLength = 10

// initDirective is accepted as a leading token for every diagram type.
const initDirective = "%%{init"

// Diagnostic describes why a diagram was rejected.
type Diagnostic struct {
	Code    Code
	Message string
}

func (d *Diagnostic) Error() string {
	return d.Message
}

// Recoverable reports whether a diagram that still fails with this diagnostic
// after every repair attempt may be handed to the consumer as best effort.
// A flowchart returned where a class diagram was required is never acceptable.
func (d *Diagnostic) Recoverable() bool {
	return d.Code != CodeClassDiagramRequired
}

// acceptedPrefixes maps each diagram type to its acceptable leading tokens.
var acceptedPrefixes = map[Type][]string{
	TypeHLD:      {"graph", "flowchart"},
	TypeLLD:      {"classDiagram"},
	TypeDBD:      {"erDiagram"},
	TypeSequence: {"sequenceDiagram"},
	TypeState:    {"stateDiagram", "stateDiagram-v2"},
	TypeGantt:    {"gantt"},
	TypeMindmap:  {"mindmap"},
	TypeJourney:  {"journey"},
}

// skipBracketCheck lists types whose syntax uses braces for non-flow structures
// (entity bodies, class bodies, sections).
var skipBracketCheck = map[Type]bool{
	TypeDBD:     true,
	TypeLLD:     true,
	TypeGantt:   true,
	TypeMindmap: true,
	TypeJourney: true,
}

var bracketPairs = [][2]rune{{'{', '}'}, {'[', ']'}, {'(', ')'}}

// aliases maps API-level names onto validator types.
var aliases = map[string]Type{
	"database": TypeDBD,
	"erd":      TypeDBD,
	"class":    TypeLLD,
	"flow":     TypeHLD,
}

// ParseType normalizes a diagram type name, resolving aliases such as "database".
func ParseType(name string) Type {
	key := strings.ToLower(strings.TrimSpace(name))
	if t, ok := aliases[key]; ok {
		return t
	}
	return Type(key)
}

// AcceptedPrefixes returns the leading tokens accepted for t, or nil when the
// type has no prefix contract.
func AcceptedPrefixes(t Type) []string {
	prefixes, ok := acceptedPrefixes[t]
	if !ok {
		return nil
	}
	out := make([]string, len(prefixes))
	copy(out, prefixes)
	return out
}

// Validate checks diagram text against the rules for diagramType.
// It returns nil when the diagram is acceptable.
func Validate(text string, diagramType string) *Diagnostic {
	t := ParseType(diagramType)
	trimmed := strings.TrimSpace(text)

	if len(trimmed) < MinLength {
		return &Diagnostic{
			Code:    CodeTooShort,
			Message: fmt.Sprintf("diagram is empty or too short (%d characters, need at least %d)", len(trimmed), MinLength),
		}
	}

	lower := strings.ToLower(trimmed)
	hasInit := strings.HasPrefix(lower, initDirective)

	if t == TypeLLD && !hasInit && (strings.HasPrefix(lower, "graph") || strings.HasPrefix(lower, "flowchart")) {
		return &Diagnostic{
			Code: CodeClassDiagramRequired,
			Message: fmt.Sprintf("lld diagrams must be a Mermaid classDiagram, got a flowchart starting with %q; "+
				"rewrite it as classDiagram with class definitions", leadingToken(trimmed)),
		}
	}

	if prefixes, ok := acceptedPrefixes[t]; ok && !hasInit && !hasAnyPrefix(lower, prefixes) {
		return &Diagnostic{
			Code: CodeWrongPrefix,
			Message: fmt.Sprintf("%s diagram must start with one of [%s], got %q",
				t, strings.Join(prefixes, ", "), leadingToken(trimmed)),
		}
	}

	if t == TypeLLD && !strings.Contains(lower, "class") {
		return &Diagnostic{
			Code:    CodeMissingClassKeyword,
			Message: "lld diagram must declare classes with the class keyword",
		}
	}

	if skipBracketCheck[t] {
		return nil
	}

	for _, pair := range bracketPairs {
		open := strings.Count(trimmed, string(pair[0]))
		closed := strings.Count(trimmed, string(pair[1]))
		if open != closed {
			return &Diagnostic{
				Code: CodeUnbalancedBrackets,
				Message: fmt.Sprintf("unbalanced %c%c brackets: %d open, %d close",
					pair[0], pair[1], open, closed),
			}
		}
	}

	return nil
}

func hasAnyPrefix(lower string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// leadingToken returns the first whitespace-delimited token of the first line.
func leadingToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
