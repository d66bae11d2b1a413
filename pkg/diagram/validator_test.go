package diagram

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = "\n  A --> B\n  B --> C"

func TestValidate_TooShort(t *testing.T) {
	for _, text := range []string{"", "   ", "graph TD", "  graph  \n"} {
		d := Validate(text, "hld")
		require.NotNil(t, d, "text %q", text)
		assert.Equal(t, CodeTooShort, d.Code)
		assert.Contains(t, d.Message, "empty or too short")
	}
}

// Every accepted token passes for its own type and fails for every other type.
func TestValidate_PrefixContract(t *testing.T) {
	for diagramType, prefixes := range acceptedPrefixes {
		for _, prefix := range prefixes {
			text := prefix + body
			t.Run(fmt.Sprintf("%s/%s", diagramType, prefix), func(t *testing.T) {
				assert.Nil(t, Validate(text, string(diagramType)))
				assert.Nil(t, Validate(strings.ToUpper(prefix[:1])+prefix[1:]+body, string(diagramType)),
					"prefix match is case-insensitive")
			})

			for otherType := range acceptedPrefixes {
				if otherType == diagramType {
					continue
				}
				t.Run(fmt.Sprintf("%s/%s-rejected-by-%s", diagramType, prefix, otherType), func(t *testing.T) {
					d := Validate(text, string(otherType))
					require.NotNil(t, d)
					assert.Contains(t, []Code{CodeWrongPrefix, CodeClassDiagramRequired}, d.Code)
				})
			}
		}
	}
}

func TestValidate_WrongPrefixMessage(t *testing.T) {
	d := Validate("sequenceDiagram\n  A->>B: hi", "hld")
	require.NotNil(t, d)
	assert.Equal(t, CodeWrongPrefix, d.Code)
	assert.Contains(t, d.Message, "graph, flowchart")
	assert.Contains(t, d.Message, `"sequenceDiagram"`)
}

func TestValidate_InitDirectiveAlwaysAccepted(t *testing.T) {
	text := "%%{init: {'theme': 'dark'}}%%\ngraph TD\n  A --> B"
	for diagramType := range acceptedPrefixes {
		if diagramType == TypeLLD {
			continue
		}
		assert.Nil(t, Validate(text, string(diagramType)), "type %s", diagramType)
	}
	assert.Nil(t, Validate("%%{init: {}}%%\nclassDiagram\n  class A", "lld"))
}

// A flowchart where a class diagram is required is its own, unrecoverable failure.
func TestValidate_LLDRejectsFlowchart(t *testing.T) {
	for _, text := range []string{"graph TD\nA-->B", "flowchart LR\n  A --> B"} {
		d := Validate(text, "lld")
		require.NotNil(t, d)
		assert.Equal(t, CodeClassDiagramRequired, d.Code)
		assert.Contains(t, d.Message, "classDiagram")
		assert.False(t, d.Recoverable())
	}
}

func TestValidate_LLDNeedsClassKeyword(t *testing.T) {
	d := Validate("%%{init: {}}%%\n  A <|-- B", "lld")
	require.NotNil(t, d)
	assert.Equal(t, CodeMissingClassKeyword, d.Code)
	assert.True(t, d.Recoverable())
}

func TestValidate_SkipsBracketsForStructuredTypes(t *testing.T) {
	tests := map[string]string{
		"dbd":      "erDiagram\n  USER {\n    string id\n  USER ||--o{ ORDER : places",
		"database": "erDiagram\n  USER {{{ string id",
		"lld":      "classDiagram\n  class User {\n    +login()",
		"gantt":    "gantt\n  title Plan {{\n  section A",
		"mindmap":  "mindmap\n  root((idea)\n",
		"journey":  "journey\n  title Checkout [[\n",
	}
	for diagramType, text := range tests {
		assert.Nil(t, Validate(text, diagramType), "type %s", diagramType)
	}
}

func TestValidate_BracketBalance(t *testing.T) {
	pairs := []struct {
		open, close string
	}{
		{"{", "}"},
		{"[", "]"},
		{"(", ")"},
	}
	for _, pair := range pairs {
		for n := 1; n <= 4; n++ {
			t.Run(fmt.Sprintf("%s-extra-%d-open", pair.open, n), func(t *testing.T) {
				text := "graph TD\n  A --> B " + strings.Repeat(pair.open, n)
				d := Validate(text, "hld")
				require.NotNil(t, d)
				assert.Equal(t, CodeUnbalancedBrackets, d.Code)
				assert.Contains(t, d.Message, fmt.Sprintf("%d open, 0 close", n))
			})
			t.Run(fmt.Sprintf("%s-extra-%d-close", pair.close, n), func(t *testing.T) {
				text := "sequenceDiagram\n  A->>B: hi " + strings.Repeat(pair.close, n)
				d := Validate(text, "sequence")
				require.NotNil(t, d)
				assert.Equal(t, CodeUnbalancedBrackets, d.Code)
				assert.Contains(t, d.Message, fmt.Sprintf("0 open, %d close", n))
			})
		}
	}
}

func TestValidate_ReportsFirstImbalance(t *testing.T) {
	d := Validate("graph TD\n  A[Start --> B{x", "hld")
	require.NotNil(t, d)
	assert.Contains(t, d.Message, "{}")
	assert.Contains(t, d.Message, "1 open, 0 close")
}

func TestValidate_UnknownTypeStillChecksBrackets(t *testing.T) {
	assert.Nil(t, Validate("pie title Pets\n  \"Dogs\" : 386", "pie"))
	d := Validate("pie title Pets (\n  \"Dogs\" : 386", "pie")
	require.NotNil(t, d)
	assert.Equal(t, CodeUnbalancedBrackets, d.Code)
}

func TestValidate_BalancedFlowchart(t *testing.T) {
	text := "flowchart TD\n  A[Client] --> B(API)\n  B --> C{Cache?}\n  C -->|hit| D[(Redis)]"
	assert.Nil(t, Validate(text, "hld"))
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeDBD, ParseType("database"))
	assert.Equal(t, TypeDBD, ParseType(" DBD "))
	assert.Equal(t, TypeHLD, ParseType("HLD"))
	assert.Equal(t, TypeLLD, ParseType("class"))
	assert.Equal(t, Type("pie"), ParseType("pie"))
}

func TestAcceptedPrefixes_ReturnsCopy(t *testing.T) {
	p := AcceptedPrefixes(TypeHLD)
	p[0] = "mutated"
	assert.Equal(t, "graph", acceptedPrefixes[TypeHLD][0])
	assert.Nil(t, AcceptedPrefixes(Type("pie")))
}
