// Package ruleset loads declarative rule-set definitions from JSON. A
// definition names its rules and the boolean policy over them; documents are
// validated against a JSON Schema before any field is interpreted.
package ruleset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/spendgate/pkg/policytree"
	"github.com/Mindburn-Labs/spendgate/pkg/rules"
)

const schemaURL = "https://spendgate.schemas.local/ruleset.schema.json"

// schemaSource is the contract every definition document must satisfy. Rule
// payload validation beyond shape (zero limits, window floors) stays with the
// rule constructors.
const schemaSource = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "rules", "policy"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "rules": {
      "type": "array",
      "minItems": 1,
      "maxItems": 64,
      "items": {
        "type": "object",
        "required": ["kind"],
        "properties": {
          "kind": {
            "type": "string",
            "enum": ["rate_limiter", "program_constraint", "authorization_constraint", "balance_constraint", "sweep"]
          },
          "instrument": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
          "max_spend": {"type": "integer", "minimum": 0},
          "window": {"type": "integer", "minimum": 0},
          "signer": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
          "caller": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
          "max_balance": {"type": "integer", "minimum": 0},
          "destination": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
          "min_balance": {"type": "integer", "minimum": 0}
        },
        "additionalProperties": false
      }
    },
    "policy": {"$ref": "#/$defs/node"}
  },
  "$defs": {
    "node": {
      "oneOf": [
        {"type": "integer", "minimum": 0, "maximum": 63},
        {
          "type": "object",
          "required": ["op", "children"],
          "additionalProperties": false,
          "properties": {
            "op": {"type": "string", "enum": ["and", "or"]},
            "children": {
              "type": "array",
              "minItems": 2,
              "maxItems": 2,
              "items": {"$ref": "#/$defs/node"}
            }
          }
        }
      ]
    }
  }
}`

var compiled = mustCompile()

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
		panic(fmt.Sprintf("ruleset schema load failed: %v", err))
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("ruleset schema compile failed: %v", err))
	}
	return s
}

var (
	ErrSchemaViolation = errors.New("ruleset: document violates schema")
	ErrPolicyCoverage  = errors.New("ruleset: policy leaves do not match rule list")
)

// Definition is a parsed, validated rule-set definition.
type Definition struct {
	Name      string       `json:"name"`
	Specs     []rules.Spec `json:"rules"`
	Tree      policytree.Tree
	TreeBytes []byte
}

type document struct {
	Name   string          `json:"name"`
	Rules  []rules.Spec    `json:"rules"`
	Policy json.RawMessage `json:"policy"`
}

// Load parses and validates a definition document.
func Load(data []byte) (*Definition, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("ruleset: parse document: %w", err)
	}
	if err := compiled.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ruleset: decode document: %w", err)
	}

	tree, err := parsePolicy(doc.Policy)
	if err != nil {
		return nil, err
	}
	encoded, err := tree.Encode()
	if err != nil {
		return nil, fmt.Errorf("ruleset: encode policy: %w", err)
	}
	// Round-trip through the codec so leaf coverage gets the same checks a
	// wire-received tree would.
	if _, err := policytree.Decode(encoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPolicyCoverage, err)
	}
	if n, err := policytree.RuleCount(encoded); err != nil {
		return nil, fmt.Errorf("ruleset: count rules: %w", err)
	} else if int(n) != len(doc.Rules) {
		return nil, fmt.Errorf("%w: policy names %d rules, document lists %d", ErrPolicyCoverage, n, len(doc.Rules))
	}

	// Surface malformed rule payloads at load time instead of at fold time.
	for i, spec := range doc.Rules {
		if _, err := spec.Build(); err != nil {
			return nil, fmt.Errorf("ruleset: rule %d: %w", i, err)
		}
	}

	return &Definition{
		Name:      doc.Name,
		Specs:     doc.Rules,
		Tree:      tree,
		TreeBytes: encoded,
	}, nil
}

type policyNode struct {
	Op       string            `json:"op"`
	Children []json.RawMessage `json:"children"`
}

func parsePolicy(raw json.RawMessage) (policytree.Tree, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return policytree.Tree{}, errors.New("ruleset: empty policy")
	}
	if trimmed[0] != '{' {
		var index uint8
		if err := json.Unmarshal(raw, &index); err != nil {
			return policytree.Tree{}, fmt.Errorf("ruleset: parse policy leaf: %w", err)
		}
		return policytree.Leaf(index), nil
	}

	var node policyNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return policytree.Tree{}, fmt.Errorf("ruleset: parse policy node: %w", err)
	}
	if len(node.Children) != 2 {
		return policytree.Tree{}, fmt.Errorf("ruleset: policy node needs two children, got %d", len(node.Children))
	}
	left, err := parsePolicy(node.Children[0])
	if err != nil {
		return policytree.Tree{}, err
	}
	right, err := parsePolicy(node.Children[1])
	if err != nil {
		return policytree.Tree{}, err
	}
	switch node.Op {
	case "and":
		return policytree.And(left, right), nil
	case "or":
		return policytree.Or(left, right), nil
	default:
		return policytree.Tree{}, fmt.Errorf("ruleset: unknown policy operator %q", node.Op)
	}
}
