package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// contractFileSchema validates a contract definitions file: a JSON array of
// ContractDefinition objects. Structural checks only; expression validity is
// the engine's job at registration.
const contractFileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "name", "resource_budgets"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "name": {"type": "string", "minLength": 1},
      "description": {"type": "string"},
      "preconditions": {"type": "array", "items": {"type": "string"}},
      "postconditions": {"type": "array", "items": {"type": "string"}},
      "metamorphic_laws": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["id", "transformation", "relation_invariant"],
          "properties": {
            "id": {"type": "string", "minLength": 1},
            "name": {"type": "string"},
            "transformation": {"type": "string", "minLength": 1},
            "relation_invariant": {"type": "string", "minLength": 1}
          }
        }
      },
      "resource_budgets": {
        "type": "object",
        "required": ["max_wall_time_ms"],
        "properties": {
          "max_cpu_percent": {"type": "number", "minimum": 0},
          "max_memory_mb": {"type": "number", "minimum": 0},
          "max_wall_time_ms": {"type": "integer", "exclusiveMinimum": 0},
          "max_file_system_ops": {"type": "integer", "minimum": 0},
          "max_network_requests": {"type": "integer", "minimum": 0}
        }
      },
      "fault_scenarios": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["id", "fault_type", "fault_condition"],
          "properties": {
            "id": {"type": "string", "minLength": 1},
            "name": {"type": "string"},
            "fault_type": {"enum": ["network", "filesystem", "memory", "cpu", "timeout"]},
            "fault_condition": {"type": "string", "minLength": 1},
            "expected_behavior": {"type": "string"}
          }
        }
      }
    }
  }
}`

var compiledFileSchema = mustCompileFileSchema()

func mustCompileFileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://arbiter.schemas.local/contracts.schema.json"
	if err := c.AddResource(url, strings.NewReader(contractFileSchema)); err != nil {
		panic(fmt.Sprintf("contracts: schema resource: %v", err))
	}
	s, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("contracts: schema compile: %v", err))
	}
	return s
}

// ParseContracts decodes and schema-validates a JSON array of contract
// definitions.
func ParseContracts(data []byte) ([]ContractDefinition, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("contracts: parse: %w", err)
	}
	if err := compiledFileSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("contracts: schema validation: %w", err)
	}

	var defs []ContractDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("contracts: decode: %w", err)
	}
	return defs, nil
}

// LoadContractsFile reads a contract definitions file from disk.
func LoadContractsFile(path string) ([]ContractDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contracts: read %s: %w", path, err)
	}
	return ParseContracts(data)
}
