// internal/config/schema.go
package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/FairForge/continuity/internal/errs"
)

// configSchema is the structural contract for the configuration document.
// The typed Validate pass handles cross-field rules; this catches shape
// errors (wrong types, out-of-range values, unknown roles) with a precise
// pointer into the document.
const configSchema = `{
  "type": "object",
  "properties": {
    "server": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "metrics_port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "log_level": {"type": "string", "enum": ["debug", "info", "warn", "error"]}
      }
    },
    "cluster": {
      "type": "object",
      "required": ["cluster_id", "nodes"],
      "properties": {
        "cluster_id": {"type": "string", "minLength": 1},
        "quorum_size": {"type": "integer", "minimum": 1},
        "nodes": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["node_id", "endpoint", "role"],
            "properties": {
              "node_id": {"type": "string", "minLength": 1},
              "endpoint": {"type": "string", "minLength": 1},
              "role": {"type": "string", "enum": ["primary", "secondary", "witness"]},
              "region": {"type": "string"},
              "site": {"type": "string"},
              "priority": {"type": "integer"},
              "capacity": {"type": "number", "minimum": 0, "maximum": 100}
            }
          }
        }
      }
    },
    "policy": {
      "type": "object",
      "properties": {
        "policy_id": {"type": "string", "minLength": 1},
        "strategy": {"type": "string", "enum": ["automatic", "manual", "quorum_based"]},
        "max_failover_time_s": {"type": "integer", "minimum": 1},
        "require_quorum": {"type": "boolean"},
        "region_priority": {"type": "array", "items": {"type": "string"}},
        "site_priority": {"type": "array", "items": {"type": "string"}},
        "min_healthy_nodes": {"type": "integer", "minimum": 0}
      }
    },
    "heartbeat": {
      "type": "object",
      "properties": {
        "interval_s": {"type": "integer", "minimum": 1},
        "jitter_percent": {"type": "number", "minimum": 0, "maximum": 50},
        "failure_threshold": {"type": "integer", "minimum": 1},
        "recovery_threshold": {"type": "integer", "minimum": 1},
        "max_concurrent_probes": {"type": "integer", "minimum": 1},
        "liveness_timeout_ms": {"type": "integer", "minimum": 1},
        "readiness_timeout_ms": {"type": "integer", "minimum": 1},
        "deep_check_timeout_ms": {"type": "integer", "minimum": 1}
      }
    },
    "security": {
      "type": "object",
      "properties": {
        "min_tls_version": {"type": "string", "enum": ["1.2", "1.3"]},
        "cert_validation": {"type": "string", "enum": ["strict", "allowlist", "insecure_skip"]},
        "allowlist": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["node_id", "fingerprint"],
            "properties": {
              "node_id": {"type": "string", "minLength": 1},
              "fingerprint": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    }
  },
  "required": ["cluster"]
}`

// validateSchema checks the raw YAML document against the embedded schema
func validateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errs.PolicyValidation(fmt.Sprintf("parse config: %v", err))
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return errs.PolicyValidation(fmt.Sprintf("schema validation: %v", err))
	}
	if !result.Valid() {
		var sb strings.Builder
		for i, desc := range result.Errors() {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(desc.String())
		}
		return errs.PolicyValidation("config schema: " + sb.String())
	}
	return nil
}
