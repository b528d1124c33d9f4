package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const durationPattern = `^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// configSchema describes the YAML config file. Durations are Go duration
// strings such as "30s" or "5m".
var configSchema = strings.ReplaceAll(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "duration": {"type": "string", "pattern": "DURATION"},
    "percent": {"type": "number", "minimum": 0},
    "endpoint": {
      "type": "object",
      "additionalProperties": false,
      "required": ["path"],
      "properties": {
        "name": {"type": "string"},
        "method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"]},
        "path": {"type": "string", "minLength": 1},
        "headers": {"type": "object", "additionalProperties": {"type": "string"}},
        "body": {},
        "weight": {"type": "integer", "minimum": 0},
        "auth": {"type": "string", "enum": ["none", "jwt", "api_key"]}
      }
    },
    "profile": {
      "type": "object",
      "additionalProperties": false,
      "required": ["endpoints"],
      "properties": {
        "name": {"type": "string"},
        "think_time": {"$ref": "#/definitions/duration"},
        "endpoints": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/endpoint"}}
      }
    }
  },
  "properties": {
    "target": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "base_url": {"type": "string", "pattern": "^https?://"},
        "timeout": {"$ref": "#/definitions/duration"},
        "max_rps": {"type": "number", "minimum": 0},
        "jwt_secret": {"type": "string"},
        "api_key": {"type": "string"}
      }
    },
    "scenario": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "suite": {"type": "string", "minLength": 1},
        "user_count": {"type": "integer", "minimum": 1},
        "ramp_up": {"$ref": "#/definitions/duration"},
        "test_duration": {"$ref": "#/definitions/duration"},
        "batch_interval": {"$ref": "#/definitions/duration"},
        "actor_mix": {"type": "object", "additionalProperties": {"type": "number", "minimum": 0}},
        "profiles": {"type": "object", "additionalProperties": {"$ref": "#/definitions/profile"}}
      }
    },
    "monitor": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "interval": {"$ref": "#/definitions/duration"},
        "cpu_threshold_percent": {"$ref": "#/definitions/percent"},
        "memory_threshold_percent": {"$ref": "#/definitions/percent"}
      }
    },
    "thresholds": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "response_time_percent": {"$ref": "#/definitions/percent"},
        "throughput_percent": {"$ref": "#/definitions/percent"},
        "error_rate_points": {"$ref": "#/definitions/percent"},
        "memory_percent": {"$ref": "#/definitions/percent"},
        "improvement_percent": {"$ref": "#/definitions/percent"}
      }
    },
    "baseline": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "driver": {"type": "string", "enum": ["file", "postgres"]},
        "dir": {"type": "string"},
        "dsn": {"type": "string"}
      }
    },
    "report": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "dir": {"type": "string"},
        "formats": {"type": "array", "uniqueItems": true, "items": {"type": "string", "enum": ["json", "csv", "html"]}},
        "gzip": {"type": "boolean"},
        "s3": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "bucket": {"type": "string"},
            "prefix": {"type": "string"},
            "region": {"type": "string"},
            "endpoint": {"type": "string"},
            "access_key": {"type": "string"},
            "secret_key": {"type": "string"}
          }
        }
      }
    },
    "server": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "listen": {"type": "string"}
      }
    },
    "log": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "format": {"type": "string", "enum": ["json", "console"]}
      }
    }
  }
}`, "DURATION", durationPattern)

// ValidateDocument checks a YAML config document against the config schema.
func ValidateDocument(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if doc == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		errors := make([]string, 0, len(result.Errors()))
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}
