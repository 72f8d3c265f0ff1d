package config

// schemaJSON is the structural schema the merged configuration document is
// validated against before decoding. additionalProperties is false at every
// level so a misspelled key fails loudly at startup.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "duration": {
      "oneOf": [
        {"type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h|d))+$"},
        {"type": "number"}
      ]
    }
  },
  "properties": {
    "service": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "environment": {"type": "string"}
      }
    },
    "log": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "format": {"enum": ["json", "text"]}
      }
    },
    "nats": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "url": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "max_reconnects": {"type": "integer"},
        "reconnect_wait": {"$ref": "#/definitions/duration"},
        "timeout": {"$ref": "#/definitions/duration"}
      }
    },
    "queue": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "ack_wait": {"$ref": "#/definitions/duration"},
        "max_deliver": {"type": "integer", "minimum": 1},
        "max_ack_pending": {"type": "integer", "minimum": 1},
        "max_age": {"$ref": "#/definitions/duration"},
        "dlq_max_age": {"$ref": "#/definitions/duration"}
      }
    },
    "ingress": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "addr": {"type": "string"},
        "max_body_bytes": {"type": "integer", "minimum": 1},
        "enqueue_timeout": {"$ref": "#/definitions/duration"},
        "rate_limit": {"type": "number", "minimum": 0},
        "rate_burst": {"type": "integer", "minimum": 1}
      }
    },
    "processor": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "workers": {"type": "integer", "minimum": 1},
        "queue_size": {"type": "integer", "minimum": 1},
        "nak_delay": {"$ref": "#/definitions/duration"}
      }
    },
    "postgres": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "dsn": {"type": "string", "minLength": 1},
        "max_open_conns": {"type": "integer", "minimum": 1},
        "max_idle_conns": {"type": "integer", "minimum": 0},
        "conn_max_lifetime": {"$ref": "#/definitions/duration"}
      }
    },
    "registry": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "cache_size": {"type": "integer", "minimum": 1}
      }
    },
    "influx": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "url": {"type": "string"},
        "token": {"type": "string"},
        "org": {"type": "string"},
        "bucket": {"type": "string"}
      }
    },
    "webhook": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "url": {"type": "string"},
        "headers": {"type": "object", "additionalProperties": {"type": "string"}},
        "timeout": {"$ref": "#/definitions/duration"}
      }
    },
    "dualwrite": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "buffer_size": {"type": "integer", "minimum": 1},
        "write_timeout": {"$ref": "#/definitions/duration"}
      }
    },
    "archive": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "path": {"type": "string"},
        "retention": {"$ref": "#/definitions/duration"}
      }
    },
    "ops": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "addr": {"type": "string"}
      }
    },
    "normalize": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "overlay_path": {"type": "string"},
        "timezone_offset": {"type": "string", "pattern": "^[+-]?[0-9]{1,2}(:[0-9]{2})?$"},
        "stale_after": {"$ref": "#/definitions/duration"}
      }
    }
  }
}`
