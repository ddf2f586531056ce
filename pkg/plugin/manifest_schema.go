package plugin

// ManifestSchema is the JSON Schema for manifest validation. The id
// must be an importable package identifier because the host interprets
// the archive's source under that name.
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {
      "type": "string",
      "pattern": "^[a-z_][a-z0-9_]*$",
      "description": "Unique plugin identifier, also the interpreted package name"
    },
    "name": {
      "type": "string",
      "description": "Human-readable plugin name"
    },
    "description": {
      "type": "string",
      "description": "Plugin description"
    },
    "version": {
      "type": "string",
      "description": "Plugin version"
    },
    "author": {
      "type": "string",
      "description": "Plugin author"
    },
    "triggers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {
            "type": "string",
            "minLength": 1
          },
          "type": {
            "type": "string",
            "enum": ["text_pattern", "text_command", "match_message"]
          },
          "params": {
            "type": "object"
          },
          "can_private": {
            "type": "boolean"
          },
          "func": {
            "type": "string",
            "description": "Handler function name, defaults to the trigger id exported"
          }
        }
      }
    }
  }
}`
