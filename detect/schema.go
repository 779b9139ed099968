package detect

// detectionSchema is the JSON Schema every detection record is validated
// against before it is stored. Validation runs on the engine's own output:
// a schema failure here means a bug upstream, and the record must not reach
// the store.
const detectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Detection",
  "type": "object",
  "required": ["detectionId", "ruleId", "ruleVersion", "service", "severity", "confidence", "signalIds", "detectedAt"],
  "properties": {
    "detectionId": {
      "type": "string",
      "pattern": "^[0-9a-f]{64}$"
    },
    "ruleId": {
      "type": "string",
      "minLength": 1
    },
    "ruleVersion": {
      "type": "string",
      "pattern": "^\\d+\\.\\d+\\.\\d+$"
    },
    "service": {
      "type": "string",
      "minLength": 1
    },
    "severity": {
      "type": "string",
      "enum": ["critical", "high", "medium", "low", "info"]
    },
    "source": {
      "type": "string"
    },
    "signalType": {
      "type": "string"
    },
    "confidence": {
      "type": "number",
      "minimum": 0,
      "maximum": 1
    },
    "signalIds": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "string",
        "minLength": 1
      }
    },
    "resourceRefs": {
      "type": "array",
      "items": {
        "type": "string"
      }
    },
    "detectedAt": {
      "type": "string",
      "format": "date-time"
    },
    "evaluationTrace": {
      "type": "array",
      "maxItems": 21
    }
  }
}`
