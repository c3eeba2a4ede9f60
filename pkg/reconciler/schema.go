package reconciler

// worldStateSchema describes the envelope every hosted instance exports.
// Validation is deliberately shallow: the coordinator cares that the export
// is a structurally sound worldstate/v1 document, not about the game content
// inside it.
const worldStateSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "worldstate/v1 export envelope",
	"type": "object",
	"required": ["format", "world", "entities"],
	"properties": {
		"format": {
			"const": "worldstate/v1"
		},
		"world": {
			"type": "object",
			"required": ["id", "tick"],
			"properties": {
				"id": {
					"type": "string",
					"minLength": 1
				},
				"tick": {
					"type": "integer",
					"minimum": 0
				},
				"seed": {
					"type": "integer"
				}
			}
		},
		"entities": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {
						"type": "string",
						"minLength": 1
					}
				}
			}
		},
		"documents": {
			"type": "array"
		}
	}
}`
