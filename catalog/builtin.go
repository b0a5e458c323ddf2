package catalog

import (
	"encoding/json"

	"github.com/xraph/mirror/event"
)

var userCreatedSchema = json.RawMessage(`{
	"type": "object",
	"required": ["id", "email"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"email": {"type": "string"},
		"first_name": {"type": ["string", "null"]},
		"last_name": {"type": ["string", "null"]},
		"email_verified": {"type": "boolean"},
		"created_at": {"type": "string"},
		"updated_at": {"type": "string"}
	}
}`)

var userUpdatedSchema = json.RawMessage(`{
	"type": "object",
	"required": ["id", "updated_at"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"email": {"type": "string"},
		"first_name": {"type": ["string", "null"]},
		"last_name": {"type": ["string", "null"]},
		"email_verified": {"type": "boolean"},
		"updated_at": {"type": "string", "minLength": 1}
	}
}`)

var userDeletedSchema = json.RawMessage(`{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "string", "minLength": 1}
	}
}`)

func builtinDefinitions() []Definition {
	return []Definition{
		{Name: event.TypeUserCreated, Description: "A user was created at the provider.", Schema: userCreatedSchema, Builtin: true},
		{Name: event.TypeUserUpdated, Description: "A user's profile changed.", Schema: userUpdatedSchema, Builtin: true},
		{Name: event.TypeUserDeleted, Description: "A user was removed.", Schema: userDeletedSchema, Builtin: true},
	}
}
