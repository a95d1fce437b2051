// Package docs registers the OpenAPI document for the ops API with swag so
// gin-swagger can serve it at /swagger/doc.json.
//
// Regenerate with: swag init -g cmd/concierge/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/commitments": {
            "get": {
                "description": "Newest first. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Commitments"],
                "summary": "List commitments (paginated)",
                "operationId": "listCommitments",
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.ListCommitmentsResponse"},
                        "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}
                    },
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/state": {
            "get": {
                "description": "Returns the phase, the candidates last presented and when the state last changed.",
                "produces": ["application/json"],
                "tags": ["Conversation"],
                "summary": "Current conversation state",
                "operationId": "getState",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ConversationState"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/triggers/greeting": {
            "post": {
                "description": "Runs the daily greeting immediately, outside the daily claim. With an Idempotency-Key a repeated request returns status \"duplicate\".",
                "produces": ["application/json"],
                "tags": ["Triggers"],
                "summary": "Send the greeting now",
                "operationId": "triggerGreeting",
                "parameters": [
                    {"type": "string", "description": "Deduplicates retried requests", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StatusResponse"}},
                    "400": {"description": "Bad Idempotency-Key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Greeting failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/triggers/sweep": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Triggers"],
                "summary": "Run one reminder sweep now",
                "operationId": "triggerSweep",
                "parameters": [
                    {"type": "string", "description": "Deduplicates retried requests", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SweepResponse"}},
                    "400": {"description": "Bad Idempotency-Key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Sweep failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Candidate": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "start_time": {"type": "string"},
                "details": {"type": "string"},
                "location": {"type": "string"},
                "url": {"type": "string"}
            }
        },
        "domain.Commitment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "start_time": {"type": "string"},
                "details": {"type": "string"},
                "location": {"type": "string"},
                "reminder_sent": {"type": "boolean"},
                "reminded_at": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "domain.ConversationContext": {
            "type": "object",
            "properties": {
                "candidates": {"type": "array", "items": {"$ref": "#/definitions/domain.Candidate"}},
                "last_message": {"type": "string"}
            }
        },
        "domain.ConversationState": {
            "type": "object",
            "properties": {
                "phase": {"type": "string", "enum": ["idle", "awaiting_preference", "awaiting_selection", "confirmed"]},
                "context": {"$ref": "#/definitions/domain.ConversationContext"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "not_ready"},
                "message": {"type": "string", "example": "database unavailable"}
            }
        },
        "handlers.ListCommitmentsResponse": {
            "type": "object",
            "properties": {
                "commitments": {"type": "array", "items": {"$ref": "#/definitions/domain.Commitment"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.StatusResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"}
            }
        },
        "handlers.SweepResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "result": {"$ref": "#/definitions/services.SweepResult"}
            }
        },
        "services.SweepResult": {
            "type": "object",
            "properties": {
                "due": {"type": "integer"},
                "sent": {"type": "integer"},
                "send_failed": {"type": "integer"},
                "mark_failed": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Family concierge ops API",
	Description:      "Operator endpoints for the concierge: state, commitments and manual triggers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
