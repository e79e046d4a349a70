// Package docs registers the swagger document served at /swagger/*any.
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
        "/healthz": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/readyz": {
            "get": {
                "tags": ["health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object"}}
                }
            }
        },
        "/webhook/{owner}/{strategy}": {
            "post": {
                "description": "Body is {\"signal\":\"long|short|close\"} or {\"buy\":\"SYM\",\"sell\":[\"A\",\"B\"]}.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhook"],
                "summary": "Receive a trading signal",
                "parameters": [
                    {"type": "string", "description": "owner", "name": "owner", "in": "path", "required": true},
                    {"type": "string", "description": "strategy", "name": "strategy", "in": "path", "required": true},
                    {"description": "signal payload", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.webhookRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.webhookAck"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        },
        "/webhook/{owner}/{strategy}/force": {
            "post": {
                "description": "Same as the plain webhook but bypasses the cooldown window and restarts it.",
                "consumes": ["application/json"],
                "tags": ["webhook"],
                "summary": "Receive a trading signal, ignoring cooldown",
                "parameters": [
                    {"type": "string", "description": "owner", "name": "owner", "in": "path", "required": true},
                    {"type": "string", "description": "strategy", "name": "strategy", "in": "path", "required": true},
                    {"description": "signal payload", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.webhookRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.webhookAck"}}}
            }
        },
        "/api/users": {
            "get": {"tags": ["owners"], "summary": "List owners", "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}}
        },
        "/api/users/{owner}": {
            "get": {
                "tags": ["owners"], "summary": "Get an owner",
                "parameters": [{"type": "string", "name": "owner", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}, "404": {"description": "Not Found", "schema": {"type": "object"}}}
            },
            "put": {
                "tags": ["owners"], "summary": "Register an owner or change its broker URL",
                "parameters": [
                    {"type": "string", "name": "owner", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.ownerRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}, "400": {"description": "Bad Request", "schema": {"type": "object"}}}
            },
            "delete": {
                "tags": ["owners"], "summary": "Delete an owner and its strategies",
                "parameters": [{"type": "string", "name": "owner", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/users/{owner}/broadcast": {
            "post": {
                "description": "Waits for all executions and returns one result per strategy.",
                "tags": ["owners"], "summary": "Send one signal to every strategy of an owner",
                "parameters": [
                    {"type": "string", "name": "owner", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.broadcastRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}, "404": {"description": "Not Found", "schema": {"type": "object"}}}
            }
        },
        "/api/users/{owner}/strategies": {
            "get": {
                "tags": ["strategies"], "summary": "List an owner's strategies",
                "parameters": [{"type": "string", "name": "owner", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            },
            "post": {
                "tags": ["strategies"], "summary": "Create a strategy",
                "parameters": [
                    {"type": "string", "name": "owner", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.createStrategyRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}, "400": {"description": "Bad Request", "schema": {"type": "object"}}, "409": {"description": "Conflict", "schema": {"type": "object"}}}
            }
        },
        "/api/users/{owner}/strategies/{name}": {
            "get": {
                "tags": ["strategies"], "summary": "Get a strategy",
                "parameters": [{"type": "string", "name": "owner", "in": "path", "required": true}, {"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}, "404": {"description": "Not Found", "schema": {"type": "object"}}}
            },
            "put": {
                "description": "An empty string clears a symbol; an omitted field is left alone.",
                "tags": ["strategies"], "summary": "Change a strategy's symbols",
                "parameters": [
                    {"type": "string", "name": "owner", "in": "path", "required": true},
                    {"type": "string", "name": "name", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.updateStrategyRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            },
            "delete": {
                "tags": ["strategies"], "summary": "Delete a strategy",
                "parameters": [{"type": "string", "name": "owner", "in": "path", "required": true}, {"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/users/{owner}/strategies/{name}/cash": {
            "put": {
                "tags": ["strategies"], "summary": "Override the cash balance",
                "parameters": [
                    {"type": "string", "name": "owner", "in": "path", "required": true},
                    {"type": "string", "name": "name", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.cashRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}, "400": {"description": "Bad Request", "schema": {"type": "object"}}}
            }
        },
        "/api/users/{owner}/strategies/{name}/cooldown": {
            "get": {
                "tags": ["strategies"], "summary": "Cooldown status",
                "parameters": [{"type": "string", "name": "owner", "in": "path", "required": true}, {"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/cooldown.Info"}}}
            },
            "delete": {
                "tags": ["strategies"], "summary": "Stop the cooldown early",
                "parameters": [{"type": "string", "name": "owner", "in": "path", "required": true}, {"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/cooldown.Info"}}}
            }
        },
        "/api/users/{owner}/strategies/{name}/logs": {
            "get": {
                "tags": ["strategies"], "summary": "Broker call history, newest first",
                "parameters": [
                    {"type": "string", "name": "owner", "in": "path", "required": true},
                    {"type": "string", "name": "name", "in": "path", "required": true},
                    {"type": "integer", "description": "entries to skip", "name": "skip", "in": "query"},
                    {"type": "integer", "description": "page size (max 100)", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/users/{owner}/strategies/{name}/executions": {
            "get": {
                "tags": ["strategies"], "summary": "Journal of handled signals",
                "parameters": [
                    {"type": "string", "name": "owner", "in": "path", "required": true},
                    {"type": "string", "name": "name", "in": "path", "required": true},
                    {"type": "integer", "description": "rows to skip", "name": "offset", "in": "query"},
                    {"type": "integer", "description": "page size (max 100)", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/events/ws": {
            "get": {
                "description": "Websocket; optional owner query parameter filters events.",
                "tags": ["events"], "summary": "Stream execution and strategy events",
                "parameters": [{"type": "string", "description": "owner filter", "name": "owner", "in": "query"}],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        }
    },
    "definitions": {
        "handler.webhookRequest": {
            "type": "object",
            "properties": {
                "signal": {"type": "string", "enum": ["long", "short", "close"]},
                "buy": {"type": "string"},
                "sell": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handler.webhookAck": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "signal": {"type": "string"},
                "owner": {"type": "string"},
                "strategy": {"type": "string"},
                "force": {"type": "boolean"},
                "processing_time_ms": {"type": "integer"}
            }
        },
        "handler.ownerRequest": {
            "type": "object",
            "properties": {"broker_url": {"type": "string"}}
        },
        "handler.broadcastRequest": {
            "type": "object",
            "properties": {"signal": {"type": "string", "enum": ["long", "short", "close"]}}
        },
        "handler.createStrategyRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "long_symbol": {"type": "string"},
                "short_symbol": {"type": "string"},
                "cash_balance": {"type": "number"}
            }
        },
        "handler.updateStrategyRequest": {
            "type": "object",
            "properties": {
                "long_symbol": {"type": "string"},
                "short_symbol": {"type": "string"}
            }
        },
        "handler.cashRequest": {
            "type": "object",
            "properties": {"cash_balance": {"type": "number"}}
        },
        "cooldown.Info": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "end_time": {"type": "string"},
                "remaining_hours": {"type": "integer"},
                "remaining_minutes": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Tradehook API",
	Description:      "Webhook signal execution: strategies, owners, cooldowns and broker order routing.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
