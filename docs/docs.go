// Package docs holds the OpenAPI description served under /swagger.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service health",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Degraded"}}
            }
        },
        "/api/v1/assessments": {
            "get": {
                "produces": ["application/json"],
                "tags": ["assessments"],
                "summary": "List stored assessments",
                "parameters": [
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["assessments"],
                "summary": "Assess a local repository",
                "parameters": [
                    {"description": "Repository path", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.AssessRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.Assessment"}},
                    "400": {"description": "Invalid path"},
                    "422": {"description": "Path is not a readable directory"},
                    "429": {"description": "Rate limited"}
                }
            }
        },
        "/api/v1/assessments/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["assessments"],
                "summary": "Fetch one assessment",
                "parameters": [{"type": "string", "description": "Assessment ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.Assessment"}}, "404": {"description": "Not found"}}
            }
        },
        "/api/v1/assessments/{id}/report": {
            "get": {
                "produces": ["application/json", "text/markdown", "text/html"],
                "tags": ["assessments"],
                "summary": "Render an assessment report",
                "parameters": [
                    {"type": "string", "description": "Assessment ID", "name": "id", "in": "path", "required": true},
                    {"enum": ["json", "markdown", "html"], "type": "string", "description": "Report format", "name": "format", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown format"}, "404": {"description": "Not found"}}
            }
        },
        "/api/v1/leaderboard": {
            "get": {
                "produces": ["application/json"],
                "tags": ["leaderboard"],
                "summary": "Repositories ranked by latest score",
                "parameters": [
                    {"enum": ["daily", "weekly", "monthly", "all_time"], "type": "string", "name": "period", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown period"}}
            }
        },
        "/api/v1/benchmarks": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["benchmarks"],
                "summary": "Run a benchmark batch",
                "parameters": [
                    {"description": "Repository paths", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.BenchmarkRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid paths"}}
            }
        },
        "/api/v1/deltas": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["deltas"],
                "summary": "Record assessor deltas",
                "parameters": [
                    {"description": "Deltas", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.DeltaRequest"}}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid deltas"}}
            }
        },
        "/api/v1/deltas/aggregate": {
            "get": {
                "produces": ["application/json"],
                "tags": ["deltas"],
                "summary": "Per-assessor impact statistics",
                "parameters": [{"type": "string", "description": "Restrict to one assessor", "name": "assessor_id", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "types.AssessRequest": {
            "type": "object",
            "required": ["path"],
            "properties": {"path": {"type": "string"}}
        },
        "types.BenchmarkRequest": {
            "type": "object",
            "required": ["paths"],
            "properties": {"paths": {"type": "array", "items": {"type": "string"}}}
        },
        "types.DeltaResult": {
            "type": "object",
            "properties": {
                "assessor_id": {"type": "string"},
                "delta_score": {"type": "number"},
                "repository": {"type": "string"}
            }
        },
        "types.DeltaRequest": {
            "type": "object",
            "required": ["deltas"],
            "properties": {"deltas": {"type": "array", "items": {"$ref": "#/definitions/types.DeltaResult"}}}
        },
        "types.Assessment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "overall_score": {"type": "number"},
                "certification_level": {"type": "string"},
                "attributes_total": {"type": "integer"},
                "attributes_assessed": {"type": "integer"},
                "attributes_skipped": {"type": "integer"},
                "attributes_errored": {"type": "integer"},
                "assessed_at": {"type": "string"},
                "duration_ms": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "readiness-o-meter API",
	Description:      "Scores local repositories for agent readiness, ranks them and aggregates assessor impact.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
