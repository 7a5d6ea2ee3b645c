// Package docs registers the OpenAPI description served at /swagger.
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
        "/attendance": {
            "get": {
                "tags": ["attendance"],
                "summary": "List records with derived status",
                "parameters": [
                    {"type": "string", "name": "prefect_number", "in": "query"},
                    {"type": "string", "name": "date", "in": "query", "description": "locale day string, e.g. 3/14/2025"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["attendance"],
                "summary": "Mark attendance for one prefect",
                "consumes": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/MarkRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Record"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["attendance"],
                "summary": "Delete every record",
                "parameters": [{"type": "boolean", "name": "confirm", "in": "query", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/attendance/bulk": {
            "post": {
                "tags": ["attendance"],
                "summary": "Mark attendance for many prefects at once",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/attendance/cleanup": {
            "post": {"tags": ["attendance"], "summary": "Drop records past retention", "responses": {"200": {"description": "OK"}}}
        },
        "/stats/daily": {
            "get": {"tags": ["stats"], "summary": "Per-day totals", "responses": {"200": {"description": "OK"}}}
        },
        "/stats/prefects/{prefect_number}": {
            "get": {
                "tags": ["stats"],
                "summary": "History and attendance rate for one prefect",
                "parameters": [{"type": "string", "name": "prefect_number", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stats/roles": {
            "get": {"tags": ["stats"], "summary": "Counts per role", "responses": {"200": {"description": "OK"}}}
        },
        "/stats/timeseries": {
            "get": {
                "tags": ["stats"],
                "summary": "Bucketed counts",
                "parameters": [{"type": "string", "enum": ["30m", "24h", "7d", "30d", "12w"], "name": "range", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/backup/export": {
            "post": {"tags": ["backup"], "summary": "Download a backup envelope", "responses": {"200": {"description": "OK"}}}
        },
        "/backup/validate": {
            "post": {"tags": ["backup"], "summary": "Check an uploaded backup without restoring", "responses": {"200": {"description": "OK"}}}
        },
        "/backup/restore": {
            "post": {"tags": ["backup"], "summary": "Replace all records from an uploaded backup", "responses": {"200": {"description": "OK"}}}
        },
        "/sync/status": {
            "get": {"tags": ["sync"], "summary": "Remote connectivity and last sync", "responses": {"200": {"description": "OK"}}}
        },
        "/sync/upload": {
            "post": {"tags": ["sync"], "summary": "Upsert local records to the remote store", "responses": {"200": {"description": "OK"}, "502": {"description": "Bad Gateway"}}}
        },
        "/sync/download": {
            "get": {"tags": ["sync"], "summary": "Preview this device's remote records", "responses": {"200": {"description": "OK"}}}
        },
        "/qr/scan": {
            "post": {"tags": ["qr"], "summary": "Verify a badge and mark attendance", "responses": {"201": {"description": "Created"}}}
        },
        "/export/csv": {
            "get": {"tags": ["report"], "summary": "CSV report or timestamp export", "produces": ["text/csv"], "responses": {"200": {"description": "OK"}}}
        },
        "/export/xlsx": {
            "get": {"tags": ["report"], "summary": "Excel workbook", "responses": {"200": {"description": "OK"}}}
        },
        "/import": {
            "post": {"tags": ["report"], "summary": "Import a CSV or XLSX file", "consumes": ["multipart/form-data"], "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "MarkRequest": {
            "type": "object",
            "required": ["prefectNumber", "role"],
            "properties": {
                "prefectNumber": {"type": "string"},
                "role": {"type": "string", "example": "Senior Executive"},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "Record": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "prefectNumber": {"type": "string"},
                "role": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"},
                "date": {"type": "string"}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "2.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Prefect Attendance API",
	Description:      "Attendance marking, statistics, backup and remote sync for school prefects.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
