// Package swagger registers the OpenAPI document served under /docs.
package swagger

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
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.HealthResponse"}}
                }
            }
        },
        "/version": {
            "get": {
                "produces": ["application/json"],
                "tags": ["version"],
                "summary": "Build version",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.VersionResponse"}}
                }
            }
        },
        "/api/v1/videos/batch-upload": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["videos"],
                "summary": "Upload verified clips and their word mappings",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/videos.BatchUploadRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/videos.BatchUploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large"},
                    "429": {"description": "Too Many Requests"}
                }
            }
        },
        "/api/v1/videos/{id}": {
            "get": {
                "produces": ["video/mp4", "video/webm", "application/octet-stream"],
                "tags": ["videos"],
                "summary": "Fetch stored clip bytes",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Clip bytes"},
                    "304": {"description": "Not Modified"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/v1/videos/{id}/mappings": {
            "get": {
                "produces": ["application/json"],
                "tags": ["videos"],
                "summary": "List word mappings of a clip",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.VideoMappingsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "error": {"type": "string"},
                "details": {"type": "object"}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "version": {"type": "string"},
                "database": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "types.VersionResponse": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "version": {"type": "string"},
                "description": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "types.VideoMappingsResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "video_id": {"type": "integer"},
                "mappings": {"type": "array", "items": {"$ref": "#/definitions/models.WordVideoMapping"}},
                "count": {"type": "integer"}
            }
        },
        "models.WordVideoMapping": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "video_id": {"type": "integer"},
                "word": {"type": "string"},
                "learning_language": {"type": "string"},
                "relevance_score": {"type": "number"},
                "transcript_source": {"type": "string"},
                "verified_at": {"type": "string"},
                "source_id": {"type": "string"}
            }
        },
        "videos.WordMappingInput": {
            "type": "object",
            "properties": {
                "word": {"type": "string"},
                "learning_language": {"type": "string"},
                "relevance_score": {"type": "number"},
                "transcript_source": {"type": "string", "enum": ["metadata", "audio"]},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "videos.VideoInput": {
            "type": "object",
            "properties": {
                "slug": {"type": "string"},
                "name": {"type": "string"},
                "format": {"type": "string"},
                "content_type": {"type": "string"},
                "video_data_base64": {"type": "string"},
                "size_bytes": {"type": "integer"},
                "transcript": {"type": "string"},
                "audio_transcript": {"type": "string"},
                "audio_transcript_verified": {"type": "boolean"},
                "whisper_metadata": {"type": "object"},
                "metadata": {"type": "object"},
                "word_mappings": {"type": "array", "items": {"$ref": "#/definitions/videos.WordMappingInput"}}
            }
        },
        "videos.BatchUploadRequest": {
            "type": "object",
            "properties": {
                "source_id": {"type": "string"},
                "videos": {"type": "array", "items": {"$ref": "#/definitions/videos.VideoInput"}}
            }
        },
        "videos.VideoResult": {
            "type": "object",
            "properties": {
                "slug": {"type": "string"},
                "video_id": {"type": "integer"},
                "status": {"type": "string", "enum": ["created", "existed"]},
                "mappings_created": {"type": "integer"},
                "mappings_skipped": {"type": "integer"}
            }
        },
        "videos.BatchUploadResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/videos.VideoResult"}},
                "total_videos": {"type": "integer"},
                "total_mappings": {"type": "integer"}
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
	Title:            "Clip Curator Backend API",
	Description:      "Batch ingestion and retrieval of vocabulary video clips.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
