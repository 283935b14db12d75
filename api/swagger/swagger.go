package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Cuaderno API",
        "description": "School administration API: attendance marking, history and summaries",
        "version": "0.1.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Attendance", "description": "Daily attendance marking and reporting"},
        {"name": "Students", "description": "Read-only student directory"},
        {"name": "Health", "description": "Liveness and readiness probes"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/HealthResponse"}}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Store unreachable", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        },
        "/attendance/mark": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance for a day",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkAttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MarkAttendanceResponse"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ErrorEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorEnvelope"}},
                    "404": {"description": "Unknown student", "schema": {"$ref": "#/definitions/ErrorEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        },
        "/attendance/history": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Attendance history",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "course", "in": "query", "type": "integer"},
                    {"name": "section", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string"},
                    {"name": "dateTo", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AttendanceHistoryResponse"}},
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        },
        "/attendance/summary": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Attendance counters per student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "course", "in": "query", "type": "integer"},
                    {"name": "section", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string"},
                    {"name": "dateTo", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AttendanceSummaryResponse"}},
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        },
        "/attendance/summary/export": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Export attendance summary",
                "produces": ["text/csv", "application/pdf"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "course", "in": "query", "type": "integer"},
                    {"name": "section", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string"},
                    {"name": "dateTo", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Document", "schema": {"type": "file"}},
                    "400": {"description": "Invalid filter or format", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "course", "in": "query", "type": "integer"},
                    {"name": "section", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student detail",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Student"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "MarkAttendanceItem": {
            "type": "object",
            "required": ["studentId", "status"],
            "properties": {
                "studentId": {"type": "string"},
                "status": {"type": "string", "enum": ["Present", "Absent", "Late", "Excused"]}
            }
        },
        "MarkAttendanceRequest": {
            "type": "object",
            "required": ["items"],
            "properties": {
                "date": {"type": "string", "example": "2024-03-04"},
                "items": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/MarkAttendanceItem"}
                }
            }
        },
        "MarkAttendanceResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "count": {"type": "integer"}
            }
        },
        "StudentRef": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "course": {"type": "integer"},
                "section": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "AuthorRef": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "role": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "Student": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "course": {"type": "integer"},
                "section": {"type": "string"},
                "code": {"type": "string"},
                "codeUsed": {"type": "boolean"}
            }
        },
        "AttendanceRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "date": {"type": "string", "format": "date-time"},
                "studentId": {"type": "string"},
                "status": {"type": "string"},
                "course": {"type": "integer"},
                "section": {"type": "string"},
                "authorId": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"},
                "student": {"$ref": "#/definitions/StudentRef"},
                "author": {"$ref": "#/definitions/AuthorRef"}
            }
        },
        "AttendanceHistoryResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "total": {"type": "integer"},
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"},
                "items": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/AttendanceRecord"}
                }
            }
        },
        "AttendanceSummaryRow": {
            "type": "object",
            "properties": {
                "studentId": {"type": "string"},
                "student": {"$ref": "#/definitions/StudentRef"},
                "presentCount": {"type": "integer"},
                "absentCount": {"type": "integer"},
                "lateCount": {"type": "integer"},
                "excusedCount": {"type": "integer"}
            }
        },
        "AttendanceSummaryResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "count": {"type": "integer"},
                "summary": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/AttendanceSummaryRow"}
                }
            }
        },
        "HealthResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "uptime": {"type": "number"},
                "store": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "ErrorEnvelope": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
