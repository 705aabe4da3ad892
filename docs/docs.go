// Package docs 注册 mailme HTTP API 的 Swagger 描述，供 /swagger 页面使用。
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
        "/api/mails": {
            "post": {
                "description": "认领用户名，已存在时返回原邮箱",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Mailboxes"],
                "summary": "认领邮箱",
                "parameters": [
                    {
                        "description": "用户名",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/httptransport.claimRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.mailboxResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}}
                }
            }
        },
        "/api/mails/{username}": {
            "get": {
                "description": "返回邮件元数据，最新在前；since 为 RFC3339 时间，只返回其后的邮件",
                "produces": ["application/json"],
                "tags": ["Mailboxes"],
                "summary": "邮件列表",
                "parameters": [
                    {"type": "string", "description": "用户名", "name": "username", "in": "path", "required": true},
                    {"type": "string", "description": "RFC3339 时间", "name": "since", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}}
                }
            },
            "delete": {
                "description": "删除邮箱及其全部邮件",
                "tags": ["Mailboxes"],
                "summary": "删除邮箱",
                "parameters": [
                    {"type": "string", "description": "用户名", "name": "username", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}}
                }
            }
        },
        "/api/mails/{username}/{messageId}": {
            "get": {
                "description": "返回元数据与正文，正文过期时为空字符串",
                "produces": ["application/json"],
                "tags": ["Mailboxes"],
                "summary": "邮件详情",
                "parameters": [
                    {"type": "string", "description": "用户名", "name": "username", "in": "path", "required": true},
                    {"type": "string", "description": "邮件 ID", "name": "messageId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.StoredMessage"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}}
                }
            }
        },
        "/webhook/forwardemail": {
            "post": {
                "description": "接收 {from,to,subject,text,html} 或 {type:\"email.received\",data:{...}}",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhooks"],
                "summary": "接收 JSON 邮件",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DeliveryOutcome"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}}
                }
            }
        },
        "/webhook/resend": {
            "post": {
                "description": "接收 {from,to,subject,text,html} 或 {type:\"email.received\",data:{...}}",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhooks"],
                "summary": "接收 JSON 邮件",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DeliveryOutcome"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}}
                }
            }
        },
        "/webhook/cloudflare": {
            "post": {
                "description": "请求体为 message/rfc822 原文；X-Email-To / X-Email-From 仅在邮件头缺失时使用",
                "consumes": ["text/plain"],
                "produces": ["application/json"],
                "tags": ["Webhooks"],
                "summary": "接收原始邮件",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DeliveryOutcome"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httptransport.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.DeliveryOutcome": {
            "type": "object",
            "properties": {
                "delivered": {"type": "boolean"},
                "mailboxUsername": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "mailboxId": {"type": "string"},
                "to": {"type": "string"},
                "from": {"type": "string"},
                "subject": {"type": "string"},
                "snippet": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "domain.MessageContent": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "html": {"type": "string"}
            }
        },
        "domain.StoredMessage": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "mailboxId": {"type": "string"},
                "to": {"type": "string"},
                "from": {"type": "string"},
                "subject": {"type": "string"},
                "snippet": {"type": "string"},
                "createdAt": {"type": "string"},
                "content": {"$ref": "#/definitions/domain.MessageContent"}
            }
        },
        "httptransport.claimRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"}
            }
        },
        "httptransport.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "httptransport.mailboxResponse": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "email": {"type": "string"},
                "createdAt": {"type": "string"}
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
	Title:            "mailme API",
	Description:      "按用户名寻址的临时邮箱：认领邮箱、读取邮件、接收 webhook 投递。",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
