package handler

import (
	"github.com/gin-gonic/gin"

	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get("role")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetActor 组装当前操作人
func MustGetActor(c *gin.Context) (model.Actor, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return model.Actor{}, false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return model.Actor{}, false
	}
	return model.Actor{UserID: userID, Role: role}, true
}

// mustParam 读取必填路径参数，缺失时写入 400
func mustParam(c *gin.Context, name, message string) (string, bool) {
	v := c.Param(name)
	if v == "" {
		response.BadRequest(c, 10001, message)
		return "", false
	}
	return v, true
}
