// Package resp 定义统一的 HTTP JSON 响应结构。
// 所有接口都返回 {success, code, message, data, request_id} 信封。
package resp

import (
	"encoding/json"
	"net/http"
)

// Code 业务错误码
type Code int

const (
	CodeOK            Code = 0
	CodeInvalidParam  Code = 40000 // 参数错误
	CodeBusinessRule  Code = 40001 // 业务规则不满足（库存不足、空购物车、状态不允许）
	CodeUnauthorized  Code = 40100
	CodeForbidden     Code = 40300
	CodeNotFound      Code = 40400
	CodeConflict      Code = 40900
	CodeTooManyReq    Code = 42900
	CodeInternalError Code = 50000
	CodeTimeout       Code = 50400
)

// Response 统一响应信封
type Response[T any] struct {
	Success   bool   `json:"success"`
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Data      *T     `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteJSON 写出 JSON 响应，success 由 code 决定
func WriteJSON[T any](w http.ResponseWriter, status int, code Code, msg string, data *T, reqID, traceID string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response[T]{
		Success:   code == CodeOK,
		Code:      code,
		Message:   msg,
		Data:      data,
		RequestID: reqID,
		TraceID:   traceID,
	})
}

// OK 200 成功响应
func OK[T any](w http.ResponseWriter, data *T, reqID, traceID string) {
	WriteJSON(w, http.StatusOK, CodeOK, "success", data, reqID, traceID)
}

// Created 201 成功响应
func Created[T any](w http.ResponseWriter, msg string, data *T, reqID, traceID string) {
	WriteJSON(w, http.StatusCreated, CodeOK, msg, data, reqID, traceID)
}

// Error 错误响应，不携带 data
func Error(w http.ResponseWriter, status int, code Code, msg, reqID, traceID string) {
	WriteJSON[any](w, status, code, msg, nil, reqID, traceID)
}

// HTTPStatusFromCode 错误码到 HTTP 状态码的默认映射
func HTTPStatusFromCode(code Code) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam, CodeBusinessRule:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyReq:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
