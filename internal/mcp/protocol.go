package mcp

// Message JSON-RPC 2.0 消息（MCP 线协议）
type Message struct {
	Jsonrpc string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Params  interface{} `json:"params,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError JSON-RPC 2.0 错误
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// 标准 JSON-RPC 错误码
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// ProtocolVersion 支持的 MCP 协议版本
const ProtocolVersion = "2024-11-05"

// NewResultMessage 构造成功响应
func NewResultMessage(id interface{}, result interface{}) *Message {
	return &Message{
		Jsonrpc: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewErrorMessage 构造错误响应
func NewErrorMessage(id interface{}, code int, message string) *Message {
	return &Message{
		Jsonrpc: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// IsRequest 是否为请求（有 method 且有 id）
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.ID != nil
}

// IsNotification 是否为通知（有 method 无 id）
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}
