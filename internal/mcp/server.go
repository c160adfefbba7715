package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/langchou/tesquery/internal/service"
)

// MaxMessageSize 单条消息上限（1MB），容纳较大的工具响应
const MaxMessageSize = 1024 * 1024

// Server 通过 stdin/stdout 提供 MCP 工具的服务端。
// 每行一条 JSON-RPC 消息，日志必须走 stderr 以免污染协议流。
type Server struct {
	logger     *zap.Logger
	dispatcher *service.Dispatcher
	version    string

	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner
}

// NewServer 创建 MCP 服务端
func NewServer(dispatcher *service.Dispatcher, logger *zap.Logger, version string) *Server {
	return &Server{
		logger:     logger,
		dispatcher: dispatcher,
		version:    version,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}
}

// SetStreams 替换输入输出流（测试用）
func (s *Server) SetStreams(in io.Reader, out io.Writer) {
	s.stdin = in
	s.stdout = out
	s.scanner = nil
}

// Run 主消息循环，stdin 关闭（EOF）时正常退出
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server starting", zap.String("version", s.version))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("MCP server shutting down (EOF)")
				return nil
			}
			// 扫描器错误（超长行、IO 错误）是粘滞的，Scan 此后永远失败，
			// 继续循环只会空转刷错误响应；只有成功读到一行后的 JSON
			// 解析错误才可恢复
			if !errors.Is(err, errMalformedLine) {
				s.logger.Error("Failed to read stdin", zap.Error(err))
				return err
			}
			s.logger.Error("Failed to parse message", zap.Error(err))
			_ = s.writeMessage(NewErrorMessage(nil, ParseError, err.Error()))
			continue
		}

		response := s.handleMessage(ctx, msg)
		if response == nil {
			continue
		}
		if err := s.writeMessage(response); err != nil {
			s.logger.Error("Failed to write response", zap.Error(err))
		}
	}
}

// errMalformedLine 某一行不是合法 JSON-RPC，流本身仍可继续读
var errMalformedLine = errors.New("malformed message")

func (s *Server) readMessage() (*Message, error) {
	if s.scanner == nil {
		s.scanner = bufio.NewScanner(s.stdin)
		s.scanner.Buffer(make([]byte, MaxMessageSize), MaxMessageSize)
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return nil, io.EOF
	}

	var msg Message
	if err := json.Unmarshal(s.scanner.Bytes(), &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedLine, err)
	}
	return &msg, nil
}

func (s *Server) writeMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := fmt.Fprintf(s.stdout, "%s\n", data); err != nil {
		return fmt.Errorf("write stdout: %w", err)
	}
	return nil
}

// handleMessage 处理一条消息，通知不产生响应
func (s *Server) handleMessage(ctx context.Context, msg *Message) *Message {
	if msg.IsNotification() {
		if msg.Method == "notifications/initialized" {
			s.logger.Info("MCP client initialized")
		}
		return nil
	}
	if !msg.IsRequest() {
		return NewErrorMessage(msg.ID, InvalidRequest, "not a request or notification")
	}

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "tools/list":
		return NewResultMessage(msg.ID, map[string]interface{}{"tools": toolDefinitions()})
	case "tools/call":
		return s.handleToolCall(ctx, msg)
	case "ping":
		return NewResultMessage(msg.ID, map[string]interface{}{})
	default:
		return NewErrorMessage(msg.ID, MethodNotFound, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

func (s *Server) handleInitialize(msg *Message) *Message {
	return NewResultMessage(msg.ID, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "tesquery",
			"version": s.version,
		},
	})
}

func (s *Server) handleToolCall(ctx context.Context, msg *Message) *Message {
	params, ok := msg.Params.(map[string]interface{})
	if !ok {
		return NewErrorMessage(msg.ID, InvalidParams, "invalid params: expected object")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]interface{})

	s.logger.Info("Tool call", zap.String("tool", name))

	result, err := s.callTool(ctx, name, args)
	if err != nil {
		// 工具级错误按 MCP 约定放在结果里，协议级错误才用 error 响应
		return NewResultMessage(msg.ID, toolError(err))
	}
	return NewResultMessage(msg.ID, result)
}
