package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/langchou/tesquery/internal/models"
	"github.com/langchou/tesquery/internal/nlq"
)

// Tool MCP 工具定义
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// 通用参数片段
var (
	vinProp = map[string]interface{}{
		"type":        "string",
		"description": "Vehicle VIN. Falls back to the configured default vehicle when omitted.",
	}
	dateProp = map[string]interface{}{
		"type":        "string",
		"description": "RFC3339 timestamp, e.g. 2025-06-01T00:00:00Z",
	}
)

// toolDefinitions 暴露给 MCP 客户端的全部工具
func toolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "query",
			Description: "Ask a free-form question about your Tesla driving data, e.g. 'analyze my latest drive' or 'how many miles did I drive last week'. The question is parsed, cost-optimized and dispatched automatically.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]interface{}{
						"type":        "string",
						"description": "Natural language question about driving data",
					},
				},
				"required": []string{"question"},
			},
		},
		{
			Name:        "analyze_latest_drive",
			Description: "Analyze the most recent journey: merged drive segments, stops, battery consumption and Autopilot share.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"vin": vinProp,
					"days_back": map[string]interface{}{
						"type":        "integer",
						"description": "How many days back to look for the latest drive (default 7, max 14)",
					},
				},
			},
		},
		{
			Name:        "get_driving_history",
			Description: "List merged journeys in a time window. Long windows are fetched in 30-day chunks.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"vin":        vinProp,
					"start_date": dateProp,
					"end_date":   dateProp,
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of drive segments to fetch (capped at 50)",
					},
				},
			},
		},
		{
			Name:        "get_weekly_mileage",
			Description: "Total miles driven, bucketed by ISO week.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"vin":        vinProp,
					"start_date": dateProp,
					"end_date":   dateProp,
				},
			},
		},
		{
			Name:        "get_mileage_at_location",
			Description: "Miles driven to or from a named location (saved location names and addresses are matched).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"vin": vinProp,
					"location": map[string]interface{}{
						"type":        "string",
						"description": "Location name to match, e.g. 'Home' or 'Supercharger Fremont'",
					},
					"start_date": dateProp,
					"end_date":   dateProp,
				},
				"required": []string{"location"},
			},
		},
		{
			Name:        "get_vehicle_current_state",
			Description: "Current vehicle state: driving/parked/charging/asleep, battery, range, odometer, climate.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"vin": vinProp,
					"use_cache": map[string]interface{}{
						"type":        "boolean",
						"description": "Serve from the short-lived cache when possible (default true)",
					},
				},
			},
		},
		{
			Name:        "get_vehicles",
			Description: "List all vehicles on the account.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// toolOperations 工具名到结构化操作的映射
var toolOperations = map[string]models.Operation{
	"analyze_latest_drive":      models.OpAnalyzeLatestDrive,
	"get_driving_history":       models.OpGetDrivingHistory,
	"get_weekly_mileage":        models.OpGetWeeklyMileage,
	"get_mileage_at_location":   models.OpGetMileageAtLocation,
	"get_vehicle_current_state": models.OpGetVehicleCurrentState,
	"get_vehicles":              models.OpGetVehicles,
}

// callTool 执行一次工具调用
func (s *Server) callTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	if name == "query" {
		question, _ := args["question"].(string)
		if question == "" {
			return nil, fmt.Errorf("question is required")
		}
		result, err := s.dispatcher.HandleQuery(ctx, question)
		if err != nil {
			return nil, err
		}
		return toolResult(result)
	}

	op, ok := toolOperations[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	// 结构化调用同样走参数优化，限流规则与自然语言链路一致
	optimized := nlq.OptimizeForMCP(op, models.Params(args))
	data, err := s.dispatcher.Execute(ctx, op, optimized.Params)
	if err != nil {
		return nil, err
	}
	return toolResult(data)
}

// toolResult 把结果包装成 MCP content 块
func toolResult(data interface{}) (interface{}, error) {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(encoded)},
		},
	}, nil
}

// toolError 工具执行失败的结果块
func toolError(err error) interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": err.Error()},
		},
		"isError": true,
	}
}
