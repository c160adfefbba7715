package tessie

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/langchou/tesquery/internal/models"
)

// 错误定义
var (
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrVehicleUnavailable = fmt.Errorf("vehicle unavailable")
)

// Client Tessie 聚合 API 客户端
type Client struct {
	httpClient  *http.Client
	apiHost     string
	accessToken string
}

// NewClient 创建客户端
func NewClient(apiHost, accessToken string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiHost:     apiHost,
		accessToken: accessToken,
	}
}

// doRequest 执行带认证的请求
func (c *Client) doRequest(ctx context.Context, method, path string) (*http.Response, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("not authenticated")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiHost+path, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Tesquery/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	// 处理不同状态码
	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusUnauthorized:
		resp.Body.Close()
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, ErrRateLimited
	case http.StatusRequestTimeout, http.StatusServiceUnavailable:
		resp.Body.Close()
		return nil, ErrVehicleUnavailable
	default:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("request %s failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}
}

// ListVehicles 获取账号下的车辆列表
func (c *Client) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	resp, err := c.doRequest(ctx, "GET", "/vehicles")
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer resp.Body.Close()

	var vr vehiclesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decode vehicles response: %w", err)
	}

	vehicles := make([]Vehicle, 0, len(vr.Results))
	for _, r := range vr.Results {
		v := Vehicle{VIN: r.VIN}
		if r.LastState != nil {
			v.DisplayName = r.LastState.DisplayName
			v.State = r.LastState.State
			if r.LastState.CarState != nil {
				v.Odometer = r.LastState.CarState.Odometer
			}
		}
		vehicles = append(vehicles, v)
	}

	return vehicles, nil
}

// GetDrives 获取指定时间窗内的原始行程段，按到达顺序返回
func (c *Client) GetDrives(ctx context.Context, vin string, from, to time.Time, limit int) ([]models.RawDriveSegment, error) {
	q := url.Values{}
	q.Set("from", fmt.Sprintf("%d", from.Unix()))
	q.Set("to", fmt.Sprintf("%d", to.Unix()))
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/%s/drives?%s", url.PathEscape(vin), q.Encode()))
	if err != nil {
		return nil, fmt.Errorf("get drives: %w", err)
	}
	defer resp.Body.Close()

	var dr drivesResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode drives response: %w", err)
	}

	return dr.Results, nil
}

// GetState 获取车辆当前状态快照
func (c *Client) GetState(ctx context.Context, vin string) (*VehicleState, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/%s/state", url.PathEscape(vin)))
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	defer resp.Body.Close()

	var state VehicleState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode state response: %w", err)
	}
	if state.VIN == "" {
		state.VIN = vin
	}

	return &state, nil
}

// GetBatteryHealth 获取电池健康数据
func (c *Client) GetBatteryHealth(ctx context.Context, vin string) (*BatteryHealth, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/%s/battery_health", url.PathEscape(vin)))
	if err != nil {
		return nil, fmt.Errorf("get battery health: %w", err)
	}
	defer resp.Body.Close()

	var bh BatteryHealth
	if err := json.NewDecoder(resp.Body).Decode(&bh); err != nil {
		return nil, fmt.Errorf("decode battery health response: %w", err)
	}

	return &bh, nil
}
