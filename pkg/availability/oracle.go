// Package availability 定义可用性查询接口，并提供基于 HTTP/JSON 的外部服务客户端。
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Result 可用性查询结果
type Result struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Oracle 可用性查询接口
// 实现可能超时或失败，调用方决定失败时的处理策略
type Oracle interface {
	QueryAvailability(ctx context.Context, staffID string, date time.Time, slot string) (*Result, error)
}

// HTTPOracle 外部可用性服务客户端
// GET {baseURL}/availability?staff_id=&date=YYYY-MM-DD&slot=
type HTTPOracle struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPOracle 创建客户端；timeout 为单次请求的上限，调用方的 ctx 可以更短
func NewHTTPOracle(baseURL string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// QueryAvailability 查询员工在指定日期班次是否可用
func (o *HTTPOracle) QueryAvailability(ctx context.Context, staffID string, date time.Time, slot string) (*Result, error) {
	q := url.Values{}
	q.Set("staff_id", staffID)
	q.Set("date", date.Format("2006-01-02"))
	q.Set("slot", slot)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/availability?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("创建可用性请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求可用性服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("可用性服务返回 HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析可用性响应失败: %w", err)
	}
	return &result, nil
}
