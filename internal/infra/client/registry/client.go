package registry

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/9triver/opcgw/internal/config"
	regtypes "github.com/9triver/opcgw/internal/domain/registry/types"
	"github.com/9triver/opcgw/internal/infra/client"
)

// maxPages 分页查询上限
const maxPages = 1000

// Client 注册中心客户端
type Client struct {
	*client.Client
}

// NewClient 根据后端配置创建客户端
func NewClient(cfg config.BackendConfig) *Client {
	return &Client{Client: client.New(cfg.URL, time.Duration(cfg.TimeoutSeconds)*time.Second)}
}

// ListAllApplications 按续页令牌取完全部应用
func (c *Client) ListAllApplications(ctx context.Context) ([]regtypes.ApplicationInfoModel, error) {
	return c.collect(func(token string) (*regtypes.ApplicationInfoListModel, error) {
		p := "/v2/applications"
		if token != "" {
			p += "?continuationToken=" + url.QueryEscape(token)
		}
		var page regtypes.ApplicationInfoListModel
		if err := c.Do(ctx, http.MethodGet, p, nil, &page); err != nil {
			return nil, err
		}
		return &page, nil
	})
}

// QueryAllApplications 按条件查询并取完全部分页
func (c *Client) QueryAllApplications(ctx context.Context, query *regtypes.ApplicationRegistrationQueryModel) ([]regtypes.ApplicationInfoModel, error) {
	return c.collect(func(token string) (*regtypes.ApplicationInfoListModel, error) {
		p := "/v2/applications/query"
		if token != "" {
			p += "?continuationToken=" + url.QueryEscape(token)
		}
		var page regtypes.ApplicationInfoListModel
		if err := c.Do(ctx, http.MethodPost, p, query, &page); err != nil {
			return nil, err
		}
		return &page, nil
	})
}

// GetApplication 获取应用及其端点
func (c *Client) GetApplication(ctx context.Context, applicationID string) (*regtypes.ApplicationRegistrationModel, error) {
	var resp regtypes.ApplicationRegistrationModel
	if err := c.Do(ctx, http.MethodGet, "/v2/applications/"+url.PathEscape(applicationID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) collect(fetch func(token string) (*regtypes.ApplicationInfoListModel, error)) ([]regtypes.ApplicationInfoModel, error) {
	var (
		apps  []regtypes.ApplicationInfoModel
		token string
	)
	for i := 0; i < maxPages; i++ {
		page, err := fetch(token)
		if err != nil {
			return nil, err
		}
		apps = append(apps, page.Items...)
		if page.ContinuationToken == "" {
			break
		}
		token = page.ContinuationToken
	}
	return apps, nil
}
