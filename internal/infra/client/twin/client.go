package twin

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/9triver/opcgw/internal/config"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/9triver/opcgw/internal/infra/client"
)

// Client twin 服务客户端
type Client struct {
	*client.Client
}

// NewClient 根据后端配置创建客户端
func NewClient(cfg config.BackendConfig) *Client {
	return &Client{Client: client.New(cfg.URL, time.Duration(cfg.TimeoutSeconds)*time.Second)}
}

func path(twinID, op string) string {
	return "/v2/" + url.PathEscape(twinID) + "/" + op
}

// NodeBrowseFirst 首次浏览
func (c *Client) NodeBrowseFirst(ctx context.Context, twinID string, req *twintypes.BrowseFirstRequestModel) (*twintypes.BrowseFirstResponseModel, error) {
	var resp twintypes.BrowseFirstResponseModel
	if err := c.Do(ctx, http.MethodPost, path(twinID, "browse/first"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NodeBrowseNext 续浏览
func (c *Client) NodeBrowseNext(ctx context.Context, twinID string, req *twintypes.BrowseNextRequestModel) (*twintypes.BrowseNextResponseModel, error) {
	var resp twintypes.BrowseNextResponseModel
	if err := c.Do(ctx, http.MethodPost, path(twinID, "browse/next"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NodeValueRead 读取值
func (c *Client) NodeValueRead(ctx context.Context, twinID string, req *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error) {
	var resp twintypes.ValueReadResponseModel
	if err := c.Do(ctx, http.MethodPost, path(twinID, "read"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NodeValueWrite 写入值
func (c *Client) NodeValueWrite(ctx context.Context, twinID string, req *twintypes.ValueWriteRequestModel) (*twintypes.ValueWriteResponseModel, error) {
	var resp twintypes.ValueWriteResponseModel
	if err := c.Do(ctx, http.MethodPost, path(twinID, "write"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NodeMethodCall 调用方法
func (c *Client) NodeMethodCall(ctx context.Context, twinID string, req *twintypes.MethodCallRequestModel) (*twintypes.MethodCallResponseModel, error) {
	var resp twintypes.MethodCallResponseModel
	if err := c.Do(ctx, http.MethodPost, path(twinID, "call"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NodeMethodGetMetadata 查询方法参数元数据
func (c *Client) NodeMethodGetMetadata(ctx context.Context, twinID string, req *twintypes.MethodMetadataRequestModel) (*twintypes.MethodMetadataResponseModel, error) {
	var resp twintypes.MethodMetadataResponseModel
	if err := c.Do(ctx, http.MethodPost, path(twinID, "call/metadata"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
