package feishu

import (
	"context"
	"strings"
	"sync"

	"github.com/httprunner/DeviceAgent/internal/env"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	larkwiki "github.com/larksuite/oapi-sdk-go/v3/service/wiki/v2"
	"github.com/pkg/errors"
)

const (
	EnvAppID     = "FEISHU_APP_ID"
	EnvAppSecret = "FEISHU_APP_SECRET"
	EnvBaseURL   = "FEISHU_BASE_URL"

	defaultBaseURL = "https://open.feishu.cn"
)

// recordCreator is the slice of the bitable record API the publisher needs.
type recordCreator interface {
	Create(ctx context.Context, appToken, tableID string, record *larkbitable.AppTableRecord) (*larkbitable.CreateAppTableRecordResp, error)
}

// nodeResolver resolves a wiki token to the bitable it wraps.
type nodeResolver interface {
	GetNode(ctx context.Context, token string) (*larkwiki.GetNodeSpaceResp, error)
}

type larkAppTableRecordService interface {
	Create(ctx context.Context, req *larkbitable.CreateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.CreateAppTableRecordResp, error)
}

type larkWikiSpaceService interface {
	GetNode(ctx context.Context, req *larkwiki.GetNodeSpaceReq, options ...larkcore.RequestOptionFunc) (*larkwiki.GetNodeSpaceResp, error)
}

type sdkRecordCreator struct {
	svc larkAppTableRecordService
}

func (a sdkRecordCreator) Create(ctx context.Context, appToken, tableID string, record *larkbitable.AppTableRecord) (*larkbitable.CreateAppTableRecordResp, error) {
	req := larkbitable.NewCreateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		AppTableRecord(record).
		Build()
	return a.svc.Create(ctx, req)
}

type sdkNodeResolver struct {
	svc larkWikiSpaceService
}

func (w sdkNodeResolver) GetNode(ctx context.Context, token string) (*larkwiki.GetNodeSpaceResp, error) {
	req := larkwiki.NewGetNodeSpaceReqBuilder().
		Token(token).
		Build()
	return w.svc.GetNode(ctx, req)
}

// Client wraps the Feishu open APIs used to publish reports.
type Client struct {
	records recordCreator
	wiki    nodeResolver

	appTokenMu    sync.RWMutex
	appTokenCache map[string]string
}

// NewClient builds a Client on the lark SDK. The SDK fetches and caches the
// tenant access token itself.
func NewClient(appID, appSecret, baseURL string) (*Client, error) {
	appID = strings.TrimSpace(appID)
	appSecret = strings.TrimSpace(appSecret)
	if appID == "" || appSecret == "" {
		return nil, errors.Errorf("feishu: %s and %s must be set", EnvAppID, EnvAppSecret)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelError),
	}
	if baseURL != lark.FeishuBaseUrl {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	client := lark.NewClient(appID, appSecret, opts...)
	return &Client{
		records:       sdkRecordCreator{svc: client.Bitable.V1.AppTableRecord},
		wiki:          sdkNodeResolver{svc: client.Wiki.V2.Space},
		appTokenCache: map[string]string{},
	}, nil
}

// NewClientFromEnv constructs a Client using environment variables.
//
// Required variables:
//   - FEISHU_APP_ID
//   - FEISHU_APP_SECRET
//
// Optional variables:
//   - FEISHU_BASE_URL (defaults to https://open.feishu.cn)
func NewClientFromEnv() (*Client, error) {
	return NewClient(
		env.String(EnvAppID, ""),
		env.String(EnvAppSecret, ""),
		env.String(EnvBaseURL, ""),
	)
}

// CreateRecord inserts one row and returns its record id.
func (c *Client) CreateRecord(ctx context.Context, ref BitableRef, fields map[string]any) (recordID string, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "create bitable record failed")
		}
	}()

	if c == nil || c.records == nil {
		return "", errors.New("feishu: client is nil")
	}
	if len(fields) == 0 {
		return "", errors.New("feishu: no fields provided for creation")
	}
	if err := c.ensureAppToken(ctx, &ref); err != nil {
		return "", err
	}
	if strings.TrimSpace(ref.TableID) == "" {
		return "", errors.New("feishu: bitable table id is empty")
	}

	record := larkbitable.NewAppTableRecordBuilder().
		Fields(fields).
		Build()
	resp, err := c.records.Create(ctx, ref.AppToken, ref.TableID, record)
	if err != nil {
		return "", errors.Wrap(err, "feishu: create record request failed")
	}
	if resp == nil || resp.ApiResp == nil {
		return "", errors.New("feishu: empty response when creating record")
	}
	if err := ensureSDKSuccess("create record", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.Record == nil {
		return "", errors.New("feishu: create record response missing record")
	}
	id := strings.TrimSpace(larkcore.StringValue(resp.Data.Record.RecordId))
	if id == "" {
		return "", errors.New("feishu: create record response missing record id")
	}
	return id, nil
}

// ensureAppToken fills ref.AppToken from the wiki node when the link was a
// wiki link.
func (c *Client) ensureAppToken(ctx context.Context, ref *BitableRef) error {
	if strings.TrimSpace(ref.AppToken) != "" {
		return nil
	}
	wikiToken := strings.TrimSpace(ref.WikiToken)
	if wikiToken == "" {
		return errors.New("feishu: bitable app token not found in url")
	}
	c.appTokenMu.RLock()
	cached, ok := c.appTokenCache[wikiToken]
	c.appTokenMu.RUnlock()
	if ok {
		ref.AppToken = cached
		return nil
	}
	if c.wiki == nil {
		return errors.New("feishu: wiki client is nil")
	}
	resp, err := c.wiki.GetNode(ctx, wikiToken)
	if err != nil {
		return errors.Wrap(err, "feishu: wiki get_node request failed")
	}
	if resp == nil || resp.ApiResp == nil {
		return errors.New("feishu: empty response when resolving wiki node")
	}
	if err := ensureSDKSuccess("wiki get_node", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return err
	}
	if resp.Data == nil || resp.Data.Node == nil {
		return errors.New("feishu: wiki node response missing node")
	}
	objType := larkcore.StringValue(resp.Data.Node.ObjType)
	appToken := strings.TrimSpace(larkcore.StringValue(resp.Data.Node.ObjToken))
	if objType != "bitable" {
		return errors.Errorf("feishu: wiki node type %q is not bitable", objType)
	}
	if appToken == "" {
		return errors.New("feishu: wiki node response missing obj_token")
	}
	c.appTokenMu.Lock()
	c.appTokenCache[wikiToken] = appToken
	c.appTokenMu.Unlock()
	ref.AppToken = appToken
	return nil
}

func ensureSDKSuccess(action string, ok bool, code int, msg, logID string) error {
	if ok {
		return nil
	}
	if strings.TrimSpace(logID) == "" {
		return errors.Errorf("feishu: %s failed code=%d msg=%s", action, code, msg)
	}
	return errors.Errorf("feishu: %s failed code=%d msg=%s log_id=%s", action, code, msg, logID)
}
