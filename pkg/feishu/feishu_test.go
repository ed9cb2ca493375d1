package feishu

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/httprunner/DeviceAgent/pkg/storage"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	larkwiki "github.com/larksuite/oapi-sdk-go/v3/service/wiki/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okApiResp() *larkcore.ApiResp {
	return &larkcore.ApiResp{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		RawBody:    []byte(`{"code":0,"msg":"success"}`),
	}
}

type fakeCreator struct {
	appToken string
	tableID  string
	fields   map[string]any
	resp     *larkbitable.CreateAppTableRecordResp
	err      error
}

func (f *fakeCreator) Create(_ context.Context, appToken, tableID string, record *larkbitable.AppTableRecord) (*larkbitable.CreateAppTableRecordResp, error) {
	f.appToken = appToken
	f.tableID = tableID
	f.fields = record.Fields
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &larkbitable.CreateAppTableRecordResp{
		ApiResp:   okApiResp(),
		CodeError: larkcore.CodeError{Code: 0, Msg: "success"},
		Data: &larkbitable.CreateAppTableRecordRespData{
			Record: &larkbitable.AppTableRecord{RecordId: larkcore.StringPtr("rec001"), Fields: record.Fields},
		},
	}, nil
}

type fakeWiki struct {
	calls   int
	objType string
}

func (f *fakeWiki) GetNode(_ context.Context, token string) (*larkwiki.GetNodeSpaceResp, error) {
	f.calls++
	return &larkwiki.GetNodeSpaceResp{
		ApiResp:   okApiResp(),
		CodeError: larkcore.CodeError{Code: 0, Msg: "success"},
		Data: &larkwiki.GetNodeSpaceRespData{
			Node: &larkwiki.Node{
				ObjToken: larkcore.StringPtr("app-from-" + token),
				ObjType:  larkcore.StringPtr(f.objType),
			},
		},
	}, nil
}

func newFakeClient(creator recordCreator, wiki nodeResolver) *Client {
	return &Client{records: creator, wiki: wiki, appTokenCache: map[string]string{}}
}

func TestParseBitableURL(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    BitableRef
		wantErr string
	}{
		{
			name: "base link",
			raw:  "https://acme.feishu.cn/base/AppTok123?table=tbl456&view=vew789",
			want: BitableRef{AppToken: "AppTok123", TableID: "tbl456", ViewID: "vew789"},
		},
		{
			name: "wiki link",
			raw:  "https://acme.larkoffice.com/wiki/WikiTok?table_id=tbl1",
			want: BitableRef{WikiToken: "WikiTok", TableID: "tbl1"},
		},
		{name: "empty", raw: "  ", wantErr: "empty url"},
		{name: "foreign host", raw: "https://example.com/base/a?table=t", wantErr: "not recognized as Feishu"},
		{name: "missing table", raw: "https://acme.feishu.cn/base/AppTok123", wantErr: "missing table id"},
		{name: "bad scheme", raw: "ftp://acme.feishu.cn/base/a?table=t", wantErr: "unsupported url scheme"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := ParseBitableURL(tc.raw)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.want.RawURL = tc.raw
			assert.Equal(t, tc.want, ref)
		})
	}
}

func sampleRecord() storage.ResultRecord {
	started := time.UnixMilli(1_700_000_000_000)
	return storage.ResultRecord{
		RunID:       "run-1",
		Serial:      "SER123",
		Operation:   "frp-bypass",
		Args:        []string{"adb"},
		Title:       "FRP Bypass (method: ADB Bypass):",
		Outcome:     "success",
		StepCount:   3,
		Rendered:    "FRP Bypass (method: ADB Bypass):\n...",
		Steps:       "[]",
		StartedAt:   started,
		FinishedAt:  started.Add(2 * time.Second),
		FailedCount: 0,
	}
}

func TestPublisherCreatesRecord(t *testing.T) {
	creator := &fakeCreator{}
	p, err := NewPublisher(newFakeClient(creator, nil), "https://acme.feishu.cn/base/AppTok?table=tblR")
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), sampleRecord()))
	assert.Equal(t, "AppTok", creator.appToken)
	assert.Equal(t, "tblR", creator.tableID)
	assert.Equal(t, "run-1", creator.fields["RunID"])
	assert.Equal(t, "SER123", creator.fields["DeviceSerial"])
	assert.Equal(t, "adb", creator.fields["Args"])
	assert.Equal(t, int64(2000), creator.fields["DurationMs"])
	assert.Equal(t, int64(1_700_000_000_000), creator.fields["StartedAt"])
	_, hasManufacturer := creator.fields["Manufacturer"]
	assert.False(t, hasManufacturer, "empty text columns are omitted")
	assert.Equal(t, "feishu", p.Name())
}

func TestPublisherResolvesWikiOnce(t *testing.T) {
	creator := &fakeCreator{}
	wiki := &fakeWiki{objType: "bitable"}
	p, err := NewPublisher(newFakeClient(creator, wiki), "https://acme.feishu.cn/wiki/WikiTok?table=tblR")
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), sampleRecord()))
	require.NoError(t, p.Publish(context.Background(), sampleRecord()))
	assert.Equal(t, 1, wiki.calls)
	assert.Equal(t, "app-from-WikiTok", creator.appToken)
}

func TestPublisherRejectsNonBitableWikiNode(t *testing.T) {
	wiki := &fakeWiki{objType: "docx"}
	p, err := NewPublisher(newFakeClient(&fakeCreator{}, wiki), "https://acme.feishu.cn/wiki/WikiTok?table=tblR")
	require.NoError(t, err)

	err = p.Publish(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `wiki node type "docx" is not bitable`)
}

func TestPublisherAnnotatesMissingColumns(t *testing.T) {
	creator := &fakeCreator{resp: &larkbitable.CreateAppTableRecordResp{
		ApiResp:   okApiResp(),
		CodeError: larkcore.CodeError{Code: 1254045, Msg: "FieldNameNotFound"},
	}}
	p, err := NewPublisher(newFakeClient(creator, nil), "https://acme.feishu.cn/base/AppTok?table=tblR")
	require.NoError(t, err)

	err = p.Publish(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload_fields=")
	assert.Contains(t, err.Error(), "RunID")
}

func TestPublisherWrapsTransportError(t *testing.T) {
	creator := &fakeCreator{err: errors.New("dial tcp: timeout")}
	p, err := NewPublisher(newFakeClient(creator, nil), "https://acme.feishu.cn/base/AppTok?table=tblR")
	require.NoError(t, err)

	err = p.Publish(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient("", "secret", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvAppID)
}

func TestNewPublisherFromEnvWithoutURL(t *testing.T) {
	p, err := NewPublisherFromEnv("")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestClipKeepsRuneBoundary(t *testing.T) {
	long := strings.Repeat("a", maxTextField-1) + "é"
	got := clip(long)
	assert.Equal(t, maxTextField-1, len(got))
	assert.Equal(t, "short", clip("short"))
}
