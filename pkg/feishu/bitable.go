package feishu

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var hostAllowList = []string{"feishu.cn", "feishuapp.com", "larksuite.com", "larkoffice.com"}

// BitableRef identifies one table inside a Feishu bitable app.
type BitableRef struct {
	RawURL    string
	AppToken  string
	TableID   string
	ViewID    string
	WikiToken string
}

func isAllowedFeishuHost(host string) bool {
	if host == "" {
		return false
	}
	lower := strings.ToLower(host)
	for _, allowed := range hostAllowList {
		if strings.HasSuffix(lower, allowed) {
			return true
		}
	}
	return false
}

// ParseBitableURL extracts the app (or wiki) token and table id from a
// bitable link such as https://example.feishu.cn/base/<app>?table=<tbl>.
func ParseBitableURL(raw string) (ref BitableRef, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "parse bitable url failed")
		}
	}()

	ref = BitableRef{RawURL: strings.TrimSpace(raw)}
	if ref.RawURL == "" {
		return ref, errors.New("empty url")
	}

	u, err := url.Parse(ref.RawURL)
	if err != nil {
		return ref, errors.Wrap(err, "invalid url")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ref, errors.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if !isAllowedFeishuHost(u.Host) {
		return ref, errors.Errorf("host %q is not recognized as Feishu", u.Host)
	}

	segments := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ref, errors.New("missing path segments in url")
	}
	for i := 0; i < len(segments)-1 && ref.AppToken == "" && ref.WikiToken == ""; i++ {
		switch segments[i] {
		case "base":
			ref.AppToken = segments[i+1]
		case "wiki":
			ref.WikiToken = segments[i+1]
		}
	}
	if ref.AppToken == "" && ref.WikiToken == "" {
		ref.AppToken = segments[len(segments)-1]
	}

	q := u.Query()
	for _, key := range []string{"table", "tableId", "table_id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			ref.TableID = v
			break
		}
	}
	if ref.TableID == "" {
		return ref, errors.New("missing table id in url query")
	}
	for _, key := range []string{"view", "viewId", "view_id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			ref.ViewID = v
			break
		}
	}
	return ref, nil
}
