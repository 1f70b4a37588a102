package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// timeNowMillis 可注入，测试中替换以获得确定性签名。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// SignParams 构造签名请求串：补充 timestamp、按键名排序编码，
// 再对整串做 HMAC-SHA256。返回 (query, signature)。
func SignParams(params map[string]string, secret string) (string, string) {
	if _, ok := params["timestamp"]; !ok {
		params["timestamp"] = strconv.FormatInt(timeNowMillis(), 10)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, params[k])
	}
	query := values.Encode()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return query, hex.EncodeToString(mac.Sum(nil))
}
