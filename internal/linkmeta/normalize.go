package linkmeta

import (
	"net/url"
	"strings"
)

// 跟踪参数：缓存 key 与去重用的规范化要把这些剥掉
var trackingParams = map[string]bool{
	"fbclid":   true,
	"gclid":    true,
	"msclkid":  true,
	"igshid":   true,
	"mc_cid":   true,
	"mc_eid":   true,
	"ref_src":  true,
	"spm":      true,
	"_hsenc":   true,
	"_hsmi":    true,
	"vero_id":  true,
	"wickedid": true,
}

// NormalizeURL 规范化 URL：小写 scheme/host、去 fragment、剥跟踪参数、
// 去掉路径末尾多余的 /。解析失败时原样返回，规范化永远不该让抓取失败。
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	return u.String()
}

// ResolveURL 相对地址解析为绝对地址。base 或 ref 不可解析时原样返回 ref，
// 抓到什么算什么，别因为一张坏图丢掉整个预览。
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}

	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
