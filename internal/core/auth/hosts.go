package auth

import (
	"sort"
	"strings"

	"recipe-importer/internal/pkg/common"
)

// HostConfig 單一網站的登入設定
type HostConfig struct {
	Host          string
	LoginURL      string
	LoginPath     string
	CSRFSelector  string
	LoginCheckURL string
	UsernameField string
	PasswordField string
	CSRFField     string
}

// DefaultHosts 內建支援登入的網站
var DefaultHosts = []HostConfig{
	{
		Host:          "quitoque.fr",
		LoginURL:      "https://www.quitoque.fr/login",
		LoginPath:     "/login",
		CSRFSelector:  `input[name="_csrf_shop_security_token"]`,
		LoginCheckURL: "https://www.quitoque.fr/login-check",
		UsernameField: "_username",
		PasswordField: "_password",
		CSRFField:     "_csrf_shop_security_token",
	},
}

// Catalog 以主機名稱索引的登入設定
type Catalog struct {
	hosts map[string]HostConfig
}

// NewCatalog 建立登入設定目錄，主機名稱會轉小寫並去除 www.
func NewCatalog(hosts ...HostConfig) *Catalog {
	c := &Catalog{hosts: make(map[string]HostConfig, len(hosts))}
	for _, h := range hosts {
		key := normalizeHost(h.Host)
		h.Host = key
		if h.LoginPath == "" {
			h.LoginPath = common.PathOf(h.LoginURL)
		}
		c.hosts[key] = h
	}
	return c
}

// Lookup 依網址或主機名稱查詢設定
func (c *Catalog) Lookup(urlOrHost string) (HostConfig, bool) {
	host := common.HostOf(urlOrHost)
	if host == "" {
		host = normalizeHost(urlOrHost)
	}
	h, ok := c.hosts[host]
	return h, ok
}

// Hosts 已設定的主機（排序後）
func (c *Catalog) Hosts() []string {
	out := make([]string, 0, len(c.hosts))
	for h := range c.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
