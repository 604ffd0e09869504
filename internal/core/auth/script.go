package auth

import (
	"fmt"

	"recipe-importer/internal/pkg/common"
)

// 頁面內腳本透過此綁定回報結果
const resultBinding = "__authSend"

// 訊息種類
const (
	messageAuthResult = "authResult"
	messageAuthError  = "authError"
)

// authMessage 瀏覽環境送回的訊息
type authMessage struct {
	Type    string `json:"type"`
	HTML    string `json:"html,omitempty"`
	Message string `json:"message,omitempty"`
}

const scriptTemplate = `(() => {
  const send = (msg) => window.%[1]s(JSON.stringify(msg));
  (async () => {
    try {
      const targetUrl = %[2]s;
      const loginPath = %[3]s;
%[4]s
      const res = await fetch(targetUrl, { credentials: 'include', redirect: 'follow' });
      if (!res.ok) {
        throw new Error('Fetch failed: HTTP ' + res.status);
      }
      if (new URL(res.url).pathname === loginPath) {
        throw new Error('Session not established: redirected to login');
      }
      send({ type: %[5]s, html: await res.text() });
    } catch (e) {
      send({ type: %[6]s, message: String((e && e.message) || e) });
    }
  })();
  return true;
})()`

const loginTemplate = `      const csrfInput = document.querySelector(%[1]s);
      if (!csrfInput) {
        throw new Error('CSRF token not found');
      }
      const form = new URLSearchParams();
      form.append(%[2]s, %[3]s);
      form.append(%[4]s, %[5]s);
      form.append(%[6]s, csrfInput.value || '');
      const loginRes = await fetch(%[7]s, {
        method: 'POST',
        body: form,
        credentials: 'include',
        redirect: 'follow',
        headers: { 'Content-Type': 'application/x-www-form-urlencoded' },
      });
      if (!loginRes.ok) {
        throw new Error('Login request failed: HTTP ' + loginRes.status);
      }
      if (loginRes.url.includes(loginPath)) {
        throw new Error('Login failed: invalid credentials');
      }`

// fetchOnlyScript 已有登入狀態時只取得目標頁面
func fetchOnlyScript(host HostConfig, targetURL string) string {
	return buildScript(host, targetURL, "")
}

// loginScript 送出登入表單後取得目標頁面
func loginScript(host HostConfig, targetURL, username, password string) string {
	lit := common.JSStringLiteral
	login := fmt.Sprintf(loginTemplate,
		lit(host.CSRFSelector),
		lit(host.UsernameField), lit(username),
		lit(host.PasswordField), lit(password),
		lit(host.CSRFField),
		lit(host.LoginCheckURL),
	)
	return buildScript(host, targetURL, login)
}

func buildScript(host HostConfig, targetURL, login string) string {
	lit := common.JSStringLiteral
	return fmt.Sprintf(scriptTemplate,
		resultBinding,
		lit(targetURL),
		lit(host.LoginPath),
		login,
		lit(messageAuthResult),
		lit(messageAuthError),
	)
}
