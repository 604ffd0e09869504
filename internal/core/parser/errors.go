package parser

import "fmt"

// NoRecipeFoundError 頁面中沒有可辨識的食譜結構化資料
type NoRecipeFoundError struct {
	URL string
}

func (e *NoRecipeFoundError) Error() string {
	return fmt.Sprintf("no recipe found at %s", e.URL)
}

// AuthenticationRequiredError 頁面被導向登入頁或標題顯示需要登入
type AuthenticationRequiredError struct {
	Host    string
	Message string
}

func (e *AuthenticationRequiredError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "This recipe requires authentication"
	}
	return fmt.Sprintf("%s: %s", msg, e.Host)
}
