package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

var errInvalidTrustedProxy = errors.New("web.trusted_proxies.invalid")

// ConfigureTrustedProxies limits which peers may report the client address through forwarding headers.
// With no proxies, ClientIP is always the socket peer, which keeps rate-limit scopes unspoofable.
func ConfigureTrustedProxies(router *gin.Engine, proxies []string) error {
	var trusted []string
	for _, proxy := range proxies {
		if trimmed := strings.TrimSpace(proxy); trimmed != "" {
			trusted = append(trusted, trimmed)
		}
	}
	if err := router.SetTrustedProxies(trusted); err != nil {
		return fmt.Errorf("%w: %v", errInvalidTrustedProxy, err)
	}
	return nil
}
