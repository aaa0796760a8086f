package headless

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// DefaultEndpoint is the BrowserStack CDP endpoint.
const DefaultEndpoint = "wss://cdp.browserstack.com/puppeteer"

// Capabilities builds the grid capability set for target.
func Capabilities(target crawler.BrowserTarget, creds crawler.Credentials) map[string]string {
	caps := map[string]string{
		"browser":                strings.ToLower(target.BrowserName),
		"browser_version":        target.BrowserVersion,
		"name":                   target.Label(),
		"build":                  target.BuildName,
		"browserstack.username":  creds.Username,
		"browserstack.accessKey": creds.AccessKey,
	}
	if target.OS != "" {
		caps["os"] = target.OS
	}
	if target.OSVersion != "" {
		caps["os_version"] = target.OSVersion
	}
	if target.IsMobile() {
		caps["device"] = target.DeviceName
		caps["real_mobile"] = "true"
	}
	for k, v := range caps {
		if v == "" {
			delete(caps, k)
		}
	}
	return caps
}

// CapabilitiesURL encodes the capability set into the endpoint's caps query
// parameter.
func CapabilitiesURL(endpoint string, target crawler.BrowserTarget, creds crawler.Credentials) (string, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse grid endpoint: %w", err)
	}
	payload, err := json.Marshal(Capabilities(target, creds))
	if err != nil {
		return "", fmt.Errorf("encode capabilities: %w", err)
	}
	q := u.Query()
	q.Set("caps", string(payload))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
