// Package client holds outbound HTTP clients for collaborating systems.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WHMCSClient calls back into the WHMCS billing panel API. All calls use the
// admin API identifier/secret pair, form-encoded per the WHMCS convention.
type WHMCSClient struct {
	baseURL    string
	identifier string
	secret     string
	httpClient *http.Client
}

func NewWHMCSClient(baseURL, identifier, secret string) *WHMCSClient {
	return &WHMCSClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		identifier: identifier,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether billing callbacks are enabled. The service runs
// without them; provisioning then simply skips the IP write-back.
func (c *WHMCSClient) Configured() bool {
	return c != nil && c.baseURL != "" && c.identifier != ""
}

// AttachServiceIP writes the assigned address onto the WHMCS service record
// so the panel shows the customer their server IP.
func (c *WHMCSClient) AttachServiceIP(ctx context.Context, serviceID int64, ip string) error {
	form := url.Values{}
	form.Set("action", "UpdateClientProduct")
	form.Set("identifier", c.identifier)
	form.Set("secret", c.secret)
	form.Set("serviceid", strconv.FormatInt(serviceID, 10))
	form.Set("dedicatedip", ip)
	form.Set("responsetype", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/includes/api.php", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call whmcs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read whmcs response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whmcs returned status %d", resp.StatusCode)
	}

	var apiResp struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to decode whmcs response: %w", err)
	}
	if apiResp.Result != "success" {
		return fmt.Errorf("whmcs rejected update: %s", apiResp.Message)
	}
	return nil
}

// ExtractServiceAndProductIDs pulls the service and product identifiers out
// of a raw webhook payload. WHMCS hook payloads are not stable across
// versions and addon modules, so several field spellings are probed.
func ExtractServiceAndProductIDs(payload []byte) (serviceID, productID int64, err error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return 0, 0, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	serviceID = probeInt(fields, "serviceid", "service_id", "relid", "id")
	if serviceID == 0 {
		return 0, 0, fmt.Errorf("payload carries no service id")
	}
	productID = probeInt(fields, "productid", "product_id", "pid", "packageid")
	if productID == 0 {
		return 0, 0, fmt.Errorf("payload carries no product id")
	}
	return serviceID, productID, nil
}

// probeInt returns the first key that parses to a positive integer. WHMCS
// serializes numbers sometimes as numbers, sometimes as strings.
func probeInt(fields map[string]interface{}, keys ...string) int64 {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			if t > 0 {
				return int64(t)
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil && n > 0 {
				return n
			}
		case json.Number:
			if n, err := t.Int64(); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}
