package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nimbushost/provision-service/internal/models"
)

const defaultDigitalOceanBaseURL = "https://api.digitalocean.com/v2"

// DigitalOcean implements Adapter over the DigitalOcean REST API.
// Plan keys: region, size, image.
type DigitalOcean struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewDigitalOcean(token string, opts *Options) *DigitalOcean {
	d := &DigitalOcean{
		baseURL:    defaultDigitalOceanBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	if opts != nil && opts.BaseURL != "" {
		d.baseURL = opts.BaseURL
	}
	if opts != nil && opts.HTTPClient != nil {
		d.httpClient = opts.HTTPClient
	}
	return d
}

func (d *DigitalOcean) CreateServer(ctx context.Context, name string, plan models.PlanRef, userData string) (*CreateResult, error) {
	const op = "digitalocean: create server"
	if err := requirePlan(op, plan, "region", "size", "image"); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"name":   name,
		"region": plan["region"],
		"size":   plan["size"],
		"image":  plan["image"],
		"tags":   []string{"provision-service"},
	}
	if userData != "" {
		reqBody["user_data"] = userData
	}

	body, err := d.do(ctx, op, http.MethodPost, "/droplets", reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Droplet struct {
			ID       int64 `json:"id"`
			Networks struct {
				V4 []struct {
					IPAddress string `json:"ip_address"`
					Type      string `json:"type"`
				} `json:"v4"`
			} `json:"networks"`
		} `json:"droplet"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("decode response: %v", err)}
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	result := &CreateResult{
		ResourceID: fmt.Sprintf("%d", resp.Droplet.ID),
		Raw:        raw,
	}
	for _, net := range resp.Droplet.Networks.V4 {
		if net.Type == "public" {
			result.IP = net.IPAddress
			break
		}
	}
	return result, nil
}

func (d *DigitalOcean) PowerOn(ctx context.Context, resourceID string) error {
	return d.action(ctx, "digitalocean: power on", resourceID, "power_on")
}

func (d *DigitalOcean) PowerOff(ctx context.Context, resourceID string) error {
	return d.action(ctx, "digitalocean: power off", resourceID, "power_off")
}

func (d *DigitalOcean) Reboot(ctx context.Context, resourceID string) error {
	return d.action(ctx, "digitalocean: reboot", resourceID, "reboot")
}

// Suspend maps to a power-off; DigitalOcean has no suspend verb.
func (d *DigitalOcean) Suspend(ctx context.Context, resourceID string) error {
	return d.action(ctx, "digitalocean: suspend", resourceID, "power_off")
}

func (d *DigitalOcean) Terminate(ctx context.Context, resourceID string) error {
	_, err := d.do(ctx, "digitalocean: terminate", http.MethodDelete, "/droplets/"+resourceID, nil)
	return err
}

func (d *DigitalOcean) Reinstall(ctx context.Context, resourceID string, plan models.PlanRef) error {
	const op = "digitalocean: reinstall"
	if err := requirePlan(op, plan, "image"); err != nil {
		return err
	}
	_, err := d.do(ctx, op, http.MethodPost, "/droplets/"+resourceID+"/actions", map[string]interface{}{
		"type":  "rebuild",
		"image": plan["image"],
	})
	return err
}

func (d *DigitalOcean) action(ctx context.Context, op, resourceID, actionType string) error {
	_, err := d.do(ctx, op, http.MethodPost, "/droplets/"+resourceID+"/actions", map[string]interface{}{
		"type": actionType,
	})
	return err
}

// do sends one API request and classifies the failure modes: transport
// errors, 429 and 5xx are retryable; other non-2xx statuses are permanent.
func (d *DigitalOcean) do(ctx context.Context, op, method, path string, reqBody interface{}) ([]byte, error) {
	var payload io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, &Error{Op: op, Message: fmt.Sprintf("marshal request: %v", err)}
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, payload)
	if err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("send request: %v", err), Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("read response: %v", err), Retryable: true}
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &Error{
			Op:        op,
			Message:   fmt.Sprintf("api returned %d: %s", resp.StatusCode, msg),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}
	return body, nil
}
