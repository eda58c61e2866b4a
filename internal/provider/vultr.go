package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nimbushost/provision-service/internal/models"
)

const defaultVultrBaseURL = "https://api.vultr.com/v2"

// Vultr implements Adapter over the Vultr REST API.
// Plan keys: region, plan, os_id (numeric).
type Vultr struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewVultr(token string, opts *Options) *Vultr {
	v := &Vultr{
		baseURL:    defaultVultrBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	if opts != nil && opts.BaseURL != "" {
		v.baseURL = opts.BaseURL
	}
	if opts != nil && opts.HTTPClient != nil {
		v.httpClient = opts.HTTPClient
	}
	return v
}

func (v *Vultr) CreateServer(ctx context.Context, name string, plan models.PlanRef, userData string) (*CreateResult, error) {
	const op = "vultr: create server"
	if err := requirePlan(op, plan, "region", "plan", "os_id"); err != nil {
		return nil, err
	}
	osID, err := strconv.Atoi(plan["os_id"])
	if err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("plan_ref field %q must be numeric, got %q", "os_id", plan["os_id"])}
	}

	reqBody := map[string]interface{}{
		"label":  name,
		"region": plan["region"],
		"plan":   plan["plan"],
		"os_id":  osID,
		"tags":   []string{"provision-service"},
	}
	if userData != "" {
		reqBody["user_data"] = userData
	}

	body, err := v.do(ctx, op, http.MethodPost, "/instances", reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Instance struct {
			ID     string `json:"id"`
			MainIP string `json:"main_ip"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("decode response: %v", err)}
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	result := &CreateResult{ResourceID: resp.Instance.ID, Raw: raw}
	// Vultr reports 0.0.0.0 until the address is assigned.
	if resp.Instance.MainIP != "" && resp.Instance.MainIP != "0.0.0.0" {
		result.IP = resp.Instance.MainIP
	}
	return result, nil
}

func (v *Vultr) PowerOn(ctx context.Context, resourceID string) error {
	_, err := v.do(ctx, "vultr: power on", http.MethodPost, "/instances/"+resourceID+"/start", nil)
	return err
}

func (v *Vultr) PowerOff(ctx context.Context, resourceID string) error {
	_, err := v.do(ctx, "vultr: power off", http.MethodPost, "/instances/"+resourceID+"/halt", nil)
	return err
}

func (v *Vultr) Reboot(ctx context.Context, resourceID string) error {
	_, err := v.do(ctx, "vultr: reboot", http.MethodPost, "/instances/"+resourceID+"/reboot", nil)
	return err
}

// Suspend maps to a halt; Vultr has no suspend verb.
func (v *Vultr) Suspend(ctx context.Context, resourceID string) error {
	_, err := v.do(ctx, "vultr: suspend", http.MethodPost, "/instances/"+resourceID+"/halt", nil)
	return err
}

func (v *Vultr) Terminate(ctx context.Context, resourceID string) error {
	_, err := v.do(ctx, "vultr: terminate", http.MethodDelete, "/instances/"+resourceID, nil)
	return err
}

// Reinstall redeploys the instance with its current OS; plan is accepted for
// interface parity but Vultr does not take new parameters here.
func (v *Vultr) Reinstall(ctx context.Context, resourceID string, _ models.PlanRef) error {
	_, err := v.do(ctx, "vultr: reinstall", http.MethodPost, "/instances/"+resourceID+"/reinstall", nil)
	return err
}

func (v *Vultr) do(ctx context.Context, op, method, path string, reqBody interface{}) ([]byte, error) {
	var payload io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, &Error{Op: op, Message: fmt.Sprintf("marshal request: %v", err)}
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, payload)
	if err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.token)

	resp, err := v.httpClient.Do(req)
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
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		msg := apiErr.Error
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
