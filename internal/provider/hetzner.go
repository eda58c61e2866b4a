package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/nimbushost/provision-service/internal/models"
)

// Hetzner implements Adapter over the Hetzner Cloud API.
// Plan keys: server_type, image, location.
type Hetzner struct {
	client *hcloud.Client
}

func NewHetzner(token string, opts *Options) *Hetzner {
	copts := []hcloud.ClientOption{hcloud.WithToken(token)}
	if opts != nil && opts.BaseURL != "" {
		copts = append(copts, hcloud.WithEndpoint(opts.BaseURL))
	}
	if opts != nil && opts.HTTPClient != nil {
		copts = append(copts, hcloud.WithHTTPClient(opts.HTTPClient))
	}
	return &Hetzner{client: hcloud.NewClient(copts...)}
}

func (h *Hetzner) CreateServer(ctx context.Context, name string, plan models.PlanRef, userData string) (*CreateResult, error) {
	const op = "hetzner: create server"
	if err := requirePlan(op, plan, "server_type", "image", "location"); err != nil {
		return nil, err
	}

	serverType, _, err := h.client.ServerType.Get(ctx, plan["server_type"])
	if err != nil {
		return nil, hcloudError(op, err)
	}
	if serverType == nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("unknown server_type %q", plan["server_type"])}
	}
	image, _, err := h.client.Image.Get(ctx, plan["image"])
	if err != nil {
		return nil, hcloudError(op, err)
	}
	if image == nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("unknown image %q", plan["image"])}
	}
	location, _, err := h.client.Location.Get(ctx, plan["location"])
	if err != nil {
		return nil, hcloudError(op, err)
	}
	if location == nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("unknown location %q", plan["location"])}
	}

	res, _, err := h.client.Server.Create(ctx, hcloud.ServerCreateOpts{
		Name:       name,
		ServerType: serverType,
		Image:      image,
		Location:   location,
		UserData:   userData,
		Labels:     map[string]string{"managed-by": "provision-service"},
	})
	if err != nil {
		return nil, hcloudError(op, err)
	}

	result := &CreateResult{
		ResourceID: strconv.FormatInt(res.Server.ID, 10),
		Raw: map[string]interface{}{
			"id":          res.Server.ID,
			"status":      string(res.Server.Status),
			"server_type": serverType.Name,
			"location":    location.Name,
		},
	}
	if res.Server.PublicNet.IPv4.IP != nil {
		result.IP = res.Server.PublicNet.IPv4.IP.String()
	}
	return result, nil
}

func (h *Hetzner) PowerOn(ctx context.Context, resourceID string) error {
	srv, err := hetznerRef("hetzner: power on", resourceID)
	if err != nil {
		return err
	}
	if _, _, err := h.client.Server.Poweron(ctx, srv); err != nil {
		return hcloudError("hetzner: power on", err)
	}
	return nil
}

func (h *Hetzner) PowerOff(ctx context.Context, resourceID string) error {
	srv, err := hetznerRef("hetzner: power off", resourceID)
	if err != nil {
		return err
	}
	if _, _, err := h.client.Server.Poweroff(ctx, srv); err != nil {
		return hcloudError("hetzner: power off", err)
	}
	return nil
}

func (h *Hetzner) Reboot(ctx context.Context, resourceID string) error {
	srv, err := hetznerRef("hetzner: reboot", resourceID)
	if err != nil {
		return err
	}
	if _, _, err := h.client.Server.Reboot(ctx, srv); err != nil {
		return hcloudError("hetzner: reboot", err)
	}
	return nil
}

// Suspend maps to a power-off; Hetzner has no suspend verb.
func (h *Hetzner) Suspend(ctx context.Context, resourceID string) error {
	return h.PowerOff(ctx, resourceID)
}

func (h *Hetzner) Terminate(ctx context.Context, resourceID string) error {
	srv, err := hetznerRef("hetzner: terminate", resourceID)
	if err != nil {
		return err
	}
	if _, _, err := h.client.Server.DeleteWithResult(ctx, srv); err != nil {
		return hcloudError("hetzner: terminate", err)
	}
	return nil
}

func (h *Hetzner) Reinstall(ctx context.Context, resourceID string, plan models.PlanRef) error {
	const op = "hetzner: reinstall"
	if err := requirePlan(op, plan, "image"); err != nil {
		return err
	}
	srv, err := hetznerRef(op, resourceID)
	if err != nil {
		return err
	}
	image, _, err := h.client.Image.Get(ctx, plan["image"])
	if err != nil {
		return hcloudError(op, err)
	}
	if image == nil {
		return &Error{Op: op, Message: fmt.Sprintf("unknown image %q", plan["image"])}
	}
	if _, _, err := h.client.Server.RebuildWithResult(ctx, srv, hcloud.ServerRebuildOpts{Image: image}); err != nil {
		return hcloudError(op, err)
	}
	return nil
}

func hetznerRef(op, resourceID string) (*hcloud.Server, error) {
	id, err := strconv.ParseInt(resourceID, 10, 64)
	if err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("invalid resource id %q", resourceID)}
	}
	return &hcloud.Server{ID: id}, nil
}

func hcloudError(op string, err error) *Error {
	retryable := true
	var apiErr hcloud.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case hcloud.ErrorCodeInvalidInput, hcloud.ErrorCodeNotFound,
			hcloud.ErrorCodeUnauthorized, hcloud.ErrorCodeForbidden:
			retryable = false
		}
	}
	return &Error{Op: op, Message: err.Error(), Retryable: retryable}
}
