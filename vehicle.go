package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// VehicleClient wraps an owner-API style vehicle telemetry endpoint.
type VehicleClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewVehicleClient(baseURL, token string) *VehicleClient {
	return &VehicleClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    newProviderHTTPClient(),
	}
}

func (c *VehicleClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.token}
}

type VehicleState struct {
	DisplayName  string  `json:"display_name"`
	State        string  `json:"state"`
	BatteryLevel int     `json:"battery_level"`
	RangeMiles   float64 `json:"battery_range"`
	InsideTemp   float64 `json:"inside_temp"`
	Locked       bool    `json:"locked"`
}

// State fetches the current vehicle state.
func (c *VehicleClient) State(ctx context.Context) (*VehicleState, error) {
	var out struct {
		Response VehicleState `json:"response"`
	}
	if err := doJSON(ctx, c.http, http.MethodGet, c.baseURL+"/api/1/vehicle/state", c.headers(), nil, &out); err != nil {
		return nil, fmt.Errorf("vehicle state: %w", err)
	}
	return &out.Response, nil
}

// Wake brings the vehicle out of sleep before a command.
func (c *VehicleClient) Wake(ctx context.Context) error {
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/1/vehicle/wake_up", c.headers(), nil, nil); err != nil {
		return fmt.Errorf("vehicle wake: %w", err)
	}
	return nil
}

// SetClimate starts or stops climate conditioning.
func (c *VehicleClient) SetClimate(ctx context.Context, on bool) error {
	action := "stop"
	if on {
		action = "start"
	}
	url := fmt.Sprintf("%s/api/1/vehicle/command/climate_%s", c.baseURL, action)
	if err := doJSON(ctx, c.http, http.MethodPost, url, c.headers(), nil, nil); err != nil {
		return fmt.Errorf("vehicle climate %s: %w", action, err)
	}
	return nil
}
