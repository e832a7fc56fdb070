package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// HomeAssistantClient wraps the Home Assistant REST API.
type HomeAssistantClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHomeAssistantClient(baseURL, token string) *HomeAssistantClient {
	return &HomeAssistantClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    newProviderHTTPClient(),
	}
}

func (c *HomeAssistantClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.token}
}

type HAEntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Lights returns the state of every light entity.
func (c *HomeAssistantClient) Lights(ctx context.Context) ([]HAEntityState, error) {
	var states []HAEntityState
	if err := doJSON(ctx, c.http, http.MethodGet, c.baseURL+"/api/states", c.headers(), nil, &states); err != nil {
		return nil, fmt.Errorf("home assistant states: %w", err)
	}
	var lights []HAEntityState
	for _, s := range states {
		if strings.HasPrefix(s.EntityID, "light.") {
			lights = append(lights, s)
		}
	}
	return lights, nil
}

// CallService invokes a Home Assistant service, e.g. ("light", "turn_on").
func (c *HomeAssistantClient) CallService(ctx context.Context, domain, service, entityID string) error {
	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	body := map[string]string{"entity_id": entityID}
	if err := doJSON(ctx, c.http, http.MethodPost, url, c.headers(), body, nil); err != nil {
		return fmt.Errorf("home assistant %s.%s: %w", domain, service, err)
	}
	return nil
}

// ActivateScene turns on a scene by name ("movie" -> scene.movie).
func (c *HomeAssistantClient) ActivateScene(ctx context.Context, name string) error {
	entity := name
	if !strings.HasPrefix(entity, "scene.") {
		entity = "scene." + entity
	}
	return c.CallService(ctx, "scene", "turn_on", entity)
}
