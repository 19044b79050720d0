package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ConnectorPayload is the service item of connector imports and synchronizations,
// persisted as JSON in ServiceItemID.
type ConnectorPayload struct {
	Provider       string `json:"provider"`
	SubscriptionID string `json:"subscription_id"`
	ImportAs       string `json:"import_as,omitempty"`
}

// ParseConnectorPayload decodes a service item id.
func ParseConnectorPayload(raw string) (ConnectorPayload, error) {
	var p ConnectorPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("decode connector payload: %w", err)
	}
	if p.Provider == "" {
		return p, errors.New("connector payload has no provider")
	}
	return p, nil
}

// Encode returns the JSON form stored as service item id.
func (p ConnectorPayload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode connector payload: %w", err)
	}
	return string(raw), nil
}

func (p ConnectorPayload) IsProvider(provider string) bool {
	return p.Provider == provider
}
