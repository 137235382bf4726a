package models

import (
	"strings"
	"time"
)

// ApiClient represents an authenticated API key holder.
// OwnerID is the identity every session read and write is scoped to.
type ApiClient struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	OwnerID     string     `json:"owner_id"`
	ApiKey      string     `json:"-"` // Never serialize
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Permissions []string   `json:"permissions"`
}

// HasPermission checks if client has specific permission
// Supports wildcard permissions like "sessions:*"
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}

	for _, perm := range c.Permissions {
		if perm == required || perm == "*" {
			return true
		}

		// "sessions:*" matches "sessions:read"
		if strings.HasSuffix(perm, ":*") {
			prefix := strings.TrimSuffix(perm, "*")
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}

	return false
}

// MaskedApiKey returns first 8 characters of API key for logging
func (c *ApiClient) MaskedApiKey() string {
	return MaskKey(c.ApiKey)
}

// MaskKey returns first 8 chars of key for safe logging
func MaskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
