package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/domain"
)

func TestApprovalPolicy_RequiresApproval(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ApprovalConfig
		userID   string
		role     domain.UserRole
		expected bool
	}{
		{
			name:     "admin always auto-approves",
			cfg:      config.ApprovalConfig{AutoApproveRequests: false},
			userID:   "alice",
			role:     domain.UserRoleAdmin,
			expected: false,
		},
		{
			name:     "global default auto-approve",
			cfg:      config.ApprovalConfig{AutoApproveRequests: true},
			userID:   "bob",
			role:     domain.UserRoleMember,
			expected: false,
		},
		{
			name:     "global default requires approval",
			cfg:      config.ApprovalConfig{AutoApproveRequests: false},
			userID:   "bob",
			role:     domain.UserRoleMember,
			expected: true,
		},
		{
			name: "per-user override wins over permissive global",
			cfg: config.ApprovalConfig{
				AutoApproveRequests: true,
				UserOverrides:       map[string]bool{"bob": false},
			},
			userID:   "bob",
			role:     domain.UserRoleMember,
			expected: true,
		},
		{
			name: "per-user override wins over restrictive global",
			cfg: config.ApprovalConfig{
				AutoApproveRequests: false,
				UserOverrides:       map[string]bool{"bob": true},
			},
			userID:   "bob",
			role:     domain.UserRoleMember,
			expected: false,
		},
		{
			name: "override for another user does not apply",
			cfg: config.ApprovalConfig{
				AutoApproveRequests: true,
				UserOverrides:       map[string]bool{"carol": false},
			},
			userID:   "bob",
			role:     domain.UserRoleMember,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewApprovalPolicy(tt.cfg)
			assert.Equal(t, tt.expected, policy.RequiresApproval(tt.userID, tt.role))
		})
	}
}
