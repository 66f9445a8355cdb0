package lifecycle

import (
	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/domain"
)

// ApprovalPolicy decides whether a new request enters the lifecycle at
// pending (auto-approved) or at awaiting_approval.
type ApprovalPolicy struct {
	autoApprove   bool
	userOverrides map[string]bool
}

// NewApprovalPolicy builds the policy from configuration.
func NewApprovalPolicy(cfg config.ApprovalConfig) ApprovalPolicy {
	return ApprovalPolicy{
		autoApprove:   cfg.AutoApproveRequests,
		userOverrides: cfg.UserOverrides,
	}
}

// RequiresApproval reports whether a request from this user must wait for an
// admin decision. Admins always auto-approve; a per-user override takes
// precedence over the global default.
func (p ApprovalPolicy) RequiresApproval(userID string, role domain.UserRole) bool {
	if role == domain.UserRoleAdmin {
		return false
	}
	if override, ok := p.userOverrides[userID]; ok {
		return !override
	}
	return !p.autoApprove
}
