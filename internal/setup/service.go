// Package setup implements the tenant onboarding state machine:
//
//	Unauthenticated -> SetupRequired -> Provisioned
//
// The SetupRequired -> Provisioned transition creates a local default
// tenant and registers a matching organization with the external identity
// directory. The tenant identifier lives immutably in the session
// credential, so completing setup does not upgrade the current token; the
// client must re-authenticate to receive one carrying the tenant claim.
package setup

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
)

// State of a principal in the onboarding machine.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateSetupRequired   State = "setup_required" // authenticated, no tenant
	StateProvisioned     State = "provisioned"    // authenticated with tenant
)

// Directory is the external identity-provider the tenant organization is
// registered with during setup.
type Directory interface {
	RegisterOrganization(ctx context.Context, name, externalRef string) (orgID string, err error)
	RemoveOrganization(ctx context.Context, orgID string) error
}

// CreateTenantParams carries everything the store needs to provision the
// default tenant in one transaction.
type CreateTenantParams struct {
	UserID         uint
	Name           string
	Slug           string
	DirectoryOrgID string
}

// Store persists tenants and memberships.
type Store interface {
	// DefaultTenant returns the user's default tenant, or nil when the
	// user is still in the setup-required state.
	DefaultTenant(ctx context.Context, userID uint) (*model.Tenant, error)

	// CreateDefaultTenant creates the tenant, the owner membership, the
	// system owner role and its rule set atomically.
	CreateDefaultTenant(ctx context.Context, params CreateTenantParams) (*model.Tenant, error)
}

// Service drives the onboarding transitions.
type Service struct {
	store     Store
	directory Directory
	log       *zap.Logger
}

// NewService creates a setup service.
func NewService(store Store, directory Directory, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, directory: directory, log: log}
}

// State reports where the principal stands in the onboarding machine.
func (s *Service) State(ctx context.Context, userID uint) (State, *model.Tenant, error) {
	if userID == 0 {
		return StateUnauthenticated, nil, nil
	}
	tenant, err := s.store.DefaultTenant(ctx, userID)
	if err != nil {
		return StateSetupRequired, nil, err
	}
	if tenant == nil {
		return StateSetupRequired, nil, nil
	}
	return StateProvisioned, tenant, nil
}

// ProvisionDefaultTenant performs the SetupRequired -> Provisioned
// transition. It is idempotent: when the user already has a default tenant
// the existing one is returned and created is false.
//
// The directory registration runs first and the local write second; when
// the local write fails the directory organization is removed again
// (compensation). A failed compensation is logged for the reconciliation
// sweep, and the user stays in SetupRequired either way, so Provisioned is
// never reachable without a directory registration having succeeded.
func (s *Service) ProvisionDefaultTenant(ctx context.Context, userID uint, firmName string) (tenant *model.Tenant, created bool, err error) {
	existing, err := s.store.DefaultTenant(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.log.Info("setup already completed, returning existing tenant",
			zap.Uint("user_id", userID),
			zap.Uint("tenant_id", existing.ID))
		return existing, false, nil
	}

	slug := makeSlug(firmName)
	orgID, err := s.directory.RegisterOrganization(ctx, firmName, slug)
	if err != nil {
		s.log.Error("directory organization registration failed",
			zap.Uint("user_id", userID),
			zap.Error(err))
		return nil, false, err
	}

	tenant, err = s.store.CreateDefaultTenant(ctx, CreateTenantParams{
		UserID:         userID,
		Name:           firmName,
		Slug:           slug,
		DirectoryOrgID: orgID,
	})
	if err != nil {
		// A concurrent setup may have won the race; treat that as the
		// idempotent path and release the organization we registered.
		if winner, lookupErr := s.store.DefaultTenant(ctx, userID); lookupErr == nil && winner != nil {
			s.compensate(ctx, orgID)
			return winner, false, nil
		}
		s.compensate(ctx, orgID)
		return nil, false, err
	}

	s.log.Info("default tenant provisioned",
		zap.Uint("user_id", userID),
		zap.Uint("tenant_id", tenant.ID),
		zap.String("slug", tenant.Slug),
		zap.String("directory_org_id", orgID))
	return tenant, true, nil
}

func (s *Service) compensate(ctx context.Context, orgID string) {
	if err := s.directory.RemoveOrganization(ctx, orgID); err != nil {
		// Orphaned directory organizations are swept by reconciliation
		// tooling keyed on this log line.
		s.log.Error("failed to remove directory organization after local write failure",
			zap.String("directory_org_id", orgID),
			zap.Error(err))
	}
}

// makeSlug derives a unique tenant slug from the firm name. The random
// suffix keeps two firms with the same name apart.
func makeSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	base := strings.Trim(b.String(), "-")
	if base == "" {
		base = "tenant"
	}
	if len(base) > 40 {
		base = base[:40]
	}
	return base + "-" + uuid.New().String()[:8]
}
