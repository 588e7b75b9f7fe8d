package setup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
)

type fakeStore struct {
	tenants     map[uint]*model.Tenant
	createErr   error
	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tenants: map[uint]*model.Tenant{}}
}

func (s *fakeStore) DefaultTenant(_ context.Context, userID uint) (*model.Tenant, error) {
	return s.tenants[userID], nil
}

func (s *fakeStore) CreateDefaultTenant(_ context.Context, params CreateTenantParams) (*model.Tenant, error) {
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	t := &model.Tenant{
		ID:             uint(len(s.tenants) + 1),
		Name:           params.Name,
		Slug:           params.Slug,
		OwnerID:        params.UserID,
		DirectoryOrgID: params.DirectoryOrgID,
		Active:         true,
	}
	s.tenants[params.UserID] = t
	return t, nil
}

type fakeDirectory struct {
	registerErr   error
	registered    []string
	removed       []string
	removeErr     error
	nextOrgID     string
	registerCalls int
}

func (d *fakeDirectory) RegisterOrganization(_ context.Context, name, _ string) (string, error) {
	d.registerCalls++
	if d.registerErr != nil {
		return "", d.registerErr
	}
	orgID := d.nextOrgID
	if orgID == "" {
		orgID = "org_" + name
	}
	d.registered = append(d.registered, orgID)
	return orgID, nil
}

func (d *fakeDirectory) RemoveOrganization(_ context.Context, orgID string) error {
	d.removed = append(d.removed, orgID)
	return d.removeErr
}

func TestStateTransitions(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeDirectory{}, nil)

	state, _, err := svc.State(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, state)

	state, _, err = svc.State(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, StateSetupRequired, state)

	_, created, err := svc.ProvisionDefaultTenant(context.Background(), 7, "Alpha Law")
	require.NoError(t, err)
	assert.True(t, created)

	state, tenant, err := svc.State(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, StateProvisioned, state)
	require.NotNil(t, tenant)
	assert.Equal(t, "Alpha Law", tenant.Name)
}

func TestProvisionRegistersDirectoryOrganization(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{nextOrgID: "org_123"}
	svc := NewService(store, dir, nil)

	tenant, created, err := svc.ProvisionDefaultTenant(context.Background(), 7, "Alpha Law")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "org_123", tenant.DirectoryOrgID)
	assert.True(t, strings.HasPrefix(tenant.Slug, "alpha-law-"))
}

func TestProvisionIsIdempotent(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{}
	svc := NewService(store, dir, nil)

	first, created, err := svc.ProvisionDefaultTenant(context.Background(), 7, "Alpha Law")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.ProvisionDefaultTenant(context.Background(), 7, "Alpha Law")
	require.NoError(t, err)
	assert.False(t, created, "second setup call must not create a second default tenant")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, dir.registerCalls, "second call must not register another organization")
	assert.Equal(t, 1, store.createCalls)
}

func TestProvisionDirectoryFailureLeavesSetupRequired(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{registerErr: errors.New("directory unavailable")}
	svc := NewService(store, dir, nil)

	_, _, err := svc.ProvisionDefaultTenant(context.Background(), 7, "Alpha Law")
	require.Error(t, err)
	assert.Zero(t, store.createCalls, "local tenant must not exist without a directory registration")

	state, _, err := svc.State(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, StateSetupRequired, state)
}

func TestProvisionCompensatesDirectoryOnLocalFailure(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("constraint violation")
	dir := &fakeDirectory{nextOrgID: "org_orphan"}
	svc := NewService(store, dir, nil)

	_, _, err := svc.ProvisionDefaultTenant(context.Background(), 7, "Alpha Law")
	require.Error(t, err)
	assert.Equal(t, []string{"org_orphan"}, dir.removed,
		"the registered organization must be removed when the local write fails")
}

func TestProvisionRaceReturnsWinner(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{nextOrgID: "org_loser"}
	_ = NewService(store, dir, nil)

	// Simulate a concurrent setup winning between the existence check and
	// the local write: the create fails, but a default tenant exists.
	winner := &model.Tenant{ID: 99, Name: "Alpha Law", Slug: "alpha-law-w1nn3r", OwnerID: 7}
	store.createErr = errors.New("duplicate key value")
	svc2 := NewService(&racingStore{fakeStore: store, winner: winner}, dir, nil)

	got, created, err := svc2.ProvisionDefaultTenant(context.Background(), 7, "Alpha Law")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint(99), got.ID)
	assert.Equal(t, []string{"org_loser"}, dir.removed)
}

// racingStore reports no tenant on the first lookup and the winner on the
// retry after the create fails.
type racingStore struct {
	*fakeStore
	winner  *model.Tenant
	lookups int
}

func (s *racingStore) DefaultTenant(ctx context.Context, userID uint) (*model.Tenant, error) {
	s.lookups++
	if s.lookups == 1 {
		return nil, nil
	}
	return s.winner, nil
}

func TestMakeSlugSanitizes(t *testing.T) {
	slug := makeSlug("  Müller & Partner, LLP  ")
	assert.Regexp(t, `^[a-z0-9-]+-[0-9a-f]{8}$`, slug)
	assert.NotContains(t, slug, " ")
}
