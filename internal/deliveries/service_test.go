package deliveries

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parceltrack/parceltrack/internal/packages"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

type mockRepository struct {
	deliveries map[int64]Delivery
	nextID     int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{deliveries: make(map[int64]Delivery), nextID: 1}
}

func (m *mockRepository) Create(_ context.Context, d Delivery) (Delivery, error) {
	d.ID = m.nextID
	m.nextID++
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	m.deliveries[d.ID] = d
	return d, nil
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (Delivery, error) {
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, httpx.ErrNotFound
	}
	return d, nil
}

func (m *mockRepository) GetActiveByPackage(_ context.Context, packageID int64) (Delivery, error) {
	for _, d := range m.deliveries {
		if d.PackageID == packageID && (d.Status == StatusOpen || d.Status == StatusClaimed) {
			return d, nil
		}
	}
	return Delivery{}, httpx.ErrNotFound
}

func (m *mockRepository) ListOpen(_ context.Context) ([]Delivery, error) {
	out := []Delivery{}
	for _, d := range m.deliveries {
		if d.Status == StatusOpen {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockRepository) ListByDriver(_ context.Context, driverID int64) ([]Delivery, error) {
	out := []Delivery{}
	for _, d := range m.deliveries {
		if d.DriverID != nil && *d.DriverID == driverID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockRepository) Claim(_ context.Context, id, driverID int64) (Delivery, error) {
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, httpx.ErrNotFound
	}
	if d.Status != StatusOpen {
		return Delivery{}, httpx.ErrConflict
	}
	now := time.Now()
	d.Status = StatusClaimed
	d.DriverID = &driverID
	d.ClaimedAt = &now
	m.deliveries[id] = d
	return d, nil
}

func (m *mockRepository) Transition(_ context.Context, id int64, from, to Status, notes string) (Delivery, error) {
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, httpx.ErrNotFound
	}
	if d.Status != from {
		return Delivery{}, httpx.ErrConflict
	}
	d.Status = to
	if notes != "" {
		d.Notes = notes
	}
	if to == StatusDelivered {
		now := time.Now()
		d.DeliveredAt = &now
	}
	m.deliveries[id] = d
	return d, nil
}

func (m *mockRepository) ReleaseStale(_ context.Context, olderThanMinutes int) ([]Delivery, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanMinutes) * time.Minute)
	released := []Delivery{}
	for id, d := range m.deliveries {
		if d.Status == StatusClaimed && d.ClaimedAt != nil && d.ClaimedAt.Before(cutoff) {
			d.Status = StatusOpen
			d.DriverID = nil
			d.ClaimedAt = nil
			m.deliveries[id] = d
			released = append(released, d)
		}
	}
	return released, nil
}

type mockPackages struct {
	packages map[int64]packages.Package
	marked   []string
}

func newMockPackages() *mockPackages {
	return &mockPackages{packages: make(map[int64]packages.Package)}
}

func (m *mockPackages) GetPackage(_ context.Context, id, callerID int64, readAny bool) (packages.Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return packages.Package{}, httpx.ErrNotFound
	}
	if !readAny && p.OwnerID != callerID {
		return packages.Package{}, httpx.ErrForbidden
	}
	return p, nil
}

func (m *mockPackages) MarkStatus(_ context.Context, id int64, status packages.Status, note string) (packages.Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return packages.Package{}, httpx.ErrNotFound
	}
	p.Status = status
	m.packages[id] = p
	m.marked = append(m.marked, string(status))
	return p, nil
}

// memPackageRepo backs a real packages.Service so the cancel cascade can be
// exercised across both services.
type memPackageRepo struct {
	packages map[int64]packages.Package
	nextID   int64
}

func newMemPackageRepo() *memPackageRepo {
	return &memPackageRepo{packages: make(map[int64]packages.Package), nextID: 1}
}

func (m *memPackageRepo) Create(_ context.Context, p packages.Package) (packages.Package, error) {
	p.ID = m.nextID
	m.nextID++
	m.packages[p.ID] = p
	return p, nil
}

func (m *memPackageRepo) GetByID(_ context.Context, id int64) (packages.Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return packages.Package{}, httpx.ErrNotFound
	}
	return p, nil
}

func (m *memPackageRepo) GetByTrackingNumber(_ context.Context, number string) (packages.Package, error) {
	for _, p := range m.packages {
		if p.TrackingNumber == number {
			return p, nil
		}
	}
	return packages.Package{}, httpx.ErrNotFound
}

func (m *memPackageRepo) ListByOwner(_ context.Context, ownerID int64) ([]packages.Package, error) {
	out := []packages.Package{}
	for _, p := range m.packages {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPackageRepo) Update(_ context.Context, p packages.Package) (packages.Package, error) {
	m.packages[p.ID] = p
	return p, nil
}

func (m *memPackageRepo) Transition(_ context.Context, id int64, from, to packages.Status, _ string) (packages.Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return packages.Package{}, httpx.ErrNotFound
	}
	if p.Status != from {
		return packages.Package{}, httpx.ErrConflict
	}
	p.Status = to
	m.packages[id] = p
	return p, nil
}

func (m *memPackageRepo) AppendEvent(_ context.Context, _ int64, _ packages.Status, _ string) error {
	return nil
}

func (m *memPackageRepo) ListEvents(_ context.Context, _ int64) ([]packages.TrackingEvent, error) {
	return nil, nil
}

type mockNotifier struct {
	notified []int64
}

func (m *mockNotifier) NotifyStatusChange(_ context.Context, d Delivery, ownerID int64) error {
	m.notified = append(m.notified, ownerID)
	return nil
}

func fixture() (*Service, *mockRepository, *mockPackages, *mockNotifier) {
	repo := newMockRepository()
	pkgs := newMockPackages()
	notifier := &mockNotifier{}
	pkgs.packages[1] = packages.Package{ID: 1, OwnerID: 7, Status: packages.StatusPending}
	return NewService(repo, pkgs, notifier, nil), repo, pkgs, notifier
}

func TestDispatch(t *testing.T) {
	svc, _, pkgs, notifier := fixture()

	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1, Notes: " leave at door "})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, d.Status)
	assert.True(t, strings.HasPrefix(d.Code, "DLV-"))
	assert.Equal(t, "leave at door", d.Notes)
	assert.Nil(t, d.DriverID)
	assert.Equal(t, packages.StatusAssigned, pkgs.packages[1].Status)
	assert.Equal(t, []int64{7}, notifier.notified)
}

func TestDispatchRejectsForeignPackage(t *testing.T) {
	svc, _, _, _ := fixture()

	_, err := svc.Dispatch(context.Background(), 8, DispatchRequest{PackageID: 1})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestDispatchRejectsNonPendingPackage(t *testing.T) {
	svc, _, pkgs, _ := fixture()
	p := pkgs.packages[1]
	p.Status = packages.StatusInTransit
	pkgs.packages[1] = p

	_, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	assert.ErrorIs(t, err, httpx.ErrConflict)
}

func TestClaim(t *testing.T) {
	svc, _, _, notifier := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)

	claimed, err := svc.Claim(context.Background(), d.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusClaimed, claimed.Status)
	require.NotNil(t, claimed.DriverID)
	assert.Equal(t, int64(42), *claimed.DriverID)
	assert.NotNil(t, claimed.ClaimedAt)

	// A second driver loses the race with a conflict.
	_, err = svc.Claim(context.Background(), d.ID, 43)
	assert.ErrorIs(t, err, httpx.ErrConflict)

	// The owner was notified of dispatch and claim.
	assert.Equal(t, []int64{7, 7}, notifier.notified)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	svc, _, pkgs, _ := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), d.ID, 42)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusPickedUp})
	require.NoError(t, err)
	assert.Equal(t, StatusPickedUp, updated.Status)
	assert.Equal(t, packages.StatusInTransit, pkgs.packages[1].Status)

	updated, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusInTransit})
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, updated.Status)

	updated, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, updated.Status)
	assert.NotNil(t, updated.DeliveredAt)
	assert.Equal(t, packages.StatusDelivered, pkgs.packages[1].Status)
}

func TestUpdateStatusOnlyAssignedDriver(t *testing.T) {
	svc, _, _, _ := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)

	// Unclaimed: no driver may transition.
	_, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusPickedUp})
	assert.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = svc.Claim(context.Background(), d.ID, 42)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), d.ID, 43, UpdateStatusRequest{Status: StatusPickedUp})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestUpdateStatusRejectsIllegalTransitions(t *testing.T) {
	svc, _, _, _ := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), d.ID, 42)
	require.NoError(t, err)

	// Claimed cannot jump straight to delivered.
	_, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusDelivered})
	assert.ErrorIs(t, err, httpx.ErrConflict)

	_, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusPickedUp})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusInTransit})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusDelivered})
	require.NoError(t, err)

	// Terminal states are final.
	_, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusFailed})
	assert.ErrorIs(t, err, httpx.ErrConflict)
}

func TestFailedDeliveryReturnsPackageToQueue(t *testing.T) {
	svc, _, pkgs, _ := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), d.ID, 42)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusFailed, Notes: "nobody home"})
	require.NoError(t, err)
	assert.Equal(t, packages.StatusPending, pkgs.packages[1].Status)
}

func TestGetDeliveryVisibility(t *testing.T) {
	svc, _, _, _ := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), d.ID, 42)
	require.NoError(t, err)

	// Package owner, assigned driver and admin readers can see it.
	_, err = svc.GetDelivery(context.Background(), d.ID, 7, false)
	assert.NoError(t, err)
	_, err = svc.GetDelivery(context.Background(), d.ID, 42, false)
	assert.NoError(t, err)
	_, err = svc.GetDelivery(context.Background(), d.ID, 99, true)
	assert.NoError(t, err)

	_, err = svc.GetDelivery(context.Background(), d.ID, 99, false)
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestListOpenAndMine(t *testing.T) {
	svc, _, pkgs, _ := fixture()
	pkgs.packages[2] = packages.Package{ID: 2, OwnerID: 7, Status: packages.StatusPending}

	first, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)
	_, err = svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 2})
	require.NoError(t, err)

	open, err := svc.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 2)

	_, err = svc.Claim(context.Background(), first.ID, 42)
	require.NoError(t, err)

	open, err = svc.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)

	mine, err := svc.ListMine(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)
}

func TestCancelForPackageAbandonsDelivery(t *testing.T) {
	svc, repo, _, _ := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)

	// An open delivery is abandoned and can no longer be claimed.
	require.NoError(t, svc.CancelForPackage(context.Background(), 1))
	assert.Equal(t, StatusFailed, repo.deliveries[d.ID].Status)
	_, err = svc.Claim(context.Background(), d.ID, 42)
	assert.ErrorIs(t, err, httpx.ErrConflict)

	// A package with no in-flight delivery is a no-op.
	assert.NoError(t, svc.CancelForPackage(context.Background(), 99))
}

func TestCancelForPackageAbandonsClaimedDelivery(t *testing.T) {
	svc, repo, _, _ := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), d.ID, 42)
	require.NoError(t, err)

	require.NoError(t, svc.CancelForPackage(context.Background(), 1))
	assert.Equal(t, StatusFailed, repo.deliveries[d.ID].Status)

	// The driver cannot resume a delivery for a cancelled parcel.
	_, err = svc.UpdateStatus(context.Background(), d.ID, 42, UpdateStatusRequest{Status: StatusPickedUp})
	assert.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCancelDispatchedPackageBlocksDelivery(t *testing.T) {
	pkgRepo := newMemPackageRepo()
	pkgSvc := packages.NewService(pkgRepo)
	repo := newMockRepository()
	svc := NewService(repo, pkgSvc, nil, nil)
	pkgSvc.SetDeliveryCloser(svc)

	p, err := pkgSvc.CreatePackage(context.Background(), 7, packages.CreatePackageRequest{
		Description: "Vinyl records", WeightKg: 2.5, Origin: "Amsterdam", Destination: "Utrecht",
	})
	require.NoError(t, err)
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: p.ID})
	require.NoError(t, err)

	cancelled, err := pkgSvc.CancelPackage(context.Background(), p.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, packages.StatusCancelled, cancelled.Status)
	assert.Equal(t, StatusFailed, repo.deliveries[d.ID].Status)

	// No driver can pick up the abandoned delivery, and the package stays
	// cancelled.
	_, err = svc.Claim(context.Background(), d.ID, 42)
	assert.ErrorIs(t, err, httpx.ErrConflict)
	assert.Equal(t, packages.StatusCancelled, pkgRepo.packages[p.ID].Status)
}

func TestReleaseStaleClaims(t *testing.T) {
	svc, repo, _, _ := fixture()
	d, err := svc.Dispatch(context.Background(), 7, DispatchRequest{PackageID: 1})
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), d.ID, 42)
	require.NoError(t, err)

	// Backdate the claim past the window.
	stale := repo.deliveries[d.ID]
	old := time.Now().Add(-3 * time.Hour)
	stale.ClaimedAt = &old
	repo.deliveries[d.ID] = stale

	released, err := svc.ReleaseStaleClaims(context.Background(), 120)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	reopened := repo.deliveries[d.ID]
	assert.Equal(t, StatusOpen, reopened.Status)
	assert.Nil(t, reopened.DriverID)
}
