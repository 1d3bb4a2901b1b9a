package inventory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medlink/m/domain"
	"medlink/m/internal/apperrors"
	"medlink/m/internal/database"
	"medlink/m/internal/migrations"
	"medlink/m/internal/store"
)

type fixture struct {
	svc     *Service
	store   *store.Store
	apollo  domain.PharmacyLocation
	medplus domain.PharmacyLocation
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))

	st := store.New(db)
	f := fixture{svc: NewService(st), store: st}
	f.apollo = domain.PharmacyLocation{Name: "Apollo"}
	f.medplus = domain.PharmacyLocation{Name: "MedPlus"}
	require.NoError(t, st.CreatePharmacy(context.Background(), &f.apollo))
	require.NoError(t, st.CreatePharmacy(context.Background(), &f.medplus))
	f.svc.now = func() time.Time { return time.Date(2026, time.October, 18, 23, 30, 0, 0, time.UTC) }
	return f
}

func ptr[T any](v T) *T { return &v }

func pharmacist(p domain.PharmacyLocation) domain.Actor {
	return domain.Actor{UserID: 7, Role: domain.RolePharmacy, PharmacyID: p.ID}
}

func TestAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Add(ctx, f.apollo.ID, NewStock{
		Name:         "  Paracetamol 500 ",
		Manufacturer: ptr("  "),
		Quantity:     40,
		Expiry:       "2027-03-01",
		Price:        ptr(0.0),
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, "Paracetamol 500", entry.Name)
	assert.Nil(t, entry.Manufacturer)
	require.NotNil(t, entry.Price)
	assert.Equal(t, 0.0, *entry.Price)

	stored, err := f.store.GetStock(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "2027-03-01", stored.Expiry.String())
}

func TestAdd_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		in    NewStock
		field string
	}{
		"blank name":        {NewStock{Name: " ", Expiry: "2027-01-01"}, "name"},
		"negative quantity": {NewStock{Name: "Aspirin", Quantity: -1, Expiry: "2027-01-01"}, "quantity"},
		"bad expiry":        {NewStock{Name: "Aspirin", Expiry: "01/02/2027"}, "expiry"},
		"negative price":    {NewStock{Name: "Aspirin", Expiry: "2027-01-01", Price: ptr(-2.0)}, "price"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Add(ctx, f.apollo.ID, tc.in)
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
			assert.Contains(t, appErr.Fields, tc.field)
		})
	}

	_, err := f.svc.Add(ctx, 404, NewStock{Name: "Aspirin", Expiry: "2027-01-01"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry, err := f.svc.Add(ctx, f.apollo.ID, NewStock{Name: "Insulin", Quantity: 5, Expiry: "2027-01-01", Price: ptr(320.0)})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, pharmacist(f.apollo), entry.ID, StockUpdate{Quantity: ptr(int64(2))})
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Quantity)
	require.NotNil(t, updated.Price)
	assert.Equal(t, 320.0, *updated.Price)

	updated, err = f.svc.Update(ctx, pharmacist(f.apollo), entry.ID, StockUpdate{ClearPrice: true})
	require.NoError(t, err)
	assert.Nil(t, updated.Price)

	stored, err := f.store.GetStock(ctx, entry.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.Quantity)
	assert.Nil(t, stored.Price)

	_, err = f.svc.Update(ctx, pharmacist(f.medplus), entry.ID, StockUpdate{Quantity: ptr(int64(9))})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))

	admin := domain.Actor{UserID: 1, Role: domain.RoleAdmin}
	_, err = f.svc.Update(ctx, admin, entry.ID, StockUpdate{Quantity: ptr(int64(9))})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))

	_, err = f.svc.Update(ctx, pharmacist(f.apollo), 999, StockUpdate{Quantity: ptr(int64(1))})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	_, err = f.svc.Update(ctx, pharmacist(f.apollo), entry.ID, StockUpdate{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = f.svc.Update(ctx, pharmacist(f.apollo), entry.ID, StockUpdate{Price: ptr(1.0), ClearPrice: true})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Add(ctx, f.apollo.ID, NewStock{Name: "Aspirin", Quantity: 1, Expiry: "2027-01-01"})
	require.NoError(t, err)
	second, err := f.svc.Add(ctx, f.apollo.ID, NewStock{Name: "Brufen", Quantity: 1, Expiry: "2027-01-01"})
	require.NoError(t, err)

	err = f.svc.Remove(ctx, pharmacist(f.medplus), first.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))

	patient := domain.Actor{UserID: 3, Role: domain.RolePatient}
	err = f.svc.Remove(ctx, patient, first.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))

	require.NoError(t, f.svc.Remove(ctx, pharmacist(f.apollo), first.ID))
	require.NoError(t, f.svc.Remove(ctx, domain.Actor{UserID: 1, Role: domain.RoleAdmin}, second.ID))

	err = f.svc.Remove(ctx, pharmacist(f.apollo), first.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	list, err := f.svc.ListForPharmacy(ctx, f.apollo.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExpiringWithin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	add := func(p domain.PharmacyLocation, name, expiry string) domain.StockEntry {
		entry, err := f.svc.Add(ctx, p.ID, NewStock{Name: name, Quantity: 1, Expiry: expiry})
		require.NoError(t, err)
		return entry
	}
	// today is 2026-10-18, so the default window ends on 2026-11-17.
	expired := add(f.apollo, "Old Syrup", "2026-09-30")
	boundary := add(f.medplus, "Amoxicillin", "2026-11-17")
	add(f.apollo, "Cetirizine", "2026-11-18")

	expiring, err := f.svc.ExpiringWithin(ctx, 0)
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	assert.Equal(t, expired.ID, expiring[0].StockID)
	assert.Equal(t, boundary.ID, expiring[1].StockID)
	assert.Equal(t, "MedPlus", expiring[1].PharmacyName)

	expiring, err = f.svc.ExpiringWithin(ctx, 1)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, expired.ID, expiring[0].StockID)
}

func TestMappings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.AddMapping(ctx, NewMapping{Source: " Dolo ", Target: "Paracetamol"})
	require.NoError(t, err)
	assert.Equal(t, "Dolo", m.Source)

	_, err = f.svc.AddMapping(ctx, NewMapping{Source: "Dolo", Target: "dolo"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = f.svc.AddMapping(ctx, NewMapping{Source: "Dolo"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	all, err := f.svc.ListMappings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Paracetamol", all[0].Target)
}
