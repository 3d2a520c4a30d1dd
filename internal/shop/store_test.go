package shop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier serves scripted Exec results and a canned row.
type fakeQuerier struct {
	execErrs []error
	execTag  pgconn.CommandTag
	calls    int
	lastArgs []any
	row      fakeRow
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls++
	f.lastArgs = args
	if len(f.execErrs) > 0 {
		err := f.execErrs[0]
		f.execErrs = f.execErrs[1:]
		if err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return f.execTag, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

func codeCollision() *pgconn.PgError {
	return &pgconn.PgError{Code: "23505", ConstraintName: "shopify_shops_pkey"}
}

func TestCreateAssignsCode(t *testing.T) {
	db := &fakeQuerier{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	st := &Store{db: db}

	s := &Shop{Shop: "demo.myshopify.com", Status: StatusInstalling}
	require.NoError(t, st.Create(context.Background(), s))

	assert.NoError(t, ValidateCode(s.ShopCode))
	assert.Len(t, s.ShopCode, CodeLength)
	assert.Equal(t, 1, db.calls)
	assert.Equal(t, s.ShopCode, db.lastArgs[0])
}

func TestCreateRetriesOnCodeCollision(t *testing.T) {
	db := &fakeQuerier{
		execErrs: []error{codeCollision(), codeCollision(), nil},
		execTag:  pgconn.NewCommandTag("INSERT 0 1"),
	}
	st := &Store{db: db}

	s := &Shop{Shop: "demo.myshopify.com"}
	require.NoError(t, st.Create(context.Background(), s))

	assert.Equal(t, 3, db.calls)
	assert.NotEmpty(t, s.ShopCode)
}

func TestCreateDuplicateDomainIsNotRetried(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "shopify_shops_shop_key"}
	db := &fakeQuerier{execErrs: []error{dup}}
	st := &Store{db: db}

	err := st.Create(context.Background(), &Shop{Shop: "demo.myshopify.com"})

	require.Error(t, err)
	assert.ErrorIs(t, err, dup)
	assert.Equal(t, 1, db.calls)
}

func TestCreateGivesUpAfterBoundedAttempts(t *testing.T) {
	db := &fakeQuerier{}
	for i := 0; i < maxCodeAttempts; i++ {
		db.execErrs = append(db.execErrs, codeCollision())
	}
	st := &Store{db: db}

	err := st.Create(context.Background(), &Shop{Shop: "demo.myshopify.com"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no unique code")
	assert.Equal(t, maxCodeAttempts, db.calls)
}

func TestGetByCodeNotFound(t *testing.T) {
	st := &Store{db: &fakeQuerier{}}

	_, err := st.GetByCode(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetByDomain(context.Background(), "demo.myshopify.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByCodeScansRecord(t *testing.T) {
	started := time.Now()
	st := &Store{db: &fakeQuerier{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "A1B2C3D4E5F6G7H8I9J0"
		*dest[1].(*string) = "demo.myshopify.com"
		*dest[5].(*string) = StatusInstalling
		*dest[7].(**time.Time) = &started
		*dest[9].(*string) = "tok-1"
		return nil
	}}}}

	s, err := st.GetByCode(context.Background(), "A1B2C3D4E5F6G7H8I9J0")

	require.NoError(t, err)
	assert.Equal(t, "A1B2C3D4E5F6G7H8I9J0", s.ShopCode)
	assert.Equal(t, "demo.myshopify.com", s.Shop)
	assert.Equal(t, StatusInstalling, s.Status)
	assert.Equal(t, "tok-1", s.InstallationToken)
}

func TestUpdateMissingShop(t *testing.T) {
	db := &fakeQuerier{execTag: pgconn.NewCommandTag("UPDATE 0")}
	st := &Store{db: db}

	err := st.Update(context.Background(), &Shop{ShopCode: "A1B2C3D4E5F6G7H8I9J0"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePersists(t *testing.T) {
	db := &fakeQuerier{execTag: pgconn.NewCommandTag("UPDATE 1")}
	st := &Store{db: db}

	err := st.Update(context.Background(), &Shop{ShopCode: "A1B2C3D4E5F6G7H8I9J0", Status: StatusInstalling})
	assert.NoError(t, err)
}

func TestMarkAuthorizedMissingShop(t *testing.T) {
	st := &Store{db: &fakeQuerier{}}

	_, err := st.MarkAuthorized(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOtherErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	db := &fakeQuerier{execErrs: []error{boom}}
	st := &Store{db: db}

	err := st.Create(context.Background(), &Shop{Shop: "demo.myshopify.com"})
	assert.ErrorIs(t, err, boom)
}
