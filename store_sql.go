package portal

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// credentialRecord is the single-row table holding the token pair in the
// client's local state database.
type credentialRecord struct {
	bun.BaseModel `bun:"table:credentials,alias:cred"`
	ID            int64     `bun:"id,pk"`
	AccessToken   string    `bun:"access_token,notnull"`
	RefreshToken  string    `bun:"refresh_token,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

const credentialRowID = 1

// SQLCredentials stores the credential pair in a local SQLite database,
// for clients that already keep other state there. The pair lives in one
// row, so both tokens change or disappear in a single statement.
type SQLCredentials struct {
	db *bun.DB
}

var _ CredentialStore = (*SQLCredentials)(nil)

// NewSQLCredentials opens (or creates) the state database at path and makes
// sure the credentials table exists.
func NewSQLCredentials(path string) (*SQLCredentials, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open state database")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.NewCreateTable().
		Model((*credentialRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to initialize credentials table")
	}

	return &SQLCredentials{db: db}, nil
}

func (s *SQLCredentials) Load() (CredentialPair, bool, error) {
	ctx := context.Background()

	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("cred.id = ?", credentialRowID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CredentialPair{}, false, nil
		}
		return CredentialPair{}, false, errors.Wrap(err, errors.CategoryInternal, "failed to load credentials")
	}

	pair := CredentialPair{Access: record.AccessToken, Refresh: record.RefreshToken}
	if !pair.Complete() {
		return CredentialPair{}, false, nil
	}
	return pair, true, nil
}

func (s *SQLCredentials) Save(pair CredentialPair) error {
	if !pair.Complete() {
		return ErrNoCredentials
	}

	ctx := context.Background()
	record := &credentialRecord{
		ID:           credentialRowID,
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		UpdatedAt:    time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to save credentials")
	}
	return nil
}

func (s *SQLCredentials) Clear() error {
	ctx := context.Background()

	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("id = ?", credentialRowID).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear credentials")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLCredentials) Close() error {
	return s.db.Close()
}
