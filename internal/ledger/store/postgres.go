package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/lib/pq"

	"credentia/internal/ledger"
	"credentia/pkg/platform/sentinel"
	txcontext "credentia/pkg/platform/tx"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore persists accounts in PostgreSQL. The primary key on address
// is what makes creation exactly-once across concurrent writers.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the accounts table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, acct ledger.Account) error {
	if err := validate(acct); err != nil {
		return err
	}
	query := `
		INSERT INTO ledger_accounts (address, kind, credential_id, owner, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO NOTHING
	`
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, query,
		acct.Address.String(), string(acct.Kind), credentialKey(acct.CredentialID), ownerKeyOf(acct.Owner),
		acct.Data, acct.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create account rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, addr solana.PublicKey) (ledger.Account, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT address, kind, credential_id, owner, data, created_at FROM ledger_accounts WHERE address = $1`,
		addr.String())
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, sentinel.ErrNotFound
		}
		return ledger.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// GetMany fetches all accounts present at addrs in one round trip. Missing
// addresses are skipped.
func (s *PostgresStore) GetMany(ctx context.Context, addrs []solana.PublicKey) ([]ledger.Account, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		keys = append(keys, addr.String())
	}
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT address, kind, credential_id, owner, data, created_at
		FROM ledger_accounts
		WHERE address = ANY($1::text[])
		ORDER BY created_at, address COLLATE "C"`,
		pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	return collectAccounts(rows)
}

func (s *PostgresStore) ListByCredential(ctx context.Context, kind ledger.Kind, credentialID string) ([]ledger.Account, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT address, kind, credential_id, owner, data, created_at
		FROM ledger_accounts
		WHERE kind = $1 AND credential_id = $2
		ORDER BY created_at, address COLLATE "C"`,
		string(kind), credentialKey(credentialID))
	if err != nil {
		return nil, fmt.Errorf("list accounts by credential: %w", err)
	}
	return collectAccounts(rows)
}

// ListByOwner returns the accounts of kind owned by owner, newest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, kind ledger.Kind, owner solana.PublicKey) ([]ledger.Account, error) {
	if owner.IsZero() {
		return []ledger.Account{}, nil
	}
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT address, kind, credential_id, owner, data, created_at
		FROM ledger_accounts
		WHERE kind = $1 AND owner = $2
		ORDER BY created_at DESC, address COLLATE "C"`,
		string(kind), ownerKeyOf(owner))
	if err != nil {
		return nil, fmt.Errorf("list accounts by owner: %w", err)
	}
	return collectAccounts(rows)
}

func (s *PostgresStore) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, nil, fn)
}

func (s *PostgresStore) Count(ctx context.Context, kind ledger.Kind) (int, error) {
	var n int
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_accounts WHERE kind = $1`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// credentialKey binds a credential id as BYTEA. Ids may hold bytes a TEXT
// column rejects, such as NUL.
func credentialKey(credentialID string) []byte {
	b := make([]byte, len(credentialID))
	copy(b, credentialID)
	return b
}

func scanAccount(row rowScanner) (ledger.Account, error) {
	var (
		addr, kind, owner string
		credentialID      []byte
		data              []byte
		createdAt         time.Time
	)
	if err := row.Scan(&addr, &kind, &credentialID, &owner, &data, &createdAt); err != nil {
		return ledger.Account{}, err
	}
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("stored address %q: %v: %w", addr, err, sentinel.ErrInvalidState)
	}
	ownerKey, err := parseStoredOwner(owner)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		Address:      pk,
		Kind:         ledger.Kind(kind),
		CredentialID: string(credentialID),
		Owner:        ownerKey,
		Data:         data,
		CreatedAt:    createdAt,
	}, nil
}

// collectAccounts keeps the row order of the query.
func collectAccounts(rows *sql.Rows) ([]ledger.Account, error) {
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}
