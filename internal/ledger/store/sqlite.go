package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "modernc.org/sqlite"

	"credentia/internal/ledger"
	"credentia/pkg/platform/sentinel"
	txcontext "credentia/pkg/platform/tx"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteStore persists accounts in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: Atomically holds it for the whole transaction.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, acct ledger.Account) error {
	if err := validate(acct); err != nil {
		return err
	}
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_accounts (address, kind, credential_id, owner, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		acct.Address.String(), string(acct.Kind), acct.CredentialID, ownerKeyOf(acct.Owner),
		acct.Data, acct.CreatedAt.UnixNano())
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

func (s *SQLiteStore) Get(ctx context.Context, addr solana.PublicKey) (ledger.Account, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT address, kind, credential_id, owner, data, created_at
		 FROM ledger_accounts WHERE address = ?`,
		addr.String())
	acct, err := scanSQLiteAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, sentinel.ErrNotFound
		}
		return ledger.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// GetMany returns the accounts stored at addrs. Missing addresses are skipped.
func (s *SQLiteStore) GetMany(ctx context.Context, addrs []solana.PublicKey) ([]ledger.Account, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(addrs))
	args := make([]any, len(addrs))
	for i, addr := range addrs {
		placeholders[i] = "?"
		args[i] = addr.String()
	}
	query := `SELECT address, kind, credential_id, owner, data, created_at
		FROM ledger_accounts WHERE address IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at, address`
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	return collectSQLiteAccounts(rows)
}

func (s *SQLiteStore) ListByCredential(ctx context.Context, kind ledger.Kind, credentialID string) ([]ledger.Account, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT address, kind, credential_id, owner, data, created_at
		 FROM ledger_accounts
		 WHERE kind = ? AND credential_id = ?
		 ORDER BY created_at, address`,
		string(kind), credentialID)
	if err != nil {
		return nil, fmt.Errorf("list accounts by credential: %w", err)
	}
	return collectSQLiteAccounts(rows)
}

// ListByOwner returns the accounts of kind owned by owner, newest first.
func (s *SQLiteStore) ListByOwner(ctx context.Context, kind ledger.Kind, owner solana.PublicKey) ([]ledger.Account, error) {
	if owner.IsZero() {
		return []ledger.Account{}, nil
	}
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT address, kind, credential_id, owner, data, created_at
		 FROM ledger_accounts
		 WHERE kind = ? AND owner = ?
		 ORDER BY created_at DESC, address`,
		string(kind), ownerKeyOf(owner))
	if err != nil {
		return nil, fmt.Errorf("list accounts by owner: %w", err)
	}
	return collectSQLiteAccounts(rows)
}

func (s *SQLiteStore) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, nil, fn)
}

func (s *SQLiteStore) Count(ctx context.Context, kind ledger.Kind) (int, error) {
	var n int
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_accounts WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteAccount(row rowScanner) (ledger.Account, error) {
	var (
		addr, kind, credentialID, owner string
		data                            []byte
		createdAt                       int64
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
		CredentialID: credentialID,
		Owner:        ownerKey,
		Data:         data,
		CreatedAt:    time.Unix(0, createdAt).UTC(),
	}, nil
}

func collectSQLiteAccounts(rows *sql.Rows) ([]ledger.Account, error) {
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		acct, err := scanSQLiteAccount(rows)
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
