package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"credentia/internal/ledger"
	"credentia/pkg/platform/sentinel"
)

const (
	accountKeyPrefix = "credentia:account:"
	indexKeyPrefix   = "credentia:index:"
	ownerKeyPrefix   = "credentia:owner:"
	countKeyPrefix   = "credentia:count:"
)

// createScript claims the account key and updates the kind counter and the
// credential and owner indexes in one step.
//
// KEYS[1] account key, KEYS[2] counter key, KEYS[3..] index keys.
// ARGV[1] payload, ARGV[2] index score, ARGV[3] index member.
var createScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("INCR", KEYS[2])
for i = 3, #KEYS do
  redis.call("ZADD", KEYS[i], ARGV[2], ARGV[3])
end
return 1
`)

// RedisStore persists accounts as JSON values keyed by address.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed ledger store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisAccount struct {
	Kind         ledger.Kind `json:"kind"`
	CredentialID string      `json:"credential_id,omitempty"`
	Owner        string      `json:"owner,omitempty"`
	Data         []byte      `json:"data"`
	CreatedAt    time.Time   `json:"created_at"`
}

func accountKey(addr solana.PublicKey) string {
	return accountKeyPrefix + addr.String()
}

func indexKeyFor(kind ledger.Kind, credentialID string) string {
	return indexKeyPrefix + string(kind) + ":" + credentialID
}

func ownerIndexKey(kind ledger.Kind, owner solana.PublicKey) string {
	return ownerKeyPrefix + string(kind) + ":" + owner.String()
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, acct ledger.Account) error {
	if err := validate(acct); err != nil {
		return err
	}
	payload, err := json.Marshal(redisAccount{
		Kind:         acct.Kind,
		CredentialID: acct.CredentialID,
		Owner:        ownerKeyOf(acct.Owner),
		Data:         acct.Data,
		CreatedAt:    acct.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	keys := []string{accountKey(acct.Address), countKeyPrefix + string(acct.Kind)}
	if acct.CredentialID != "" {
		keys = append(keys, indexKeyFor(acct.Kind, acct.CredentialID))
	}
	if !acct.Owner.IsZero() {
		keys = append(keys, ownerIndexKey(acct.Kind, acct.Owner))
	}
	created, err := createScript.Run(ctx, s.client, keys,
		payload, acct.CreatedAt.UnixMicro(), acct.Address.String()).Int()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if created == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, addr solana.PublicKey) (ledger.Account, error) {
	raw, err := s.client.Get(ctx, accountKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ledger.Account{}, sentinel.ErrNotFound
		}
		return ledger.Account{}, fmt.Errorf("get account: %w", err)
	}
	return decodeRedisAccount(addr, raw)
}

// GetMany fetches accounts with a single MGET. Missing addresses are skipped.
func (s *RedisStore) GetMany(ctx context.Context, addrs []solana.PublicKey) ([]ledger.Account, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		keys = append(keys, accountKey(addr))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	out := make([]ledger.Account, 0, len(vals))
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			continue
		}
		acct, err := decodeRedisAccount(addrs[i], []byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	sortAccounts(out)
	return out, nil
}

func (s *RedisStore) ListByCredential(ctx context.Context, kind ledger.Kind, credentialID string) ([]ledger.Account, error) {
	accts, err := s.listIndex(ctx, indexKeyFor(kind, credentialID))
	if err != nil {
		return nil, fmt.Errorf("list accounts by credential: %w", err)
	}
	return accts, nil
}

// ListByOwner returns the accounts of kind owned by owner, newest first.
func (s *RedisStore) ListByOwner(ctx context.Context, kind ledger.Kind, owner solana.PublicKey) ([]ledger.Account, error) {
	accts, err := s.listIndex(ctx, ownerIndexKey(kind, owner))
	if err != nil {
		return nil, fmt.Errorf("list accounts by owner: %w", err)
	}
	sortAccountsNewestFirst(accts)
	return accts, nil
}

// listIndex loads every account named in the index zset at key, oldest first.
func (s *RedisStore) listIndex(ctx context.Context, key string) ([]ledger.Account, error) {
	members, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	addrs := make([]solana.PublicKey, 0, len(members))
	for _, m := range members {
		pk, err := solana.PublicKeyFromBase58(m)
		if err != nil {
			return nil, fmt.Errorf("index member %q: %v: %w", m, err, sentinel.ErrInvalidState)
		}
		addrs = append(addrs, pk)
	}
	accts, err := s.GetMany(ctx, addrs)
	if err != nil {
		return nil, err
	}
	if accts == nil {
		accts = []ledger.Account{}
	}
	return accts, nil
}

// Atomically runs fn directly. Accounts are write-once, so a value read
// inside fn cannot change before fn's create executes.
func (s *RedisStore) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *RedisStore) Count(ctx context.Context, kind ledger.Kind) (int, error) {
	n, err := s.client.Get(ctx, countKeyPrefix+string(kind)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRedisAccount(addr solana.PublicKey, raw []byte) (ledger.Account, error) {
	var rec redisAccount
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ledger.Account{}, fmt.Errorf("decode account %s: %v: %w", addr, err, sentinel.ErrInvalidState)
	}
	owner, err := parseStoredOwner(rec.Owner)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		Address:      addr,
		Kind:         rec.Kind,
		CredentialID: rec.CredentialID,
		Owner:        owner,
		Data:         rec.Data,
		CreatedAt:    rec.CreatedAt,
	}, nil
}
