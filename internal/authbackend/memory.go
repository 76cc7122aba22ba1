package authbackend

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// argon2 parameters for new credentials; chosen to match the passwd
// format infodancer-style deployments already use, not tuned further
// since this backend targets small/test deployments.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 32
)

// credential holds both the argon2id hash (used by LOGIN/AUTHENTICATE
// PLAIN) and the plaintext secret (needed only for CRAM-MD5's shared-
// secret HMAC, which cannot be computed from a hash).
type credential struct {
	user      User
	hash      string
	plaintext string
	rights    map[string]Rights // per-mailbox override; "" is the default
}

// MemoryBackend is an in-memory Backend implementation for small
// deployments and tests (mirrors infodancer-pop3d's in-memory test
// fixtures, generalized into a real Backend rather than a test helper).
type MemoryBackend struct {
	mu    sync.RWMutex
	users map[string]*credential
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{users: make(map[string]*credential)}
}

// AddUser registers login with secret as its password, granting perms
// as the default rights on any mailbox it does not have an override
// for. id and homeMailbox populate the User the engine receives after
// a successful login.
func (b *MemoryBackend) AddUser(login, secret string, id uint32, homeMailbox string, perms Rights) error {
	hash, err := hashArgon2(secret)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[login] = &credential{
		user:      User{Login: login, ID: id, HomeMailbox: homeMailbox, InboxReference: homeMailbox},
		hash:      hash,
		plaintext: secret,
		rights:    map[string]Rights{"": perms},
	}
	return nil
}

// SetMailboxRights overrides the rights login has on mailbox.
func (b *MemoryBackend) SetMailboxRights(login, mailbox string, perms Rights) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.users[login]
	if !ok {
		return
	}
	c.rights[mailbox] = perms
}

func (b *MemoryBackend) ResolveLogin(ctx context.Context, name string) (User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.users[name]
	if !ok {
		return User{}, ErrNoSuchUser
	}
	return c.user, nil
}

func (b *MemoryBackend) VerifySecret(ctx context.Context, user User, secret string) (bool, error) {
	b.mu.RLock()
	c, ok := b.users[user.Login]
	b.mu.RUnlock()
	if !ok {
		return false, ErrNoSuchUser
	}
	return verifyArgon2(c.hash, secret), nil
}

// PlaintextSecret satisfies the CRAM-MD5 secret-provider contract
// internal/imap/handlers expects via type assertion.
func (b *MemoryBackend) PlaintextSecret(ctx context.Context, user User) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.users[user.Login]
	if !ok {
		return "", ErrNoSuchUser
	}
	return c.plaintext, nil
}

func (b *MemoryBackend) Permissions(ctx context.Context, user User, mailbox string) (Rights, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.users[user.Login]
	if !ok {
		return nil, ErrNoSuchUser
	}
	if r, ok := c.rights[mailbox]; ok {
		return r, nil
	}
	return c.rights[""], nil
}

func hashArgon2(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

func verifyArgon2(encoded, password string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var m uint32
	var t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
