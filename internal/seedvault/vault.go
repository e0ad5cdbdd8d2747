package seedvault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/scrypt"
)

// Intent states why seed material is being requested. The authorizer sees it
// and the audit log records it.
type Intent string

const (
	IntentSign Intent = "sign"
)

var (
	// ErrAccessDenied is returned when the authorizer refuses to release the
	// seed, e.g. a failed biometric prompt.
	ErrAccessDenied  = errors.New("seedvault: access denied")
	ErrBadPassphrase = errors.New("seedvault: cannot decrypt seed")
)

// Store releases seed material on demand. The returned slice is owned by the
// caller, must be wiped with Zero as soon as the signing call returns, and
// must never be retained.
type Store interface {
	GetSeed(ctx context.Context, intent Intent) ([]byte, error)
}

// Authorizer gates seed access per request. It stands in for the OS-level
// authentication prompt of the mobile app.
type Authorizer func(ctx context.Context, intent Intent) bool

// AllowAll is the authorizer for headless deployments and tests.
func AllowAll(context.Context, Intent) bool { return true }

// Zero wipes seed material in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// sealedFile is the on-disk format: scrypt-derived key, AES-256-GCM payload.
type sealedFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

const (
	sealedVersion = 1
	scryptN       = 1 << 15
	scryptR       = 8
	scryptP       = 1
	keyLen        = 32
)

// FileVault keeps the seed sealed on disk and decrypts it per call. Nothing
// is cached between calls.
type FileVault struct {
	path       string
	passphrase string
	authorize  Authorizer
}

func NewFileVault(path, passphrase string, authorize Authorizer) *FileVault {
	if authorize == nil {
		authorize = AllowAll
	}
	return &FileVault{path: path, passphrase: passphrase, authorize: authorize}
}

// Create seals seed material into a new vault file. Refuses to overwrite.
func Create(path string, seed []byte, passphrase string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("seedvault: %s already exists", path)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("seedvault: generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return fmt.Errorf("seedvault: derive key: %w", err)
	}
	defer Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("seedvault: generate nonce: %w", err)
	}

	sealed := sealedFile{
		Version:    sealedVersion,
		Salt:       hex.EncodeToString(salt),
		N:          scryptN,
		R:          scryptR,
		P:          scryptP,
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(gcm.Seal(nil, nonce, seed, nil)),
	}

	raw, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// CreateFromMnemonic derives the BIP-39 seed from a mnemonic and seals it.
func CreateFromMnemonic(path, mnemonic, passphrase string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return fmt.Errorf("seedvault: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	defer Zero(seed)
	return Create(path, seed, passphrase)
}

// GetSeed authorizes the request, then reads and decrypts the vault file.
func (v *FileVault) GetSeed(ctx context.Context, intent Intent) ([]byte, error) {
	if !v.authorize(ctx, intent) {
		return nil, ErrAccessDenied
	}

	raw, err := os.ReadFile(v.path)
	if err != nil {
		return nil, fmt.Errorf("seedvault: read %s: %w", v.path, err)
	}

	var sealed sealedFile
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return nil, fmt.Errorf("seedvault: decode %s: %w", v.path, err)
	}
	if sealed.Version != sealedVersion {
		return nil, fmt.Errorf("seedvault: unsupported vault version %d", sealed.Version)
	}

	salt, err := hex.DecodeString(sealed.Salt)
	if err != nil {
		return nil, fmt.Errorf("seedvault: decode salt: %w", err)
	}
	nonce, err := hex.DecodeString(sealed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("seedvault: decode nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("seedvault: decode ciphertext: %w", err)
	}

	key, err := scrypt.Key([]byte(v.passphrase), salt, sealed.N, sealed.R, sealed.P, keyLen)
	if err != nil {
		return nil, fmt.Errorf("seedvault: derive key: %w", err)
	}
	defer Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	seed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return seed, nil
}
