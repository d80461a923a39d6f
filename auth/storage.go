package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-json-experiment/json"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/oauth2"
)

// Storage is a secure means to store OAuth2 credentials.
type Storage interface {
	// Load returns the current token. If the result is nil, the caller should
	// acquire a new token.
	Load(ctx context.Context) (*oauth2.Token, error)
	// Store sets a new token. If tok is nil, the storage should be cleared.
	Store(ctx context.Context, tok *oauth2.Token) error
}

// file is the interface used by a FileStorage.
type file interface {
	io.ReaderAt
	io.WriterAt
	Truncate(int64) error
}

// FileStorage is an encrypted file storage for OAuth2 credentials.
type FileStorage struct {
	f    file
	enc  cipher.AEAD
	rand io.Reader
}

// KeySize is the size of the key used to encrypt the token file.
const KeySize = chacha20poly1305.KeySize

const (
	nonceSize = chacha20poly1305.NonceSize
	totalOH   = chacha20poly1305.NonceSize + chacha20poly1305.Overhead
	// maxToken bounds the size of a stored token. Microsoft refresh tokens
	// are opaque and run to a couple kilobytes.
	maxToken = 16 << 10
)

// NewFileAt creates a FileStorage at path p.
func NewFileAt(p string, key [KeySize]byte) (*FileStorage, error) {
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	enc, err := chacha20poly1305.New(key[:])
	if err != nil {
		panic(err)
	}
	return &FileStorage{f: f, enc: enc, rand: rand.Reader}, nil
}

// storedToken is the serialized form of a token.
type storedToken struct {
	Access  string    `json:"access"`
	Refresh string    `json:"refresh,omitempty"`
	Type    string    `json:"type,omitempty"`
	Expiry  time.Time `json:"expiry,omitzero"`
}

// Load decrypts the token. If there is no token, the result is nil with a nil
// error.
func (f *FileStorage) Load(ctx context.Context) (*oauth2.Token, error) {
	_, p, err := f.parts()
	if err != nil || len(p) == 0 {
		return nil, err
	}
	var s storedToken
	if err := json.Unmarshal(p, &s); err != nil {
		return nil, fmt.Errorf("couldn't decode stored token: %w", err)
	}
	tok := &oauth2.Token{
		AccessToken:  s.Access,
		RefreshToken: s.Refresh,
		TokenType:    s.Type,
		Expiry:       s.Expiry,
	}
	return tok, nil
}

// Store sets a new token value. If the token file contains data that is not a
// valid token encrypted with the key passed to NewFileAt, Store returns an
// error.
func (f *FileStorage) Store(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil {
		// Clear the existing token.
		err := f.f.Truncate(0)
		if err != nil {
			return fmt.Errorf("couldn't clear token: %w", err)
		}
		return nil
	}
	s := storedToken{
		Access:  tok.AccessToken,
		Refresh: tok.RefreshToken,
		Type:    tok.TokenType,
		Expiry:  tok.Expiry,
	}
	text, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("couldn't encode token: %w", err)
	}
	if len(text) > maxToken {
		return fmt.Errorf("token is too large (%d bytes)", len(text))
	}
	b, _, err := f.parts()
	if err != nil {
		return err
	}
	if len(b) == 0 {
		// File is empty. We'll be initializing it.
		b = initialNonce(text, f.rand)
	}
	v := binary.LittleEndian.Uint64(b)
	v++
	binary.LittleEndian.PutUint64(b, v)
	r := f.enc.Seal(b, b, text, nil)
	// The new token may be shorter than the old one.
	if err := f.f.Truncate(0); err != nil {
		return fmt.Errorf("couldn't clear old token: %w", err)
	}
	if _, err := f.f.WriteAt(r, 0); err != nil {
		return fmt.Errorf("couldn't save token: %w", err)
	}
	return nil
}

func (f *FileStorage) parts() (nonce, ptxt []byte, err error) {
	b := make([]byte, totalOH+maxToken)
	n, err := f.f.ReadAt(b, 0)
	switch err {
	case nil, io.EOF: // do nothing
	default:
		return nil, nil, fmt.Errorf("couldn't read token file contents: %w", err)
	}
	b = b[:n]
	if len(b) == 0 {
		// File is empty. Load won't care; Store will set it up.
		return nil, nil, nil
	}
	if len(b) < totalOH {
		return nil, nil, errors.New("stored data is too short")
	}
	// Copy the nonce so that sealing into it doesn't alias the ciphertext.
	nonce = make([]byte, nonceSize, totalOH+maxToken)
	copy(nonce, b[:nonceSize])
	text := b[nonceSize:]
	ptxt, err = f.enc.Open(text[:0], nonce, text, nil)
	if err != nil {
		return nil, nil, err
	}
	return nonce, ptxt, nil
}

func initialNonce(text []byte, rand io.Reader) []byte {
	b := make([]byte, nonceSize, totalOH+len(text))
	pad := b[8:nonceSize]
	_, err := io.ReadFull(rand, pad)
	if err != nil {
		panic(fmt.Errorf("couldn't read nonce padding: %w", err))
	}
	return b
}
