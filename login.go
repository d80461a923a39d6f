package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Tnze/go-mc/bot"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
	"golang.org/x/oauth2"

	"github.com/zephyrtronium/banana/auth"
	"github.com/zephyrtronium/banana/config"
)

// accountLogin returns the login function for the session. It returns nil
// for offline mode.
func accountLogin(cfg *config.Config, prompt auth.DeviceCodePrompt) (func(context.Context) (bot.Auth, error), error) {
	if cfg.Server.Auth != config.AuthMicrosoft {
		return nil, nil
	}
	k, err := os.ReadFile(cfg.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read secret key: %w", err)
	}
	key := domainkey(make([]byte, auth.KeySize), k, []byte("oauth2.microsoft"))
	stor, err := auth.NewFileAt(cfg.Microsoft.TokenFile, [auth.KeySize]byte(key))
	if err != nil {
		return nil, fmt.Errorf("couldn't use refresh token storage: %w", err)
	}
	oc := oauth2.Config{
		ClientID: cfg.Microsoft.CID,
		Endpoint: auth.Microsoft,
		Scopes:   auth.Scopes,
	}
	tokens := auth.DeviceCodeFlow(oc, stor, nil, prompt)
	return func(ctx context.Context) (bot.Auth, error) {
		tok, err := tokens.Token(ctx)
		if err != nil {
			return bot.Auth{}, fmt.Errorf("couldn't get microsoft token: %w", err)
		}
		p, err := auth.Live.Minecraft(ctx, nil, tok.AccessToken)
		if errors.Is(err, auth.ErrRejected) {
			slog.WarnContext(ctx, "microsoft token rejected, refreshing", slog.Any("err", err))
			tok, err = tokens.Refresh(ctx, tok)
			if err != nil {
				return bot.Auth{}, fmt.Errorf("couldn't refresh microsoft token: %w", err)
			}
			p, err = auth.Live.Minecraft(ctx, nil, tok.AccessToken)
		}
		if err != nil {
			return bot.Auth{}, fmt.Errorf("couldn't get minecraft profile: %w", err)
		}
		return bot.Auth{Name: p.Name, UUID: p.ID, AsTk: p.AccessToken}, nil
	}, nil
}

// domainkey derives a key for a particular use from the secret k.
func domainkey(o, k, domain []byte) []byte {
	kr := hkdf.Expand(sha3.New224, k, domain)
	if _, err := io.ReadFull(kr, o); err != nil {
		panic(err)
	}
	return o
}
