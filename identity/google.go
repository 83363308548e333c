package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"google.golang.org/api/idtoken"
)

var (
	ErrNoToken         = errors.New("no identity token available")
	ErrEmailNotPresent = errors.New("identity token carries no email")
	ErrEmailUnverified = errors.New("identity token email is not verified")
)

// TokenSource produces a Google ID token for the interactive part of sign-in.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields tok.
func StaticToken(tok string) TokenSource {
	return func(ctx context.Context) (string, error) {
		if tok == "" {
			return "", ErrNoToken
		}
		return tok, nil
	}
}

// TokenFromFile returns a TokenSource that reads the token from a file each
// time it is asked, so a refreshed token is picked up on the next sign-in.
func TokenFromFile(path string) TokenSource {
	return func(ctx context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("while reading identity token file: %w", err)
		}
		tok := strings.TrimSpace(string(data))
		if tok == "" {
			return "", ErrNoToken
		}
		return tok, nil
	}
}

type tokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleProvider is a Provider for "Sign in with Google" ID tokens.
type GoogleProvider struct {
	tokens    TokenSource
	validator tokenValidator
	audience  string

	mu      sync.Mutex
	user    *User
	subs    map[int]func(*User)
	nextSub int
}

// NewGoogleProvider creates a provider that validates tokens against the
// given OAuth client ID.
func NewGoogleProvider(ctx context.Context, oauthClientID string, tokens TokenSource) (*GoogleProvider, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("while creating ID token validator: %w", err)
	}
	return newGoogleProvider(validator, oauthClientID, tokens), nil
}

func newGoogleProvider(validator tokenValidator, audience string, tokens TokenSource) *GoogleProvider {
	return &GoogleProvider{
		tokens:    tokens,
		validator: validator,
		audience:  audience,
		subs:      map[int]func(*User){},
	}
}

func (p *GoogleProvider) SignIn(ctx context.Context) (*User, error) {
	tok, err := p.tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("while obtaining ID token: %w", err)
	}

	payload, err := p.validator.Validate(ctx, tok, p.audience)
	if err != nil {
		return nil, fmt.Errorf("while validating ID token: %w", err)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, ErrEmailNotPresent
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, ErrEmailUnverified
	}

	user := &User{
		ID:    payload.Subject,
		Email: email,
	}
	p.publish(user)
	return user, nil
}

func (p *GoogleProvider) SignOut(ctx context.Context) error {
	p.publish(nil)
	return nil
}

// OnChange registers fn and immediately delivers the current user to it.
func (p *GoogleProvider) OnChange(fn func(*User)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	current := p.user
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *GoogleProvider) publish(user *User) {
	p.mu.Lock()
	p.user = user
	subs := make([]func(*User), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(user)
	}
}
