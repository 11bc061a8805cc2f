// Package google implements the CLI-side Google sign-in flow: an OAuth 2.0
// authorization-code exchange with PKCE and a localhost callback, producing
// the idToken that the backend's /api/auth/google endpoint consumes. It is
// the desktop analogue of the mobile app's native Google sign-in.
package google

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/runners-app/runners-go/internal/browser"
)

const (
	// GoogleAuthEndpoint is the URL of Google's OAuth 2.0 authorization page.
	GoogleAuthEndpoint = "https://accounts.google.com/o/oauth2/v2/auth"
	// GoogleTokenEndpoint is the URL for exchanging authorization codes for tokens.
	GoogleTokenEndpoint = "https://oauth2.googleapis.com/token"

	callbackPath = "/auth/callback"
	flowTimeout  = 5 * time.Minute
)

// Flow drives one interactive sign-in.
type Flow struct {
	clientID string
	port     int
}

// NewFlow creates a sign-in flow for the given OAuth client. port 0 selects
// an ephemeral callback port.
func NewFlow(clientID string, port int) *Flow {
	return &Flow{clientID: clientID, port: port}
}

// callbackResult carries the authorization response from the local handler.
type callbackResult struct {
	code  string
	state string
	err   string
}

// IDToken runs the full flow: open (or print) the authorization URL, wait
// for the localhost callback, exchange the code, and return the id_token.
func (f *Flow) IDToken(ctx context.Context, noBrowser bool) (string, error) {
	if f.clientID == "" {
		return "", fmt.Errorf("google auth: google-client-id is not configured")
	}

	verifier, challenge, err := generatePKCEPair()
	if err != nil {
		return "", err
	}
	state, err := randomToken()
	if err != nil {
		return "", err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.port))
	if err != nil {
		return "", fmt.Errorf("google auth: start callback listener failed: %w", err)
	}
	defer func() {
		_ = listener.Close()
	}()

	conf := &oauth2.Config{
		ClientID:    f.clientID,
		RedirectURL: fmt.Sprintf("http://%s%s", listener.Addr().String(), callbackPath),
		Scopes:      []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  GoogleAuthEndpoint,
			TokenURL: GoogleTokenEndpoint,
		},
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		result := callbackResult{
			code:  r.URL.Query().Get("code"),
			state: r.URL.Query().Get("state"),
			err:   r.URL.Query().Get("error"),
		}
		if result.err != "" {
			http.Error(w, "Sign-in failed. You can close this tab.", http.StatusBadRequest)
		} else {
			_, _ = w.Write([]byte("Signed in. You can close this tab and return to the terminal."))
		}
		select {
		case results <- result:
		default:
		}
	})
	server := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() {
		_ = server.Serve(listener)
	}()
	defer func() {
		_ = server.Close()
	}()

	authURL := conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	if noBrowser || !browser.IsAvailable() {
		fmt.Printf("Open this URL in your browser to sign in:\n%s\n", authURL)
	} else if errOpen := browser.OpenURL(authURL); errOpen != nil {
		log.Debugf("open browser failed: %v", errOpen)
		fmt.Printf("Open this URL in your browser to sign in:\n%s\n", authURL)
	}

	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	var result callbackResult
	select {
	case result = <-results:
	case <-ctx.Done():
		return "", fmt.Errorf("google auth: waiting for callback: %w", ctx.Err())
	}
	if result.err != "" {
		return "", fmt.Errorf("google auth: authorization failed: %s", result.err)
	}
	if result.state != state {
		return "", fmt.Errorf("google auth: state mismatch in callback")
	}
	if result.code == "" {
		return "", fmt.Errorf("google auth: callback carried no authorization code")
	}

	token, err := conf.Exchange(ctx, result.code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return "", fmt.Errorf("google auth: code exchange failed: %w", err)
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return "", fmt.Errorf("google auth: token response carried no id_token")
	}
	return idToken, nil
}

// generatePKCEPair creates a code verifier and its S256 challenge.
func generatePKCEPair() (string, string, error) {
	verifier, err := randomToken()
	if err != nil {
		return "", "", err
	}
	hash := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(hash[:]), nil
}

func randomToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("google auth: generate random token failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
