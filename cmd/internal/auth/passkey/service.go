package passkey

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"burrow/cmd/identity"
)

// Service runs registration and login ceremonies against the identity store.
type Service struct {
	wa    *webauthn.WebAuthn
	store Store
}

// NewService constructs a ceremony Service from relying-party configuration.
func NewService(cfg Config, store Store) (*Service, error) {
	if store == nil {
		return nil, ErrConfig
	}

	waCfg, err := cfg.toWebAuthnConfig()
	if err != nil {
		return nil, err
	}

	wa, err := webauthn.New(waCfg)
	if err != nil {
		return nil, ErrConfig
	}

	return &Service{wa: wa, store: store}, nil
}

// BeginRegistration starts a registration ceremony for an authenticated user.
//
// Already-registered credentials are sent as exclusions so the authenticator
// refuses to double-enroll. The serialized session replaces any previous
// pending challenge for the user.
func (s *Service) BeginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	creds, err := s.store.AuthenticatorsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, a := range creds {
		wc, err := credentialFromRecord(a)
		if err != nil {
			continue
		}
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: wc.ID,
			Transport:    wc.Transport,
		})
	}

	options, session, err := s.wa.BeginRegistration(
		ceremonyUser{user: user, creds: creds},
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, err
	}

	if err := s.saveChallenge(ctx, user.ID, session); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishRegistration validates the attestation response and stores the new
// credential. The pending challenge is consumed whatever the outcome.
func (s *Service) FinishRegistration(ctx context.Context, userID string, response *protocol.ParsedCredentialCreationData, now time.Time) (identity.Authenticator, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return identity.Authenticator{}, err
	}

	session, err := s.takeChallenge(ctx, user.ID)
	if err != nil {
		return identity.Authenticator{}, err
	}

	creds, err := s.store.AuthenticatorsByUser(ctx, user.ID)
	if err != nil {
		return identity.Authenticator{}, err
	}

	credential, err := s.wa.CreateCredential(ceremonyUser{user: user, creds: creds}, session, response)
	if err != nil {
		return identity.Authenticator{}, ErrCeremonyFailed
	}

	record := recordFromCredential(user.ID, credential, now)
	if err := s.store.CreateAuthenticator(ctx, record); err != nil {
		if identity.IsConflict(err) {
			// The credential ID is already enrolled (for this or another user).
			return identity.Authenticator{}, ErrCeremonyFailed
		}
		return identity.Authenticator{}, err
	}

	return record, nil
}

// BeginLogin starts a login ceremony for the named login (email or username).
//
// A user without registered credentials gets ErrUnknownCredential; there is
// nothing an authenticator could assert against.
func (s *Service) BeginLogin(ctx context.Context, login string) (*protocol.CredentialAssertion, error) {
	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	creds, err := s.store.AuthenticatorsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrUnknownCredential
	}

	options, session, err := s.wa.BeginLogin(ceremonyUser{user: user, creds: creds})
	if err != nil {
		return nil, err
	}

	if err := s.saveChallenge(ctx, user.ID, session); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishLogin validates the assertion response and returns the authenticated
// user.
//
// The stored sign counter must move strictly forward: a replayed assertion or
// a cloned authenticator presenting a stale counter fails the ceremony, as
// does a library-reported clone warning.
func (s *Service) FinishLogin(ctx context.Context, login string, response *protocol.ParsedCredentialAssertionData) (identity.User, error) {
	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		return identity.User{}, err
	}

	// Consume the challenge before anything else; a finish without a pending
	// ceremony is answered as such, and a failed attempt must not leave a
	// replayable ceremony behind.
	session, err := s.takeChallenge(ctx, user.ID)
	if err != nil {
		return identity.User{}, err
	}

	creds, err := s.store.AuthenticatorsByUser(ctx, user.ID)
	if err != nil {
		return identity.User{}, err
	}

	if !knownCredential(creds, response.RawID) {
		return identity.User{}, ErrUnknownCredential
	}

	credential, err := s.wa.ValidateLogin(ceremonyUser{user: user, creds: creds}, session, response)
	if err != nil {
		return identity.User{}, ErrCeremonyFailed
	}
	if credential.Authenticator.CloneWarning {
		return identity.User{}, ErrCeremonyFailed
	}

	credID := base64.RawURLEncoding.EncodeToString(credential.ID)
	if err := s.store.AdvanceSignCount(ctx, credID, credential.Authenticator.SignCount); err != nil {
		if identity.IsConflict(err) {
			// Counter did not move strictly forward.
			return identity.User{}, ErrCeremonyFailed
		}
		return identity.User{}, err
	}

	return user, nil
}

// Credentials lists the user's registered authenticators.
func (s *Service) Credentials(ctx context.Context, userID string) ([]identity.Authenticator, error) {
	return s.store.AuthenticatorsByUser(ctx, userID)
}

func knownCredential(creds []identity.Authenticator, rawID []byte) bool {
	for _, a := range creds {
		wc, err := credentialFromRecord(a)
		if err != nil {
			continue
		}
		if bytes.Equal(wc.ID, rawID) {
			return true
		}
	}
	return false
}

func (s *Service) saveChallenge(ctx context.Context, userID string, session *webauthn.SessionData) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.store.SetPendingChallenge(ctx, userID, string(raw))
}

func (s *Service) takeChallenge(ctx context.Context, userID string) (webauthn.SessionData, error) {
	raw, err := s.store.TakePendingChallenge(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return webauthn.SessionData{}, ErrNoPendingChallenge
		}
		return webauthn.SessionData{}, err
	}

	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return webauthn.SessionData{}, ErrNoPendingChallenge
	}
	return session, nil
}
