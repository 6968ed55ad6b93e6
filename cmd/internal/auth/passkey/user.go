package passkey

import (
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"burrow/cmd/identity"
)

// Device type labels stored alongside credentials.
const (
	deviceTypeSingle = "single_device"
	deviceTypeMulti  = "multi_device"
)

// ceremonyUser adapts an identity.User (plus its registered credentials) to
// the go-webauthn User interface. The ULID string doubles as the user handle.
type ceremonyUser struct {
	user  identity.User
	creds []identity.Authenticator
}

func (u ceremonyUser) WebAuthnID() []byte          { return []byte(u.user.ID) }
func (u ceremonyUser) WebAuthnName() string        { return u.user.Username }
func (u ceremonyUser) WebAuthnDisplayName() string { return u.user.Username }

func (u ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(u.creds))
	for _, a := range u.creds {
		wc, err := credentialFromRecord(a)
		if err != nil {
			// A row with an undecodable ID cannot participate; skip it.
			continue
		}
		out = append(out, wc)
	}
	return out
}

// credentialFromRecord rebuilds a library credential from a stored row.
func credentialFromRecord(a identity.Authenticator) (webauthn.Credential, error) {
	rawID, err := base64.RawURLEncoding.DecodeString(a.CredentialID)
	if err != nil {
		return webauthn.Credential{}, err
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(a.Transports))
	for _, t := range a.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:        rawID,
		PublicKey: a.PublicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: a.DeviceType == deviceTypeMulti,
			BackupState:    a.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: a.SignCount,
		},
	}, nil
}

// recordFromCredential converts a freshly minted library credential into the
// stored row shape.
func recordFromCredential(userID string, wc *webauthn.Credential, now time.Time) identity.Authenticator {
	transports := make([]string, 0, len(wc.Transport))
	for _, t := range wc.Transport {
		transports = append(transports, string(t))
	}

	deviceType := deviceTypeSingle
	if wc.Flags.BackupEligible {
		deviceType = deviceTypeMulti
	}

	return identity.Authenticator{
		CredentialID: base64.RawURLEncoding.EncodeToString(wc.ID),
		UserID:       userID,
		PublicKey:    wc.PublicKey,
		SignCount:    wc.Authenticator.SignCount,
		DeviceType:   deviceType,
		BackedUp:     wc.Flags.BackupState,
		Transports:   transports,
		CreatedAt:    now,
	}
}
