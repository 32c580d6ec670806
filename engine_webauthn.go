package praxis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/praxis-id/praxis/internal"
	"github.com/praxis-id/praxis/internal/stores"
)

// webauthnUser adapts a stored User plus their credentials to the
// relying-party library.
type webauthnUser struct {
	user  *User
	creds []*WebAuthnCredential
}

func (u *webauthnUser) WebAuthnID() []byte          { return []byte(u.user.ID) }
func (u *webauthnUser) WebAuthnName() string        { return u.user.Email }
func (u *webauthnUser) WebAuthnDisplayName() string { return u.user.Username }
func (u *webauthnUser) WebAuthnIcon() string        { return "" }

func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(u.creds))
	for _, c := range u.creds {
		out = append(out, storedCredential(c))
	}
	return out
}

func storedCredential(c *WebAuthnCredential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:        c.CredentialID,
		PublicKey: c.PublicKey,
		Transport: transports,
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// ceremonyState is what lives in Redis between begin and finish. The
// session data is single-use: finish takes it with GETDEL, so a second
// finish against the same ceremony finds nothing.
type ceremonyState struct {
	UserID         string               `json:"user_id,omitempty"`
	CredentialName string               `json:"credential_name,omitempty"`
	Discoverable   bool                 `json:"discoverable,omitempty"`
	Session        webauthn.SessionData `json:"session"`
}

func (e *Engine) saveCeremony(ctx context.Context, state *ceremonyState) (string, error) {
	ceremonyID, err := internal.NewChallengeID()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	if err := e.ceremonies.Save(ctx, ceremonyID, payload, e.cfg.WebAuthn.CeremonyTTL); err != nil {
		return "", errors.Join(ErrBackendUnavailable, err)
	}
	return ceremonyID, nil
}

func (e *Engine) takeCeremony(ctx context.Context, ceremonyID string) (*ceremonyState, error) {
	payload, err := e.ceremonies.Take(ctx, ceremonyID)
	if err != nil {
		if errors.Is(err, stores.ErrCeremonyNotFound) {
			return nil, ErrWebAuthnVerification
		}
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	var state ceremonyState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, ErrWebAuthnVerification
	}
	return &state, nil
}

// BeginWebAuthnRegistration opens a registration ceremony for an
// authenticated user. Already registered credential ids are excluded so
// an authenticator cannot be enrolled twice.
func (e *Engine) BeginWebAuthnRegistration(ctx context.Context, userID, credentialName string) (string, *protocol.CredentialCreation, error) {
	if e == nil || e.store == nil {
		return "", nil, ErrEngineNotReady
	}
	if e.wan == nil {
		return "", nil, ErrWebAuthnVerification
	}
	if userID == "" {
		return "", nil, ErrInvalidInput
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return "", nil, e.wrapStoreErr(err)
	}
	creds, err := e.store.WebAuthnCredentialsByUser(ctx, userID)
	if err != nil {
		return "", nil, e.wrapStoreErr(err)
	}

	wu := &webauthnUser{user: user, creds: creds}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range wu.WebAuthnCredentials() {
		exclusions = append(exclusions, c.Descriptor())
	}

	options, session, err := e.wan.BeginRegistration(wu, webauthn.WithExclusions(exclusions))
	if err != nil {
		e.logf("webauthn begin registration: %v", err)
		return "", nil, ErrWebAuthnVerification
	}

	ceremonyID, err := e.saveCeremony(ctx, &ceremonyState{
		UserID:         userID,
		CredentialName: credentialName,
		Session:        *session,
	})
	if err != nil {
		return "", nil, err
	}
	return ceremonyID, options, nil
}

// FinishWebAuthnRegistration consumes the ceremony, verifies the
// attestation response, and persists the credential.
func (e *Engine) FinishWebAuthnRegistration(ctx context.Context, userID, ceremonyID string, response io.Reader) (*WebAuthnCredentialInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.wan == nil {
		return nil, ErrWebAuthnVerification
	}
	if userID == "" || ceremonyID == "" {
		return nil, ErrInvalidInput
	}

	state, err := e.takeCeremony(ctx, ceremonyID)
	if err != nil {
		return nil, err
	}
	if state.UserID != userID {
		return nil, ErrWebAuthnVerification
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	creds, err := e.store.WebAuthnCredentialsByUser(ctx, userID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		e.logf("webauthn parse attestation: %v", err)
		e.emitAudit(ctx, AuditWebAuthnRegister, false, userID, "", "", ErrWebAuthnVerification, nil)
		return nil, ErrWebAuthnVerification
	}

	credential, err := e.wan.CreateCredential(&webauthnUser{user: user, creds: creds}, state.Session, parsed)
	if err != nil {
		e.logf("webauthn create credential: %v", err)
		e.emitAudit(ctx, AuditWebAuthnRegister, false, userID, "", "", ErrWebAuthnVerification, nil)
		return nil, ErrWebAuthnVerification
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}
	deviceType := "single_device"
	if credential.Flags.BackupEligible {
		deviceType = "multi_device"
	}
	name := state.CredentialName
	if name == "" {
		name = "Security key"
	}

	record := &WebAuthnCredential{
		ID:           uuid.NewString(),
		UserID:       userID,
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		AAGUID:       credential.Authenticator.AAGUID,
		SignCount:    credential.Authenticator.SignCount,
		Transports:   transports,
		DeviceType:   deviceType,
		Name:         name,
		CreatedAt:    e.now(),
	}
	if err := e.store.InsertWebAuthnCredential(ctx, record); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return nil, ErrWebAuthnVerification
		}
		return nil, e.wrapStoreErr(err)
	}

	e.metricInc(MetricWebAuthnRegistered)
	e.emitAudit(ctx, AuditWebAuthnRegister, true, userID, "", "", nil, map[string]string{
		"credential": record.ID,
	})

	return &WebAuthnCredentialInfo{
		ID:         record.ID,
		Name:       record.Name,
		DeviceType: record.DeviceType,
		CreatedAt:  record.CreatedAt,
	}, nil
}

// BeginWebAuthnLogin opens an authentication ceremony for a known
// email. Unknown accounts and accounts without credentials fail with
// the same generic error the finish step uses.
func (e *Engine) BeginWebAuthnLogin(ctx context.Context, email string) (string, *protocol.CredentialAssertion, error) {
	if e == nil || e.store == nil {
		return "", nil, ErrEngineNotReady
	}
	if e.wan == nil {
		return "", nil, ErrWebAuthnVerification
	}

	user, err := e.store.UserByEmail(ctx, canonicalEmail(email))
	if errors.Is(err, ErrRecordNotFound) {
		return "", nil, ErrWebAuthnVerification
	}
	if err != nil {
		return "", nil, e.wrapStoreErr(err)
	}
	creds, err := e.store.WebAuthnCredentialsByUser(ctx, user.ID)
	if err != nil {
		return "", nil, e.wrapStoreErr(err)
	}
	if len(creds) == 0 {
		return "", nil, ErrWebAuthnVerification
	}

	options, session, err := e.wan.BeginLogin(&webauthnUser{user: user, creds: creds})
	if err != nil {
		e.logf("webauthn begin login: %v", err)
		return "", nil, ErrWebAuthnVerification
	}

	ceremonyID, err := e.saveCeremony(ctx, &ceremonyState{
		UserID:  user.ID,
		Session: *session,
	})
	if err != nil {
		return "", nil, err
	}
	return ceremonyID, options, nil
}

// BeginDiscoverableWebAuthnLogin opens a usernameless ceremony; the
// authenticator picks the resident credential and the finish step
// resolves the account from the asserted user handle.
func (e *Engine) BeginDiscoverableWebAuthnLogin(ctx context.Context) (string, *protocol.CredentialAssertion, error) {
	if e == nil || e.store == nil {
		return "", nil, ErrEngineNotReady
	}
	if e.wan == nil {
		return "", nil, ErrWebAuthnVerification
	}

	options, session, err := e.wan.BeginDiscoverableLogin()
	if err != nil {
		e.logf("webauthn begin discoverable login: %v", err)
		return "", nil, ErrWebAuthnVerification
	}

	ceremonyID, err := e.saveCeremony(ctx, &ceremonyState{
		Discoverable: true,
		Session:      *session,
	})
	if err != nil {
		return "", nil, err
	}
	return ceremonyID, options, nil
}

// FinishWebAuthnLogin consumes the ceremony, validates the assertion,
// and issues tokens through the same path as a password login. A
// sign-counter regression means the authenticator was probably cloned;
// the assertion is rejected outright.
func (e *Engine) FinishWebAuthnLogin(ctx context.Context, ceremonyID string, response io.Reader, device DeviceInfo) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.wan == nil {
		return nil, ErrWebAuthnVerification
	}
	if ceremonyID == "" {
		return nil, ErrInvalidInput
	}

	state, err := e.takeCeremony(ctx, ceremonyID)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		e.logf("webauthn parse assertion: %v", err)
		e.metricInc(MetricWebAuthnLoginFailure)
		return nil, ErrWebAuthnVerification
	}

	var (
		validated *webauthn.Credential
		userID    string
	)
	if state.Discoverable {
		validated, err = e.wan.ValidateDiscoverableLogin(func(_, userHandle []byte) (webauthn.User, error) {
			user, lookupErr := e.store.UserByID(ctx, string(userHandle))
			if lookupErr != nil {
				return nil, lookupErr
			}
			creds, lookupErr := e.store.WebAuthnCredentialsByUser(ctx, user.ID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			userID = user.ID
			return &webauthnUser{user: user, creds: creds}, nil
		}, state.Session, parsed)
	} else {
		userID = state.UserID
		var user *User
		user, err = e.store.UserByID(ctx, userID)
		if err != nil {
			return nil, e.wrapStoreErr(err)
		}
		var creds []*WebAuthnCredential
		creds, err = e.store.WebAuthnCredentialsByUser(ctx, userID)
		if err != nil {
			return nil, e.wrapStoreErr(err)
		}
		validated, err = e.wan.ValidateLogin(&webauthnUser{user: user, creds: creds}, state.Session, parsed)
	}
	if err != nil {
		e.logf("webauthn validate login: %v", err)
		e.metricInc(MetricWebAuthnLoginFailure)
		e.emitAudit(ctx, AuditWebAuthnLogin, false, userID, "", device.IP, ErrWebAuthnVerification, nil)
		return nil, ErrWebAuthnVerification
	}

	if validated.Authenticator.CloneWarning {
		e.metricInc(MetricWebAuthnCloneRejected)
		e.emitAudit(ctx, AuditWebAuthnClone, false, userID, "", device.IP, ErrWebAuthnVerification, map[string]string{
			"credential_id": base64.RawURLEncoding.EncodeToString(validated.ID),
		})
		return nil, ErrWebAuthnVerification
	}

	stored, err := e.store.WebAuthnCredentialByCredentialID(ctx, validated.ID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	if err := e.store.UpdateWebAuthnCredentialUsage(ctx, stored.ID, validated.Authenticator.SignCount, e.now()); err != nil {
		e.logf("webauthn usage update: %v", err)
	}

	tokens, err := e.issueTokens(ctx, userID, device)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricWebAuthnLoginSuccess)
	e.metricInc(MetricLoginSuccess)
	e.recordLogin(ctx, userID, device, MethodWebAuthn, true, "")
	e.emitAudit(ctx, AuditWebAuthnLogin, true, userID, tokens.sessionID(), device.IP, nil, nil)

	return &LoginResult{
		UserID: userID,
		Tokens: tokens,
	}, nil
}

// ListWebAuthnCredentials returns the user's credentials for display.
func (e *Engine) ListWebAuthnCredentials(ctx context.Context, userID string) ([]WebAuthnCredentialInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidInput
	}
	creds, err := e.store.WebAuthnCredentialsByUser(ctx, userID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	out := make([]WebAuthnCredentialInfo, 0, len(creds))
	for _, c := range creds {
		out = append(out, WebAuthnCredentialInfo{
			ID:         c.ID,
			Name:       c.Name,
			DeviceType: c.DeviceType,
			CreatedAt:  c.CreatedAt,
			LastUsedAt: c.LastUsedAt,
		})
	}
	return out, nil
}

// RenameWebAuthnCredential sets the display name of one credential the
// user owns.
func (e *Engine) RenameWebAuthnCredential(ctx context.Context, userID, credentialID, name string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if userID == "" || credentialID == "" || name == "" {
		return ErrInvalidInput
	}
	if err := e.store.RenameWebAuthnCredential(ctx, userID, credentialID, name); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		return e.wrapStoreErr(err)
	}
	return nil
}

// RemoveWebAuthnCredential deletes one credential, refusing when that
// would leave a passwordless account with no sign-in method at all.
func (e *Engine) RemoveWebAuthnCredential(ctx context.Context, userID, credentialID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if userID == "" || credentialID == "" {
		return ErrInvalidInput
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return e.wrapStoreErr(err)
	}
	creds, err := e.store.WebAuthnCredentialsByUser(ctx, userID)
	if err != nil {
		return e.wrapStoreErr(err)
	}
	if user.PasswordHash == "" && len(creds) <= 1 {
		return ErrLastCredential
	}

	if err := e.store.DeleteWebAuthnCredential(ctx, userID, credentialID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		return e.wrapStoreErr(err)
	}

	e.emitAudit(ctx, AuditWebAuthnRemoved, true, userID, "", "", nil, map[string]string{
		"credential": credentialID,
	})
	return nil
}
