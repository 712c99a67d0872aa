package authportal

import (
	"strings"
	"sync"
)

// The primary job of an authenticator is to validate an identity/password
// pair, and to resolve the subject (username + group memberships) behind it.
// It must never be consulted on the per-request authorization path; the
// policy engine only ever sees the Subject this produced at login time.
type Authenticator interface {
	// Returns the resolved subject if the password is correct, otherwise one
	// of ErrIdentityAuthNotFound or ErrInvalidPassword
	Authenticate(identity, password string) (*Subject, error)
	Close() // Typically used to close a database or directory handle
}

// A SecondFactor verifies the second authentication factor for a user.
// Returns nil if the code is acceptable, otherwise ErrInvalidTOTPCode or
// ErrSecondFactorNotEnrolled.
type SecondFactor interface {
	Validate(username, code string) error
	Close()
}

// A Session database is essentially a key/value store where the keys are
// session keys, and the values are Tokens.
type SessionDB interface {
	Write(sessionkey string, token *Token) error
	Read(sessionkey string) (*Token, error)
	// Delete the session. Deleting a session that does not exist is not an error.
	Delete(sessionkey string) error
	Close() // Typically used to close a database handle
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Authenticator that simply stores identity/password/subject records in memory
type dummyAuthenticator struct {
	users     map[string]dummyUser
	usersLock sync.RWMutex
}

type dummyUser struct {
	password string
	subject  Subject
}

func NewDummyAuthenticator() *dummyAuthenticator {
	d := &dummyAuthenticator{}
	d.users = make(map[string]dummyUser)
	return d
}

// SetUser creates or replaces an identity.
func (x *dummyAuthenticator) SetUser(identity, password string, groups []string) {
	x.usersLock.Lock()
	defer x.usersLock.Unlock()
	x.users[identity] = dummyUser{
		password: password,
		subject:  Subject{Username: identity, Groups: groups},
	}
}

func (x *dummyAuthenticator) Authenticate(identity, password string) (*Subject, error) {
	x.usersLock.RLock()
	defer x.usersLock.RUnlock()
	user, exists := x.users[identity]
	if !exists {
		return nil, ErrIdentityAuthNotFound
	}
	if user.password != password {
		return nil, ErrInvalidPassword
	}
	subject := user.subject
	return &subject, nil
}

func (x *dummyAuthenticator) Close() {
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Authenticator that sanitizes inputs, so that we have more consistency with different backends
type sanitizingAuthenticator struct {
	backend Authenticator
}

func cleanIdentityPassword(identity, password string) (string, string) {
	return strings.TrimSpace(identity), strings.TrimSpace(password)
}

func (x *sanitizingAuthenticator) Authenticate(identity, password string) (*Subject, error) {
	identity, password = cleanIdentityPassword(identity, password)
	if len(identity) == 0 {
		return nil, ErrIdentityEmpty
	}
	// We COULD make an empty password an error here, but that is not necessarily correct.
	// There may be an anonymous profile which requires no password. LDAP is specifically
	// vulnerable to this, but it is the job of the LDAP driver to verify that it is not
	// performing an anonymous BIND.
	return x.backend.Authenticate(identity, password)
}

func (x *sanitizingAuthenticator) Close() {
	if x.backend != nil {
		x.backend.Close()
		x.backend = nil
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Second factor that accepts a fixed code per user. Only useful for tests.
type dummySecondFactor struct {
	codes     map[string]string
	codesLock sync.RWMutex
}

func NewDummySecondFactor() *dummySecondFactor {
	d := &dummySecondFactor{}
	d.codes = make(map[string]string)
	return d
}

func (x *dummySecondFactor) SetCode(username, code string) {
	x.codesLock.Lock()
	x.codes[username] = code
	x.codesLock.Unlock()
}

func (x *dummySecondFactor) Validate(username, code string) error {
	x.codesLock.RLock()
	truth, exists := x.codes[username]
	x.codesLock.RUnlock()
	if !exists {
		return ErrSecondFactorNotEnrolled
	}
	if truth != code {
		return ErrInvalidTOTPCode
	}
	return nil
}

func (x *dummySecondFactor) Close() {
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Session database that simply stores the sessions in memory
type dummySessionDB struct {
	sessions     map[string]*Token
	sessionsLock sync.RWMutex
}

func newDummySessionDB() *dummySessionDB {
	db := &dummySessionDB{}
	db.sessions = make(map[string]*Token)
	return db
}

func (x *dummySessionDB) Write(sessionkey string, token *Token) error {
	x.sessionsLock.Lock()
	x.sessions[sessionkey] = token
	x.sessionsLock.Unlock()
	return nil
}

func (x *dummySessionDB) Read(sessionkey string) (*Token, error) {
	x.sessionsLock.RLock()
	token, exists := x.sessions[sessionkey]
	x.sessionsLock.RUnlock()
	if !exists {
		return nil, ErrInvalidSessionToken
	}
	return token, nil
}

func (x *dummySessionDB) Delete(sessionkey string) error {
	x.sessionsLock.Lock()
	delete(x.sessions, sessionkey)
	x.sessionsLock.Unlock()
	return nil
}

func (x *dummySessionDB) Close() {
}
