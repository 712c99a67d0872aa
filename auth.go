package authportal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IMQS/log"
	"github.com/google/uuid"
)

const (
	/* Number of characters from the set [a-zA-Z0-9] = 62. 62^30 = 6 x 10^53, which is 178 bits of entropy.
	Assume there will be 1 million valid tokens. That removes 20 bits of entropy, leaving 158 bits.
	Divide 158 by 2 and we have a security level of 79 bits. If an attacker can try 100000 tokens per
	second, then it would take 2 * 10^11 years to find a random good token.
	*/
	sessionTokenLength = 30

	defaultSessionExpirySeconds = 30 * 24 * 3600
)

var (
	// NOTE: These 'base' error strings may not be prefixes of each other,
	// otherwise it violates our NewError() concept, which ensures that
	// any authportal error starts with one of these *unique* prefixes
	ErrConnect              = errors.New("Connect failed")
	ErrUnsupported          = errors.New("Unsupported operation")
	ErrIdentityAuthNotFound = errors.New("Identity authorization not found")
	ErrIdentityEmpty        = errors.New("Identity may not be empty")
	ErrIdentityExists       = errors.New("Identity already exists")
	// We should perhaps keep a consistent error, like ErrInvalidCredentials throughout the app, as it can be a security risk returning InvalidPassword to a user that may be malicious
	ErrInvalidPassword         = errors.New("Invalid password")
	ErrInvalidSessionToken     = errors.New("Invalid session token")
	ErrInvalidTOTPCode         = errors.New("Invalid one-time code")
	ErrSecondFactorNotEnrolled = errors.New("Second factor not enrolled")
	ErrACLInvalid              = errors.New("ACL configuration invalid")
	ErrInvalidCredentials      = errors.New("Invalid Credentials") // This error was created for LDAP authentication. LDAP does not return 'identity not found' or 'invalid password' but simply invalid credentials
)

// NewError is to be used whenever you return an authportal error. We rely upon the
// prefix of the error string to identify the broad category of the error.
func NewError(base error, detail string) error {
	return errors.New(base.Error() + ": " + detail)
}

/*
Token is the result of a successful authentication request. It contains
everything that we know about this authentication event, which includes
the identity that performed the request, the groups that identity belongs
to, when this token expires, and the authentication level that the session
has achieved so far (OneFactor after a password login, TwoFactor once the
second factor has been verified too).
*/
type Token struct {
	Identity     string
	Username     string
	Groups       []string
	InternalUUID string
	Expires      time.Time
	Level        PolicyLevel
}

// Subject returns the resolved subject carried by this token, for handing to
// the policy engine inside a RequestContext.
func (t *Token) Subject() Subject {
	return Subject{Username: t.Username, Groups: t.Groups}
}

// A Verdict is the outcome of authorizing one request against the ACL.
// Mapping verdicts onto HTTP status codes (200/401/403) is the forward-auth
// middleware's concern, not ours.
type Verdict int

const (
	// The request may proceed
	VerdictAllowed Verdict = iota
	// The session has not achieved the required level; challenge it to authenticate further
	VerdictUnauthorized
	// The request is denied regardless of authentication
	VerdictForbidden
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllowed:
		return "allowed"
	case VerdictUnauthorized:
		return "unauthorized"
	default:
		return "forbidden"
	}
}

// CanonicalizeIdentity transforms an identity into its canonical form. What this
// means is that any two identities are considered equal if their canonical forms
// are equal. This is simply a lower-casing of the identity, so that
// "bob@enterprise.com" is equal to "Bob@enterprise.com".
// It also trims the whitespace around the identity.
func CanonicalizeIdentity(identity string) string {
	return strings.TrimSpace(strings.ToLower(identity))
}

// RandomString returns a random string of 'nchars' bytes, sampled uniformly from the given corpus of byte characters.
func RandomString(nchars int, corpus string) string {
	rbytes := make([]byte, nchars)
	rstring := make([]byte, nchars)
	rand.Read(rbytes)
	for i := 0; i < nchars; i++ {
		rstring[i] = corpus[rbytes[i]%byte(len(corpus))]
	}
	return string(rstring)
}

func generateSessionKey() string {
	// It is important not to have any unusual characters in here, especially an equals sign. Old versions of Tomcat
	// will parse such a cookie incorrectly (imagine Cookie: magic=abracadabra=)
	return RandomString(sessionTokenLength, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type CentralStats struct {
	InvalidSessionKeys uint64
	ExpiredSessionKeys uint64
	InvalidPasswords   uint64
	EmptyIdentities    uint64
	GoodLogin          uint64
	GoodSecondFactor   uint64
	Logout             uint64
	RequestsAllowed    uint64
	RequestsChallenged uint64
	RequestsForbidden  uint64
}

func isPowerOf2(x uint64) bool {
	return 0 == x&(x-1)
}

func (x *CentralStats) IncrementAndLog(name string, val *uint64, logger *log.Logger) {
	n := atomic.AddUint64(val, 1)
	if isPowerOf2(n) || (n&255) == 0 {
		logger.Infof("%v %v", n, name)
	}
}

func (x *CentralStats) IncrementInvalidSessionKey(logger *log.Logger) {
	x.IncrementAndLog("invalid session keys", &x.InvalidSessionKeys, logger)
}

func (x *CentralStats) IncrementExpiredSessionKey(logger *log.Logger) {
	x.IncrementAndLog("expired session keys", &x.ExpiredSessionKeys, logger)
}

func (x *CentralStats) IncrementInvalidPasswords(logger *log.Logger) {
	x.IncrementAndLog("invalid passwords", &x.InvalidPasswords, logger)
}

func (x *CentralStats) IncrementEmptyIdentities(logger *log.Logger) {
	x.IncrementAndLog("empty identities", &x.EmptyIdentities, logger)
}

func (x *CentralStats) IncrementGoodLogin(logger *log.Logger) {
	x.IncrementAndLog("good logins", &x.GoodLogin, logger)
}

func (x *CentralStats) IncrementGoodSecondFactor(logger *log.Logger) {
	x.IncrementAndLog("good second factors", &x.GoodSecondFactor, logger)
}

func (x *CentralStats) IncrementLogout(logger *log.Logger) {
	x.IncrementAndLog("logouts", &x.Logout, logger)
}

func (x *CentralStats) IncrementRequestsAllowed(logger *log.Logger) {
	x.IncrementAndLog("requests allowed", &x.RequestsAllowed, logger)
}

func (x *CentralStats) IncrementRequestsChallenged(logger *log.Logger) {
	x.IncrementAndLog("requests challenged", &x.RequestsChallenged, logger)
}

func (x *CentralStats) IncrementRequestsForbidden(logger *log.Logger) {
	x.IncrementAndLog("requests forbidden", &x.RequestsForbidden, logger)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

/*
For lack of a better name, this is the single hub of the portal that you
interact with. All public methods of Central are callable from multiple
threads.
*/
type Central struct {
	// Stats must be first so that we are guaranteed to get it 8-byte aligned. We atomically
	// increment counters inside CentralStats, and the atomic functions need 8-byte alignment
	// on their operands.
	Stats                  CentralStats
	Log                    *log.Logger
	NewSessionExpiresAfter time.Duration

	authenticator Authenticator
	secondFactor  SecondFactor
	sessionDB     SessionDB
	engine        *PolicyEngine
	redirect      ConfigRedirect

	aclInput   *ACLConfigurationInput
	reloadLock sync.Mutex
	watcher    *aclWatcher
}

// Create a new Central object from the specified pieces.
// secondFactor may be nil, in which case second-factor logins are unsupported.
func NewCentral(logfile string, authenticator Authenticator, secondFactor SecondFactor, sessionDB SessionDB, engine *PolicyEngine) *Central {
	c := &Central{}
	c.authenticator = &sanitizingAuthenticator{
		backend: authenticator,
	}
	c.secondFactor = secondFactor
	c.sessionDB = sessionDB
	c.engine = engine
	c.NewSessionExpiresAfter = time.Duration(defaultSessionExpirySeconds) * time.Second

	// We don't want logging to stdout when the service is running on a windows
	// machine. This decision was made to avoid having to bloat the service with
	// unnecessary config
	c.Log = log.New(resolveLogfile(logfile), runtime.GOOS != "windows")

	c.Log.Infof("Authportal successfully started up\n")

	return c
}

// Create a new 'Central' object from a Config.
func NewCentralFromConfig(config *Config) (central *Central, err error) {
	var (
		authenticator Authenticator
		sessionDB     SessionDB
	)

	// We don't want logging to stdout when the service is running on a windows machine
	startupLogger := log.New(resolveLogfile(config.Log.Filename), runtime.GOOS != "windows")

	defer func() {
		if ePanic := recover(); ePanic != nil {
			if authenticator != nil {
				authenticator.Close()
			}
			if sessionDB != nil {
				sessionDB.Close()
			}
			startupLogger.Errorf("Error initializing: %v\n", ePanic)
			err = ePanic.(error)
		}
	}()

	if config.SessionDB.SessionExpirySeconds < 0 {
		panic(errors.New("SessionExpirySeconds must be 0 or more"))
	}

	switch config.Authenticator.Type {
	case "ldap":
		if authenticator, err = NewAuthenticator_LDAP(&config.Authenticator.LDAP); err != nil {
			panic(fmt.Errorf("Error connecting to LDAP: %v", err))
		}
	case "sql":
		db, errConnect := config.SessionDB.DBConnection.Connect()
		if errConnect != nil {
			panic(fmt.Errorf("Error connecting to DB: %v", errConnect))
		}
		authenticator = NewUserStoreDB_SQL(db)
	case "dummy", "":
		authenticator = NewDummyAuthenticator()
	default:
		panic(fmt.Errorf("Unrecognized authenticator type '%v'", config.Authenticator.Type))
	}

	switch config.SessionDB.Store {
	case "postgres":
		db, errConnect := config.SessionDB.DBConnection.Connect()
		if errConnect != nil {
			panic(fmt.Errorf("Error connecting to SessionDB: %v", errConnect))
		}
		sessionDB = NewSessionDB_SQL(db)
	case "redis":
		sessionDB = NewSessionDB_Redis(&config.SessionDB.Redis)
	case "memory", "":
		sessionDB = newDummySessionDB()
	default:
		panic(fmt.Errorf("Unrecognized session store '%v'", config.SessionDB.Store))
	}

	aclInput := config.ACL.Inline
	if config.ACL.File != "" {
		if aclInput, err = LoadACLFile(config.ACL.File); err != nil {
			panic(fmt.Errorf("Error loading ACL file: %v", err))
		}
	}
	aclConfig, aclErrors := NormalizeACL(aclInput)
	for _, e := range aclErrors {
		startupLogger.Errorf("ACL: %v", e)
	}
	// At startup we treat any ACL validation error as fatal. All of the
	// errors have already been logged above, so the operator sees every
	// problem from a single run.
	if len(aclErrors) != 0 {
		panic(NewError(ErrACLInvalid, fmt.Sprintf("%v error(s), see log", len(aclErrors))))
	}

	c := NewCentral(config.Log.Filename, authenticator, NewSecondFactor_TOTP(&config.TOTP), sessionDB, NewPolicyEngine(aclConfig))
	c.aclInput = aclInput
	c.redirect = config.Redirect
	if config.SessionDB.SessionExpirySeconds != 0 {
		c.NewSessionExpiresAfter = time.Duration(config.SessionDB.SessionExpirySeconds) * time.Second
	}
	startupLogger.Infof("Sessions expire after %v", c.NewSessionExpiresAfter)
	startupLogger.Infof("ACL loaded with %v rule(s), default policy %v", len(aclConfig.Rules), aclConfig.DefaultPolicy)

	if config.ACL.File != "" {
		if c.watcher, err = startACLWatcher(c, config.ACL.File); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

func resolveLogfile(logfile string) string {
	if logfile != "" {
		return logfile
	}
	return log.Stdout
}

// Login verifies an identity/password pair, and if it is good, creates a new
// session at the OneFactor level. The returned session key is what you place
// in the cookie.
func (x *Central) Login(identity, password, clientIPAddress string) (sessionkey string, token *Token, err error) {
	subject, err := x.authenticator.Authenticate(identity, password)
	if err != nil {
		switch {
		case strings.HasPrefix(err.Error(), ErrIdentityEmpty.Error()):
			x.Stats.IncrementEmptyIdentities(x.Log)
		default:
			x.Stats.IncrementInvalidPasswords(x.Log)
		}
		x.Log.Infof("Login failed for %v from %v: %v", identity, clientIPAddress, err)
		return "", nil, err
	}

	internalUUID, _ := uuid.NewRandom()
	token = &Token{
		Identity:     CanonicalizeIdentity(identity),
		Username:     subject.Username,
		Groups:       subject.Groups,
		InternalUUID: internalUUID.String(),
		Expires:      time.Now().Add(x.NewSessionExpiresAfter),
		Level:        OneFactor,
	}
	sessionkey = generateSessionKey()
	if err = x.sessionDB.Write(sessionkey, token); err != nil {
		return "", nil, err
	}
	x.Stats.IncrementGoodLogin(x.Log)
	x.Log.Infof("Login succeeded for %v from %v", token.Identity, clientIPAddress)
	return sessionkey, token, nil
}

// LoginSecondFactor upgrades an existing OneFactor session to TwoFactor,
// provided the second-factor code verifies.
func (x *Central) LoginSecondFactor(sessionkey, code string) (*Token, error) {
	if x.secondFactor == nil {
		return nil, ErrUnsupported
	}
	token, err := x.GetTokenFromSession(sessionkey)
	if err != nil {
		return nil, err
	}
	if err := x.secondFactor.Validate(token.Username, code); err != nil {
		x.Log.Infof("Second factor failed for %v: %v", token.Identity, err)
		return nil, err
	}
	token.Level = TwoFactor
	if err := x.sessionDB.Write(sessionkey, token); err != nil {
		return nil, err
	}
	x.Stats.IncrementGoodSecondFactor(x.Log)
	return token, nil
}

// Pass in a session key that was generated with a call to Login(), and get back a token.
// A session key is typically a cookie.
func (x *Central) GetTokenFromSession(sessionkey string) (*Token, error) {
	token, err := x.sessionDB.Read(sessionkey)
	if err != nil {
		x.Stats.IncrementInvalidSessionKey(x.Log)
		return nil, err
	}
	if time.Now().UnixNano() > token.Expires.UnixNano() {
		// DB has not yet expired the token. It's OK for the DB to be a bit lazy in its cleanup.
		x.Stats.IncrementExpiredSessionKey(x.Log)
		return nil, ErrInvalidSessionToken
	}
	return token, nil
}

// Logout destroys the session.
func (x *Central) Logout(sessionkey string) error {
	if err := x.sessionDB.Delete(sessionkey); err != nil {
		return err
	}
	x.Stats.IncrementLogout(x.Log)
	return nil
}

/*
Authorize answers, for one inbound request, whether it may proceed.

achieved is the authentication level the session has already satisfied
(Bypass for an anonymous request, or Token.Level for an authenticated one).
The returned PolicyLevel is the level the ACL demanded, which the middleware
needs when it builds the authentication challenge.

Bypass admits and Deny blocks regardless of achieved level; for OneFactor and
TwoFactor the session's achieved level must be at least the required level.
*/
func (x *Central) Authorize(ctx *RequestContext, achieved PolicyLevel) (Verdict, PolicyLevel) {
	required := x.engine.Evaluate(ctx)
	switch {
	case required == Bypass:
		x.Stats.IncrementRequestsAllowed(x.Log)
		return VerdictAllowed, required
	case required == Deny:
		x.Stats.IncrementRequestsForbidden(x.Log)
		x.Log.Infof("Denied %v %v%v for %v from %v", ctx.Method, ctx.TargetDomain, ctx.Path, ctx.Subject.Username, ctx.ClientAddress)
		return VerdictForbidden, required
	case achieved >= required:
		x.Stats.IncrementRequestsAllowed(x.Log)
		return VerdictAllowed, required
	default:
		x.Stats.IncrementRequestsChallenged(x.Log)
		return VerdictUnauthorized, required
	}
}

// ResolveRedirect applies the safe-redirection policy to a user-supplied
// post-login redirect target, using the configured fallback URL and
// protected root domain.
func (x *Central) ResolveRedirect(candidate string) string {
	resolved := ResolveRedirect(candidate, x.redirect.DefaultURL, x.redirect.RootDomain)
	if resolved != candidate {
		x.Log.Infof("Unsafe redirect target substituted with %v", resolved)
	}
	return resolved
}

// PolicyEngine returns the engine, for callers that only need Evaluate.
func (x *Central) PolicyEngine() *PolicyEngine {
	return x.engine
}

// SetRedirect sets the protected root domain and fallback URL used by
// ResolveRedirect. NewCentralFromConfig does this for you.
func (x *Central) SetRedirect(config ConfigRedirect) {
	x.redirect = config
}

// Close frees all resources held by the Central object
func (x *Central) Close() {
	if x.watcher != nil {
		x.watcher.stop()
		x.watcher = nil
	}
	if x.authenticator != nil {
		x.authenticator.Close()
		x.authenticator = nil
	}
	if x.secondFactor != nil {
		x.secondFactor.Close()
		x.secondFactor = nil
	}
	if x.sessionDB != nil {
		x.sessionDB.Close()
		x.sessionDB = nil
	}
	if x.Log != nil {
		x.Log.Infof("Authportal shutting down\n")
	}
}
