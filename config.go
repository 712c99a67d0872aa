package authportal

import (
	"encoding/json"
	"os"
)

/*

Example config:

{
	"HTTP": {
		"CookieName":	"session",
		"CookieSecure":	true,
		"Port":			8080,
		"Bind":			"127.0.0.1"
	},
	"Authenticator": {
		"Type":			"ldap",
		"LDAP": {
			"LdapHost":		"domaincontroller.example.com",
			"LdapPort":		389,
			"Encryption":	"SSL"
		}
	},
	"SessionDB": {
		"Store":		"postgres",
		"DBConnection": {
			"Driver":		"postgres",
			"Host":			"auth.example.com",
			"Database": 	"auth",
			"User":			"jim",
			"Password":		"123",
			"SSL":			true
		}
	},
	"Redirect": {
		"RootDomain":	"example.com",
		"DefaultURL":	"https://portal.example.com"
	},
	"ACL": {
		"File":			"/etc/authportal/acl.json"
	}
}

*/

type ConfigHTTP struct {
	CookieName   string
	CookieSecure bool
	Port         int
	Bind         string
}

type ConfigLog struct {
	Filename string
}

type ConfigAuthenticator struct {
	Type string // "ldap", "sql", "dummy"
	LDAP ConfigLDAP
}

type ConfigLDAP struct {
	LdapHost         string //
	LdapPort         uint16 //
	Encryption       string // "", "TLS", "SSL"
	BaseDN           string // When set, we search for the user's groups after a successful bind
	LdapSearchFilter string // eg "(&(objectClass=user)(sAMAccountName=%v))"
}

type ConfigRedis struct {
	Addr     string
	Password string
	DB       int
}

type ConfigSessionDB struct {
	Store                string // "memory", "postgres", "redis"
	DBConnection         DBConnection
	Redis                ConfigRedis
	SessionExpirySeconds int64
}

type ConfigTOTP struct {
	Issuer string
	Skew   uint // Number of +-30s periods we tolerate, to absorb clock drift
}

type ConfigRedirect struct {
	RootDomain string // The protected root domain that redirect targets must belong to
	DefaultURL string // Where we send the user when the redirect target is absent or unsafe
}

type ConfigACL struct {
	File   string // Path of a hot-reloadable ACL document. Takes precedence over Inline.
	Inline *ACLConfigurationInput
}

type Config struct {
	HTTP          ConfigHTTP
	Log           ConfigLog
	Authenticator ConfigAuthenticator
	SessionDB     ConfigSessionDB
	TOTP          ConfigTOTP
	Redirect      ConfigRedirect
	ACL           ConfigACL
}

func (x *Config) Reset() {
	*x = Config{}
	x.HTTP.CookieName = "session"
	x.HTTP.Bind = "127.0.0.1"
	x.HTTP.Port = 8080
	x.SessionDB.Store = "memory"
	x.SessionDB.SessionExpirySeconds = defaultSessionExpirySeconds
	x.TOTP.Issuer = "authportal"
	x.TOTP.Skew = 1
}

func (x *Config) LoadFile(filename string) error {
	x.Reset()
	all, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(all, x); err != nil {
		return err
	}
	return nil
}
