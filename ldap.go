package authportal

import (
	"fmt"
	"strings"

	"github.com/mavricknz/ldap"
)

type LdapConnectionMode int

const (
	LdapConnectionModePlainText LdapConnectionMode = iota
	LdapConnectionModeSSL
	LdapConnectionModeTLS
)

var configLdapNameToMode = map[string]LdapConnectionMode{
	"":    LdapConnectionModePlainText,
	"SSL": LdapConnectionModeSSL,
	"TLS": LdapConnectionModeTLS,
}

const defaultLdapSearchFilter = "(&(objectClass=user)(sAMAccountName=%v))"

// Authenticator that validates credentials with an LDAP BIND, and resolves
// the subject's groups with a directory search when a BaseDN is configured.
type ldapAuthenticator struct {
	con    *ldap.LDAPConnection
	config *ConfigLDAP
}

func (x *ldapAuthenticator) Authenticate(identity, password string) (*Subject, error) {
	if len(password) == 0 {
		// Many LDAP servers (or AD) will allow an anonymous BIND.
		// I've never seen the need for a password-less user authenticated against LDAP.
		return nil, ErrInvalidPassword
	}
	if err := x.con.Bind(identity, password); err != nil {
		// LDAP does not distinguish 'identity not found' from 'invalid password'
		return nil, NewError(ErrInvalidCredentials, err.Error())
	}
	subject := &Subject{Username: identity}
	if x.config.BaseDN != "" {
		groups, err := x.fetchGroups(identity)
		if err != nil {
			return nil, err
		}
		subject.Groups = groups
	}
	return subject, nil
}

func (x *ldapAuthenticator) fetchGroups(identity string) ([]string, error) {
	filter := x.config.LdapSearchFilter
	if filter == "" {
		filter = defaultLdapSearchFilter
	}
	search := ldap.NewSimpleSearchRequest(
		x.config.BaseDN,
		ldap.ScopeWholeSubtree,
		fmt.Sprintf(filter, identity),
		[]string{"memberOf"},
	)
	result, err := x.con.Search(search)
	if err != nil {
		return nil, NewError(ErrConnect, err.Error())
	}
	groups := []string{}
	for _, entry := range result.Entries {
		for _, dn := range entry.GetAttributeValues("memberOf") {
			if name := groupNameFromDN(dn); name != "" {
				groups = append(groups, name)
			}
		}
	}
	return groups, nil
}

// groupNameFromDN extracts the leading CN value of a group DN, so that
// "CN=admins,OU=Groups,DC=example,DC=com" becomes "admins". The ACL subject
// selectors match on these short names.
func groupNameFromDN(dn string) string {
	first := dn
	if i := strings.IndexByte(dn, ','); i != -1 {
		first = dn[:i]
	}
	if eq := strings.IndexByte(first, '='); eq != -1 {
		return first[eq+1:]
	}
	return first
}

func (x *ldapAuthenticator) Close() {
	if x.con != nil {
		x.con.Close()
		x.con = nil
	}
}

func NewAuthenticator_LDAP(config *ConfigLDAP) (Authenticator, error) {
	con := ldap.NewLDAPConnection(config.LdapHost, config.LdapPort)
	switch configLdapNameToMode[strings.ToUpper(config.Encryption)] {
	case LdapConnectionModePlainText:
	case LdapConnectionModeSSL:
		con.IsSSL = true
	case LdapConnectionModeTLS:
		con.IsTLS = true
	}
	if err := con.Connect(); err != nil {
		con.Close()
		return nil, NewError(ErrConnect, err.Error())
	}
	auth := &ldapAuthenticator{}
	auth.con = con
	auth.config = config
	return auth, nil
}
