/*
Package authportal is the decision core of an authentication portal that
gates access to protected web domains.

Authportal brings together the following pluggable components:

	Authenticator		This answers the question "Is this username/password valid?",
				and resolves the subject (username + groups) behind it.
	Second Factor		This verifies a second authentication factor (eg TOTP).
	Session Database	This stores login tokens. In other words, this is where the cookies go.
	Policy Engine		This decides what authentication level a request requires.

Any of these components can be swapped out.

A typical setup is to use LDAP as an Authenticator, and Postgres or Redis as
a Session Database.

Concepts

An ACL is an ordered list of rules plus a default policy. Every rule names the
domains, resource paths, methods, networks and subjects it applies to, and the
policy level (deny, bypass, one_factor, two_factor) it demands. Evaluation is
strictly first-match-wins: administrators control precedence by rule order.

A Token is the result of a successful authentication. It stores the identity
of a user, the groups that user belongs to, an expiry date, and the
authentication level the session has achieved so far. A token is retrieved by
a session key, which is typically a cookie.

The redirector decides whether a post-login "redirect" query parameter is safe
to honour, or whether the user must be sent to the configured fallback URL
instead.
*/
package authportal
