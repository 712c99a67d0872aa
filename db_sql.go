package authportal

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/scrypt"
)

/*
Hash encodings:

Version 1:
65 bytes (1 + 32 + 32).
bytes[0]     = 1
bytes[1:33]  = Salt (32 random bytes)
bytes[33:65] = scrypt-ed hash with parameters N=256 r=8 p=1

Why use such a low parameter (N=256) for scrypt?
This is a balance between server cost and password crackability.
If you decide that you need to raise the N factor, then introduce a new
version of the hash (the only version right now is version 1).
*/

const (
	hashLengthV1 = 65
	scryptN_V1   = 256
)

type DBConnection struct {
	Driver   string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSL      bool
}

func (x *DBConnection) Connect() (*sql.DB, error) {
	return sql.Open(x.Driver, x.ConnectionString())
}

func (x *DBConnection) ConnectionString() string {
	sslmode := "disable"
	if x.SSL {
		sslmode = "require"
	}
	port := x.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%v port=%v user=%v password=%v dbname=%v sslmode=%v", x.Host, port, x.User, x.Password, x.Database, sslmode)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type sqlSessionDB struct {
	db *sql.DB
}

// NewSessionDB_SQL creates a SessionDB backed by the given Postgres database.
// The schema must already have been established with RunMigrations.
func NewSessionDB_SQL(db *sql.DB) SessionDB {
	return &sqlSessionDB{db: db}
}

func (x *sqlSessionDB) Write(sessionkey string, token *Token) error {
	groups, err := json.Marshal(token.Groups)
	if err != nil {
		return err
	}
	_, err = x.db.Exec(`INSERT INTO authsession (sessionkey, identity, username, groups, internaluuid, level, expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sessionkey) DO UPDATE SET level = EXCLUDED.level, expires = EXCLUDED.expires`,
		sessionkey, token.Identity, token.Username, string(groups), token.InternalUUID, int(token.Level), token.Expires)
	return err
}

func (x *sqlSessionDB) Read(sessionkey string) (*Token, error) {
	x.purgeExpiredSessions()
	row := x.db.QueryRow(`SELECT identity, username, groups, internaluuid, level, expires FROM authsession WHERE sessionkey = $1`, sessionkey)
	token := &Token{}
	var groups string
	var level int
	if err := row.Scan(&token.Identity, &token.Username, &groups, &token.InternalUUID, &level, &token.Expires); err != nil {
		return nil, ErrInvalidSessionToken
	}
	if err := json.Unmarshal([]byte(groups), &token.Groups); err != nil {
		return nil, err
	}
	token.Level = PolicyLevel(level)
	return token, nil
}

func (x *sqlSessionDB) Delete(sessionkey string) error {
	_, err := x.db.Exec(`DELETE FROM authsession WHERE sessionkey = $1`, sessionkey)
	return err
}

func (x *sqlSessionDB) purgeExpiredSessions() {
	x.db.Exec(`DELETE FROM authsession WHERE expires < $1`, time.Now())
}

func (x *sqlSessionDB) Close() {
	if x.db != nil {
		x.db.Close()
		x.db = nil
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type sqlUserStoreDB struct {
	db *sql.DB
}

// NewUserStoreDB_SQL creates an Authenticator backed by the authuser table,
// with passwords stored as salted scrypt hashes.
func NewUserStoreDB_SQL(db *sql.DB) *sqlUserStoreDB {
	return &sqlUserStoreDB{db: db}
}

func (x *sqlUserStoreDB) Authenticate(identity, password string) (*Subject, error) {
	row := x.db.QueryRow(`SELECT username, groups, password FROM authuser WHERE LOWER(identity) = $1 AND (archived = false OR archived IS NULL)`, CanonicalizeIdentity(identity))
	var username, groups, dbHash string
	if err := row.Scan(&username, &groups, &dbHash); err != nil {
		return nil, ErrIdentityAuthNotFound
	}
	if !verifyPortalHash(password, dbHash) {
		return nil, ErrInvalidPassword
	}
	subject := &Subject{Username: username}
	if err := json.Unmarshal([]byte(groups), &subject.Groups); err != nil {
		return nil, err
	}
	return subject, nil
}

// CreateIdentity provisions a new user. The identity is what the user logs in
// with (typically an email address); username and groups are what the policy
// engine will see as the resolved subject.
func (x *sqlUserStoreDB) CreateIdentity(identity, username, password string, groups []string) error {
	hash, err := computePortalHash(password)
	if err != nil {
		return err
	}
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	_, err = x.db.Exec(`INSERT INTO authuser (identity, username, groups, password, archived) VALUES ($1, $2, $3, $4, false)`,
		CanonicalizeIdentity(identity), username, string(groupsJSON), hash)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrIdentityExists
	}
	return err
}

func (x *sqlUserStoreDB) SetPassword(identity, password string) error {
	hash, err := computePortalHash(password)
	if err != nil {
		return err
	}
	update, err := x.db.Exec(`UPDATE authuser SET password = $1 WHERE LOWER(identity) = $2`, hash, CanonicalizeIdentity(identity))
	if err != nil {
		return err
	}
	if affected, _ := update.RowsAffected(); affected != 1 {
		return ErrIdentityAuthNotFound
	}
	return nil
}

func (x *sqlUserStoreDB) Close() {
	if x.db != nil {
		x.db.Close()
		x.db = nil
	}
}

func computePortalHash(password string) (string, error) {
	cblock := [hashLengthV1]byte{}
	cblock[0] = 1
	if ncrypto, err := rand.Read(cblock[1:33]); ncrypto != 32 || err != nil {
		return "", err
	}
	scrypted, err := scrypt.Key([]byte(password), cblock[1:33], scryptN_V1, 8, 1, 32)
	if err != nil {
		return "", err
	}
	copy(cblock[33:], scrypted)
	return base64.StdEncoding.EncodeToString(cblock[:]), nil
}

func verifyPortalHash(password, hash string) bool {
	block, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return false
	}
	if len(block) != hashLengthV1 || block[0] != 1 {
		return false
	}
	scrypted, err := scrypt.Key([]byte(password), block[1:33], scryptN_V1, 8, 1, 32)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(block[33:], scrypted) == 1
}
