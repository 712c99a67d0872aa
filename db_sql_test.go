package authportal

import (
	"flag"
	"testing"
	"time"
)

/*
Create a test Postgres database:
	create role authportal_test login password 'authportal_test';
	create database authportal_test owner = authportal_test;

Then run:
	go test github.com/IMQS/authportal -backend_postgres -run TestSql
*/

var backend_postgres = flag.Bool("backend_postgres", false, "Run tests against Postgres backend")

var conx_postgres = DBConnection{
	Driver:   "postgres",
	Host:     "localhost",
	Port:     5432,
	Database: "authportal_test",
	User:     "authportal_test",
	Password: "authportal_test",
	SSL:      false,
}

func connectToDB(t *testing.T) *DBConnection {
	if !*backend_postgres {
		t.Skip("Skipping: run with -backend_postgres against a local Postgres")
	}
	conx := conx_postgres
	if err := SqlCreateDatabase(&conx); err != nil {
		t.Fatalf("Unable to create test database: %v", err)
	}
	db, err := conx.Connect()
	if err != nil {
		t.Fatalf("Unable to connect to database: %v", err)
	}
	defer db.Close()
	if err := sqlDeleteAllTables(db); err != nil {
		t.Fatalf("Unable to wipe database: %v", err)
	}
	if err := RunMigrations(&conx); err != nil {
		t.Fatalf("Unable to run migrations: %v", err)
	}
	return &conx
}

func TestSqlUserStore(t *testing.T) {
	conx := connectToDB(t)
	db, err := conx.Connect()
	if err != nil {
		t.Fatalf("Unable to connect: %v", err)
	}
	store := NewUserStoreDB_SQL(db)
	defer store.Close()

	if err := store.CreateIdentity(joeIdentity, "joe", joePwd, joeGroups); err != nil {
		t.Fatalf("CreateIdentity failed: %v", err)
	}
	if err := store.CreateIdentity(joeIdentity, "joe", joePwd, joeGroups); err == nil {
		t.Fatalf("Expected duplicate identity to fail")
	}

	subject, err := store.Authenticate("Joe@Example.com", joePwd)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if subject.Username != "joe" || !subject.HasGroup("admins") {
		t.Fatalf("Wrong subject resolved: %+v", subject)
	}
	if _, err := store.Authenticate(joeIdentity, "wrong"); err != ErrInvalidPassword {
		t.Fatalf("Expected invalid password, got %v", err)
	}
	if _, err := store.Authenticate("nobody@example.com", joePwd); err != ErrIdentityAuthNotFound {
		t.Fatalf("Expected not found, got %v", err)
	}

	if err := store.SetPassword(joeIdentity, "newpassword1"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if _, err := store.Authenticate(joeIdentity, "newpassword1"); err != nil {
		t.Fatalf("Authenticate after SetPassword failed: %v", err)
	}
}

func TestSqlSessionDB(t *testing.T) {
	conx := connectToDB(t)
	db, err := conx.Connect()
	if err != nil {
		t.Fatalf("Unable to connect: %v", err)
	}
	sessions := NewSessionDB_SQL(db)
	defer sessions.Close()

	token := &Token{
		Identity:     joeIdentity,
		Username:     "joe",
		Groups:       joeGroups,
		InternalUUID: "6b5cd699-b545-4bdb-9fc8-3ac3a8c5ed30",
		Expires:      time.Now().Add(time.Hour),
		Level:        OneFactor,
	}
	key := generateSessionKey()
	if err := sessions.Write(key, token); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	fetched, err := sessions.Read(key)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if fetched.Username != "joe" || fetched.Level != OneFactor || !fetched.Subject().HasGroup("dev") {
		t.Fatalf("Wrong token read back: %+v", fetched)
	}

	token.Level = TwoFactor
	if err := sessions.Write(key, token); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if fetched, _ := sessions.Read(key); fetched.Level != TwoFactor {
		t.Fatalf("Second-factor upgrade was not persisted")
	}

	if err := sessions.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := sessions.Read(key); err != ErrInvalidSessionToken {
		t.Fatalf("Expected invalid session after delete, got %v", err)
	}
}

// The hash helpers are pure, so they get tested on every run
func TestPortalHash(t *testing.T) {
	hash, err := computePortalHash("s3cret")
	if err != nil {
		t.Fatalf("computePortalHash failed: %v", err)
	}
	if !verifyPortalHash("s3cret", hash) {
		t.Fatalf("Hash did not verify against its own password")
	}
	if verifyPortalHash("wrong", hash) {
		t.Fatalf("Wrong password verified")
	}
	if verifyPortalHash("s3cret", "not-base64!!") {
		t.Fatalf("Garbage hash verified")
	}
	// Two hashes of the same password differ, because the salt is random
	hash2, _ := computePortalHash("s3cret")
	if hash == hash2 {
		t.Fatalf("Salt does not appear to be random")
	}
}
