package authportal

import (
	"database/sql"

	"github.com/BurntSushi/migration"
)

// SqlCreateDatabase creates the database named in conx, if it does not
// already exist.
func SqlCreateDatabase(conx *DBConnection) error {
	// Check first if the database already exists
	if db, eConnect := conx.Connect(); eConnect == nil {
		// The postgres driver will not return an error until we attempt to start a transaction
		if tx, eTxBegin := db.Begin(); eTxBegin == nil {
			tx.Rollback()
			db.Close()
			return nil
		} else {
			// database does not exist, go ahead and try to create it
			db.Close()
		}
	} else {
		return eConnect
	}
	// Connect via the 'postgres' database
	copy := *conx
	copy.Database = "postgres"
	if db, e := copy.Connect(); e == nil {
		defer db.Close()
		_, eExec := db.Exec("CREATE DATABASE \"" + conx.Database + "\"")
		return eExec
	} else {
		return e
	}
}

// RunMigrations brings the database schema up to date.
func RunMigrations(conx *DBConnection) error {
	db, err := migration.Open(conx.Driver, conx.ConnectionString(), createMigrations())
	if err == nil {
		db.Close()
	}
	return err
}

func createMigrations() []migration.Migrator {
	var migrations []migration.Migrator

	text := []string{
		// 1. authsession
		`CREATE TABLE authsession (id BIGSERIAL PRIMARY KEY, sessionkey VARCHAR, identity VARCHAR, username VARCHAR, groups VARCHAR, internaluuid VARCHAR, level INTEGER, expires TIMESTAMP);
		CREATE UNIQUE INDEX idx_authsession_token ON authsession (sessionkey);
		CREATE INDEX idx_authsession_identity ON authsession (identity);
		CREATE INDEX idx_authsession_expires  ON authsession (expires);`,

		// 2. authuser
		`CREATE TABLE authuser (id BIGSERIAL PRIMARY KEY, identity VARCHAR, username VARCHAR, groups VARCHAR, password VARCHAR, archived BOOLEAN);
		CREATE UNIQUE INDEX idx_authuser_identity ON authuser (LOWER(identity));`,
	}

	for _, src := range text {
		srcCapture := src
		migrations = append(migrations, func(tx migration.LimitedTx) error {
			_, err := tx.Exec(srcCapture)
			return err
		})
	}
	return migrations
}

func sqlDeleteAllTables(db *sql.DB) error {
	statements := []string{
		"DROP TABLE IF EXISTS authsession",
		"DROP TABLE IF EXISTS authuser",
		"DROP TABLE IF EXISTS migration_version",
	}
	for _, st := range statements {
		if _, err := db.Exec(st); err != nil {
			return err
		}
	}
	return nil
}
