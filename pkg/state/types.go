package state

import "path/filepath"

// Paths is the on-disk layout under the configured db path.
type Paths struct {
	DB        string
	Store     string
	State     string
	Audit     string
	Retention string
	Tmp       string
	Crash     string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),

		State:     statePath,
		Audit:     filepath.Join(statePath, "audit"),
		Retention: filepath.Join(statePath, "retention"),
		Tmp:       filepath.Join(statePath, "tmp"),
		Crash:     filepath.Join(statePath, "crash"),
	}
}

// SQLitePath is the database file used by the sqlite engine.
func (p Paths) SQLitePath() string {
	return filepath.Join(p.Store, "chatrelay.db")
}
