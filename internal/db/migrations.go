package db

import (
	"embed"
	"fmt"
	"strings"
)

// Migrations holds the versioned schema as migrations/<version>_<name>.<up|down>.sql.
// cmd/migrate applies them in order; services run the up scripts they own at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// UpScript returns the up script of one migration, e.g. "0001_sensor_samples".
func UpScript(name string) (string, error) {
	b, err := Migrations.ReadFile("migrations/" + name + ".up.sql")
	if err != nil {
		return "", fmt.Errorf("migration %s: %w", name, err)
	}
	return strings.TrimSpace(string(b)), nil
}
