package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/user"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"tedgrid/internal/dblib"
)

// Config holds database connection settings, from flags or the connection
// block of a grid file.
type Config struct {
	Database string `yaml:"database"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Driver explicitly selects the database type: sqlite3, postgres or mysql.
	Driver string `yaml:"driver"`
}

var databaseIcons = map[dblib.DatabaseType]string{
	dblib.SQLite:     "🪶",
	dblib.PostgreSQL: "🐘",
	dblib.MySQL:      "🐬",
}

func parseDriver(s string) (dblib.DatabaseType, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return dblib.SQLite, nil
	case "postgres", "postgresql", "pg":
		return dblib.PostgreSQL, nil
	case "mysql":
		return dblib.MySQL, nil
	}
	return 0, fmt.Errorf("unknown database driver %q", s)
}

// merge fills unset fields of c from def.
func (c Config) merge(def Config) Config {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.Database, def.Database)
	fill(&c.Host, def.Host)
	fill(&c.Port, def.Port)
	fill(&c.Username, def.Username)
	fill(&c.Password, def.Password)
	fill(&c.Driver, def.Driver)
	return c
}

func (c *Config) detectDatabaseType() (dblib.DatabaseType, error) {
	if c.Driver != "" {
		return parseDriver(c.Driver)
	}
	for _, ext := range []string{".sqlite", ".sqlite3", ".db"} {
		if strings.HasSuffix(c.Database, ext) {
			return dblib.SQLite, nil
		}
	}
	return dblib.PostgreSQL, nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func (c *Config) buildConnectionString() (string, dblib.DatabaseType, error) {
	dbType, err := c.detectDatabaseType()
	if err != nil {
		return "", dbType, err
	}
	if c.Database == "" {
		return "", dbType, fmt.Errorf("no database given")
	}

	switch dbType {
	case dblib.SQLite:
		if _, err := os.Stat(c.Database); os.IsNotExist(err) {
			return "", dbType, fmt.Errorf("sqlite file does not exist: %s", c.Database)
		}
		return c.Database, dbType, nil

	case dblib.PostgreSQL:
		connStr := fmt.Sprintf("dbname=%s", c.Database)
		if c.Host != "" {
			connStr += fmt.Sprintf(" host=%s", c.Host)
		}
		if c.Port != "" {
			connStr += fmt.Sprintf(" port=%s", c.Port)
		}
		username := c.Username
		if username == "" {
			username = currentUsername()
		}
		if username != "" {
			connStr += fmt.Sprintf(" user=%s", username)
		}
		if c.Password != "" {
			connStr += fmt.Sprintf(" password=%s", c.Password)
		}
		return connStr + " sslmode=disable", dbType, nil

	case dblib.MySQL:
		connStr := c.Username
		if connStr == "" {
			connStr = currentUsername()
		}
		if c.Password != "" {
			connStr += ":" + c.Password
		}
		host, port := c.Host, c.Port
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s@tcp(%s:%s)/%s", connStr, host, port, c.Database), dbType, nil
	}
	return "", dbType, fmt.Errorf("unsupported database type")
}

func (c *Config) connect(ctx context.Context) (*sql.DB, dblib.DatabaseType, error) {
	connStr, dbType, err := c.buildConnectionString()
	if err != nil {
		return nil, dbType, err
	}

	db, err := sql.Open(dbType.String(), connStr)
	if err != nil {
		return nil, dbType, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, dbType, fmt.Errorf("failed to ping database: %w", err)
	}
	debugLog("connected to %s database %s\n", dbType, c.Database)
	return db, dbType, nil
}

// listTables returns the table names of the connected database.
func listTables(ctx context.Context, db *sql.DB, dbType dblib.DatabaseType, database string) ([]string, error) {
	var (
		query string
		args  []any
	)
	switch dbType {
	case dblib.PostgreSQL:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	case dblib.MySQL:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = ? ORDER BY table_name"
		args = append(args, database)
	case dblib.SQLite:
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	default:
		return nil, fmt.Errorf("unsupported database type for listTables")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
