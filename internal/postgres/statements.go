package postgres

// Statement templates take the quoted role or database identifier.

// systemGrants run on the administrative database.
var systemGrants = []string{
	"GRANT ALL PRIVILEGES ON DATABASE %[1]s TO %[1]s",
	"GRANT USAGE ON SCHEMA public TO %[1]s",
}

// databaseGrants run on a connection to the tenant database.
var databaseGrants = []string{
	"GRANT USAGE ON SCHEMA public TO %[1]s",
	"GRANT CREATE ON SCHEMA public TO %[1]s",
	"GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA public TO %[1]s",
	"GRANT ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA public TO %[1]s",
	"GRANT ALL PRIVILEGES ON ALL FUNCTIONS IN SCHEMA public TO %[1]s",
	"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL PRIVILEGES ON TABLES TO %[1]s",
	"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL PRIVILEGES ON SEQUENCES TO %[1]s",
	"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL PRIVILEGES ON FUNCTIONS TO %[1]s",
}

var systemRevokes = []string{
	"REVOKE ALL PRIVILEGES ON DATABASE %[1]s FROM %[1]s",
	"REVOKE USAGE ON SCHEMA public FROM %[1]s",
}

// databaseRevokes undo databaseGrants in reverse order.
var databaseRevokes = []string{
	"ALTER DEFAULT PRIVILEGES IN SCHEMA public REVOKE ALL PRIVILEGES ON FUNCTIONS FROM %[1]s",
	"ALTER DEFAULT PRIVILEGES IN SCHEMA public REVOKE ALL PRIVILEGES ON SEQUENCES FROM %[1]s",
	"ALTER DEFAULT PRIVILEGES IN SCHEMA public REVOKE ALL PRIVILEGES ON TABLES FROM %[1]s",
	"REVOKE ALL PRIVILEGES ON ALL FUNCTIONS IN SCHEMA public FROM %[1]s",
	"REVOKE ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA public FROM %[1]s",
	"REVOKE ALL PRIVILEGES ON ALL TABLES IN SCHEMA public FROM %[1]s",
	"REVOKE CREATE ON SCHEMA public FROM %[1]s",
	"REVOKE USAGE ON SCHEMA public FROM %[1]s",
}

const (
	killSessionsSQL = `SELECT count(pg_terminate_backend(pid)) FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`
	databaseExistsSQL = `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`
	roleExistsSQL     = `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`
	nowSQL            = `SELECT NOW()`
)
