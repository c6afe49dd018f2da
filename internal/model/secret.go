package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EnginePostgres is the only engine the database manager can administer.
const EnginePostgres = "postgres"

// TenantTagKey is the vault tag used to find the secrets of a tenant database.
const TenantTagKey = "database-manager-database-name"

// SecretRecord is the credential payload stored in the vault. On the wire the
// host is stored under "endpoint"; "host" is accepted as an alias when reading.
type SecretRecord struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Host     string `json:"endpoint" validate:"required"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Engine   string `json:"engine" validate:"required"`
}

type secretWire struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Endpoint string          `json:"endpoint"`
	Host     string          `json:"host"`
	Port     json.RawMessage `json:"port"`
	Engine   string          `json:"engine"`
}

// UnmarshalJSON accepts the port either as a JSON number or a numeric string.
func (s *SecretRecord) UnmarshalJSON(data []byte) error {
	var w secretWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	port, err := parsePort(w.Port)
	if err != nil {
		return err
	}

	host := w.Endpoint
	if host == "" {
		host = w.Host
	}

	*s = SecretRecord{
		Username: w.Username,
		Password: w.Password,
		Host:     host,
		Port:     port,
		Engine:   w.Engine,
	}
	return nil
}

func parsePort(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("port must be a number or numeric string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("port %q is not numeric", s)
	}
	return n, nil
}

// HostPrefix returns the first dot-delimited label of the host, e.g. the RDS
// instance identifier of "mydb.abc123.eu-west-1.rds.amazonaws.com".
func (s SecretRecord) HostPrefix() string {
	prefix, _, _ := strings.Cut(s.Host, ".")
	return prefix
}

// Validate reports the fields that are missing from the record.
func (s SecretRecord) Validate() error {
	return validateStruct(s)
}
