// Package connections opens and closes the database-session bindings held in
// a user's session record.
package connections

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
)

// Supported instance types
const (
	InstancePostgres  = "postgres"
	InstanceSQLServer = "sqlserver"
)

var defaultPorts = map[string]int{
	InstancePostgres:  5432,
	InstanceSQLServer: 1433,
}

// OpenRequest is the body of a connection request
type OpenRequest struct {
	InstanceType           string `json:"instanceType" validate:"required,oneof=postgres sqlserver"`
	Host                   string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port                   int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Database               string `json:"database" validate:"required,max=128"`
	Username               string `json:"username" validate:"required,max=128"`
	Password               string `json:"password" validate:"max=256"`
	TrustServerCertificate bool   `json:"trustServerCertificate,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the request fields, reporting every failing field
func (r OpenRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %v", internalerrors.ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", internalerrors.ErrInvalidRequest, strings.Join(fields, ", "))
}

// ConnectionString renders the request in the ADO.NET key=value form used by
// the query backends
func (r OpenRequest) ConnectionString() (string, error) {
	port := r.Port
	if port == 0 {
		port = defaultPorts[r.InstanceType]
	}

	var parts []string
	switch r.InstanceType {
	case InstancePostgres:
		parts = []string{
			"Host=" + quote(r.Host),
			"Port=" + strconv.Itoa(port),
			"Database=" + quote(r.Database),
			"Username=" + quote(r.Username),
			"Password=" + quote(r.Password),
		}
	case InstanceSQLServer:
		parts = []string{
			"Server=" + quote(r.Host+","+strconv.Itoa(port)),
			"Database=" + quote(r.Database),
			"User Id=" + quote(r.Username),
			"Password=" + quote(r.Password),
			"TrustServerCertificate=" + strconv.FormatBool(r.TrustServerCertificate),
		}
	default:
		return "", fmt.Errorf("instance type %q: %w", r.InstanceType, internalerrors.ErrUnsupported)
	}
	return strings.Join(parts, ";"), nil
}

// quote wraps values containing separators in double quotes, doubling any
// embedded quotes
func quote(value string) string {
	if !strings.ContainsAny(value, ";=\"'") && strings.TrimSpace(value) == value {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
