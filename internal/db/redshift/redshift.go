// Package redshift moves records in and out of Amazon Redshift.
//
// Loads run COPY from the _manifest of a records directory on S3; unloads
// run UNLOAD into the directory and adopt the manifest Redshift writes.
package redshift

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/db/postgres"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
)

// maxVarchar is the widest VARCHAR Redshift accepts, in bytes.
const maxVarchar = 65535

func init() {
	db.Register("redshift", Open)
}

// Driver is a Redshift cluster reached through lib/pq.
type Driver struct {
	*db.Base
	// credentials is the CREDENTIALS clause value, e.g.
	// "aws_iam_role=arn:aws:iam::123456789012:role/load".
	credentials string
	log         *zap.SugaredLogger
}

// Open connects with lib/pq. The option "redshift.credentials" is required
// for COPY and UNLOAD.
func Open(ctx context.Context, cfg db.Config) (db.Driver, error) {
	conn, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return New(conn, cfg.Option("redshift.credentials", ""), nil), nil
}

// New wraps conn. Redshift shares PostgreSQL's quoting and catalog but
// lowercases names, counts VARCHAR in bytes and has no TIME type.
func New(conn *sql.DB, credentials string, l *zap.SugaredLogger) *Driver {
	base := postgres.NewBase(conn, "redshift")
	base.MaxIdentLen = 127
	base.NormalizeNames = true
	base.CharsVarchar = false
	base.NoTimeType = true
	return &Driver{Base: base, credentials: credentials, log: logging.Or(l)}
}

func (d *Driver) TypeForString(length int) string {
	if length > maxVarchar {
		length = maxVarchar
	}
	return d.Base.TypeForString(length)
}

func (d *Driver) TypeForDatePlusTime(hasTZ bool) string {
	if hasTZ {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

func (d *Driver) Loader() db.Loader     { return &Loader{d: d} }
func (d *Driver) Unloader() db.Unloader { return &Unloader{d: d} }

func (d *Driver) credentialsClause() (string, error) {
	if strings.TrimSpace(d.credentials) == "" {
		return "", errors.WithStack(&errors.ConfigError{
			Option: "redshift.credentials",
			Reason: "required for COPY and UNLOAD",
		})
	}
	return "CREDENTIALS " + Literal(d.credentials), nil
}

// Literal renders s as a Redshift string literal. Control characters use
// octal escapes, which is how COPY and UNLOAD accept them as delimiters.
func Literal(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch {
		case r == '\'':
			b.WriteString("''")
		case r == '\\':
			b.WriteString(`\\`)
		case r < 0x20 || r == 0x7f:
			b.WriteByte('\\')
			b.WriteByte(byte('0' + (r>>6)&7))
			b.WriteByte(byte('0' + (r>>3)&7))
			b.WriteByte(byte('0' + r&7))
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
