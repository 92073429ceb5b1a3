package sink

import (
	"fmt"
	"regexp"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// maxRowsPerInsert keeps a batch under the postgres bind parameter limit.
const maxRowsPerInsert = 1000

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLSink writes pulse metrics as rows of a SQL table. Any driver sqlx knows
// the bind style of works; "postgres" (TimescaleDB) and "mysql" are linked in.
type SQLSink struct {
	db        *sqlx.DB
	tableName string
}

func NewSQLSink(db *sqlx.DB, table string) (*SQLSink, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLSink{db: db, tableName: table}, nil
}

// OpenSQLSink connects with driver/dsn and checks the connection.
func OpenSQLSink(driver, dsn, table string) (*SQLSink, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	s, err := NewSQLSink(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) Name() string { return "sql:" + s.db.DriverName() }

// EnsureTable creates the metric table when it does not exist.
func (s *SQLSink) EnsureTable() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
	run_id VARCHAR(64) NOT NULL,
	device_id VARCHAR(128) NOT NULL,
	setting DOUBLE PRECISION NOT NULL,
	waveform VARCHAR(64) NOT NULL,
	kind VARCHAR(16) NOT NULL,
	value DOUBLE PRECISION NOT NULL
)`)
	return err
}

func (s *SQLSink) WriteBatch(metrics []domain.PulseMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	query := "INSERT INTO " + s.tableName +
		" (run_id, device_id, setting, waveform, kind, value) VALUES (:run_id, :device_id, :setting, :waveform, :kind, :value)"

	for start := 0; start < len(metrics); start += maxRowsPerInsert {
		end := start + maxRowsPerInsert
		if end > len(metrics) {
			end = len(metrics)
		}
		if _, err := s.db.NamedExec(query, metrics[start:end]); err != nil {
			return fmt.Errorf("insert metrics %d..%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (s *SQLSink) Close() error { return s.db.Close() }

var _ ports.MetricSink = (*SQLSink)(nil)
