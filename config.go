package pgwalreceiver

import (
	"fmt"
	"time"

	"github.com/jackc/pglogrepl"
)

type TlsVerify string

const TlsNoVerify TlsVerify = "none"
const TlsRequireVerify TlsVerify = "require"

// StartOffsetPolicy selects how the resume position of a freshly created
// replication slot is computed. It is chosen once at configuration time
// and never changes for the lifetime of a run.
type StartOffsetPolicy string

const (
	// StartLatest resumes from the slot's confirmed flush position.
	StartLatest StartOffsetPolicy = "LATEST"
	// StartExplicitLSN resumes from a configured log sequence number.
	StartExplicitLSN StartOffsetPolicy = "EXPLICIT_LSN"
	// StartDateSeeded resumes from an offset the surrounding pipeline
	// derived from a date, already translated to an LSN before this
	// library runs.
	StartDateSeeded StartOffsetPolicy = "DATE_SEEDED"
)

// seedLSN is the "earliest available" position used by the date-seeded
// policy when no persisted offset exists yet.
const seedLSN = pglogrepl.LSN(1)

const (
	defaultDecoderPlugin    = "wal2json"
	defaultPollIntervalSecs = 1
	defaultReplicationMode  = "database"
	defaultMinServerVersion = 9.4
)

// SchemaTableConfig is one allow-list entry: LIKE patterns for schema and
// table plus an optional exclude regular expression matched against the
// full table name.
type SchemaTableConfig struct {
	Schema         string `yaml:"schema"`
	Table          string `yaml:"table"`
	ExcludePattern string `yaml:"exclude_pattern"`
}

type Config struct {
	DbHost     string `yaml:"db_host"`
	DbPort     int    `yaml:"db_port"`
	DbName     string `yaml:"db_name"`
	DbUser     string `yaml:"db_user"`
	DbPassword string `yaml:"db_password"`

	TlsVerify TlsVerify `yaml:"tls_verify"`

	ReplicationSlotName string `yaml:"replication_slot_name"`
	DecoderPlugin       string `yaml:"decoder_plugin"`

	StartPolicy StartOffsetPolicy `yaml:"start_policy"`
	// StartLSN is consulted by the EXPLICIT_LSN policy only.
	StartLSN string `yaml:"start_lsn"`

	// PollIntervalSeconds doubles as the standby status interval on the
	// replication stream.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// MinServerVersion is the lowest server major.minor this receiver
	// accepts on the replication connection.
	MinServerVersion float64 `yaml:"min_server_version"`
	// ReplicationMode is the value of the replication connection
	// parameter, normally "database" for logical decoding.
	ReplicationMode string `yaml:"replication_mode"`

	SchemaTables []SchemaTableConfig `yaml:"schema_tables"`
}

// Validate fills defaults and rejects configurations the receiver cannot
// start with.
func (c *Config) Validate() error {
	if c.DbHost == "" {
		return fmt.Errorf("db_host is required")
	}
	if c.DbName == "" {
		return fmt.Errorf("db_name is required")
	}
	if c.ReplicationSlotName == "" {
		return fmt.Errorf("replication_slot_name is required")
	}
	if c.DecoderPlugin == "" {
		c.DecoderPlugin = defaultDecoderPlugin
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = defaultPollIntervalSecs
	}
	if c.ReplicationMode == "" {
		c.ReplicationMode = defaultReplicationMode
	}
	if c.MinServerVersion == 0 {
		c.MinServerVersion = defaultMinServerVersion
	}
	switch c.StartPolicy {
	case "":
		c.StartPolicy = StartLatest
	case StartLatest, StartDateSeeded:
	case StartExplicitLSN:
		if _, err := pglogrepl.ParseLSN(c.StartLSN); err != nil {
			return fmt.Errorf("start_lsn %q is not a valid LSN: %w", c.StartLSN, err)
		}
	default:
		return fmt.Errorf("unknown start_policy %q", c.StartPolicy)
	}
	return nil
}

func (c *Config) pollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
