package pgwalreceiver

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
)

const selectTablesQuery = `select table_schema, table_name from information_schema.tables
	where table_schema like $1 and table_name like $2 order by table_schema, table_name`

// tableMetadataFunc resolves a (schema pattern, table pattern) pair into
// concrete catalog matches. Injectable so validation logic is testable
// without a server.
type tableMetadataFunc func(ctx context.Context, schemaPattern, tablePattern string) ([]SchemaTable, error)

// schemaTableValidator turns the configured schema/table patterns into a
// concrete allow-list. One failing entry does not abort the rest; its
// failure is collected as a ConfigIssue instead.
type schemaTableValidator struct {
	logger        *log.Logger
	tableMetadata tableMetadataFunc
}

func newSchemaTableValidator(conns *connManager, logger *log.Logger) *schemaTableValidator {
	v := &schemaTableValidator{logger: logger}
	v.tableMetadata = func(ctx context.Context, schemaPattern, tablePattern string) ([]SchemaTable, error) {
		var matches []SchemaTable
		err := conns.withControlConn(ctx, func(db *sql.DB) error {
			rows, err := db.QueryContext(ctx, selectTablesQuery, schemaPattern, tablePattern)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var st SchemaTable
				if err = rows.Scan(&st.Schema, &st.Table); err != nil {
					return err
				}
				matches = append(matches, st)
			}
			return rows.Err()
		})
		return matches, err
	}
	return v
}

// Validate resolves every configured entry and returns the surviving
// (schema, table) pairs along with the issues hit on the way. An entry
// with both patterns empty would match every table in the database, which
// is never intended, so it is skipped silently.
func (v *schemaTableValidator) Validate(ctx context.Context, entries []SchemaTableConfig) ([]SchemaTable, []ConfigIssue) {
	var (
		resolved []SchemaTable
		issues   []ConfigIssue
	)
	for _, entry := range entries {
		if entry.Schema == "" && entry.Table == "" {
			continue
		}

		var exclude *regexp.Regexp
		if entry.ExcludePattern != "" {
			re, err := regexp.Compile(`\A(?:` + entry.ExcludePattern + `)\z`)
			if err != nil {
				issues = append(issues, ConfigIssue{Schema: entry.Schema, Table: entry.Table, Err: err})
				continue
			}
			exclude = re
		}

		matches, err := v.tableMetadata(ctx, likePattern(entry.Schema), likePattern(entry.Table))
		if err != nil {
			issues = append(issues, ConfigIssue{Schema: entry.Schema, Table: entry.Table, Err: err})
			continue
		}

		for _, match := range matches {
			tableName := strings.TrimSpace(match.Table)
			if exclude != nil && exclude.MatchString(tableName) {
				continue
			}
			resolved = append(resolved, SchemaTable{
				Schema: strings.TrimSpace(match.Schema),
				Table:  tableName,
			})
		}
	}
	return resolved, issues
}

// likePattern maps an empty configured pattern to match-all, mirroring
// JDBC metadata pattern semantics.
func likePattern(p string) string {
	if p == "" {
		return "%"
	}
	return p
}
