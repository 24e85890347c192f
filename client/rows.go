package client

import (
	"database/sql"
	"strings"

	"github.com/sqlbridge/sqlbridge/sqlq"
)

// collectRows drains a database/sql row set into the positional result
// shape. []byte values are normalized to string: the MySQL and SQLite
// drivers hand text columns back as byte slices, which would otherwise
// leak an engine-specific representation to callers.
func collectRows(rows *sql.Rows) (sqlq.Result, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return sqlq.Result{}, err
	}

	res := sqlq.Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return sqlq.Result{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return sqlq.Result{}, err
	}
	return res, nil
}

// execInfo translates a database/sql result into the normalized
// affected-rows report. The engine's last-insert-id counter is sticky per
// connection (SQLite keeps the previous insert's rowid across later
// updates and deletes), so it is consulted only for INSERT statements.
func execInfo(res sql.Result, stmt string) sqlq.ExecInfo {
	info := sqlq.ExecInfo{}
	if n, err := res.RowsAffected(); err == nil {
		info.Changes = n
	}
	if !isInsert(stmt) {
		return info
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		info.LastInsertID = id
		info.HasInsertID = true
	}
	return info
}

func isInsert(stmt string) bool {
	s := strings.TrimSpace(stmt)
	return len(s) >= 6 && strings.EqualFold(s[:6], "INSERT")
}
