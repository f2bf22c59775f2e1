package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/9triver/opcgw/internal/domain/audit"
	audittypes "github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/infra/database"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// 时间统一以 UTC 毫秒整数存储，范围查询与清理直接比较整数
const schema = `
CREATE TABLE IF NOT EXISTS operation_logs (
	id            TEXT PRIMARY KEY,
	ts            INTEGER NOT NULL,
	user          TEXT NOT NULL,
	operation     TEXT NOT NULL,
	resource_type TEXT NOT NULL DEFAULT '',
	resource_id   TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT '',
	endpoint      TEXT NOT NULL DEFAULT '',
	details       TEXT
);
CREATE INDEX IF NOT EXISTS idx_operation_logs_ts ON operation_logs(ts);
CREATE INDEX IF NOT EXISTS idx_operation_logs_user ON operation_logs(user, ts);
CREATE INDEX IF NOT EXISTS idx_operation_logs_resource ON operation_logs(resource_id, ts);
`

const columns = "id, ts, user, operation, resource_type, resource_id, action, status, endpoint, details"

type sqliteRepo struct {
	db *sql.DB
}

// NewOperationLogRepoSQLite 打开（必要时创建）审计数据库
func NewOperationLogRepoSQLite(dbPath string, cfg *database.Config) (audit.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg != nil {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logrus.Infof("Audit repository opened at %s", dbPath)
	return &sqliteRepo{db: db}, nil
}

func (r *sqliteRepo) Close() error {
	return r.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// SaveOperation 写入一条审计记录，Timestamp 为空时取当前时间
func (r *sqliteRepo) SaveOperation(ctx context.Context, log *audittypes.OperationLog) error {
	ts := log.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var details sql.NullString
	if len(log.Details) > 0 {
		raw, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details of %s: %w", log.ID, err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO operation_logs ("+columns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		log.ID, toMillis(ts), log.User, string(log.Operation), log.ResourceType,
		log.ResourceID, log.Action, log.Status, log.Endpoint, details,
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation log %s: %w", log.ID, err)
	}
	return nil
}

// filter 将查询选项翻译为 WHERE 子句
func filter(options *audittypes.QueryOptions) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if options.StartTime != nil {
		add("ts >= ?", toMillis(*options.StartTime))
	}
	if options.EndTime != nil {
		add("ts <= ?", toMillis(*options.EndTime))
	}
	if options.User != "" {
		add("user = ?", options.User)
	}
	if options.Operation != "" {
		add("operation = ?", string(options.Operation))
	}
	if options.ResourceID != "" {
		add("resource_id = ?", options.ResourceID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// GetOperations 按时间倒序分页查询，limit+1 的 hasMore 判断由调用方完成
func (r *sqliteRepo) GetOperations(ctx context.Context, options *audittypes.QueryOptions) ([]*audittypes.OperationLog, error) {
	where, args := filter(options)
	limit := options.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, max(options.Offset, 0))

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+columns+" FROM operation_logs"+where+" ORDER BY ts DESC, id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*audittypes.OperationLog, 0, limit)
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operation logs: %w", err)
	}
	return logs, nil
}

func scanLog(rows *sql.Rows) (*audittypes.OperationLog, error) {
	var (
		log     audittypes.OperationLog
		op      string
		ms      int64
		details sql.NullString
	)
	if err := rows.Scan(&log.ID, &ms, &log.User, &op, &log.ResourceType, &log.ResourceID,
		&log.Action, &log.Status, &log.Endpoint, &details); err != nil {
		return nil, fmt.Errorf("failed to scan operation log: %w", err)
	}
	log.Operation = audittypes.OperationType(op)
	log.Timestamp = time.UnixMilli(ms).UTC()
	if details.Valid {
		if err := json.Unmarshal([]byte(details.String), &log.Details); err != nil {
			logrus.Warnf("Discarding malformed details of operation log %s: %v", log.ID, err)
			log.Details = nil
		}
	}
	return &log, nil
}

// DeleteBefore 删除早于 before 的审计记录
func (r *sqliteRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM operation_logs WHERE ts < ?", toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune operation logs: %w", err)
	}
	return res.RowsAffected()
}
