package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hermes/internal/chat"

	_ "modernc.org/sqlite"
)

// SQLiteIndex 基于 SQLite (WAL 模式) 的归档索引实现
// SQLiteIndex implements Index using SQLite with WAL mode
type SQLiteIndex struct {
	db   *sql.DB
	path string
}

// NewSQLiteIndex 创建并初始化 SQLite 数据库
// NewSQLiteIndex creates and initializes the SQLite database
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	idx := &SQLiteIndex{db: db, path: dbPath}
	if err := idx.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS archives (
		key                TEXT PRIMARY KEY,
		topic_id           TEXT NOT NULL UNIQUE,
		title              TEXT NOT NULL DEFAULT '',
		tags               TEXT NOT NULL DEFAULT '[]',
		summary            TEXT NOT NULL DEFAULT '',
		suggested_filename TEXT NOT NULL DEFAULT '',
		filename           TEXT NOT NULL DEFAULT '',
		archived_at        TEXT NOT NULL,
		conversation       TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_archives_archived_at ON archives(archived_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteIndex) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteIndex) Add(rec Record) error {
	if strings.TrimSpace(rec.Key) == "" {
		return fmt.Errorf("record key is empty")
	}
	if strings.TrimSpace(rec.TopicID) == "" {
		return fmt.Errorf("record topic id is empty")
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now().UTC()
	}

	dup, err := s.HasTopic(rec.TopicID)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTopic, rec.TopicID)
	}

	tagsJSON, err := json.Marshal(emptyIfNil(rec.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	convJSON, err := json.Marshal(rec.Conversation)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO archives (key, topic_id, title, tags, summary, suggested_filename, filename, archived_at, conversation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Key, rec.TopicID, rec.Title, string(tagsJSON), rec.Summary,
		rec.SuggestedFilename, rec.Filename,
		rec.ArchivedAt.UTC().Format(time.RFC3339), string(convJSON),
	)
	if err != nil {
		// UNIQUE(topic_id) 兜底并发下的重复写入
		// UNIQUE(topic_id) backstops duplicate writes under concurrency
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("%w: %s", ErrDuplicateTopic, rec.TopicID)
		}
		return fmt.Errorf("insert archive: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) HasTopic(topicID string) (bool, error) {
	topicID = strings.TrimSpace(topicID)
	if topicID == "" {
		return false, fmt.Errorf("topic id is empty")
	}
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM archives WHERE topic_id=?`, topicID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup topic: %w", err)
	}
	return true, nil
}

func (s *SQLiteIndex) Load() ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT key, topic_id, title, tags, summary, suggested_filename, filename, archived_at, conversation
		FROM archives ORDER BY archived_at`)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			tagsJSON   string
			convJSON   string
			archivedAt string
		)
		if err := rows.Scan(&rec.Key, &rec.TopicID, &rec.Title, &tagsJSON, &rec.Summary,
			&rec.SuggestedFilename, &rec.Filename, &archivedAt, &convJSON); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
			rec.Tags = nil
		}
		var conv []chat.Entry
		if err := json.Unmarshal([]byte(convJSON), &conv); err == nil {
			rec.Conversation = conv
		}
		if ts, err := time.Parse(time.RFC3339, archivedAt); err == nil {
			rec.ArchivedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func emptyIfNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
