package index

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ImportJSON 将旧版 JSON 索引文件导入 SQLite，已存在的 topic 跳过
// ImportJSON imports a legacy JSON index file into SQLite, skipping topics
// that are already present. Returns the number of records imported.
func ImportJSON(jsonPath string, idx *SQLiteIndex) (int, error) {
	jsonPath = strings.TrimSpace(jsonPath)
	if jsonPath == "" {
		return 0, nil
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read legacy index: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parse legacy index: %w", err)
	}

	imported := 0
	for _, rec := range records {
		if strings.TrimSpace(rec.TopicID) == "" {
			continue
		}
		// 旧版记录可能缺少 key / legacy records may predate the key column
		if strings.TrimSpace(rec.Key) == "" {
			rec.Key = uuid.NewString()
		}
		exists, err := idx.HasTopic(rec.TopicID)
		if err != nil {
			return imported, err
		}
		if exists {
			continue
		}
		if err := idx.Add(rec); err != nil {
			fmt.Fprintf(os.Stderr, "skip import %s: %v\n", rec.TopicID, err)
			continue
		}
		imported++
	}
	return imported, nil
}
