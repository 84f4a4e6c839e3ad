package postgres

import (
	"context"
	"database/sql"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// ApplyMigrations 以“按文件名排序”的方式执行 SQL 迁移，迁移文件
// 随二进制嵌入（embed.FS）。
// 说明：MVP 为了减少依赖，使用最朴素的 SQL 文件执行方式；后续可切换 goose/atlas。
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	ents, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}

	var files []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		files = append(files, path.Join(dir, name))
	}
	sort.Strings(files)

	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return err
		}
	}
	return nil
}
