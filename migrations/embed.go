// Package migrations 随二进制嵌入的 SQL 迁移文件
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
