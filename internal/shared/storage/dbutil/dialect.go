// Package dbutil 提供数据库方言抽象和工具函数
//
// repository 层所有 SQL 以 PostgreSQL 风格编写（$1, $2 占位符），
// 运行时由 Dialect.Rebind() 转换为目标数据库格式。
package dbutil

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
)

// Dialect 数据库方言接口
type Dialect interface {
	// DriverType 返回驱动类型标识
	DriverType() DriverType

	// Rebind 将 $1, $2, ... 占位符转换为目标数据库的格式
	Rebind(query string) string

	// CurrentTimestamp 返回当前时间戳的 SQL 表达式
	CurrentTimestamp() string

	// UpsertConflict 生成 UPSERT 的冲突处理子句
	UpsertConflict(conflictColumn string, updateExprs []string) string

	// AutoMigrate 自动创建数据库 Schema
	AutoMigrate(db *sql.DB) error
}

var pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)

var pgCastRe = regexp.MustCompile(`::(\w+)`)

// RebindToQuestion 将 $N 占位符转换为 ?（SQLite 使用）
func RebindToQuestion(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

// StripPgCasts 去除 PostgreSQL 类型转换 (::varchar, ::text 等)
func StripPgCasts(query string) string {
	return pgCastRe.ReplaceAllString(query, "")
}

// OnConflictUpdate PostgreSQL 与 SQLite 共用的 ON CONFLICT 语法
func OnConflictUpdate(conflictColumn string, updateExprs []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", conflictColumn, strings.Join(updateExprs, ", "))
}

// ExcludedColumns 生成 "col = EXCLUDED.col" 列表
func ExcludedColumns(cols ...string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	return out
}
