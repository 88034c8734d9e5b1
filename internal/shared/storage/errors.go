// Package storage 定义存储层领域错误
//
// 各驱动实现（repository/mongostore/内存）负责将底层错误转换为这些领域错误。
package storage

import "errors"

var (
	// ErrNotFound 实体不存在
	// 替代 sql.ErrNoRows / mongo.ErrNoDocuments
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate 唯一键冲突
	ErrDuplicate = errors.New("duplicate: entity already exists")
)
