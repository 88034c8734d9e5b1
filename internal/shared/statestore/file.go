package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"agentpm/internal/shared/model"
)

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileCheckpoints 文件系统上的最新检查点副本
//
// 每个会话只保留一份 {dir}/{id}.json，主存储不可达时作为恢复途径。
type FileCheckpoints struct {
	dir string
}

// NewFileCheckpoints 创建文件检查点目录
func NewFileCheckpoints(dir string) (*FileCheckpoints, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	return &FileCheckpoints{dir: dir}, nil
}

// Dir 返回目录
func (f *FileCheckpoints) Dir() string {
	return f.dir
}

func (f *FileCheckpoints) path(conversationID string) string {
	return filepath.Join(f.dir, unsafeNameRe.ReplaceAllString(conversationID, "_")+".json")
}

// Write 写入检查点（临时文件 + rename）
func (f *FileCheckpoints) Write(cp *model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	target := f.path(cp.ConversationID)
	tmp, err := os.CreateTemp(f.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// Read 读取检查点，不存在时返回 ErrNotFound
func (f *FileCheckpoints) Read(conversationID string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(f.path(conversationID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// ============================================================================
// FallbackStore
// ============================================================================

// FallbackStore 为主存储附加文件检查点副本
//
// 检查点总是同时写入文件；主存储读取失败时从文件恢复。
type FallbackStore struct {
	Store
	files *FileCheckpoints
}

// WithFileFallback 包装主存储
func WithFileFallback(primary Store, files *FileCheckpoints) *FallbackStore {
	return &FallbackStore{Store: primary, files: files}
}

// CreateCheckpoint 主存储失败时仍写入文件副本，仅在两者都失败时返回错误
func (s *FallbackStore) CreateCheckpoint(ctx context.Context, state *model.ConversationState) (*model.Checkpoint, error) {
	cp, err := s.Store.CreateCheckpoint(ctx, state)
	if err != nil {
		log.Printf("[StateStore] WARNING: primary checkpoint failed for %s: %v", state.ID, err)
		last := int64(0)
		if prev, ferr := s.files.Read(state.ID); ferr == nil {
			last = prev.Timestamp
		}
		cp = &model.Checkpoint{
			ConversationID: state.ID,
			Timestamp:      NextTimestamp(last, time.Now()),
			State:          state.Clone(),
		}
	}
	if ferr := s.files.Write(cp); ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("checkpoint failed (primary: %v): %w", err, ferr)
		}
		log.Printf("[StateStore] WARNING: file checkpoint failed for %s: %v", state.ID, ferr)
	}
	return cp, nil
}

// LatestCheckpoint 主存储失败或无记录时读取文件副本
func (s *FallbackStore) LatestCheckpoint(ctx context.Context, conversationID string) (*model.Checkpoint, error) {
	cp, err := s.Store.LatestCheckpoint(ctx, conversationID)
	if err == nil {
		return cp, nil
	}
	fcp, ferr := s.files.Read(conversationID)
	if ferr != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	log.Printf("[StateStore] Recovered %s from file checkpoint ts=%d", conversationID, fcp.Timestamp)
	return fcp, nil
}

// GetCheckpoint 指定时间戳不可用时，若文件副本时间戳一致则返回文件副本
func (s *FallbackStore) GetCheckpoint(ctx context.Context, conversationID string, timestamp int64) (*model.Checkpoint, error) {
	cp, err := s.Store.GetCheckpoint(ctx, conversationID, timestamp)
	if err == nil {
		return cp, nil
	}
	if fcp, ferr := s.files.Read(conversationID); ferr == nil && fcp.Timestamp == timestamp {
		return fcp, nil
	}
	return nil, err
}
