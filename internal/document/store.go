// Package document 流程文档内容存储, 元数据在数据库里, 内容在磁盘上
package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/peterbourgon/diskv/v3"
	"github.com/pkg/errors"
)

var ErrContentNotFound = errors.New("document content not found")

// Store 基于 diskv 的内容存储, key 为 租户ID_uuid
type Store struct {
	dv *diskv.Diskv
}

func NewStore(dir string, cacheSizeMax uint64) *Store {
	return &Store{dv: diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    transform,
		CacheSizeMax: cacheSizeMax,
	})}
}

// transform 按租户分目录, 再用 uuid 前两位打散
func transform(key string) []string {
	tenant, id, ok := strings.Cut(key, "_")
	if !ok || len(id) < 2 {
		return []string{}
	}
	return []string{tenant, id[:2]}
}

func storageKey(tenantID int64, storageID string) string {
	return fmt.Sprintf("%d_%s", tenantID, storageID)
}

// Content 写入后的内容信息
type Content struct {
	StorageID string
	MimeType  string
	Size      int64
}

// Put 写入内容, mimeType 为空时按内容探测
func (s *Store) Put(_ context.Context, tenantID int64, mimeType string, content []byte) (*Content, error) {
	storageID := uuid.NewString()
	if err := s.dv.Write(storageKey(tenantID, storageID), content); err != nil {
		return nil, errors.WithMessagef(err, "write document content failed, tenantID: %d", tenantID)
	}
	if mimeType == "" {
		mimeType = mimetype.Detect(content).String()
	}
	return &Content{StorageID: storageID, MimeType: mimeType, Size: int64(len(content))}, nil
}

func (s *Store) Get(_ context.Context, tenantID int64, storageID string) ([]byte, error) {
	if _, err := uuid.Parse(storageID); err != nil {
		return nil, errors.WithMessagef(ErrContentNotFound, "invalid storageID: %q", storageID)
	}
	key := storageKey(tenantID, storageID)
	if !s.dv.Has(key) {
		return nil, errors.WithMessagef(ErrContentNotFound, "tenantID: %d, storageID: %s", tenantID, storageID)
	}
	b, err := s.dv.Read(key)
	if err != nil {
		return nil, errors.WithMessagef(err, "read document content failed, storageID: %s", storageID)
	}
	return b, nil
}

// Delete 删除内容, 不存在时不报错
func (s *Store) Delete(_ context.Context, tenantID int64, storageID string) error {
	if _, err := uuid.Parse(storageID); err != nil {
		return nil
	}
	key := storageKey(tenantID, storageID)
	if !s.dv.Has(key) {
		return nil
	}
	if err := s.dv.Erase(key); err != nil {
		return errors.WithMessagef(err, "erase document content failed, storageID: %s", storageID)
	}
	return nil
}

// DeleteTenant 删除租户下所有内容
func (s *Store) DeleteTenant(ctx context.Context, tenantID int64) error {
	prefix := fmt.Sprintf("%d_", tenantID)
	cancel := make(chan struct{})
	defer close(cancel)
	keys := make([]string, 0)
	for key := range s.dv.KeysPrefix(prefix, cancel) {
		keys = append(keys, key)
	}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.dv.Erase(key); err != nil {
			return errors.WithMessagef(err, "erase document content failed, key: %s", key)
		}
	}
	return nil
}
