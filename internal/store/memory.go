package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// OpenInMemory 打开一个独立的内存 sqlite 并建表, 测试和示例使用
// 每次调用都是不同的库, 同一个库的多个连接共享缓存
func OpenInMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WithMessage(err, "get sql.DB failed")
	}
	// 内存库在最后一个连接关闭时销毁
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxIdleTime(0)
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
