// Package tests 是 simple-bpm 的场景测试。
//
// 此包位于 internal/ 目录下，外部项目无法导入。
//
// 测试内容：
//   - 多租户隔离和租户生命周期
//   - 同一个流程实例上的并发操作
//   - 基于文件的 sqlite 和文档目录，重启后数据仍然可用
//
// 在项目根目录运行：
//
//	go test ./internal/tests/...
package tests
