package store

import (
	"github.com/pkg/errors"
)

var (
	// ErrRecordNotFound 记录不存在, 上层转换成对应的 NotFound 错误
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateKey 唯一键冲突, 上层转换成 AlreadyExists
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidQuery 查询参数错误, 比如排序字段不存在
	ErrInvalidQuery = errors.New("invalid query")
)

type Operator = string

const (
	OpEq        Operator = "="
	OpNeq       Operator = "<>"
	OpGt        Operator = ">"
	OpGte       Operator = ">="
	OpLt        Operator = "<"
	OpLte       Operator = "<="
	OpIn        Operator = "IN"
	OpNotIn     Operator = "NOT IN"
	OpLike      Operator = "LIKE"
	OpPrefix    Operator = "PREFIX" // 字符串前缀, 按范围比较, 没有通配符
	OpIsNull    Operator = "IS NULL"
	OpIsNotNull Operator = "IS NOT NULL"
)

// Cond 单个查询条件, Field 是数据库列名
type Cond struct {
	Field string
	Op    Operator
	Value any
}

func Eq(field string, value any) Cond    { return Cond{Field: field, Op: OpEq, Value: value} }
func Neq(field string, value any) Cond   { return Cond{Field: field, Op: OpNeq, Value: value} }
func In(field string, value any) Cond    { return Cond{Field: field, Op: OpIn, Value: value} }
func NotIn(field string, value any) Cond { return Cond{Field: field, Op: OpNotIn, Value: value} }
func Gt(field string, value any) Cond    { return Cond{Field: field, Op: OpGt, Value: value} }
func Lt(field string, value any) Cond    { return Cond{Field: field, Op: OpLt, Value: value} }
func Prefix(field, prefix string) Cond   { return Cond{Field: field, Op: OpPrefix, Value: prefix} }

// Term 多个列上的前缀匹配, 列之间是 or
type Term struct {
	Fields []string
	Value  string
}

type OrderBy struct {
	Field string
	Desc  bool
}

type Pager struct {
	IsNoLimit *bool `json:"is_no_limit"`
	Page      int64 `json:"page"`
	Size      int64 `json:"size"`
	// Offset 不为空时优先使用 Offset, api 层使用的是 startIndex/maxResults
	Offset *int64 `json:"offset"`
}

// QueryParams 通用查询参数
type QueryParams struct {
	Where   []Cond    `json:"where"`
	Term    *Term     `json:"term"`
	OrderBy []OrderBy `json:"order_by"`
	Page    *Pager    `json:"page"`
}

// Where 只有条件不分页的查询参数
func Where(conds ...Cond) *QueryParams {
	return &QueryParams{Where: conds, Page: &Pager{IsNoLimit: Bool(true)}}
}

// Range startIndex/maxResults 形式的分页
func Range(startIndex, maxResults int64) *Pager {
	return &Pager{Offset: &startIndex, Size: maxResults}
}

// UpdateParams 更新参数, 必须带条件
type UpdateParams struct {
	Where  []Cond         `json:"where" validate:"required,min=1"`
	Fields map[string]any `json:"fields" validate:"required,min=1"`
}

func Bool(b bool) *bool       { return &b }
func Int64(i int64) *int64    { return &i }
func String(s string) *string { return &s }
