// Package jsondata json 对象的读写, 支持按路径访问嵌套字段
package jsondata

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotObject    = errors.New("json value is not an object")
	ErrPathNotFound = errors.New("json path not found")
)

// Object json 对象, 零值不可用, 用 New/Parse 创建
type Object struct {
	data map[string]any
}

func New(m map[string]any) *Object {
	if m == nil {
		m = make(map[string]any)
	}
	return &Object{data: m}
}

// Parse 解析 json, 空输入得到空对象, 数字保留为 json.Number
func Parse(b []byte) (*Object, error) {
	o := New(nil)
	if len(b) == 0 {
		return o, nil
	}
	if err := Unmarshal(b, &o.data); err != nil {
		return nil, errors.WithMessagef(ErrNotObject, "%v", err)
	}
	if o.data == nil {
		// json null
		o.data = make(map[string]any)
	}
	return o, nil
}

// Unmarshal 和 json.Unmarshal 一样, 但数字解码成 json.Number, 大整数不丢精度
func Unmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("invalid character after top-level value")
	}
	return nil
}

// Normalize 把 json.Number 换成 int64 或者 float64, 表达式和调用方按数字使用
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = Normalize(item)
		}
	case []any:
		for i, item := range t {
			t[i] = Normalize(item)
		}
	}
	return v
}

// SplitPath "a.b.0.c" 形式的路径, 空字符串表示根
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get 按路径取值, 数组用下标
func (o *Object) Get(keys ...string) (any, bool) {
	current := any(o.data)
	for _, key := range keys {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Lookup 按 "a.b" 路径取值并序列化成 json
func (o *Object) Lookup(path string) ([]byte, error) {
	v, ok := o.Get(SplitPath(path)...)
	if !ok {
		return nil, errors.WithMessagef(ErrPathNotFound, "path: %q", path)
	}
	return json.Marshal(v)
}

func (o *Object) GetString(keys ...string) (string, bool) {
	v, ok := o.Get(keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (o *Object) GetInt64(keys ...string) (int64, bool) {
	v, ok := o.Get(keys...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return FloatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return FloatToInt64(f)
	}
	return 0, false
}

// FloatToInt64 只接受范围内的整数值
func FloatToInt64(f float64) (int64, bool) {
	// 2^63 本身不能表示为 int64
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Set 设置值, 中间路径不是对象时会被覆盖
func (o *Object) Set(keys []string, value any) error {
	if len(keys) == 0 {
		return errors.New("keys cannot be empty")
	}
	current := o.data
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
	return nil
}

func (o *Object) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	current := o.data
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, keys[len(keys)-1])
}

// Merge 浅合并, other 覆盖当前值
func (o *Object) Merge(other map[string]any) {
	for k, v := range other {
		o.data[k] = v
	}
}

// Map 返回底层 map, 修改会影响 Object
func (o *Object) Map() map[string]any {
	return o.data
}

func (o *Object) Bytes() ([]byte, error) {
	return json.Marshal(o.data)
}
