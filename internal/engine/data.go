package engine

import (
	"context"
	"encoding/json"

	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/jsondata"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
)

// ConvertValue 按声明的类型转换, nil 对所有类型都合法
func ConvertValue(dataType design.DataType, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch dataType {
	case design.DataTypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case design.DataTypeBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case design.DataTypeInteger:
		if i, ok := toInt64(value); ok {
			return i, nil
		}
	case design.DataTypeDouble:
		if f, ok := toFloat64(value); ok {
			return f, nil
		}
	case design.DataTypeJSON:
		if _, err := json.Marshal(value); err != nil {
			return nil, errors.WithMessagef(ErrInvalidData, "value is not json: %v", err)
		}
		return value, nil
	default:
		return nil, errors.WithMessagef(ErrInvalidData, "unknown data type: %s", dataType)
	}
	return nil, errors.WithMessagef(ErrInvalidData, "value %v (%T) is not %s", value, value, dataType)
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return jsondata.FloatToInt64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return jsondata.FloatToInt64(f)
		}
	}
	return 0, false
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// EncodeValue 数据库存储格式
func EncodeValue(value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, errors.WithMessagef(ErrInvalidData, "marshal value failed: %v", err)
	}
	return b, nil
}

// DecodeValue 从数据库格式还原, 数字按声明的类型还原
func DecodeValue(dataType design.DataType, b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var value any
	if err := jsondata.Unmarshal(b, &value); err != nil {
		return nil, errors.WithMessagef(ErrInvalidData, "unmarshal value failed: %v", err)
	}
	if dataType == design.DataTypeJSON {
		return jsondata.Normalize(value), nil
	}
	return ConvertValue(dataType, value)
}

// ProcessData 流程实例的所有数据, 名字 -> 值
func (e *Engine) ProcessData(ctx context.Context, processInstanceID int64) (map[string]any, error) {
	pos, err := store.Find[store.DataInstancePo](ctx, e.repo, store.Where(store.Eq("process_instance_id", processInstanceID)))
	if err != nil {
		return nil, errors.WithMessagef(err, "find data instances failed, processInstanceID: %d", processInstanceID)
	}
	data := make(map[string]any, len(pos))
	for _, po := range pos {
		value, err := DecodeValue(po.Type, po.Value)
		if err != nil {
			return nil, errors.WithMessagef(err, "data: %s", po.Name)
		}
		data[po.Name] = value
	}
	return data, nil
}

// UpdateProcessData 更新流程数据, 数据必须已经声明, 类型必须匹配
func (e *Engine) UpdateProcessData(ctx context.Context, processInstanceID int64, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return e.repo.Transaction(ctx, func(ctx context.Context) error {
		instance, err := store.Get[store.ProcessInstancePo](ctx, e.repo, processInstanceID)
		if err != nil {
			return errors.WithMessagef(err, "get process instance failed, id: %d", processInstanceID)
		}
		if IsOverProcessInstanceState(instance.State) {
			return errors.WithMessagef(ErrInvalidState, "process instance %d is %s", processInstanceID, instance.State)
		}
		return e.setProcessData(ctx, instance.ID, values)
	})
}

func (e *Engine) setProcessData(ctx context.Context, processInstanceID int64, values map[string]any) error {
	for name, value := range values {
		po, err := store.First[store.DataInstancePo](ctx, e.repo,
			store.Eq("process_instance_id", processInstanceID), store.Eq("name", name))
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return errors.WithMessagef(ErrInvalidData, "data %s is not declared", name)
			}
			return errors.WithMessagef(err, "get data instance failed, name: %s", name)
		}
		converted, err := ConvertValue(po.Type, value)
		if err != nil {
			return errors.WithMessagef(err, "data: %s", name)
		}
		b, err := EncodeValue(converted)
		if err != nil {
			return err
		}
		if err := store.UpdateByID[store.DataInstancePo](ctx, e.repo, po.ID, map[string]any{"value": b}); err != nil {
			return errors.WithMessagef(err, "update data instance failed, name: %s", name)
		}
	}
	return nil
}

// ActivityData 节点本地数据
func ActivityData(node *store.FlowNodeInstancePo) (map[string]any, error) {
	local, err := jsondata.Parse(node.LocalData)
	if err != nil {
		return nil, errors.WithMessagef(err, "flow node %d local data", node.ID)
	}
	v, ok := local.Get(LocalDataKeyData)
	if !ok {
		return map[string]any{}, nil
	}
	data, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	jsondata.Normalize(data)
	return data, nil
}

// UpdateActivityData 更新节点本地数据, 数据必须在节点上声明
func (e *Engine) UpdateActivityData(ctx context.Context, node *store.FlowNodeInstancePo, name string, value any) error {
	def, err := e.Definition(ctx, node.ProcessDefinitionID)
	if err != nil {
		return err
	}
	nodeDef, ok := def.Design.GetFlowNode(node.Name)
	if !ok {
		return errors.WithMessagef(ErrDefinitionCorrupted, "flow node %s not in design", node.Name)
	}
	var dataDef *design.DataDefinition
	for _, d := range nodeDef.Data {
		if d.Name == name {
			dataDef = d
		}
	}
	if dataDef == nil {
		return errors.WithMessagef(ErrInvalidData, "activity data %s is not declared on %s", name, node.Name)
	}
	converted, err := ConvertValue(dataDef.Type, value)
	if err != nil {
		return errors.WithMessagef(err, "activity data: %s", name)
	}
	local, err := jsondata.Parse(node.LocalData)
	if err != nil {
		return err
	}
	if err := local.Set([]string{LocalDataKeyData, name}, converted); err != nil {
		return err
	}
	b, err := local.Bytes()
	if err != nil {
		return errors.WithMessagef(ErrInvalidData, "%v", err)
	}
	if err := store.UpdateByID[store.FlowNodeInstancePo](ctx, e.repo, node.ID, map[string]any{"local_data": b}); err != nil {
		return errors.WithMessagef(err, "update flow node local data failed, id: %d", node.ID)
	}
	node.LocalData = b
	return nil
}
