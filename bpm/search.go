package bpm

import (
	"context"
	"strings"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
)

const (
	defaultMaxResults = 10
	maxMaxResults     = 1000
)

type FilterOperator = string

const (
	FilterOperatorEq  FilterOperator = "eq"
	FilterOperatorNeq FilterOperator = "neq"
	FilterOperatorGt  FilterOperator = "gt"
	FilterOperatorLt  FilterOperator = "lt"
	FilterOperatorIn  FilterOperator = "in"
)

type Order = string

const (
	OrderAsc  Order = "ASC"
	OrderDesc Order = "DESC"
)

// Filter 字段名是对外的字段名, 由各实体的 SearchDescriptor 转换成列名
type Filter struct {
	Field    string         `json:"field" validate:"required"`
	Value    any            `json:"value"`
	Operator FilterOperator `json:"operator"`
}

type Sort struct {
	Field string `json:"field" validate:"required"`
	Order Order  `json:"order"`
}

// SearchOptions 搜索参数
//
//	MaxResults <= 0 时为 10, 超过 1000 按 1000 处理
//	Term 在实体的文本字段上做前缀匹配
type SearchOptions struct {
	StartIndex int64    `json:"start_index" validate:"gte=0"`
	MaxResults int64    `json:"max_results"`
	Filters    []Filter `json:"filters" validate:"dive"`
	Term       string   `json:"term"`
	Sorts      []Sort   `json:"sorts" validate:"dive"`
}

// NewSearchOptions 从 startIndex 开始取 maxResults 条
func NewSearchOptions(startIndex, maxResults int64) *SearchOptions {
	return &SearchOptions{StartIndex: startIndex, MaxResults: maxResults}
}

func (o *SearchOptions) Filter(field string, value any) *SearchOptions {
	o.Filters = append(o.Filters, Filter{Field: field, Value: value, Operator: FilterOperatorEq})
	return o
}

func (o *SearchOptions) FilterOp(field string, operator FilterOperator, value any) *SearchOptions {
	o.Filters = append(o.Filters, Filter{Field: field, Value: value, Operator: operator})
	return o
}

func (o *SearchOptions) SearchTerm(term string) *SearchOptions {
	o.Term = term
	return o
}

func (o *SearchOptions) Sort(field string, order Order) *SearchOptions {
	o.Sorts = append(o.Sorts, Sort{Field: field, Order: order})
	return o
}

type SearchResult[T any] struct {
	Count  int64 `json:"count"`
	Result []T   `json:"result"`
}

// SearchDescriptor 实体可以搜索和排序的字段: 对外字段名 -> 列名
type SearchDescriptor struct {
	Fields     map[string]string
	TermFields []string
	// DefaultSort 没有指定排序时使用, 保证分页稳定
	DefaultSort store.OrderBy
}

var (
	UserSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "userName": "user_name", "firstName": "first_name", "lastName": "last_name",
			"jobTitle": "job_title", "managerUserId": "manager_user_id", "enabled": "enabled",
			"lastConnection": "last_connection",
		},
		TermFields:  []string{"user_name", "first_name", "last_name", "job_title"},
		DefaultSort: store.OrderBy{Field: "user_name"},
	}
	RoleSearchDescriptor = SearchDescriptor{
		Fields:      map[string]string{"id": "id", "name": "name", "displayName": "display_name"},
		TermFields:  []string{"name", "display_name"},
		DefaultSort: store.OrderBy{Field: "name"},
	}
	GroupSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "name": "name", "displayName": "display_name", "parentPath": "parent_path", "path": "path",
		},
		TermFields:  []string{"name", "display_name"},
		DefaultSort: store.OrderBy{Field: "path"},
	}
	TenantSearchDescriptor = SearchDescriptor{
		Fields:      map[string]string{"id": "id", "name": "name", "status": "status", "isDefault": "is_default"},
		TermFields:  []string{"name", "description"},
		DefaultSort: store.OrderBy{Field: "id"},
	}
	ProcessDeploymentInfoSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "name": "name", "version": "version", "displayName": "display_name",
			"activationState": "activation_state", "configurationState": "configuration_state",
			"deployedBy": "deployed_by", "deploymentDate": "deployed_at", "lastUpdateDate": "last_updated_at",
		},
		TermFields:  []string{"name", "display_name", "version"},
		DefaultSort: store.OrderBy{Field: "name"},
	}
	ProcessInstanceSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "name": "name", "processDefinitionId": "process_definition_id", "state": "state",
			"startedBy": "started_by", "startDate": "started_at", "lastUpdate": "last_updated_at",
		},
		TermFields:  []string{"name"},
		DefaultSort: store.OrderBy{Field: "id"},
	}
	ArchivedProcessInstanceSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "name": "name", "processDefinitionId": "process_definition_id", "state": "state",
			"sourceObjectId": "source_object_id", "startedBy": "started_by", "endDate": "ended_at",
			"archiveDate": "archived_at",
		},
		TermFields:  []string{"name"},
		DefaultSort: store.OrderBy{Field: "id"},
	}
	ActivityInstanceSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "name": "name", "type": "type", "state": "state",
			"processInstanceId": "process_instance_id", "processDefinitionId": "process_definition_id",
			"actorId": "actor_id", "assigneeId": "assignee_id", "priority": "priority", "dueDate": "due_date",
			"reachedStateDate": "reached_state_at",
		},
		TermFields:  []string{"name", "display_name"},
		DefaultSort: store.OrderBy{Field: "id"},
	}
	CommentSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "processInstanceId": "process_instance_id", "userId": "user_id", "postDate": "posted_at",
		},
		TermFields:  []string{"content"},
		DefaultSort: store.OrderBy{Field: "posted_at"},
	}
	DocumentSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "name": "name", "processInstanceId": "process_instance_id", "version": "version",
			"mimeType": "mime_type", "authorId": "author_id", "creationDate": "created_at",
		},
		TermFields:  []string{"name", "file_name"},
		DefaultSort: store.OrderBy{Field: "id"},
	}
	ConnectorInstanceSearchDescriptor = SearchDescriptor{
		Fields: map[string]string{
			"id": "id", "name": "name", "connectorId": "connector_id", "state": "state", "event": "event",
			"processInstanceId": "process_instance_id", "containerId": "flow_node_id",
		},
		TermFields:  []string{"name", "connector_id"},
		DefaultSort: store.OrderBy{Field: "id"},
	}
)

func pager(startIndex, maxResults int64) *store.Pager {
	if startIndex < 0 {
		startIndex = 0
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxMaxResults {
		maxResults = maxMaxResults
	}
	return store.Range(startIndex, maxResults)
}

// toQuery 把搜索参数转换成存储层的查询参数, 未知字段返回 ErrSearch
func (d *SearchDescriptor) toQuery(options *SearchOptions, extra ...store.Cond) (*store.QueryParams, error) {
	if options == nil {
		options = &SearchOptions{}
	}
	if err := validatorUtil.Struct(options); err != nil {
		return nil, errors.Wrapf(ErrSearch, "invalid search options: %v", err)
	}
	params := &store.QueryParams{
		Where: append([]store.Cond{}, extra...),
		Page:  pager(options.StartIndex, options.MaxResults),
	}
	for _, filter := range options.Filters {
		column, ok := d.Fields[filter.Field]
		if !ok {
			return nil, errors.Wrapf(ErrSearch, "unknown filter field: %s", filter.Field)
		}
		var op store.Operator
		switch strings.ToLower(filter.Operator) {
		case "", FilterOperatorEq:
			op = store.OpEq
		case FilterOperatorNeq:
			op = store.OpNeq
		case FilterOperatorGt:
			op = store.OpGt
		case FilterOperatorLt:
			op = store.OpLt
		case FilterOperatorIn:
			op = store.OpIn
		default:
			return nil, errors.Wrapf(ErrSearch, "unknown filter operator: %s", filter.Operator)
		}
		params.Where = append(params.Where, store.Cond{Field: column, Op: op, Value: filter.Value})
	}
	if term := strings.TrimSpace(options.Term); term != "" {
		params.Term = &store.Term{Fields: d.TermFields, Value: term}
	}
	for _, sort := range options.Sorts {
		column, ok := d.Fields[sort.Field]
		if !ok {
			return nil, errors.Wrapf(ErrSearch, "unknown sort field: %s", sort.Field)
		}
		params.OrderBy = append(params.OrderBy, store.OrderBy{Field: column, Desc: strings.EqualFold(sort.Order, OrderDesc)})
	}
	if len(params.OrderBy) == 0 {
		params.OrderBy = []store.OrderBy{d.DefaultSort}
	}
	if d.DefaultSort.Field != "id" {
		// 排序字段相同的情况下按 id 保证顺序稳定
		params.OrderBy = append(params.OrderBy, store.OrderBy{Field: "id"})
	}
	return params, nil
}

// search 通用搜索: 先 count 再分页查询, 然后转换
func search[P any, T any](ctx context.Context, repo *store.Repo, d *SearchDescriptor, options *SearchOptions, convert func(*P) T, extra ...store.Cond) (*SearchResult[T], error) {
	params, err := d.toQuery(options, extra...)
	if err != nil {
		return nil, err
	}
	count, err := store.Count[P](ctx, repo, params)
	if err != nil {
		return nil, translateError(err, nil, ErrSearch)
	}
	pos, err := store.Find[P](ctx, repo, params)
	if err != nil {
		return nil, translateError(err, nil, ErrSearch)
	}
	result := make([]T, 0, len(pos))
	for _, po := range pos {
		result = append(result, convert(po))
	}
	return &SearchResult[T]{Count: count, Result: result}, nil
}
