package store

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var validatorUtil = validator.New()

// Open 打开数据库, driver 支持 sqlite 和 mysql
func Open(driver string, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "open database failed, driver: %s", driver)
	}
	return db, nil
}

// AutoMigrate 创建所有表
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return errors.WithMessage(err, "AutoMigrate failed")
	}
	return nil
}

// Repo 持久化访问入口, 租户 Repo 的所有查询都会带上 tenant_id 条件
type Repo struct {
	db       *gorm.DB
	tenantID int64
	scoped   bool
}

// NewPlatformRepo 平台级 Repo, 不带租户条件
func NewPlatformRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// NewTenantRepo 租户级 Repo
func NewTenantRepo(db *gorm.DB, tenantID int64) *Repo {
	return &Repo{db: db, tenantID: tenantID, scoped: true}
}

func (r *Repo) TenantID() int64 {
	return r.tenantID
}

type contextKey string

const (
	transactionContextKey contextKey = "transaction"
)

func (r *Repo) GetDBWithContext(ctx context.Context) *gorm.DB {
	tx := ctx.Value(transactionContextKey)
	if tx == nil {
		// 没有事务，直接返回db即可
		return r.db.WithContext(ctx)
	}
	return tx.(*gorm.DB)
}

// Transaction 在事务中执行 fn, 嵌套调用时复用外层事务
func (r *Repo) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(transactionContextKey) != nil {
		return fn(ctx)
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return errors.WithMessage(tx.Error, "begin transaction failed")
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		if commitErr := tx.Commit().Error; commitErr != nil {
			err = errors.WithMessage(translateError(commitErr), "commit transaction failed")
		}
	}()
	err = fn(context.WithValue(ctx, transactionContextKey, tx))
	return err
}

func (r *Repo) table(ctx context.Context, model any) *gorm.DB {
	db := r.GetDBWithContext(ctx).Model(model)
	if r.scoped {
		db = db.Where("tenant_id = ?", r.tenantID)
	}
	return db
}

func (r *Repo) fillTenant(po any) {
	if !r.scoped {
		return
	}
	v := reflect.ValueOf(po)
	if v.Kind() != reflect.Ptr {
		return
	}
	field := v.Elem().FieldByName("TenantID")
	if field.IsValid() && field.CanSet() && field.Kind() == reflect.Int64 {
		field.SetInt(r.tenantID)
	}
}

// translateError 把 gorm/驱动 的错误转换成 store 的错误
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.WithMessage(ErrRecordNotFound, err.Error())
	}
	msg := err.Error()
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") {
		return errors.WithMessage(ErrDuplicateKey, msg)
	}
	return err
}

func validField(field string) bool {
	if field == "" {
		return false
	}
	for _, c := range field {
		if !(c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

// prefixUpperBound 所有以 prefix 开头的字符串都小于返回值, 全是 0xff 时没有上界
func prefixUpperBound(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// likeEscape 不用反斜杠, mysql 字符串里反斜杠本身需要转义
const likeEscape = "!"

// EscapeLike 转义 LIKE 的通配符, 配合 ESCAPE '!' 使用
func EscapeLike(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(s)
}

func applyConds(db *gorm.DB, conds []Cond) (*gorm.DB, error) {
	for _, cond := range conds {
		if !validField(cond.Field) {
			return nil, errors.WithMessagef(ErrInvalidQuery, "invalid field: %q", cond.Field)
		}
		switch cond.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike:
			db = db.Where(cond.Field+" "+cond.Op+" ?", cond.Value)
		case OpIn, OpNotIn:
			if reflect.ValueOf(cond.Value).Kind() == reflect.Slice && reflect.ValueOf(cond.Value).Len() == 0 {
				if cond.Op == OpIn {
					// IN 空集合, 没有结果
					db = db.Where("1 = 0")
				}
				continue
			}
			db = db.Where(cond.Field+" "+cond.Op+" ?", cond.Value)
		case OpPrefix:
			prefix, ok := cond.Value.(string)
			if !ok || prefix == "" {
				return nil, errors.WithMessagef(ErrInvalidQuery, "invalid prefix: %v", cond.Value)
			}
			if upper, ok := prefixUpperBound(prefix); ok {
				db = db.Where(cond.Field+" >= ? AND "+cond.Field+" < ?", prefix, upper)
			} else {
				db = db.Where(cond.Field+" >= ?", prefix)
			}
		case OpIsNull, OpIsNotNull:
			db = db.Where(cond.Field + " " + cond.Op)
		default:
			return nil, errors.WithMessagef(ErrInvalidQuery, "invalid operator: %q", cond.Op)
		}
	}
	return db, nil
}

func buildQueryParams(db *gorm.DB, isCount bool, param *QueryParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryParams")
	}
	db, err := applyConds(db, param.Where)
	if err != nil {
		return nil, err
	}
	if param.Term != nil && param.Term.Value != "" && len(param.Term.Fields) > 0 {
		clauses := make([]string, 0, len(param.Term.Fields))
		args := make([]any, 0, len(param.Term.Fields))
		for _, field := range param.Term.Fields {
			if !validField(field) {
				return nil, errors.WithMessagef(ErrInvalidQuery, "invalid term field: %q", field)
			}
			clauses = append(clauses, field+" LIKE ? ESCAPE '"+likeEscape+"'")
			args = append(args, EscapeLike(param.Term.Value)+"%")
		}
		db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}
	if isCount {
		return db, nil
	}
	for _, order := range param.OrderBy {
		if !validField(order.Field) {
			return nil, errors.WithMessagef(ErrInvalidQuery, "invalid order field: %q", order.Field)
		}
		if order.Desc {
			db = db.Order(order.Field + " desc")
		} else {
			db = db.Order(order.Field + " asc")
		}
	}
	if param.Page == nil {
		return nil, errors.New("page is nil")
	}
	if param.Page.IsNoLimit != nil && *param.Page.IsNoLimit {
		// 不分页显示指定了true
		return db, nil
	}
	if param.Page.Size <= 0 {
		param.Page.Size = 10
	}
	if param.Page.Offset != nil {
		return db.Offset(int(*param.Page.Offset)).Limit(int(param.Page.Size)), nil
	}
	if param.Page.Page <= 0 {
		param.Page.Page = 1
	}
	return db.Offset(int(param.Page.Page-1) * int(param.Page.Size)).Limit(int(param.Page.Size)), nil
}

// Create 创建记录, 租户 Repo 自动填充 TenantID
func Create[T any](ctx context.Context, r *Repo, po *T) error {
	if po == nil {
		return errors.New("nil po")
	}
	r.fillTenant(po)
	if err := r.GetDBWithContext(ctx).Create(po).Error; err != nil {
		return errors.WithMessagef(translateError(err), "Create %T failed", po)
	}
	return nil
}

// Get 按主键查询
func Get[T any](ctx context.Context, r *Repo, id int64) (*T, error) {
	return First[T](ctx, r, Eq("id", id))
}

// First 按条件查询第一条, 没有时返回 ErrRecordNotFound
func First[T any](ctx context.Context, r *Repo, conds ...Cond) (*T, error) {
	po := new(T)
	db, err := applyConds(r.table(ctx, po), conds)
	if err != nil {
		return nil, err
	}
	if err := db.Order("id asc").First(po).Error; err != nil {
		return nil, errors.WithMessagef(translateError(err), "First %T failed", po)
	}
	return po, nil
}

func Find[T any](ctx context.Context, r *Repo, param *QueryParams) ([]*T, error) {
	db, err := buildQueryParams(r.table(ctx, new(T)), false, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryParams failed")
	}
	pos := make([]*T, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessagef(translateError(err), "Find %T failed", new(T))
	}
	return pos, nil
}

func Count[T any](ctx context.Context, r *Repo, param *QueryParams) (int64, error) {
	if param == nil {
		param = &QueryParams{}
	}
	db, err := buildQueryParams(r.table(ctx, new(T)), true, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildQueryParams failed")
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, errors.WithMessagef(translateError(err), "Count %T failed", new(T))
	}
	return count, nil
}

// Update 按条件更新, 返回影响的行数
func Update[T any](ctx context.Context, r *Repo, param *UpdateParams) (int64, error) {
	if err := validatorUtil.Struct(param); err != nil {
		return 0, errors.WithMessagef(ErrInvalidQuery, "update %T need where condition and fields, err: %v", new(T), err)
	}
	for field := range param.Fields {
		if !validField(field) {
			return 0, errors.WithMessagef(ErrInvalidQuery, "invalid update field: %q", field)
		}
	}
	db, err := applyConds(r.table(ctx, new(T)), param.Where)
	if err != nil {
		return 0, err
	}
	result := db.Updates(param.Fields)
	if result.Error != nil {
		return 0, errors.WithMessagef(translateError(result.Error), "Update %T failed", new(T))
	}
	return result.RowsAffected, nil
}

// UpdateByID 按主键更新, 记录不存在时返回 ErrRecordNotFound
func UpdateByID[T any](ctx context.Context, r *Repo, id int64, fields map[string]any) error {
	affected, err := Update[T](ctx, r, &UpdateParams{Where: []Cond{Eq("id", id)}, Fields: fields})
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := Get[T](ctx, r, id); err != nil {
			return err
		}
	}
	return nil
}

// Delete 按条件删除, 平台 Repo 必须带条件
func Delete[T any](ctx context.Context, r *Repo, conds ...Cond) (int64, error) {
	if len(conds) == 0 && !r.scoped {
		return 0, errors.WithMessagef(ErrInvalidQuery, "delete %T need where condition", new(T))
	}
	db, err := applyConds(r.table(ctx, new(T)), conds)
	if err != nil {
		return 0, err
	}
	if len(conds) == 0 {
		// 租户条件已经存在, 允许清空整个租户
		db = db.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	result := db.Delete(new(T))
	if result.Error != nil {
		return 0, errors.WithMessagef(translateError(result.Error), "Delete %T failed", new(T))
	}
	return result.RowsAffected, nil
}

// DeleteTenantData 分批删除 model 在当前租户下的所有数据, 每批 batchSize 条, 每批单独提交
func (r *Repo) DeleteTenantData(ctx context.Context, model any, batchSize int) error {
	if !r.scoped {
		return errors.WithMessage(ErrInvalidQuery, "DeleteTenantData need tenant repo")
	}
	if batchSize <= 0 {
		return errors.WithMessagef(ErrInvalidQuery, "invalid batch size: %d", batchSize)
	}
	for {
		var ids []int64
		err := r.GetDBWithContext(ctx).Model(model).Where("tenant_id = ?", r.tenantID).
			Order("id").Limit(batchSize).Pluck("id", &ids).Error
		if err != nil {
			return errors.WithMessagef(translateError(err), "DeleteTenantData %T failed", model)
		}
		if len(ids) == 0 {
			return nil
		}
		err = r.GetDBWithContext(ctx).Where("tenant_id = ? AND id IN ?", r.tenantID, ids).Delete(model).Error
		if err != nil {
			return errors.WithMessagef(translateError(err), "DeleteTenantData %T failed", model)
		}
		if len(ids) < batchSize {
			return nil
		}
	}
}
