package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/blingmoon/simple-bpm/design"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupServer(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	client, err := bpm.New(&bpm.Options{
		DB:                db,
		DocumentDir:       t.TempDir(),
		JWTSecret:         "secret",
		TechnicalUser:     "install",
		TechnicalPassword: "install",
		LockWaitTimeout:   time.Second,
	})
	require.NoError(t, err)
	ctx := t.Context()
	_, err = client.Platform.CreatePlatform(ctx, "install")
	require.NoError(t, err)
	tenant, err := client.Platform.CreateTenant(ctx, &bpm.TenantCreator{Name: "acme"})
	require.NoError(t, err)
	require.NoError(t, client.Platform.ActivateTenant(ctx, tenant.ID))
	return NewServer(client, nil).Router()
}

func call(t *testing.T, router *gin.Engine, method, path, token string, body any) (int, *envelope) {
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	resp := &envelope{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), resp), "body: %s", w.Body.String())
	return w.Code, resp
}

func login(t *testing.T, router *gin.Engine, userName, password string) string {
	code, resp := call(t, router, http.MethodPost, "/api/login", "", gin.H{
		"tenant": "acme", "user_name": userName, "password": password,
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var result bpm.LoginResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	return result.Token
}

func decode[T any](t *testing.T, resp *envelope) T {
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v), "data: %s", string(resp.Data))
	return v
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: errors.Wrap(bpm.ErrUserNotFound, "id 1"), status: http.StatusNotFound},
		{err: bpm.ErrAlreadyExists, status: http.StatusConflict},
		{err: bpm.ErrInvalidParam, status: http.StatusBadRequest},
		{err: bpm.ErrLoginFailed, status: http.StatusUnauthorized},
		{err: bpm.ErrLockFailed, status: http.StatusLocked},
		{err: bpm.ErrProcessActivation, status: http.StatusConflict},
		{err: bpm.ErrCreation, status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := statusOf(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestServer_Auth(t *testing.T) {
	router := setupServer(t)

	t.Run("健康检查不需要登录", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("没有 token", func(t *testing.T) {
		code, resp := call(t, router, http.MethodGet, "/api/session", "", nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, CodeUnauthorized, resp.Code)
		code, _ = call(t, router, http.MethodGet, "/api/session", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("密码错误", func(t *testing.T) {
		code, _ := call(t, router, http.MethodPost, "/api/login", "", gin.H{"tenant": "acme", "user_name": "install", "password": "x"})
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = call(t, router, http.MethodPost, "/api/login", "", gin.H{"tenant": "acme"})
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("注销后 token 失效", func(t *testing.T) {
		token := login(t, router, "install", "install")
		code, resp := call(t, router, http.MethodGet, "/api/session", token, nil)
		require.Equal(t, http.StatusOK, code)
		session := decode[bpm.APISession](t, resp)
		assert.True(t, session.IsTechnical())
		code, _ = call(t, router, http.MethodPost, "/api/logout", token, nil)
		require.Equal(t, http.StatusOK, code)
		code, _ = call(t, router, http.MethodGet, "/api/session", token, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})
}

func TestServer_IdentityAndPlatform(t *testing.T) {
	router := setupServer(t)
	admin := login(t, router, "install", "install")

	code, resp := call(t, router, http.MethodPost, "/api/identity/users", admin, gin.H{"user_name": "walter.bates", "password": "bpm"})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	walter := decode[bpm.User](t, resp)

	t.Run("用户", func(t *testing.T) {
		code, _ := call(t, router, http.MethodPost, "/api/identity/users", admin, gin.H{"user_name": "walter.bates", "password": "bpm"})
		assert.Equal(t, http.StatusConflict, code)
		code, resp := call(t, router, http.MethodGet, fmt.Sprintf("/api/identity/users/%d", walter.ID), admin, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "walter.bates", decode[bpm.User](t, resp).UserName)
		code, _ = call(t, router, http.MethodGet, "/api/identity/users/9999", admin, nil)
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = call(t, router, http.MethodGet, "/api/identity/users/abc", admin, nil)
		assert.Equal(t, http.StatusBadRequest, code)

		code, resp = call(t, router, http.MethodPost, "/api/identity/users/search", admin, bpm.NewSearchOptions(0, 10).SearchTerm("wal"))
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, int64(1), decode[bpm.SearchResult[*bpm.User]](t, resp).Count)
	})

	t.Run("组角色和成员关系", func(t *testing.T) {
		code, resp := call(t, router, http.MethodPost, "/api/identity/groups", admin, gin.H{"name": "acme"})
		require.Equal(t, http.StatusCreated, code, resp.Message)
		group := decode[bpm.Group](t, resp)
		code, resp = call(t, router, http.MethodPost, "/api/identity/roles", admin, gin.H{"name": "member"})
		require.Equal(t, http.StatusCreated, code, resp.Message)
		role := decode[bpm.Role](t, resp)

		membership := gin.H{"user_id": walter.ID, "group_id": group.ID, "role_id": role.ID}
		code, _ = call(t, router, http.MethodPost, "/api/identity/memberships", admin, membership)
		assert.Equal(t, http.StatusCreated, code)
		code, _ = call(t, router, http.MethodPost, "/api/identity/memberships", admin, membership)
		assert.Equal(t, http.StatusConflict, code)
	})

	t.Run("平台接口只允许技术用户", func(t *testing.T) {
		token := login(t, router, "walter.bates", "bpm")
		code, _ := call(t, router, http.MethodGet, "/api/platform/tenants", token, nil)
		assert.Equal(t, http.StatusForbidden, code)

		code, resp := call(t, router, http.MethodPost, "/api/platform/tenants", admin, gin.H{"name": "globex"})
		require.Equal(t, http.StatusCreated, code, resp.Message)
		tenant := decode[bpm.Tenant](t, resp)
		code, resp = call(t, router, http.MethodPost, fmt.Sprintf("/api/platform/tenants/%d/activate", tenant.ID), admin, nil)
		require.Equal(t, http.StatusOK, code, resp.Message)
		assert.Equal(t, bpm.TenantStatusActivated, decode[bpm.Tenant](t, resp).Status)
		code, _ = call(t, router, http.MethodPost, fmt.Sprintf("/api/platform/tenants/%d/explode", tenant.ID), admin, nil)
		assert.Equal(t, http.StatusBadRequest, code)
		code, _ = call(t, router, http.MethodDelete, fmt.Sprintf("/api/platform/tenants/%d", tenant.ID), admin, nil)
		assert.Equal(t, http.StatusConflict, code)

		code, resp = call(t, router, http.MethodGet, "/api/platform/tenants?max_results=10", admin, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, decode[[]*bpm.Tenant](t, resp), 2)
	})
}

func reviewDesign(t *testing.T) []byte {
	d, err := design.NewBuilder("review", "1.0").
		AddActor("reviewer", true).
		AddData("comment", design.DataTypeString, "").
		AddStartEvent("start").
		AddUserTask("review", "reviewer").
		AddEndEvent("end").
		AddTransition("start", "review").
		AddTransition("review", "end").
		Done()
	require.NoError(t, err)
	b, err := d.Marshal()
	require.NoError(t, err)
	return b
}

func TestServer_Process(t *testing.T) {
	router := setupServer(t)
	admin := login(t, router, "install", "install")
	code, resp := call(t, router, http.MethodPost, "/api/identity/users", admin, gin.H{"user_name": "walter.bates", "password": "bpm"})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	walter := login(t, router, "walter.bates", "bpm")

	code, resp = call(t, router, http.MethodPost, "/api/process/definitions", admin, reviewDesign(t))
	require.Equal(t, http.StatusCreated, code, resp.Message)
	info := decode[bpm.ProcessDeploymentInfo](t, resp)
	base := fmt.Sprintf("/api/process/definitions/%d", info.ID)

	t.Run("部署", func(t *testing.T) {
		code, _ := call(t, router, http.MethodPost, "/api/process/definitions", admin, reviewDesign(t))
		assert.Equal(t, http.StatusConflict, code)
		code, _ = call(t, router, http.MethodPost, "/api/process/definitions", admin, []byte(`{"name":`))
		assert.Equal(t, http.StatusBadRequest, code)
		code, _ = call(t, router, http.MethodPost, base+"/enable", admin, nil)
		assert.Equal(t, http.StatusConflict, code)
	})

	t.Run("参与者映射后启用", func(t *testing.T) {
		code, resp := call(t, router, http.MethodPost, base+"/actor-mapping", admin,
			[]byte(`{"actors":[{"name":"reviewer","users":["walter.bates"]}]}`))
		require.Equal(t, http.StatusOK, code, resp.Message)
		assert.Empty(t, decode[[]*bpm.Problem](t, resp))
		code, resp = call(t, router, http.MethodPost, base+"/enable", admin, nil)
		require.Equal(t, http.StatusOK, code, resp.Message)
		assert.Equal(t, bpm.ActivationStateEnabled, decode[bpm.ProcessDeploymentInfo](t, resp).ActivationState)
	})

	var instance bpm.ProcessInstance
	t.Run("启动并处理任务", func(t *testing.T) {
		code, resp := call(t, router, http.MethodPost, base+"/instances", walter, gin.H{"variables": gin.H{"comment": "draft"}})
		require.Equal(t, http.StatusCreated, code, resp.Message)
		instance = decode[bpm.ProcessInstance](t, resp)

		code, resp = call(t, router, http.MethodGet, "/api/process/tasks", walter, nil)
		require.Equal(t, http.StatusOK, code)
		tasks := decode[bpm.SearchResult[*bpm.HumanTaskInstance]](t, resp)
		require.Equal(t, int64(1), tasks.Count)
		taskPath := fmt.Sprintf("/api/process/tasks/%d", tasks.Result[0].ID)

		code, resp = call(t, router, http.MethodPost, taskPath+"/claim", walter, nil)
		require.Equal(t, http.StatusOK, code, resp.Message)
		assert.NotZero(t, decode[bpm.HumanTaskInstance](t, resp).AssigneeID)

		code, _ = call(t, router, http.MethodPost, taskPath+"/execute", walter, gin.H{"undeclared": 1})
		assert.Equal(t, http.StatusBadRequest, code)
		code, resp = call(t, router, http.MethodPost, taskPath+"/execute", walter, gin.H{"comment": "approved"})
		require.Equal(t, http.StatusOK, code, resp.Message)

		code, resp = call(t, router, http.MethodGet, fmt.Sprintf("/api/process/instances/%d", instance.ID), walter, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, bpm.ProcessInstanceStateCompleted, decode[bpm.ProcessInstance](t, resp).State)

		code, resp = call(t, router, http.MethodGet, fmt.Sprintf("/api/process/instances/%d/data", instance.ID), walter, nil)
		require.Equal(t, http.StatusOK, code)
		data := decode[[]*bpm.DataInstance](t, resp)
		require.Len(t, data, 1)
		assert.Equal(t, "approved", data[0].Value)
	})

	t.Run("评论文档和检索", func(t *testing.T) {
		instancePath := fmt.Sprintf("/api/process/instances/%d", instance.ID)
		code, _ := call(t, router, http.MethodPost, instancePath+"/comments", walter, gin.H{})
		assert.Equal(t, http.StatusBadRequest, code)
		code, resp := call(t, router, http.MethodPost, instancePath+"/comments", walter, gin.H{"content": "looks good"})
		require.Equal(t, http.StatusCreated, code, resp.Message)
		code, resp = call(t, router, http.MethodGet, instancePath+"/comments", walter, nil)
		require.Equal(t, http.StatusOK, code)
		comments := decode[[]*bpm.Comment](t, resp)
		require.Len(t, comments, 1)
		assert.Equal(t, "looks good", comments[0].Content)

		body := &bytes.Buffer{}
		form := multipart.NewWriter(body)
		require.NoError(t, form.WriteField("name", "contract"))
		part, err := form.CreateFormFile("file", "contract.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte("signed"))
		require.NoError(t, err)
		require.NoError(t, form.Close())
		req := httptest.NewRequest(http.MethodPost, instancePath+"/documents", body)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+walter)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		code, resp = call(t, router, http.MethodGet, instancePath+"/documents", walter, nil)
		require.Equal(t, http.StatusOK, code)
		docs := decode[bpm.SearchResult[*bpm.Document]](t, resp)
		require.Equal(t, int64(1), docs.Count)
		assert.Equal(t, "contract", docs.Result[0].Name)

		code, resp = call(t, router, http.MethodPost, "/api/process/definitions/search", admin,
			bpm.NewSearchOptions(0, 10).Filter("name", "review"))
		require.Equal(t, http.StatusOK, code, resp.Message)
		assert.Equal(t, int64(1), decode[bpm.SearchResult[*bpm.ProcessDeploymentInfo]](t, resp).Count)
		code, _ = call(t, router, http.MethodPost, "/api/process/instances/search", admin,
			bpm.NewSearchOptions(0, 10).Filter("unknown", 1))
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("删除", func(t *testing.T) {
		code, _ := call(t, router, http.MethodDelete, fmt.Sprintf("/api/process/instances/%d", instance.ID), admin, nil)
		assert.Equal(t, http.StatusOK, code)
		code, _ = call(t, router, http.MethodPost, fmt.Sprintf("/api/process/instances/%d/cancel", instance.ID), admin, nil)
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = call(t, router, http.MethodDelete, base, admin, nil)
		assert.Equal(t, http.StatusConflict, code)
		code, _ = call(t, router, http.MethodPost, base+"/disable", admin, nil)
		require.Equal(t, http.StatusOK, code)
		code, _ = call(t, router, http.MethodDelete, base, admin, nil)
		assert.Equal(t, http.StatusOK, code)
	})
}

func TestServer_BusinessData(t *testing.T) {
	router := setupServer(t)
	admin := login(t, router, "install", "install")

	code, resp := call(t, router, http.MethodPost, "/api/bdm/Invoice", admin, []byte(`{"number":"F-001","customer":{"name":"Acme"}}`))
	require.Equal(t, http.StatusCreated, code, resp.Message)
	created := decode[map[string]int64](t, resp)
	path := fmt.Sprintf("/api/bdm/Invoice/%d", created["persistenceId"])

	code, resp = call(t, router, http.MethodGet, path+"?child=customer.name", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"Acme"`, string(resp.Data))

	code, _ = call(t, router, http.MethodPost, "/api/bdm/Invoice", admin, []byte(`[1]`))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, router, http.MethodPut, path, admin, []byte(`{"number":"F-002"}`))
	require.Equal(t, http.StatusOK, code)
	code, resp = call(t, router, http.MethodGet, path+"?child=number", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"F-002"`, string(resp.Data))

	code, _ = call(t, router, http.MethodDelete, path, admin, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, router, http.MethodGet, path, admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
