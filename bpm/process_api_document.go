package bpm

import (
	"context"
	"net/url"
	"strings"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/blingmoon/simple-bpm/internal/tenant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// documentSource 文档内容或者 url, 二选一
type documentSource struct {
	fileName string
	mimeType string
	content  []byte
	url      string
}

func (a *processAPI) AttachDocument(ctx context.Context, processInstanceID int64, name, fileName, mimeType string, content []byte) (*Document, error) {
	return a.attach(ctx, "AttachDocument", processInstanceID, name, false,
		&documentSource{fileName: fileName, mimeType: mimeType, content: content})
}

func (a *processAPI) AttachURLDocument(ctx context.Context, processInstanceID int64, name, rawURL string) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, invalidParam("AttachURLDocument failed, invalid url: %q", rawURL)
	}
	return a.attach(ctx, "AttachURLDocument", processInstanceID, name, false, &documentSource{url: rawURL})
}

func (a *processAPI) AttachNewDocumentVersion(ctx context.Context, processInstanceID int64, name, fileName, mimeType string, content []byte) (*Document, error) {
	return a.attach(ctx, "AttachNewDocumentVersion", processInstanceID, name, true,
		&documentSource{fileName: fileName, mimeType: mimeType, content: content})
}

// attach newVersion 为 false 时同名文档必须不存在, 为 true 时必须存在, 版本号加一
func (a *processAPI) attach(ctx context.Context, op string, processInstanceID int64, name string, newVersion bool, src *documentSource) (*Document, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidParam("%s failed, document name is empty", op)
	}
	svc, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.ProcessInstancePo](ctx, svc.Repo, processInstanceID); err != nil {
		return nil, a.fail(ctx, svc.Log, op, err, ErrProcessInstanceNotFound, ErrCreation)
	}
	po := &store.DocumentPo{
		ProcessInstanceID: processInstanceID,
		Name:              name,
		FileName:          src.fileName,
		URL:               src.url,
		AuthorID:          session.UserID,
	}
	if src.url == "" {
		// 内容先写入, 元数据写入失败时再清理
		stored, err := svc.Documents.Put(ctx, svc.TenantID, src.mimeType, src.content)
		if err != nil {
			return nil, a.fail(ctx, svc.Log, op, err, nil, ErrCreation)
		}
		po.StorageID = stored.StorageID
		po.MimeType = stored.MimeType
		po.Size = stored.Size
	}
	err = svc.Synchronized(ctx, processInstanceID, func(ctx context.Context) error {
		last, err := lastDocument(ctx, svc, processInstanceID, name)
		switch {
		case err != nil && !errors.Is(err, ErrDocumentNotFound):
			return err
		case newVersion && last == nil:
			return errors.Wrapf(ErrDocumentNotFound, "document %s of process instance %d", name, processInstanceID)
		case !newVersion && last != nil:
			return errors.Wrapf(ErrAlreadyExists, "document %s of process instance %d", name, processInstanceID)
		}
		po.Version = 1
		if last != nil {
			po.Version = last.Version + 1
		}
		return store.Create(ctx, svc.Repo, po)
	})
	if err != nil {
		if po.StorageID != "" {
			purgeContents(ctx, svc, []string{po.StorageID})
		}
		return nil, a.fail(ctx, svc.Log, op, err, ErrDocumentNotFound, ErrCreation)
	}
	svc.Log.Info("document attached", zap.Int64("process_instance_id", processInstanceID),
		zap.String("name", name), zap.Int64("version", po.Version))
	return toDocument(po), nil
}

func lastDocument(ctx context.Context, svc *tenant.Services, processInstanceID int64, name string) (*store.DocumentPo, error) {
	pos, err := store.Find[store.DocumentPo](ctx, svc.Repo, page(
		[]store.Cond{store.Eq("process_instance_id", processInstanceID), store.Eq("name", name)}, 0, 1,
		[]store.OrderBy{{Field: "version", Desc: true}}))
	if err != nil {
		return nil, err
	}
	if len(pos) == 0 {
		return nil, errors.Wrapf(ErrDocumentNotFound, "document %s of process instance %d", name, processInstanceID)
	}
	return pos[0], nil
}

func (a *processAPI) GetDocument(ctx context.Context, documentID int64) (*Document, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.DocumentPo](ctx, svc.Repo, documentID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetDocument", err, ErrDocumentNotFound, ErrRetrieve)
	}
	return toDocument(po), nil
}

func (a *processAPI) GetDocumentContent(ctx context.Context, storageID string) ([]byte, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	// 只能读取本租户文档的内容
	if _, err := store.First[store.DocumentPo](ctx, svc.Repo, store.Eq("storage_id", storageID)); err != nil {
		return nil, a.fail(ctx, svc.Log, "GetDocumentContent", err, ErrDocumentNotFound, ErrRetrieve)
	}
	content, err := svc.Documents.Get(ctx, svc.TenantID, storageID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetDocumentContent", err, ErrDocumentNotFound, ErrRetrieve)
	}
	return content, nil
}

func (a *processAPI) GetLastDocument(ctx context.Context, processInstanceID int64, name string) (*Document, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := lastDocument(ctx, svc, processInstanceID, name)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetLastDocument", err, ErrDocumentNotFound, ErrRetrieve)
	}
	return toDocument(po), nil
}

func (a *processAPI) GetDocumentVersions(ctx context.Context, processInstanceID int64, name string) ([]*Document, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	params := store.Where(store.Eq("process_instance_id", processInstanceID), store.Eq("name", name))
	params.OrderBy = []store.OrderBy{{Field: "version"}}
	pos, err := store.Find[store.DocumentPo](ctx, svc.Repo, params)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetDocumentVersions", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toDocument), nil
}

// RemoveDocument 删除文档的一个版本, 返回删除前的文档
func (a *processAPI) RemoveDocument(ctx context.Context, documentID int64) (*Document, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	po, err := store.Get[store.DocumentPo](ctx, svc.Repo, documentID)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "RemoveDocument", err, ErrDocumentNotFound, ErrDeletion)
	}
	if _, err := store.Delete[store.DocumentPo](ctx, svc.Repo, store.Eq("id", documentID)); err != nil {
		return nil, a.fail(ctx, svc.Log, "RemoveDocument", err, ErrDocumentNotFound, ErrDeletion)
	}
	if po.StorageID != "" {
		purgeContents(ctx, svc, []string{po.StorageID})
	}
	return toDocument(po), nil
}

func (a *processAPI) SearchDocuments(ctx context.Context, options *SearchOptions) (*SearchResult[*Document], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &DocumentSearchDescriptor, options, toDocument)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchDocuments", err, nil, ErrSearch)
	}
	return result, nil
}

// GetNumberOfDocuments 所有版本都计数
func (a *processAPI) GetNumberOfDocuments(ctx context.Context, processInstanceID int64) (int64, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	count, err := store.Count[store.DocumentPo](ctx, svc.Repo, store.Where(store.Eq("process_instance_id", processInstanceID)))
	if err != nil {
		return 0, a.fail(ctx, svc.Log, "GetNumberOfDocuments", err, nil, ErrRetrieve)
	}
	return count, nil
}
