package bpm

import (
	"context"
	"strings"

	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/pkg/errors"
)

func (a *processAPI) AddProcessComment(ctx context.Context, processInstanceID int64, content string) (*Comment, error) {
	_, session, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	return a.addComment(ctx, processInstanceID, content, session.UserID)
}

func (a *processAPI) AddProcessCommentOnBehalfOfUser(ctx context.Context, processInstanceID int64, content string, userID int64) (*Comment, error) {
	return a.addComment(ctx, processInstanceID, content, userID)
}

func (a *processAPI) addComment(ctx context.Context, processInstanceID int64, content string, userID int64) (*Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalidParam("add comment failed, content is empty")
	}
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get[store.ProcessInstancePo](ctx, svc.Repo, processInstanceID); err != nil {
		return nil, a.fail(ctx, svc.Log, "AddProcessComment", err, ErrProcessInstanceNotFound, ErrCreation)
	}
	if userID != 0 {
		if _, err := store.Get[store.UserPo](ctx, svc.Repo, userID); err != nil {
			return nil, a.fail(ctx, svc.Log, "AddProcessComment", err, ErrUserNotFound, ErrCreation)
		}
	}
	po := &store.CommentPo{ProcessInstanceID: processInstanceID, UserID: userID, Content: content}
	if err := store.Create(ctx, svc.Repo, po); err != nil {
		return nil, a.fail(ctx, svc.Log, "AddProcessComment", err, nil, ErrCreation)
	}
	return toComment(po), nil
}

func (a *processAPI) GetComments(ctx context.Context, processInstanceID int64) ([]*Comment, error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	params := store.Where(store.Eq("process_instance_id", processInstanceID))
	params.OrderBy = []store.OrderBy{{Field: "posted_at"}, {Field: "id"}}
	pos, err := store.Find[store.CommentPo](ctx, svc.Repo, params)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "GetComments", err, nil, ErrRetrieve)
	}
	return convertAll(pos, toComment), nil
}

func (a *processAPI) SearchComments(ctx context.Context, options *SearchOptions) (*SearchResult[*Comment], error) {
	svc, _, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	result, err := search(ctx, svc.Repo, &CommentSearchDescriptor, options, toComment)
	if err != nil {
		return nil, a.fail(ctx, svc.Log, "SearchComments", err, nil, ErrSearch)
	}
	return result, nil
}

func (a *processAPI) DeleteComment(ctx context.Context, commentID int64) error {
	svc, _, err := a.services(ctx)
	if err != nil {
		return err
	}
	deleted, err := store.Delete[store.CommentPo](ctx, svc.Repo, store.Eq("id", commentID))
	if err == nil && deleted == 0 {
		err = errors.Wrapf(ErrCommentNotFound, "comment %d", commentID)
	}
	if err != nil {
		return a.fail(ctx, svc.Log, "DeleteComment", err, ErrCommentNotFound, ErrDeletion)
	}
	return nil
}
