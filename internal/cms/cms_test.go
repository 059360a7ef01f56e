package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kjtimes/internal/article"
	"kjtimes/internal/auth"
	"kjtimes/internal/mail"
	"kjtimes/internal/media"
	"kjtimes/internal/newsfactory"
	"kjtimes/internal/pressrelease"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

var editorProfile = auth.Profile{ID: "user-1", Email: "desk@kjtimes.co.kr", FullName: "편집국", Role: "editor"}

type mockArticles struct {
	mock.Mock
}

func (m *mockArticles) List(ctx context.Context, p article.ListParams) (article.ListResult, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(article.ListResult), args.Error(1)
}

func (m *mockArticles) Stats(ctx context.Context) (article.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(article.Stats), args.Error(1)
}

func (m *mockArticles) Get(ctx context.Context, id string) (*article.Article, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*article.Article)
	return a, args.Error(1)
}

func (m *mockArticles) ChangeStatus(ctx context.Context, id string, target article.Status) (article.Status, error) {
	args := m.Called(ctx, id, target)
	return args.Get(0).(article.Status), args.Error(1)
}

func (m *mockArticles) Delete(ctx context.Context, ids ...string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockArticles) Clone(ctx context.Context, id, authorID string) (string, error) {
	args := m.Called(ctx, id, authorID)
	return args.String(0), args.Error(1)
}

func (m *mockArticles) Categories(ctx context.Context) ([]article.Category, error) {
	args := m.Called(ctx)
	return args.Get(0).([]article.Category), args.Error(1)
}

func (m *mockArticles) Tags(ctx context.Context) ([]article.Tag, error) {
	args := m.Called(ctx)
	return args.Get(0).([]article.Tag), args.Error(1)
}

type fakeEditor struct {
	err   error
	forms []article.Form
}

func (f *fakeEditor) Save(_ context.Context, form article.Form, target article.Status, _ string) (article.SaveResult, error) {
	f.forms = append(f.forms, form)
	if f.err != nil {
		return article.SaveResult{}, f.err
	}
	id := form.ID
	if id == "" {
		id = "new-article"
	}
	return article.SaveResult{ID: id, Slug: "k70q22-03udh", Status: target, Created: form.ID == ""}, nil
}

func (f *fakeEditor) AutoSave(ctx context.Context, form article.Form, authorID string) (article.SaveResult, error) {
	return f.Save(ctx, form, article.StatusDraft, authorID)
}

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, email, password string) (auth.Profile, error) {
	if email == editorProfile.Email && password == "pw" {
		return editorProfile, nil
	}
	return auth.Profile{}, auth.ErrInvalidCredentials
}

type fakeImporter struct {
	received []newsfactory.Article
	imported []newsfactory.Article
}

func (f *fakeImporter) Import(_ context.Context, a newsfactory.Article) (string, error) {
	f.imported = append(f.imported, a)
	return "imported-1", nil
}

func (f *fakeImporter) Receive(_ context.Context, a newsfactory.Article) (string, error) {
	if a.Title == "" || a.Content == "" {
		return "", newsfactory.ErrMissingFields
	}
	f.received = append(f.received, a)
	return "received-1", nil
}

type testEnv struct {
	handler  http.Handler
	articles *mockArticles
	editor   *fakeEditor
	jwt      *auth.JWTManager
}

func newEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	env := &testEnv{
		articles: new(mockArticles),
		editor:   &fakeEditor{},
		jwt:      auth.NewJWTManager(testSecret, time.Hour),
	}
	deps := Deps{
		Articles: env.articles,
		Editor:   env.editor,
		Auth:     fakeAuth{},
		JWT:      env.jwt,
	}
	if mutate != nil {
		mutate(&deps)
	}
	env.handler = New(deps).Handler()
	return env
}

func (e *testEnv) token(t *testing.T, p auth.Profile) string {
	t.Helper()
	tok, err := e.jwt.GenerateToken(p)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestLogin(t *testing.T) {
	env := newEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": editorProfile.Email, "password": "pw"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["token"])
	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, auth.CookieName+"=")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "SameSite=Lax")

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": editorProfile.Email, "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": editorProfile.Email}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginCookieAuthorisesAdmin(t *testing.T) {
	env := newEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: env.token(t, editorProfile)})
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", decode(t, w)["id"])
}

func TestAdminRequiresToken(t *testing.T) {
	env := newEnv(t, nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/admin/articles", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/admin/articles", nil, "garbage").Code)
}

func TestListArticlesPassesFilters(t *testing.T) {
	env := newEnv(t, nil)
	env.articles.On("List", mock.Anything, article.ListParams{Status: "draft", Term: "광주", Oldest: true, Page: 2}).
		Return(article.ListResult{Items: []article.Summary{{ID: "a1"}}, Total: 21, Page: 2, TotalPages: 2}, nil)

	w := env.do(t, http.MethodGet, "/api/admin/articles?status=draft&q=%EA%B4%91%EC%A3%BC&sort=oldest&page=2", nil, env.token(t, editorProfile))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 21, decode(t, w)["total"])
	env.articles.AssertExpectations(t)
}

func TestCreateAndUpdateArticle(t *testing.T) {
	env := newEnv(t, nil)
	tok := env.token(t, editorProfile)
	form := map[string]any{"title": "제목", "content": "<p>본문</p>", "category_id": "cat-1", "status": "published", "id": "ignored"}

	w := env.do(t, http.MethodPost, "/api/admin/articles", form, tok)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "new-article", body["id"])
	assert.Equal(t, "published", body["status"])
	assert.Empty(t, env.editor.forms[0].ID)

	w = env.do(t, http.MethodPut, "/api/admin/articles/a-7", form, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a-7", env.editor.forms[1].ID)
}

func TestSaveErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{article.ErrIncompleteForm, http.StatusBadRequest},
		{article.ErrSlugTaken, http.StatusConflict},
		{article.ErrNotFound, http.StatusNotFound},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		env := newEnv(t, nil)
		env.editor.err = tt.err
		w := env.do(t, http.MethodPost, "/api/admin/articles", map[string]any{"title": "x"}, env.token(t, editorProfile))
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}

	env := newEnv(t, nil)
	w := env.do(t, http.MethodPost, "/api/admin/articles", map[string]any{"title": "x", "status": "bogus"}, env.token(t, editorProfile))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeStatus(t *testing.T) {
	env := newEnv(t, nil)
	tok := env.token(t, editorProfile)
	env.articles.On("ChangeStatus", mock.Anything, "a1", article.StatusPublished).Return(article.StatusShared, nil)

	w := env.do(t, http.MethodPatch, "/api/admin/articles/a1/status", map[string]string{"status": "published"}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shared", decode(t, w)["status"])

	w = env.do(t, http.MethodPatch, "/api/admin/articles/a1/status", map[string]string{"status": "live"}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkStatusReportsFailures(t *testing.T) {
	env := newEnv(t, nil)
	env.articles.On("ChangeStatus", mock.Anything, "a1", article.StatusArchived).Return(article.StatusArchived, nil)
	env.articles.On("ChangeStatus", mock.Anything, "a2", article.StatusArchived).Return(article.Status(""), article.ErrNotFound)

	w := env.do(t, http.MethodPost, "/api/admin/articles/bulk-status",
		map[string]any{"ids": []string{"a1", " ", "a2"}, "status": "archived"}, env.token(t, editorProfile))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["updated"])
	assert.Equal(t, []any{"a2"}, body["failed"])
}

func TestBulkDelete(t *testing.T) {
	env := newEnv(t, nil)
	tok := env.token(t, editorProfile)
	env.articles.On("Delete", mock.Anything, []string{"a1", "a2"}).Return(int64(2), nil)

	w := env.do(t, http.MethodPost, "/api/admin/articles/bulk-delete", map[string]any{"ids": []string{"a1", "a2"}}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["deleted"])

	w = env.do(t, http.MethodPost, "/api/admin/articles/bulk-delete", map[string]any{"ids": []string{}}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloneUsesCaller(t *testing.T) {
	env := newEnv(t, nil)
	env.articles.On("Clone", mock.Anything, "a1", "user-1").Return("copy-1", nil)

	w := env.do(t, http.MethodPost, "/api/admin/articles/a1/clone", nil, env.token(t, editorProfile))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "copy-1", decode(t, w)["id"])
}

func TestDraftSessions(t *testing.T) {
	var sessions *article.SessionManager
	env := newEnv(t, func(d *Deps) {
		sessions = article.NewSessionManager(d.Editor, article.AutoSaveOptions{Interval: time.Hour}, time.Hour)
		d.Sessions = sessions
	})
	t.Cleanup(sessions.Shutdown)
	tok := env.token(t, editorProfile)

	form := map[string]any{"form": map[string]any{"title": "초안", "content": "<p>x</p>", "category_id": "cat-1"}}
	w := env.do(t, http.MethodPost, "/api/admin/drafts", form, tok)
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := decode(t, w)["id"].(string)
	require.NotEmpty(t, id)

	other := env.token(t, auth.Profile{ID: "user-2", Email: "other@kjtimes.co.kr"})
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/admin/drafts/"+id, nil, other).Code)

	w = env.do(t, http.MethodPost, "/api/admin/drafts/"+id+"/save", map[string]string{"status": "published"}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "published", decode(t, w)["status"])

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/admin/drafts/"+id, nil, tok).Code)
	assert.Equal(t, 0, sessions.Len())
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/admin/drafts/"+id, nil, tok).Code)
}

func TestReceiveNews(t *testing.T) {
	disabled := newEnv(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable,
		disabled.do(t, http.MethodPost, "/api/news/receive", map[string]string{"title": "x"}, "").Code)

	imp := &fakeImporter{}
	env := newEnv(t, func(d *Deps) {
		d.Importer = imp
		d.ReceiveSecret = "push-secret"
	})

	assert.Equal(t, http.StatusUnauthorized,
		env.do(t, http.MethodPost, "/api/news/receive", map[string]string{"title": "x"}, "wrong").Code)

	w := env.do(t, http.MethodPost, "/api/news/receive", map[string]string{"title": "제목만"}, "push-secret")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/news/receive",
		map[string]string{"title": "광주 축제", "content": "<p>축제</p>", "category": "문화"}, "push-secret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"success": true, "id": "received-1", "status": "pending_review"}, decode(t, w))
	require.Len(t, imp.received, 1)
	assert.Equal(t, "문화", imp.received[0].Category)
}

type fakeLibrary struct {
	uploads []media.Upload
	content string
}

func (f *fakeLibrary) Upload(_ context.Context, up media.Upload) (media.Item, error) {
	data, _ := io.ReadAll(up.Body)
	f.content = string(data)
	f.uploads = append(f.uploads, up)
	return media.Item{ID: "m1", Filename: up.Filename, Type: media.TypeOf(up.ContentType), FileSize: up.Size}, nil
}

func (f *fakeLibrary) List(context.Context, string, int) ([]media.Item, error) {
	return []media.Item{}, nil
}

func (f *fakeLibrary) Delete(_ context.Context, id string) error {
	if id != "m1" {
		return media.ErrNotFound
	}
	return nil
}

func TestUploadMedia(t *testing.T) {
	lib := &fakeLibrary{}
	env := newEnv(t, func(d *Deps) { d.Media = lib })

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("folder", "articles"))
	part, err := mw.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("png-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t, editorProfile))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, lib.uploads, 1)
	assert.Equal(t, media.FolderArticles, lib.uploads[0].Folder)
	assert.Equal(t, "photo.png", lib.uploads[0].Filename)
	assert.Equal(t, "user-1", lib.uploads[0].UploadedBy)
	assert.Equal(t, "png-bytes", lib.content)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/admin/media/zzz", nil, env.token(t, editorProfile)).Code)
}

type fakeMailbox struct{}

func (fakeMailbox) Inbox(int, int) (mail.Inbox, error) {
	return mail.Inbox{Messages: []mail.Message{}, Total: 0}, nil
}

func (fakeMailbox) Message(uid uint32) (mail.Detail, error) {
	if uid != 42 {
		return mail.Detail{}, mail.ErrMessageNotFound
	}
	return mail.Detail{Message: mail.Message{
		UID: 42, Subject: "제보합니다", From: mail.Address{Name: "독자", Address: "reader@example.com"},
	}}, nil
}

type fakeSender struct {
	to, subject string
}

func (f *fakeSender) Send(_ context.Context, o mail.Outgoing) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	return "<id@kjtimes>", nil
}

func (f *fakeSender) Reply(ctx context.Context, from, subject string, o mail.Outgoing) (string, error) {
	f.to, f.subject = from, subject
	o.To = []string{from}
	o.Subject = mail.ReplySubject(subject)
	return f.Send(ctx, o)
}

func TestMailRoutes(t *testing.T) {
	sender := &fakeSender{}
	env := newEnv(t, func(d *Deps) {
		d.Mailbox = fakeMailbox{}
		d.Mail = sender
	})
	tok := env.token(t, editorProfile)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/admin/mail/inbox", nil, tok).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/admin/mail/messages/7", nil, tok).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/admin/mail/messages/abc", nil, tok).Code)

	w := env.do(t, http.MethodPost, "/api/admin/mail/messages/42/reply", map[string]string{"text": "감사합니다"}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reader@example.com", sender.to)
	assert.Equal(t, "제보합니다", sender.subject)

	w = env.do(t, http.MethodPost, "/api/admin/mail/send", map[string]any{"to": []string{"a@example.com"}, "subject": "s"}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFactoryProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/articles", r.URL.Path)
		assert.Equal(t, "Bearer nf-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"articles":[],"total":0}`))
	}))
	defer upstream.Close()

	env := newEnv(t, func(d *Deps) {
		d.Factory = newsfactory.NewClient(newsfactory.Config{URL: upstream.URL, APIKey: "nf-key"})
	})
	w := env.do(t, http.MethodGet, "/api/admin/nf/articles", nil, env.token(t, editorProfile))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"articles":[],"total":0}`, w.Body.String())
}

type fakePress struct {
	release   pressrelease.Release
	published []string
	saved     pressrelease.Generated
}

func (f *fakePress) List(context.Context, pressrelease.Status, int) ([]pressrelease.Release, error) {
	return []pressrelease.Release{f.release}, nil
}

func (f *fakePress) Get(_ context.Context, id string) (pressrelease.Release, error) {
	if id != f.release.ID {
		return pressrelease.Release{}, pressrelease.ErrNotFound
	}
	return f.release, nil
}

func (f *fakePress) SaveGenerated(_ context.Context, _ string, g pressrelease.Generated) error {
	f.saved = g
	return nil
}

func (f *fakePress) MarkPublished(_ context.Context, id string) error {
	f.published = append(f.published, id)
	return nil
}

func TestPublishPressRelease(t *testing.T) {
	press := &fakePress{release: pressrelease.Release{
		ID: "pr1", Title: "원문 제목", Content: "<p>원문</p>", Source: "광주광역시청",
		GeneratedTitle: "광주시, 청년 일자리 확대", GeneratedContent: "<p>기사</p>", Summary: "요약", Category: "행정",
	}}
	imp := &fakeImporter{}
	env := newEnv(t, func(d *Deps) {
		d.Press = press
		d.Importer = imp
	})
	tok := env.token(t, editorProfile)

	w := env.do(t, http.MethodPost, "/api/admin/press-releases/pr1/publish", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "imported-1", decode(t, w)["article_id"])
	assert.Equal(t, []string{"pr1"}, press.published)
	require.Len(t, imp.imported, 1)
	assert.Equal(t, "광주시, 청년 일자리 확대", imp.imported[0].Title)
	assert.Equal(t, "행정", imp.imported[0].Category)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/admin/press-releases/nope/publish", nil, tok).Code)

	w = env.do(t, http.MethodPut, "/api/admin/press-releases/pr1", map[string]string{"title": "수정", "content": "<p>y</p>"}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "수정", press.saved.Title)
}
