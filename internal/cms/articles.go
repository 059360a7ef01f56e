package cms

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"kjtimes/internal/article"
	"kjtimes/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	profile, err := s.deps.Auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		fail(c, err)
		return
	}
	token, err := s.deps.JWT.GenerateToken(profile)
	if err != nil {
		fail(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, int(s.deps.JWT.Expiration()/time.Second), "/", "", s.deps.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"token": token, "profile": profile})
}

func (s *Server) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", s.deps.SecureCookies, true)
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	claims, _ := auth.GetClaims(c)
	c.JSON(http.StatusOK, gin.H{"id": claims.Sub, "email": claims.Email, "name": claims.Name, "role": claims.Role})
}

func (s *Server) listArticles(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	res, err := s.deps.Articles.List(c.Request.Context(), article.ListParams{
		Status: c.Query("status"),
		Term:   c.Query("q"),
		Oldest: c.Query("sort") == "oldest",
		Page:   page,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) articleStats(c *gin.Context) {
	st, err := s.deps.Articles.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getArticle(c *gin.Context) {
	a, err := s.deps.Articles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// saveRequest is the editor form plus the button that was pressed.
type saveRequest struct {
	article.Form
	Status string `json:"status"`
}

func (r saveRequest) target() (article.Status, error) {
	if r.Status == "" {
		return article.StatusDraft, nil
	}
	return article.ParseStatus(r.Status)
}

func (s *Server) createArticle(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid article payload")
		return
	}
	req.ID = ""
	s.save(c, req, http.StatusCreated)
}

func (s *Server) updateArticle(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid article payload")
		return
	}
	req.ID = c.Param("id")
	s.save(c, req, http.StatusOK)
}

func (s *Server) save(c *gin.Context, req saveRequest, okStatus int) {
	target, err := req.target()
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.deps.Editor.Save(c.Request.Context(), req.Form, target, auth.UserID(c))
	s.deps.Metrics.ObserveManualSave(err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(okStatus, res)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) changeStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	target, err := article.ParseStatus(req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	stored, err := s.deps.Articles.ChangeStatus(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": stored})
}

type bulkRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

// bulkStatus applies one status to many articles. Articles that fail are
// reported and do not stop the rest.
func (s *Server) bulkStatus(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	ids := trimIDs(req.IDs)
	if len(ids) == 0 {
		badRequest(c, "ids are required")
		return
	}
	target, err := article.ParseStatus(req.Status)
	if err != nil {
		fail(c, err)
		return
	}

	statuses := make(map[string]article.Status, len(ids))
	failed := []string{}
	for _, id := range ids {
		stored, err := s.deps.Articles.ChangeStatus(c.Request.Context(), id, target)
		if err != nil {
			_ = c.Error(err)
			failed = append(failed, id)
			continue
		}
		statuses[id] = stored
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(statuses), "statuses": statuses, "failed": failed})
}

func (s *Server) deleteArticle(c *gin.Context) {
	if _, err := s.deps.Articles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) bulkDelete(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	ids := trimIDs(req.IDs)
	if len(ids) == 0 {
		badRequest(c, "ids are required")
		return
	}
	n, err := s.deps.Articles.Delete(c.Request.Context(), ids...)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) cloneArticle(c *gin.Context) {
	id, err := s.deps.Articles.Clone(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type slugRequest struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id" binding:"required"`
	Title      string `json:"title"`
}

func (s *Server) generateSlug(c *gin.Context) {
	var req slugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "category_id is required")
		return
	}
	slug, err := s.deps.Slugs.Generate(c.Request.Context(), req.CategoryID, req.Title, req.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slug)
}

func (s *Server) listCategories(c *gin.Context) {
	cats, err := s.deps.Articles.Categories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (s *Server) listTags(c *gin.Context) {
	tags, err := s.deps.Articles.Tags(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

// Draft sessions keep an auto-saver per open editor.

type draftRequest struct {
	Form article.Form `json:"form"`
}

func (s *Server) openDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid draft payload")
		return
	}
	id, state := s.deps.Sessions.Open(req.Form, auth.UserID(c))
	c.JSON(http.StatusCreated, gin.H{"id": id, "state": state})
}

func (s *Server) draftState(c *gin.Context) {
	state, err := s.deps.Sessions.State(c.Param("id"), auth.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) updateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid draft payload")
		return
	}
	state, err := s.deps.Sessions.Update(c.Param("id"), auth.UserID(c), req.Form)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) saveDraft(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	_ = c.ShouldBindJSON(&req)
	target := article.StatusDraft
	if req.Status != "" {
		parsed, err := article.ParseStatus(req.Status)
		if err != nil {
			fail(c, err)
			return
		}
		target = parsed
	}
	res, err := s.deps.Sessions.Save(c.Request.Context(), c.Param("id"), auth.UserID(c), target)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) closeDraft(c *gin.Context) {
	if err := s.deps.Sessions.Close(c.Param("id"), auth.UserID(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
