package cms

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"kjtimes/internal/auth"
	"kjtimes/internal/logger"
	"kjtimes/internal/mail"
	"kjtimes/internal/media"
	"kjtimes/internal/newsfactory"
	"kjtimes/internal/pressrelease"
)

const maxUploadBytes = 50 << 20

func (s *Server) listMedia(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(media.DefaultListLimit)))
	items, err := s.deps.Media.List(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) uploadMedia(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	folder := media.FolderLibrary
	if c.PostForm("folder") == media.FolderArticles {
		folder = media.FolderArticles
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	item, err := s.deps.Media.Upload(c.Request.Context(), media.Upload{
		Folder:      folder,
		Filename:    fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Body:        f,
		UploadedBy:  auth.UserID(c),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) deleteMedia(c *gin.Context) {
	if err := s.deps.Media.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) inbox(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(mail.DefaultLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	box, err := s.deps.Mailbox.Inbox(limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, box)
}

func parseUID(c *gin.Context) (uint32, bool) {
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil || uid == 0 {
		badRequest(c, "invalid message id")
		return 0, false
	}
	return uint32(uid), true
}

func (s *Server) mailMessage(c *gin.Context) {
	uid, ok := parseUID(c)
	if !ok {
		return
	}
	msg, err := s.deps.Mailbox.Message(uid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) sendMail(c *gin.Context) {
	var out mail.Outgoing
	if err := c.ShouldBindJSON(&out); err != nil {
		badRequest(c, "invalid mail payload")
		return
	}
	id, err := s.deps.Mail.Send(c.Request.Context(), out)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messageId": id})
}

// replyMail answers an inbox message; recipient and subject come from the
// original.
func (s *Server) replyMail(c *gin.Context) {
	uid, ok := parseUID(c)
	if !ok {
		return
	}
	var out mail.Outgoing
	if err := c.ShouldBindJSON(&out); err != nil {
		badRequest(c, "invalid mail payload")
		return
	}
	orig, err := s.deps.Mailbox.Message(uid)
	if err != nil {
		fail(c, err)
		return
	}
	if orig.From.Address == "" {
		badRequest(c, "original message has no sender")
		return
	}
	id, err := s.deps.Mail.Reply(c.Request.Context(), orig.From.Address, orig.Subject, out)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messageId": id})
}

func (s *Server) proxyFactory(c *gin.Context) {
	s.deps.Factory.Proxy(c.Writer, c.Request, c.Param("path"))
}

// importFactoryArticle stores a factory article as a pending_review draft.
// When only an id is posted the article is fetched from the factory first.
func (s *Server) importFactoryArticle(c *gin.Context) {
	var a newsfactory.Article
	if err := c.ShouldBindJSON(&a); err != nil {
		badRequest(c, "invalid article payload")
		return
	}
	if a.Title == "" && a.ID != "" && s.deps.Factory != nil {
		if err := s.deps.Factory.Fetch(c.Request.Context(), http.MethodGet, "articles/"+a.ID, nil, &a); err != nil {
			var apiErr *newsfactory.APIError
			if errors.As(err, &apiErr) {
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": apiErr.Error()})
				return
			}
			fail(c, err)
			return
		}
	}
	if strings.TrimSpace(a.Title) == "" {
		badRequest(c, newsfactory.ErrMissingFields.Error())
		return
	}

	id, err := s.deps.Importer.Import(c.Request.Context(), a)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

// receiveNews is the factory's push webhook.
func (s *Server) receiveNews(c *gin.Context) {
	if s.deps.ReceiveSecret == "" || s.deps.Importer == nil {
		s.deps.Metrics.Received("disabled")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "receive endpoint is not configured"})
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.ReceiveSecret)) != 1 {
		s.deps.Metrics.Received("unauthorized")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var a newsfactory.Article
	if err := c.ShouldBindJSON(&a); err != nil {
		s.deps.Metrics.Received("invalid")
		badRequest(c, "invalid JSON body")
		return
	}
	id, err := s.deps.Importer.Receive(c.Request.Context(), a)
	if err != nil {
		if errors.Is(err, newsfactory.ErrMissingFields) {
			s.deps.Metrics.Received("invalid")
		} else {
			s.deps.Metrics.Received("error")
		}
		fail(c, err)
		return
	}
	s.deps.Metrics.Received("ok")
	s.log.Info("News article received", logger.String("id", id), logger.String("title", a.Title))
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id, "status": "pending_review"})
}

func (s *Server) listPressReleases(c *gin.Context) {
	var status pressrelease.Status
	if raw := c.Query("status"); raw != "" && raw != "all" {
		status = pressrelease.Status(raw)
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	list, err := s.deps.Press.List(c.Request.Context(), status, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getPressRelease(c *gin.Context) {
	r, err := s.deps.Press.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) updatePressRelease(c *gin.Context) {
	var g pressrelease.Generated
	if err := c.ShouldBindJSON(&g); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if err := s.deps.Press.SaveGenerated(c.Request.Context(), c.Param("id"), g); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// publishPressRelease hands the rewrite to the newsroom as a pending_review
// article and marks the release published.
func (s *Server) publishPressRelease(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := s.deps.Press.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	articleID := ""
	if s.deps.Importer != nil {
		title, content := r.GeneratedTitle, r.GeneratedContent
		if title == "" {
			title = r.Title
		}
		if content == "" {
			content = r.Content
		}
		articleID, err = s.deps.Importer.Import(ctx, newsfactory.Article{
			Title:     title,
			Content:   content,
			Summary:   r.Summary,
			Category:  r.Category,
			Source:    r.Source,
			SourceURL: r.Link,
			Images:    r.Images,
		})
		if err != nil {
			fail(c, err)
			return
		}
	}
	if err := s.deps.Press.MarkPublished(ctx, r.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "article_id": articleID})
}
