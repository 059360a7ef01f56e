package pressrelease

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"kjtimes/internal/article"
)

const defaultModel = "ingu627/exaone4.0:32b"

// DefaultCategory is used when the model picks no category.
const DefaultCategory = "기타"

var (
	blockBreak  = regexp.MustCompile(`(?i)</p>|</div>|<br\s*/?>|\n{2,}`)
	scriptBlock = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

// ErrEmptyResponse is returned when the model produced no usable article.
var ErrEmptyResponse = errors.New("llm response empty")

// RewriterConfig points at an OpenAI-compatible chat completion endpoint.
type RewriterConfig struct {
	Endpoint string
	Model    string
	APIKey   string
}

// Rewriter turns press releases into news articles.
type Rewriter struct {
	cfg    RewriterConfig
	client *http.Client
}

// NewRewriter returns a Rewriter. A nil client gets a generous timeout since
// local models can be slow.
func NewRewriter(cfg RewriterConfig, client *http.Client) *Rewriter {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Rewriter{cfg: cfg, client: client}
}

// Rewrite asks the model for a headline, HTML body, summary and category.
// Without an endpoint it returns a stub built from the release itself.
func (rw *Rewriter) Rewrite(ctx context.Context, title, content string) (Generated, error) {
	if rw.cfg.Endpoint == "" {
		return stubArticle(title, content), nil
	}

	payload := chatRequest{
		Model:          rw.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: buildPrompt(title, content)}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return Generated{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rw.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return Generated{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if rw.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+rw.cfg.APIKey)
	}

	resp, err := rw.client.Do(req)
	if err != nil {
		return Generated{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Generated{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Generated{}, fmt.Errorf("llm error: status %d body %s", resp.StatusCode, article.Truncate(string(body), 512))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Generated{}, err
	}
	if len(cr.Choices) == 0 {
		return Generated{}, fmt.Errorf("llm response missing choices")
	}

	raw := stripCodeFence(cr.Choices[0].Message.Content)
	if raw == "" {
		return Generated{}, ErrEmptyResponse
	}
	var g Generated
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return Generated{}, fmt.Errorf("decode llm json: %w", err)
	}
	g.Title = strings.TrimSpace(g.Title)
	g.Content = strings.TrimSpace(g.Content)
	if g.Title == "" || g.Content == "" {
		return Generated{}, ErrEmptyResponse
	}
	if strings.TrimSpace(g.Category) == "" {
		g.Category = DefaultCategory
	}
	return g, nil
}

func buildPrompt(title, content string) string {
	return fmt.Sprintf(`당신은 30년 경력의 베테랑 사회부 기자입니다. 아래 보도자료를 바탕으로 독자가 읽기 쉬운 뉴스 기사를 작성하세요.

**지침:**
1. **역피라미드 구성:** 가장 중요한 핵심 내용을 첫 문단에 배치하세요.
2. **객관적 어조:** "밝혔다", "전했다", "알려졌다" 등의 건조하고 명확한 문체를 사용하세요.
3. **헤드라인:** 클릭을 유도하되 낚시성이 없는, 핵심을 찌르는 제목을 3개 제안하세요.
4. **요약:** 기사 상단에 들어갈 3줄 요약을 작성하세요.
5. **카테고리 분류:** [행정, 복지, 문화, 경제, 안전, 기타] 중 하나를 선택하세요.
6. **HTML 포맷:** 본문은 <p>, <b> 태그 등을 사용하여 가독성 있게 작성하세요. (제목 제외)
7. **JSON 출력:** 반드시 JSON 형식으로만 응답하세요. 마크다운 코드블록이나 잡담은 포함하지 마세요.

**보도자료:**
제목: %s
내용:
%s

**응답 형식 (JSON):**
{
  "title": "가장 추천하는 헤드라인 1개",
  "content": "<p>기사 본문 HTML...</p>",
  "summary": "3줄 요약 텍스트",
  "category": "카테고리"
}`, title, content)
}

// stubArticle keeps the release text as-is, split into paragraphs.
func stubArticle(title, content string) Generated {
	var b strings.Builder
	content = scriptBlock.ReplaceAllString(content, "")
	for _, para := range blockBreak.Split(content, -1) {
		para = html.UnescapeString(article.ExtractPlainText(para))
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(para))
		b.WriteString("</p>\n")
	}
	body := strings.TrimSpace(b.String())
	if body == "" {
		body = "<p>" + html.EscapeString(strings.TrimSpace(title)) + "</p>"
	}

	return Generated{
		Title:    strings.TrimSpace(title),
		Content:  body,
		Summary:  article.Excerpt(body),
		Category: DefaultCategory,
	}
}

// stripCodeFence removes a surrounding ```json or ```html fence.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	normalised := strings.ReplaceAll(trimmed, "\r\n", "\n")
	lines := strings.Split(normalised, "\n")
	if len(lines) < 3 {
		return trimmed
	}

	lang := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(lines[0])), "```"))
	if lang != "" && lang != "json" && lang != "html" {
		return trimmed
	}

	closing := -1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			closing = i
			break
		}
	}
	if closing == -1 {
		return trimmed
	}
	return strings.TrimSpace(strings.Join(lines[1:closing], "\n"))
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
