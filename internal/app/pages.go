package app

import (
	"html/template"
	"net/http"
)

// section is a news category with its own listing page.
type section struct {
	Slug        string
	Name        string
	Description string
}

var sections = []section{
	{Slug: "politics", Name: "정치", Description: "대한민국 정치 뉴스와 정책 분석"},
	{Slug: "economy", Name: "경제", Description: "지역 경제와 산업, 일자리 소식"},
	{Slug: "society", Name: "사회", Description: "사건·사고와 교육, 복지, 환경 소식"},
	{Slug: "culture", Name: "문화", Description: "공연, 전시, 축제와 지역 문화 소식"},
	{Slug: "opinion", Name: "오피니언", Description: "사설과 칼럼, 독자 기고"},
	{Slug: "sports", Name: "스포츠", Description: "생활체육부터 프로 스포츠까지"},
}

// homeSections are the category blocks under the main news grid.
var homeSections = []string{"politics", "economy", "society"}

func sectionBySlug(slug string) (section, bool) {
	for _, sec := range sections {
		if sec.Slug == slug {
			return sec, true
		}
	}
	return section{}, false
}

// pageMeta is the data every layout needs.
type pageMeta struct {
	SiteName    string
	Title       string
	Description string
	Canonical   string
	Nav         []section
	Query       string
	Device      string
	Image       string
}

func (s *Server) meta(r *http.Request, title, description string) pageMeta {
	site := s.siteURL(r)
	m := pageMeta{
		SiteName:    s.siteName(),
		Title:       title,
		Description: description,
		Canonical:   site + r.URL.Path,
		Nav:         sections,
		Device:      DeviceFrom(r.Context()),
	}
	if m.Title == "" {
		m.Title = m.SiteName
	}
	return m
}

func (s *Server) siteName() string {
	if s.cfg.SiteName != "" {
		return s.cfg.SiteName
	}
	return defaultSiteName
}

// staticPage is an information page with fixed content.
type staticPage struct {
	Title       string
	Description string
	Body        template.HTML
}

const contactHTML = `<dl class="contact">
  <dt>주소</dt><dd>전남 함평군 함평읍 영수길 148 2층</dd>
  <dt>전화</dt><dd>010-9428-5361</dd>
  <dt>팩스</dt><dd>0504-255-5361</dd>
  <dt>이메일</dt><dd><a href="mailto:jebo@kjtimes.co.kr">jebo@kjtimes.co.kr</a></dd>
</dl>`

var staticPages = map[string]staticPage{
	"about": {
		Title:       "회사소개",
		Description: "광전타임즈 회사소개 — 지역과 현장을 가장 가까이에서 기록하는 언론",
		Body: `<p><strong>광전타임즈</strong>는 광주와 전남의 현장을 가장 가까이에서 기록하는 지역 언론입니다.</p>
<p>행정과 의회, 지역 경제, 교육과 문화까지 주민의 삶에 맞닿은 소식을 빠르고 정확하게 전합니다.</p>
<h2>편집 방향</h2>
<ul>
  <li>사실 확인을 거친 기사만 싣습니다.</li>
  <li>지역의 목소리를 있는 그대로 전합니다.</li>
  <li>오보는 숨기지 않고 바로잡습니다.</li>
</ul>
<h2>연락처</h2>
` + contactHTML,
	},
	"advertise": {
		Title:       "광고안내",
		Description: "광전타임즈 광고 및 제휴 안내",
		Body: `<p>지면·온라인 배너, 기획 기사, 행사 후원 등 다양한 광고 상품을 운영합니다.</p>
<p>광고 문의는 이메일 또는 전화로 연락해 주십시오. 담당자가 영업일 기준 2일 이내에 회신합니다.</p>
` + contactHTML,
	},
	"corrections": {
		Title:       "정정보도",
		Description: "정정·반론 보도 청구 안내",
		Body: `<p>보도 내용에 사실과 다른 부분이 있다면 정정 또는 반론 보도를 청구할 수 있습니다.</p>
<ol>
  <li>기사 주소와 문제가 되는 내용을 적어 이메일로 보내 주십시오.</li>
  <li>편집국이 사실관계를 확인한 뒤 처리 결과를 회신합니다.</li>
  <li>정정이 결정되면 해당 기사에 정정 내용을 덧붙이고 별도로 공지합니다.</li>
</ol>
` + contactHTML,
	},
	"terms": {
		Title:       "이용약관",
		Description: "광전타임즈 서비스 이용약관",
		Body: `<h2>제1조 (목적)</h2>
<p>이 약관은 광전타임즈가 제공하는 인터넷 뉴스 서비스의 이용 조건과 절차를 정합니다.</p>
<h2>제2조 (저작권)</h2>
<p>사이트에 게재된 기사와 사진의 저작권은 광전타임즈에 있으며, 사전 허락 없이 복제·배포할 수 없습니다.</p>
<h2>제3조 (책임의 한계)</h2>
<p>이용자가 게시한 의견과 외부 링크의 내용에 대해서는 책임지지 않습니다.</p>`,
	},
	"privacy": {
		Title:       "개인정보처리방침",
		Description: "광전타임즈 개인정보처리방침",
		Body: `<p>광전타임즈는 제보와 문의 처리에 필요한 최소한의 개인정보만 수집합니다.</p>
<h2>수집 항목</h2>
<p>이름, 이메일 주소, 연락처(선택)</p>
<h2>보유 기간</h2>
<p>처리 목적이 달성되면 지체 없이 파기합니다. 관계 법령이 정한 경우에는 그 기간 동안 보관합니다.</p>
<h2>문의</h2>
` + contactHTML,
	},
	"editorial": {
		Title:       "편집규약",
		Description: "광전타임즈 편집규약과 윤리강령",
		Body: `<p>광전타임즈 편집국은 편집권의 독립을 보장받으며, 다음 원칙에 따라 기사를 제작합니다.</p>
<ul>
  <li>취재원을 보호하고, 익명 보도는 공익을 위해 불가피한 경우에만 씁니다.</li>
  <li>광고와 기사를 명확히 구분합니다.</li>
  <li>보도자료를 옮길 때에는 출처를 밝히고 사실을 다시 확인합니다.</li>
</ul>
<p>발행·편집인: 장혁훈 | 대표: 선종인</p>`,
	},
	"subscribe": {
		Title:       "구독신청",
		Description: "광전타임즈 구독 및 뉴스레터 신청",
		Body: `<p>광전타임즈 기사는 누구나 무료로 읽을 수 있습니다.</p>
<p>지면 구독과 뉴스레터 신청은 이메일로 이름과 받아보실 주소를 보내 주십시오.</p>
` + contactHTML,
	},
}

func (s *Server) handleStaticPage(slug string) http.HandlerFunc {
	page := staticPages[slug]
	return func(w http.ResponseWriter, r *http.Request) {
		data := struct {
			Meta pageMeta
			Page staticPage
		}{
			Meta: s.meta(r, page.Title, page.Description),
			Page: page,
		}
		s.render(w, r, http.StatusOK, "page.gohtml", data)
	}
}
