// Package textgen builds the prompts that turn a transcript into a lecture
// script, a course detail page, a short brief for the video site and a
// thumbnail request.
package textgen

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"text/template"
)

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Audience string

const (
	AudienceElementary Audience = "elementary"
	AudienceMiddle     Audience = "middle"
	AudienceGeneral    Audience = "general"
)

// SystemPrompt keeps every answer in Korean.
const SystemPrompt = "한국어로 답변해 주세요."

type audienceProfile struct {
	Description     string
	Difficulty      int
	ScriptGuidance  []string
	DetailGuidance  []string
	VideoLevelBrief string
}

var everydayExamples = "예시는 학교생활, 친구, 스마트폰, 유튜브처럼 학습자가 매일 겪는 일에서 가져와 주세요."

var audiences = map[Audience]audienceProfile{
	AudienceElementary: {
		Description: "초등학생",
		Difficulty:  1,
		ScriptGuidance: []string{
			"어려운 낱말은 피하고 짧은 문장으로 말해 주세요.",
			everydayExamples,
			"재미있고 다정한 말투를 유지해 주세요.",
			"꼭 필요한 핵심만 전해 주세요.",
		},
		DetailGuidance: []string{
			"초등학생이 혼자 읽어도 이해할 수 있게 풀어 써 주세요.",
			"어려운 낱말은 피하고 짧은 문장으로 써 주세요.",
			everydayExamples,
		},
		VideoLevelBrief: "초등학생이 보는 영상입니다. 쉬운 낱말과 밝은 말투로 천천히 설명해 주세요.",
	},
	AudienceMiddle: {
		Description: "중학생",
		Difficulty:  2,
		ScriptGuidance: []string{
			"조금 어려운 용어를 써도 되지만 바로 쉬운 설명을 붙여 주세요.",
			everydayExamples,
			"왜 그런지, 어떤 원리인지도 한 단계 더 설명해 주세요.",
		},
		DetailGuidance: []string{
			"중학생 눈높이에 맞춰 설명해 주세요.",
			"용어를 쓸 때는 쉬운 풀이를 함께 적어 주세요.",
			"원리와 이유를 조금 더 자세히 다뤄 주세요.",
		},
		VideoLevelBrief: "중학생이 보는 영상입니다. 용어는 쉽게 풀어 주고 원리를 차근차근 짚어 주세요.",
	},
	AudienceGeneral: {
		Description: "이 분야를 처음 접하는 일반인",
		Difficulty:  3,
		ScriptGuidance: []string{
			"비전공자도 따라올 수 있게 설명해 주세요.",
		},
		DetailGuidance: []string{
			"비전공자도 따라올 수 있게 설명해 주세요.",
		},
		VideoLevelBrief: "이 분야를 처음 접하는 성인이 보는 영상입니다. 전문 용어는 풀어서 친근하게 설명해 주세요.",
	},
}

var audienceAliases = map[string]Audience{
	"elementary": AudienceElementary,
	"초등학생":       AudienceElementary,
	"middle":     AudienceMiddle,
	"중학생":        AudienceMiddle,
	"general":    AudienceGeneral,
	"일반인":        AudienceGeneral,
}

// ParseAudience maps a user supplied level to an Audience. Unknown values
// fall back to AudienceGeneral and report false.
func ParseAudience(s string) (Audience, bool) {
	a, ok := audienceAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return AudienceGeneral, false
	}
	return a, true
}

func (a Audience) profile() audienceProfile {
	if p, ok := audiences[a]; ok {
		return p
	}
	return audiences[AudienceGeneral]
}

type Lecture struct {
	Title     string
	Professor string
	Audience  Audience
	// Number is the lecture's position in its course; 0 means unnumbered.
	Number int
}

type promptData struct {
	Lecture
	Level    string
	Guidance []string
	Text     string
}

var scriptTmpl = template.Must(template.New("script").Parse(`# 역할
당신은 "{{.Title}}" 주제를 가르치는 전문 강사입니다.

# 해야 할 일
아래 유튜브 영상 요약 스크립트를 바탕으로 5분 안팎의 새 강의 스크립트를 써 주세요.
스크립트 외의 설명이나 인사말은 붙이지 마세요.
첫 문장은 반드시 "안녕하세요, {{.Professor}} 강사입니다."로 시작해 주세요.

# 듣는 사람
{{.Level}}을(를) 대상으로 합니다. 배경지식이 없어도 이해할 수 있어야 합니다.
{{range .Guidance}}- {{.}}
{{end}}
# 형식
- 선생님이 학생에게 설명하듯 강의 형식으로 써 주세요.
- 전문적이되 딱딱하지 않은 말투로 써 주세요.
- 요약 스크립트의 핵심을 살리되 비유와 예시로 쉽게 풀어 주세요.
- 화면 구성이나 자막처럼 이해를 돕는 시각 요소를 괄호 안에 짧게 지시해 주세요.
- 세부 사항보다 전체 흐름과 핵심 개념을 중심으로 다뤄 주세요.

# 유튜브 영상 요약 스크립트
{{.Text}}
`))

var detailTmpl = template.Must(template.New("detail").Parse(`아래는 강의 영상의 전체 스크립트입니다. 이를 바탕으로 강의 상세 페이지를 작성해 주세요.
강의 차수도 함께 적어 주세요.

📘 강의 제목: {{.Title}}
👨‍🏫 강사: {{.Professor}}

다음 순서로 구성해 주세요.
1. 강의 개요
2. 학습 목표와 기대 효과
3. 커리큘럼(목차)
4. 강의 내용 상세 설명
5. Q&A 및 피드백

[학습자 수준: {{.Level}}]
{{range .Guidance}}- {{.}}
{{end}}
스크립트:
====================
{{.Text}}
====================
`))

func render(t *template.Template, l Lecture, guidance []string, text string) string {
	var buf bytes.Buffer
	p := l.Audience.profile()
	// Templates are fixed and data is plain strings; Execute cannot fail.
	_ = t.Execute(&buf, promptData{Lecture: l, Level: p.Description, Guidance: guidance, Text: text})
	return buf.String()
}

// ScriptPrompt asks for a lecture script rewritten from transcript.
func ScriptPrompt(l Lecture, transcript string) string {
	return render(scriptTmpl, l, l.Audience.profile().ScriptGuidance, transcript)
}

// DetailPrompt asks for a course detail page describing script.
func DetailPrompt(l Lecture, script string) string {
	return render(detailTmpl, l, l.Audience.profile().DetailGuidance, script)
}

// VideoPrompt is the short brief typed into the video site. Callers
// truncate it to the site's limit.
func VideoPrompt(l Lecture) string {
	p := l.Audience.profile()
	var sb strings.Builder
	sb.WriteString(p.VideoLevelBrief)
	if l.Title != "" {
		sb.WriteString(" 강의 주제는 \"" + l.Title + "\"입니다.")
	}
	if l.Professor != "" {
		sb.WriteString(" 진행자는 " + l.Professor + " 강사입니다.")
	}
	sb.WriteString(" 슬라이드 순서를 그대로 따라가며 각 장의 핵심을 한두 문장으로 정리해 주세요.")
	return sb.String()
}

var thumbnailTmpl = template.Must(template.New("thumbnail").Parse(`아래 조건으로 강의 썸네일 이미지를 바로 만들어 주세요. 되묻지 말고 이미지만 생성해 주세요.

# 기본 정보
- 대상: {{.Level}}
{{if .Session}}- 차시: {{.Session}}
{{end}}- 강의명: {{.Title}}
- 교수명: {{.Professor}}
- 난이도: {{.Difficulty}}
- 비율: 16:9
- 스타일: 밝은 색감의 교육용 2D 일러스트
- 분위기: 배우고 싶어지는 명랑한 분위기

# 글자
아래 문구를 한 줄씩 오타 없이 그대로 넣어 주세요.
{{if .Session}}1. {{.Session}}
{{end}}2. {{.Title}}
3. {{.Professor}}
4. 오른쪽 위 작은 상자: Lv{{.Difficulty}}
- 또렷한 한국어 고딕체를 쓰고 글자가 깨지거나 잘리지 않게 해 주세요.
- 글자 묶음은 왼쪽 정렬로 화면 왼쪽에 두고 세로 중앙보다 조금 위에 배치해 주세요.
- 강의명이 가장 크고 굵게, 차시와 교수명은 그보다 작고 얇게 써 주세요.

# 그림
- 주제에 맞는 일러스트 한 개만 화면 오른쪽 35% 안에 그려 주세요.
- 일러스트가 글자나 Lv 상자와 겹치지 않게 해 주세요.
- 배경은 강의명과 어울리는 단색, 글자는 배경과 대비되는 색으로 해 주세요.
- 이전에 만든 썸네일과 같은 그림이나 자세를 반복하지 마세요.
`))

type thumbnailData struct {
	Lecture
	Level      string
	Session    string
	Difficulty int
}

// ThumbnailPrompt asks an image-capable chat model for a 16:9 course
// thumbnail carrying the lecture number, title, presenter and level.
func ThumbnailPrompt(l Lecture) string {
	p := l.Audience.profile()
	data := thumbnailData{Lecture: l, Level: p.Description, Difficulty: p.Difficulty}
	if l.Number > 0 {
		data.Session = strconv.Itoa(l.Number) + "차시"
	}
	var buf bytes.Buffer
	_ = thumbnailTmpl.Execute(&buf, data)
	return buf.String()
}
