package assessment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/policy"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const (
	TimeIntensive = "INTENSIVE"
	TimeRegular   = "REGULAR"
	TimeModerate  = "MODERATE"
	TimeMinimal   = "MINIMAL"

	BudgetFreeOnly = "FREE_ONLY"
	BudgetBudget   = "BUDGET"
	BudgetStandard = "STANDARD"
	BudgetPremium  = "PREMIUM"

	GoalHobby         = "HOBBY"
	GoalCareerChange  = "CAREER_CHANGE"
	GoalSkillUpgrade  = "SKILL_UPGRADE"
	GoalCertification = "CERTIFICATION"
	GoalProject       = "PROJECT"
)

type ChangeType string

const (
	ChangeRefinement    ChangeType = "REFINEMENT"
	ChangeSpecification ChangeType = "SPECIFICATION"
	ChangeLateralShift  ChangeType = "LATERAL_SHIFT"
	ChangeRadical       ChangeType = "RADICAL_CHANGE"
	ChangeClarification ChangeType = "CLARIFICATION"
)

// NeedsConfirmation is true for changes that leave the original topic behind.
func (t ChangeType) NeedsConfirmation() bool {
	return t == ChangeLateralShift || t == ChangeRadical
}

func (t ChangeType) valid() bool {
	switch t {
	case ChangeRefinement, ChangeSpecification, ChangeLateralShift, ChangeRadical, ChangeClarification:
		return true
	}
	return false
}

// TimeCategory buckets weekly hours: >=20 intensive, 10-19 regular, 5-9
// moderate, below 5 minimal.
func TimeCategory(weeklyHours int) string {
	switch {
	case weeklyHours >= 20:
		return TimeIntensive
	case weeklyHours >= 10:
		return TimeRegular
	case weeklyHours >= 5:
		return TimeModerate
	default:
		return TimeMinimal
	}
}

// BudgetCategory buckets a monthly amount in won.
func BudgetCategory(won int) string {
	switch {
	case won <= 0:
		return BudgetFreeOnly
	case won < 30000:
		return BudgetBudget
	case won < 100000:
		return BudgetStandard
	default:
		return BudgetPremium
	}
}

var budgetDefaults = map[string]int{
	BudgetFreeOnly: 0,
	BudgetBudget:   20000,
	BudgetStandard: 50000,
	BudgetPremium:  150000,
}

func validBudget(c string) bool { _, ok := budgetDefaults[c]; return ok }

func validTime(c string) bool {
	return c == TimeIntensive || c == TimeRegular || c == TimeModerate || c == TimeMinimal
}

func budgetLabel(c string) string {
	switch c {
	case BudgetFreeOnly:
		return "무료 강의만"
	case BudgetBudget:
		return "저예산"
	case BudgetPremium:
		return "프리미엄"
	default:
		return "일반"
	}
}

func levelLabel(level string) string {
	switch level {
	case "advanced":
		return "고급"
	case "intermediate":
		return "중급"
	default:
		return "초급"
	}
}

type TopicResult struct {
	Topic              string  `json:"topic"`
	Confidence         float64 `json:"confidence"`
	NeedsClarification bool    `json:"needs_clarification"`
}

type GoalResult struct {
	Goal       string  `json:"goal"`
	Category   string  `json:"category"`
	Detail     string  `json:"detail"`
	Confidence float64 `json:"confidence"`
}

type TimeResult struct {
	WeeklyHours int     `json:"weekly_hours"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
}

type BudgetResult struct {
	Category   string  `json:"category"`
	MaxMonthly int     `json:"max_monthly_budget"`
	Confidence float64 `json:"confidence"`
}

type LevelResult struct {
	Level      string  `json:"level"`
	Confidence float64 `json:"confidence"`
}

// Classifier turns free-text answers into stage results. The completion
// service is tried first; each classification has a deterministic fallback.
type Classifier struct {
	log    *logger.Logger
	llm    *extract.Extractor
	policy *policy.Policy
}

func NewClassifier(log *logger.Logger, llm *extract.Extractor, pol *policy.Policy) *Classifier {
	if log == nil {
		log = logger.Nop()
	}
	if pol == nil {
		pol = policy.Default()
	}
	return &Classifier{log: log.With("service", "AssessmentClassifier"), llm: llm, policy: pol}
}

func (c *Classifier) ask(ctx context.Context, kind, system, user string, out any) bool {
	if c.llm == nil {
		return false
	}
	if err := c.llm.ExtractObject(ctx, system, user, out); err != nil {
		c.log.Warn("classification fell back", "kind", kind, "error", err)
		observability.Current().IncFallback("assessment_" + kind)
		return false
	}
	return true
}

func contextBlock(history []string) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	return "이전 대화 맥락: " + strings.Join(history, " | ") + "\n\n"
}

const topicSystem = `사용자가 학습하고 싶어하는 주제를 파악하는 학습 상담 전문가입니다.
구체적이고 명확한 한글 학습 주제를 식별하고 추가 명료화가 필요한지 판단하세요.
confidence < 0.6 이거나 너무 일반적인 주제면 needs_clarification 은 true 입니다.
JSON: {"topic": "...", "confidence": 0.0-1.0, "needs_clarification": true|false}`

func (c *Classifier) Topic(ctx context.Context, input string) TopicResult {
	var r TopicResult
	if c.ask(ctx, "topic", topicSystem, "사용자 입력: "+input, &r) && strings.TrimSpace(r.Topic) != "" {
		r.Topic = strings.TrimSpace(r.Topic)
		return r
	}
	topic := truncateRunes(strings.TrimSpace(input), 100)
	return TopicResult{Topic: topic, Confidence: 0.3, NeedsClarification: utf8.RuneCountInString(topic) < 2}
}

const goalSystem = `사용자의 학습 동기와 목표를 파악하는 전문가입니다.
카테고리: HOBBY, CAREER_CHANGE, SKILL_UPGRADE, CERTIFICATION, PROJECT.
JSON: {"goal": "...", "category": "...", "detail": "...", "confidence": 0.0-1.0}`

var goalKeywords = []struct {
	category string
	words    []string
}{
	{GoalCareerChange, []string{"이직", "취업", "전직", "커리어", "개발자로"}},
	{GoalCertification, []string{"자격증", "시험", "학위"}},
	{GoalProject, []string{"프로젝트", "창업", "사이드"}},
	{GoalSkillUpgrade, []string{"업무", "승진", "실무", "자동화"}},
}

func (c *Classifier) Goal(ctx context.Context, input string, history []string) GoalResult {
	var r GoalResult
	if c.ask(ctx, "goal", goalSystem, contextBlock(history)+"사용자 입력: "+input, &r) && strings.TrimSpace(r.Goal) != "" {
		r.Category = strings.ToUpper(strings.TrimSpace(r.Category))
		if r.Category == "" {
			r.Category = goalCategory(input)
		}
		return r
	}
	goal := truncateRunes(strings.TrimSpace(input), 200)
	return GoalResult{Goal: goal, Category: goalCategory(input), Detail: goal, Confidence: 0.3}
}

func goalCategory(text string) string {
	for _, g := range goalKeywords {
		for _, w := range g.words {
			if strings.Contains(text, w) {
				return g.category
			}
		}
	}
	return GoalHobby
}

const timeSystem = `학습 시간 가용성 파악 전문가입니다. 주간 학습 가능 시간을 추정하세요.
카테고리: INTENSIVE(주 20시간 이상), REGULAR(10-19), MODERATE(5-9), MINIMAL(5 미만).
JSON: {"weekly_hours": 숫자, "category": "...", "confidence": 0.0-1.0}`

var (
	dailyHoursRE  = regexp.MustCompile(`(?:하루|매일|daily)\s*(\d+)\s*(?:시간|hours?)`)
	weeklyHoursRE = regexp.MustCompile(`(\d+)\s*(?:시간|hours?)`)
)

func (c *Classifier) Time(ctx context.Context, input string, history []string) TimeResult {
	var r TimeResult
	if c.ask(ctx, "time", timeSystem, contextBlock(history)+"사용자 답변: \""+input+"\"", &r) && r.WeeklyHours > 0 {
		r.Category = strings.ToUpper(strings.TrimSpace(r.Category))
		if !validTime(r.Category) {
			r.Category = TimeCategory(r.WeeklyHours)
		}
		return r
	}
	hours := WeeklyHours(input)
	conf := 0.5
	if hours <= 0 {
		hours, conf = 5, 0.3
	}
	return TimeResult{WeeklyHours: hours, Category: TimeCategory(hours), Confidence: conf}
}

// WeeklyHours reads an hours figure from text. Daily figures are multiplied by
// seven. It returns 0 when nothing is found.
func WeeklyHours(text string) int {
	lower := strings.ToLower(text)
	if m := dailyHoursRE.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			return min(v*7, 168)
		}
	}
	if m := weeklyHoursRE.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			return min(v, 168)
		}
	}
	return 0
}

const budgetSystem = `학습 예산 범위 파악 전문가입니다. 월 학습 예산을 추정하세요.
카테고리: FREE_ONLY(무료만), BUDGET(월 1-3만원), STANDARD(월 3-10만원), PREMIUM(월 10만원 이상).
JSON: {"category": "...", "max_monthly_budget": 숫자, "confidence": 0.0-1.0}`

var (
	manWonRE = regexp.MustCompile(`(\d+)\s*만\s*원?`)
	wonRE    = regexp.MustCompile(`(\d[\d,]*)\s*원`)
)

func (c *Classifier) Budget(ctx context.Context, input string, history []string) BudgetResult {
	var r BudgetResult
	if c.ask(ctx, "budget", budgetSystem, contextBlock(history)+"사용자 답변: \""+input+"\"", &r) {
		r.Category = strings.ToUpper(strings.TrimSpace(r.Category))
		if validBudget(r.Category) {
			if r.MaxMonthly <= 0 && r.Category != BudgetFreeOnly {
				r.MaxMonthly = budgetDefaults[r.Category]
			}
			return r
		}
	}
	return ParseBudget(input)
}

// maxBudgetWon caps parsed amounts so absurd answers stay PREMIUM.
const maxBudgetWon = 100_000_000

// parseWon converts a digit string times unit into won, capped at maxBudgetWon.
func parseWon(digits string, unit int) int {
	v, err := strconv.Atoi(digits)
	if err != nil || v > maxBudgetWon/unit {
		return maxBudgetWon
	}
	return v * unit
}

// ParseBudget classifies a budget answer without the completion service.
func ParseBudget(text string) BudgetResult {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "무료") || strings.Contains(lower, "공짜") || strings.Contains(lower, "free"):
		return BudgetResult{Category: BudgetFreeOnly, MaxMonthly: 0, Confidence: 0.6}
	}
	if m := manWonRE.FindStringSubmatch(lower); m != nil {
		won := parseWon(m[1], 10000)
		return BudgetResult{Category: BudgetCategory(won), MaxMonthly: won, Confidence: 0.6}
	}
	if m := wonRE.FindStringSubmatch(lower); m != nil {
		won := parseWon(strings.ReplaceAll(m[1], ",", ""), 1)
		return BudgetResult{Category: BudgetCategory(won), MaxMonthly: won, Confidence: 0.6}
	}
	switch {
	case strings.Contains(lower, "상관없") || strings.Contains(lower, "충분"):
		return BudgetResult{Category: BudgetPremium, MaxMonthly: budgetDefaults[BudgetPremium], Confidence: 0.4}
	case strings.Contains(lower, "저렴") || strings.Contains(lower, "싸") || strings.Contains(lower, "비싸면"):
		return BudgetResult{Category: BudgetBudget, MaxMonthly: budgetDefaults[BudgetBudget], Confidence: 0.4}
	}
	return BudgetResult{Category: BudgetStandard, MaxMonthly: budgetDefaults[BudgetStandard], Confidence: 0.3}
}

const levelSystem = `학습 수준 측정 전문가입니다. 주어진 주제에 대한 사용자의 현재 수준을 판단하세요.
수준: BEGINNER, INTERMEDIATE, ADVANCED. 애매하면 한 단계 낮게 평가합니다.
JSON: {"level": "...", "confidence": 0.0-1.0}`

func (c *Classifier) Level(ctx context.Context, topic, input string, history []string) LevelResult {
	var r LevelResult
	user := fmt.Sprintf("%s주제: %s\n사용자 답변: \"%s\"", contextBlock(history), topic, input)
	if c.ask(ctx, "level", levelSystem, user, &r) {
		switch lv := strings.ToLower(strings.TrimSpace(r.Level)); lv {
		case "beginner", "intermediate", "advanced":
			r.Level = lv
			return r
		}
	}
	return LevelResult{Level: c.policy.DetectLevel(input), Confidence: 0.3}
}

const changeSystem = `대화 맥락으로 사용자의 학습 주제가 어떻게 바뀌는지 판단하는 전문가입니다.
유형: REFINEMENT(구체화), SPECIFICATION(세분화), LATERAL_SHIFT(관련 분야 이동),
RADICAL_CHANGE(완전 변경), CLARIFICATION(추가 설명).
주제에 관한 말이 아니면 CLARIFICATION 과 현재 주제를 그대로 돌려주세요.
JSON: {"evolution_type": "...", "new_topic": "...", "confidence": 0.0-1.0, "reasoning": "..."}`

// TopicChange classifies an answer against the current topic. Without a
// usable reply it reports a clarification that keeps the topic.
func (c *Classifier) TopicChange(ctx context.Context, current, input string, history []string) TopicChange {
	var r TopicChange
	user := fmt.Sprintf("%s현재 주제: \"%s\"\n새로운 사용자 입력: \"%s\"", contextBlock(history), current, input)
	if c.ask(ctx, "topic_change", changeSystem, user, &r) {
		r.Type = ChangeType(strings.ToUpper(strings.TrimSpace(string(r.Type))))
		r.NewTopic = strings.TrimSpace(r.NewTopic)
		if r.Type.valid() {
			if r.NewTopic == "" {
				r.NewTopic = current
			}
			r.OldTopic = current
			return r
		}
	}
	return TopicChange{Type: ChangeClarification, OldTopic: current, NewTopic: current, Confidence: 0.3}
}

var (
	positiveWords = []string{"맞", "네", "그렇", "좋", "동의", "확인", "정확", "예", "응", "ㅇㅇ", "ㅇㅋ", "yes"}
	negativeWords = []string{"아니", "틀렸", "틀린", "다시", "수정", "바꾸지", "잘못", "no"}
)

// Confirmed reads a yes/no reply by keyword. Negative words win over positive.
func Confirmed(reply string) bool {
	lower := strings.ToLower(strings.TrimSpace(reply))
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
