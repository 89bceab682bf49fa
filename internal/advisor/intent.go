package advisor

import (
	"regexp"
	"strings"

	"cropadvisor/internal/domain"
)

// IntentKind enumerates the classified meanings of one inbound message.
type IntentKind string

const (
	IntentUnrecognized          IntentKind = "unrecognized"
	IntentStart                 IntentKind = "start"
	IntentSetLanguage           IntentKind = "set_language"
	IntentShowRecommendPrompt   IntentKind = "show_recommend_prompt"
	IntentShowDiseasePrompt     IntentKind = "show_disease_prompt"
	IntentSubscribe             IntentKind = "subscribe"
	IntentRecommendationRequest IntentKind = "recommendation_request"
	IntentDiseaseImage          IntentKind = "disease_image"
)

// Intent is the classified meaning of one inbound message. Kind selects
// which of the payload fields are set.
type Intent struct {
	Kind IntentKind

	Lang     domain.Language // IntentSetLanguage
	Location string          // IntentSubscribe, IntentRecommendationRequest

	Soil   string // IntentRecommendationRequest
	Season string

	ImageData []byte // IntentDiseaseImage
	ImageMime string
}

var (
	startRe     = regexp.MustCompile(`^/start$`)
	langRe      = regexp.MustCompile(`^/lang (en|hi)$`)
	recommendRe = regexp.MustCompile(`^/recommend$`)
	subscribeRe = regexp.MustCompile(`^/subscribe (.+)$`)
)

// menuIntents maps the canonical menu tokens to their intent: Telegram inline
// keyboard callback data and the WhatsApp numbered menu.
var menuIntents = map[string]Intent{
	"recommend": {Kind: IntentShowRecommendPrompt},
	"1":         {Kind: IntentShowRecommendPrompt},
	"disease":   {Kind: IntentShowDiseasePrompt},
	"2":         {Kind: IntentShowDiseasePrompt},
	"lang_en":   {Kind: IntentSetLanguage, Lang: domain.LangEnglish},
	"3":         {Kind: IntentSetLanguage, Lang: domain.LangEnglish},
	"lang_hi":   {Kind: IntentSetLanguage, Lang: domain.LangHindi},
	"4":         {Kind: IntentSetLanguage, Lang: domain.LangHindi},
}

// Classify maps one inbound message to exactly one intent. Rules are checked
// in a fixed order and the first match wins; commands are checked before the
// bare "soil, season, location" fallback so that command text is never read
// as a malformed triple.
func Classify(msg domain.InboundMessage) Intent {
	if msg.Kind == domain.KindImage {
		return Intent{Kind: IntentDiseaseImage, ImageData: msg.ImageData, ImageMime: msg.ImageMime}
	}

	if msg.Kind == domain.KindButton {
		if intent, ok := menuIntents[msg.Text]; ok {
			return intent
		}
		// Button presses carry opaque tokens, never free text.
		return Intent{Kind: IntentUnrecognized}
	}
	if intent, ok := menuIntents[msg.Text]; ok {
		return intent
	}

	text := msg.Text
	switch {
	case startRe.MatchString(text):
		return Intent{Kind: IntentStart}
	case langRe.MatchString(text):
		m := langRe.FindStringSubmatch(text)
		return Intent{Kind: IntentSetLanguage, Lang: domain.Language(m[1])}
	case recommendRe.MatchString(text):
		return Intent{Kind: IntentShowRecommendPrompt}
	case subscribeRe.MatchString(text):
		m := subscribeRe.FindStringSubmatch(text)
		return Intent{Kind: IntentSubscribe, Location: strings.TrimSpace(m[1])}
	}

	// Unknown slash commands never fall through to the triple rule: a typo'd
	// command must not be sent to the recommendation engine as soil data.
	if strings.HasPrefix(text, "/") {
		return Intent{Kind: IntentUnrecognized}
	}

	if fields := splitTriple(text); fields != nil {
		return Intent{
			Kind:     IntentRecommendationRequest,
			Soil:     fields[0],
			Season:   fields[1],
			Location: fields[2],
		}
	}

	return Intent{Kind: IntentUnrecognized}
}

// splitTriple returns the three trimmed fields of a "soil, season, location"
// message, or nil unless the text splits into exactly three non-empty parts.
func splitTriple(text string) []string {
	parts := strings.Split(text, ",")
	if len(parts) != 3 {
		return nil
	}
	fields := make([]string, 3)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil
		}
		fields[i] = p
	}
	return fields
}
