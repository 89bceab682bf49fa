package advisor

import (
	"fmt"
	"strconv"
	"strings"

	"cropadvisor/internal/domain"
)

// User-facing reply texts. Hindi strings mirror what the agronomy team ships
// to farmers; keep them in sync with the product copy.
const (
	promptRecommend = "🌾 Enter soil type, season, location (e.g., loamy, Kharif, Punjab or red, Monsoon, Tamil Nadu)!"
	promptDisease   = "📷 Please upload an image of the crop to detect diseases."
	promptReenter   = "🌾 Please provide soil type, season, location (e.g., loamy, Kharif, Punjab or red, Monsoon, Tamil Nadu)!"

	confirmLangEnglish = "✅ Language set to English."
	confirmLangHindi   = "✅ भाषा हिंदी में सेट हो गई है।"

	errRecommendation = "Error getting recommendation. Try again."
	errVision         = "Error analyzing image. Try again."
)

const welcomeTelegram = "🌱 *Welcome to Crop Advisor!* 🌾\n\n" +
	"🤖 I'm here to guide you with the best crop advice.\n\n" +
	"👉 Use the buttons below to get started:\n" +
	"1. 🌾 Get Recommendation (/recommend)\n" +
	"2. 📷 Detect Crop Disease (upload an image)\n" +
	"3. 🌐 Change language (/lang en or /lang hi)\n" +
	"4. 🌦️ Subscribe to weather alerts (/subscribe <location>)"

const welcomeWhatsApp = "🌱 *Welcome to Crop Advisor!* 🌾\n\n" +
	"🤖 I'm here to guide you with the best crop advice.\n\n" +
	"👉 Reply with a number to choose:\n" +
	"1. 🌾 Get Recommendation\n" +
	"2. 📷 Detect Crop Disease (upload an image)\n" +
	"3. 🌐 English\n" +
	"4. 🇮🇳 हिंदी\n" +
	"✨ Or type /recommend, /lang en, /lang hi, or /subscribe <location>"

// welcomeText returns the channel-appropriate start message: Telegram gets
// the button-driven variant, WhatsApp the numbered menu.
func welcomeText(channel domain.ChannelName) string {
	if channel == domain.ChannelWhatsApp {
		return welcomeWhatsApp
	}
	return welcomeTelegram
}

func confirmLanguage(lang domain.Language) string {
	if lang == domain.LangHindi {
		return confirmLangHindi
	}
	return confirmLangEnglish
}

func confirmSubscription(location string) string {
	return "Subscribed to weather alerts for " + location
}

// FormatRecommendation renders the engine's structured result in the chat's
// language. An empty product list renders a literal "None" (or its Hindi
// equivalent) instead of nothing.
func FormatRecommendation(lang domain.Language, rec *domain.Recommendation) string {
	items := make([]string, 0, len(rec.Products))
	for _, p := range rec.Products {
		items = append(items, formatProduct(lang, p))
	}
	list := strings.Join(items, "\n\n")

	switch lang {
	case domain.LangEnglish:
		if list == "" {
			list = "None"
		}
		return fmt.Sprintf("Recommended crop: %s\nAdvice: %s\nFertilizer: %s\nAvailable products:\n%s",
			rec.Crop, rec.Advice, rec.Fertilizer, list)
	case domain.LangHindi:
		if list == "" {
			list = "कोई नहीं"
		}
		return fmt.Sprintf("अनुशंसित फसल: %s\nसुझाव: %s\nउर्वरक: %s\nउपलब्ध उत्पाद:\n%s",
			rec.CropHindi, rec.AdviceHindi, rec.FertilizerHindi, list)
	default:
		if list == "" {
			list = "None / कोई नहीं"
		}
		return fmt.Sprintf("Recommended crop / अनुशंसित फसल: %s / %s\nAdvice / सुझाव: %s / %s\nFertilizer / उर्वरक: %s / %s\nAvailable products / उपलब्ध उत्पाद:\n%s",
			rec.Crop, rec.CropHindi, rec.Advice, rec.AdviceHindi, rec.Fertilizer, rec.FertilizerHindi, list)
	}
}

func formatProduct(lang domain.Language, p domain.Product) string {
	price := formatPrice(p.Price)
	switch lang {
	case domain.LangEnglish:
		return fmt.Sprintf("%s: ₹%s\nDescription: %s\nImage: %s", p.Name, price, p.Description, p.Image)
	case domain.LangHindi:
		return fmt.Sprintf("%s: ₹%s\nविवरण: %s\nछवि: %s", p.NameHindi, price, p.DescriptionHindi, p.Image)
	default:
		return fmt.Sprintf("%s / %s: ₹%s\nDescription: %s\nविवरण: %s\nImage: %s",
			p.Name, p.NameHindi, price, p.Description, p.DescriptionHindi, p.Image)
	}
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}
