package advisor

import (
	"strings"
	"testing"

	"cropadvisor/internal/domain"
)

var sampleRec = &domain.Recommendation{
	Crop:            "groundnut",
	CropHindi:       "मूंगफली",
	Advice:          "Sow after first rains",
	AdviceHindi:     "पहली बारिश के बाद बोएं",
	Fertilizer:      "Gypsum",
	FertilizerHindi: "जिप्सम",
	Products: []domain.Product{
		{
			Name:             "Gypsum 5kg",
			NameHindi:        "जिप्सम 5 किलो",
			Price:            250,
			Description:      "Soil conditioner",
			DescriptionHindi: "मिट्टी सुधारक",
			Image:            "https://shop.example/gypsum.jpg",
		},
	},
}

func TestFormatRecommendation_EnglishOnly(t *testing.T) {
	out := FormatRecommendation(domain.LangEnglish, sampleRec)

	for _, want := range []string{
		"Recommended crop: groundnut",
		"Advice: Sow after first rains",
		"Fertilizer: Gypsum",
		"Gypsum 5kg: ₹250",
		"Description: Soil conditioner",
		"Image: https://shop.example/gypsum.jpg",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "मूंगफली") || strings.Contains(out, "विवरण") {
		t.Fatalf("english reply must not contain hindi fields:\n%s", out)
	}
}

func TestFormatRecommendation_HindiOnly(t *testing.T) {
	out := FormatRecommendation(domain.LangHindi, sampleRec)

	for _, want := range []string{
		"अनुशंसित फसल: मूंगफली",
		"सुझाव: पहली बारिश के बाद बोएं",
		"उर्वरक: जिप्सम",
		"जिप्सम 5 किलो: ₹250",
		"विवरण: मिट्टी सुधारक",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Recommended crop") || strings.Contains(out, "Description:") {
		t.Fatalf("hindi reply must not contain english field labels:\n%s", out)
	}
}

func TestFormatRecommendation_BothInterleaved(t *testing.T) {
	out := FormatRecommendation(domain.LangBoth, sampleRec)

	for _, want := range []string{
		"Recommended crop / अनुशंसित फसल: groundnut / मूंगफली",
		"Advice / सुझाव:",
		"Fertilizer / उर्वरक:",
		"Gypsum 5kg / जिप्सम 5 किलो: ₹250",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatRecommendation_EmptyProducts(t *testing.T) {
	rec := *sampleRec
	rec.Products = nil

	if out := FormatRecommendation(domain.LangEnglish, &rec); !strings.HasSuffix(out, "Available products:\nNone") {
		t.Errorf("english empty list should render None:\n%s", out)
	}
	if out := FormatRecommendation(domain.LangHindi, &rec); !strings.HasSuffix(out, "उपलब्ध उत्पाद:\nकोई नहीं") {
		t.Errorf("hindi empty list should render कोई नहीं:\n%s", out)
	}
	if out := FormatRecommendation(domain.LangBoth, &rec); !strings.HasSuffix(out, "None / कोई नहीं") {
		t.Errorf("bilingual empty list should render both literals:\n%s", out)
	}
}

func TestFormatRecommendation_FractionalPrice(t *testing.T) {
	rec := *sampleRec
	rec.Products = []domain.Product{{Name: "Urea", Price: 99.5, Image: "u.jpg"}}

	out := FormatRecommendation(domain.LangEnglish, &rec)
	if !strings.Contains(out, "₹99.5") {
		t.Errorf("price should not gain trailing zeros:\n%s", out)
	}
}

func TestWelcomeTextPerChannel(t *testing.T) {
	tg := welcomeText(domain.ChannelTelegram)
	wa := welcomeText(domain.ChannelWhatsApp)

	if !strings.Contains(tg, "/subscribe <location>") || !strings.Contains(tg, "Use the buttons") {
		t.Errorf("telegram welcome lost the button hint:\n%s", tg)
	}
	if !strings.Contains(wa, "Reply with a number") {
		t.Errorf("whatsapp welcome lost the numbered menu:\n%s", wa)
	}
}
