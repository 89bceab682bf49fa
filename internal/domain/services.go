package domain

import "context"

// Language is a chat's reply-language preference.
type Language string

const (
	LangEnglish Language = "en"
	LangHindi   Language = "hi"
	LangBoth    Language = "both" // default until the user picks one
)

// Product is one shop item attached to a recommendation.
type Product struct {
	Name             string  `json:"name"`
	NameHindi        string  `json:"name_hindi"`
	Price            float64 `json:"price"`
	Description      string  `json:"description"`
	DescriptionHindi string  `json:"description_hindi"`
	Image            string  `json:"image"`
}

// Recommendation is the recommendation engine's structured result.
type Recommendation struct {
	Crop            string    `json:"crop"`
	CropHindi       string    `json:"crop_hindi"`
	Advice          string    `json:"advice"`
	AdviceHindi     string    `json:"advice_hindi"`
	Fertilizer      string    `json:"fertilizer"`
	FertilizerHindi string    `json:"fertilizer_hindi"`
	Products        []Product `json:"products"`
}

// WeatherSnapshot is the current weather at one location.
type WeatherSnapshot struct {
	Condition string
	TempC     float64
}

// CropRecord maps a location to its stored crop, as maintained by the
// agronomy team. Read-only to the orchestrator.
type CropRecord struct {
	Location  string `yaml:"location"`
	Crop      string `yaml:"crop"`
	CropHindi string `yaml:"crop_hindi"`
}

// Recommender calls the external recommendation engine.
type Recommender interface {
	Recommend(ctx context.Context, soil, season, location string) (*Recommendation, error)
}

// VisionAnalyzer submits an image to the external vision service and returns
// its free-text diagnosis.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, data []byte, mime string, lang Language) (string, error)
}

// WeatherProvider resolves current weather for a location string.
type WeatherProvider interface {
	Current(ctx context.Context, location string) (*WeatherSnapshot, error)
}

// CropStore looks up the crop record for an exact location string.
// A nil record with nil error means no data for that location.
type CropStore interface {
	CropByLocation(ctx context.Context, location string) (*CropRecord, error)
}
