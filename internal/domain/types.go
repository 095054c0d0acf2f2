package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Variables is the OPeNDAP constraint requested for every granule.
var Variables = []string{"T2M", "TQV", "TQL", "QV2M", "lon", "lat", "time"}

// DataVariables are the gridded fields every granule must expose.
var DataVariables = []string{"T2M", "QV2M", "TQL", "TQV"}

// SearchWindow is the 14-day temporal range searched for one past year.
type SearchWindow struct {
	Year  int
	Start time.Time
	End   time.Time
}

// RelatedURL is one entry of a granule's RelatedUrls metadata.
type RelatedURL struct {
	URL         string `json:"URL"`
	Type        string `json:"Type,omitempty"`
	Subtype     string `json:"Subtype,omitempty"`
	Description string `json:"Description,omitempty"`
}

// Granule is a catalog record for one remote data file.
type Granule struct {
	ConceptID   string
	GranuleUR   string
	RelatedURLs []RelatedURL
}

// DownloadTask pairs a remote OPeNDAP URL with its local cache path.
type DownloadTask struct {
	SourceURL       string
	DestinationPath string
	Variables       []string
}

// Sample is one hourly reading at the selected grid cell.
type Sample struct {
	Time time.Time
	T2M  float64 // K
	QV2M float64 // kg kg-1
	TQL  float64 // kg m-2
	TQV  float64 // kg m-2
}

// DerivedSample holds the human-scale quantities computed from a Sample.
type DerivedSample struct {
	Time  time.Time
	TempC float64
	RH    float64 // percent
	LF    float64 // liquid fraction, percent
}

// DailyStat summarizes all derived samples that share a UTC calendar date.
type DailyStat struct {
	Date      time.Time // midnight UTC
	MeanTempC float64
	MaxTempC  float64
	MinTempC  float64
	MeanRH    float64
	MaxRH     float64
	MinRH     float64
	MeanLF    float64
}

// Comfort is the heat index and its discrete rating.
type Comfort struct {
	HeatIndex Number `json:"heat_index"`
	Score     int    `json:"comfort_score"`
	Label     string `json:"comfort_label"`
}

// AnalysisResult is the multi-year summary returned to callers.
type AnalysisResult struct {
	MeanT2M            Number  `json:"mean_T2M"`
	MaxT2M             Number  `json:"max_T2M"`
	MinT2M             Number  `json:"min_T2M"`
	MeanRH             Number  `json:"mean_RH"`
	MaxRH              Number  `json:"max_RH"`
	MinRH              Number  `json:"min_RH"`
	RainyDayPercentage Number  `json:"rainy_day_percentage"`
	FilesUsed          int     `json:"files_used"`
	Comfort            Comfort `json:"comfort"`
}

// HourReference values accepted on a request.
const (
	HourReferenceUTC   = "utc"
	HourReferenceLocal = "local"
)

// AnalysisRequest is the input of one analysis. Lat and Lon are required;
// optional fields left nil take the configured defaults.
type AnalysisRequest struct {
	TargetDate    string   `json:"target_date_str" validate:"required"`
	Lat           *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon           *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	TargetHour    *int     `json:"target_hour,omitempty" validate:"omitempty,gte=0,lte=23"`
	YearsBack     *int     `json:"years_back,omitempty" validate:"omitempty,gte=1,lte=45"`
	WindowHours   *int     `json:"window_hours,omitempty" validate:"omitempty,gte=0,lte=12"`
	PressureHPa   *float64 `json:"pressure_hPa,omitempty" validate:"omitempty,gt=0"`
	RainThreshold *float64 `json:"rain_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	HourReference string   `json:"hour_reference,omitempty" validate:"omitempty,oneof=utc local"`
}

// Response is the wire shape of an analysis outcome: either the result
// fields or a single "error" member.
type Response struct {
	*AnalysisResult
	Error string `json:"error,omitempty"`
}

// Number is a float64 that encodes NaN and infinities as JSON null.
type Number float64

// NaN returns the unknown Number.
func NaN() Number {
	return Number(math.NaN())
}

// IsNaN reports whether n is unknown.
func (n Number) IsNaN() bool {
	return math.IsNaN(float64(n))
}

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NaN()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}
