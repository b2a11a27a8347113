package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/ai"
)

const openMeteoEndpoint = "https://api.open-meteo.com/v1/forecast"

var weatherSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"latitude": {"type": "number", "description": "Latitude of the location"},
		"longitude": {"type": "number", "description": "Longitude of the location"},
		"timezone": {"type": "string", "description": "Timezone, e.g. auto, Europe/Berlin"},
		"forecast_days": {"type": "integer", "minimum": 1, "maximum": 16, "description": "Number of forecast days (default 7)"}
	},
	"required": ["latitude", "longitude"]
}`)

// Weather fetches current conditions and forecast from the Open-Meteo API.
type Weather struct {
	client *http.Client
}

var _ ai.Tool = (*Weather)(nil)

func NewWeather() *Weather {
	return &Weather{client: &http.Client{Timeout: 15 * time.Second}}
}

func (t *Weather) Name() string {
	return "get_weather"
}

func (t *Weather) Description() string {
	return "Get detailed weather information for a location using the Open-Meteo API"
}

func (t *Weather) InputSchema() json.RawMessage {
	return weatherSchema
}

func (t *Weather) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args struct {
		Latitude     float64 `json:"latitude"`
		Longitude    float64 `json:"longitude"`
		Timezone     string  `json:"timezone"`
		ForecastDays int     `json:"forecast_days"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, errors.Wrap(err, "invalid weather input")
	}
	if args.Timezone == "" {
		args.Timezone = "auto"
	}
	if args.ForecastDays < 1 || args.ForecastDays > 16 {
		args.ForecastDays = 7
	}

	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%g", args.Latitude))
	query.Set("longitude", fmt.Sprintf("%g", args.Longitude))
	query.Set("timezone", args.Timezone)
	query.Set("forecast_days", fmt.Sprintf("%d", args.ForecastDays))
	query.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,cloud_cover,wind_speed_10m,wind_direction_10m")
	query.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,sunrise,sunset,precipitation_sum,precipitation_probability_max")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openMeteoEndpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build weather request")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch weather")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("open-meteo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read weather response")
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decode weather response")
	}
	return payload, nil
}
