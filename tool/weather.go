package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// DefaultWeatherBaseURL is the OpenWeather current-weather endpoint prefix.
const DefaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// WeatherToolOptions configures the weather lookup tool.
type WeatherToolOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// WeatherTool fetches current weather for a city from the OpenWeather API
// and returns a narrowed JSON payload (temperature, description, humidity,
// wind speed). Metric units.
type WeatherTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewWeatherTool constructs a WeatherTool. The HTTP client and base URL are
// injectable for tests.
func NewWeatherTool(apiKey string, optFns ...func(o *WeatherToolOptions)) *WeatherTool {
	opts := WeatherToolOptions{
		BaseURL:    DefaultWeatherBaseURL,
		HTTPClient: http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &WeatherTool{apiKey: apiKey, baseURL: opts.BaseURL, client: opts.HTTPClient}
}

// Name returns the tool identifier exposed to models.
func (t *WeatherTool) Name() string { return "get_current_weather" }

// Description is shown to the model to guide tool selection.
func (t *WeatherTool) Description() string {
	return "Get the current weather in a given city. Input should be a city name."
}

// Parameters returns the argument schema.
func (t *WeatherTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": "City name to look up, e.g. Cairo",
			},
		},
		"required": []any{"city"},
	}
}

// Call performs the lookup. Non-2xx responses and malformed payloads are
// returned as errors; the owning worker reports them in-band.
func (t *WeatherTool) Call(ctx context.Context, args map[string]any) (string, error) {
	city, _ := args["city"].(string)
	if city == "" {
		return "", NewToolError(t.Name(), "city argument is required", "VALIDATION_ERROR")
	}

	endpoint := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=metric", t.baseURL, url.QueryEscape(city), url.QueryEscape(t.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", NewToolError(t.Name(), fmt.Sprintf("weather api request failed: %v", err), "UPSTREAM_ERROR")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewToolError(t.Name(), fmt.Sprintf("reading weather api response: %v", err), "UPSTREAM_ERROR")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", NewToolError(t.Name(), fmt.Sprintf("weather api error: %s", resp.Status), "UPSTREAM_ERROR")
	}

	if !gjson.ValidBytes(body) {
		return "", NewToolError(t.Name(), "weather api returned malformed JSON", "UPSTREAM_ERROR")
	}

	parsed := gjson.ParseBytes(body)
	temp := parsed.Get("main.temp")
	desc := parsed.Get("weather.0.description")
	if !temp.Exists() || !desc.Exists() {
		return "", NewToolError(t.Name(), "weather api payload missing expected fields", "UPSTREAM_ERROR")
	}

	out, err := json.Marshal(map[string]any{
		"temperature": temp.Float(),
		"description": desc.String(),
		"humidity":    parsed.Get("main.humidity").Float(),
		"windSpeed":   parsed.Get("wind.speed").Float(),
	})
	if err != nil {
		return "", err
	}

	return string(out), nil
}
