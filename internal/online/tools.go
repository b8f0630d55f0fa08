package online

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// ToolFunc serves one client tool call from the agent.
type ToolFunc func(ctx context.Context, params map[string]any) (string, error)

// Registry holds the client tools the agent may call mid-conversation:
// local lookups served over public HTTP APIs and returned over the socket.
type Registry struct {
	logger   zerolog.Logger
	client   *http.Client
	handlers map[string]ToolFunc
}

// NewRegistry creates a registry with the built-in tools registered.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		logger:   logger.With().Str("component", "client-tools").Logger(),
		client:   &http.Client{Timeout: 10 * time.Second},
		handlers: make(map[string]ToolFunc),
	}
	r.Register("getCurrentTime", r.getCurrentTime)
	r.Register("getDateInfo", r.getDateInfo)
	r.Register("getWeatherInfo", r.getWeatherInfo)
	return r
}

// Register adds or replaces a tool handler.
func (r *Registry) Register(name string, fn ToolFunc) {
	r.handlers[name] = fn
}

// Invoke runs the named tool.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (string, error) {
	fn, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	r.logger.Debug().Str("tool", name).Msg("Invoking client tool")
	return fn(ctx, params)
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func (r *Registry) getCurrentTime(ctx context.Context, params map[string]any) (string, error) {
	location := stringParam(params, "location")
	if location == "" {
		now := time.Now()
		zone, _ := now.Zone()
		return fmt.Sprintf("The current local time is %s (%s)", now.Format("2006-01-02 15:04:05"), zone), nil
	}

	tz, err := r.lookupTimezone(ctx, location)
	if err != nil {
		return "", err
	}
	var res struct {
		DateTime string `json:"dateTime"`
	}
	if err := r.getJSON(ctx, "https://timeapi.io/api/Time/current/zone?timeZone="+url.QueryEscape(tz), &res); err != nil {
		return "", err
	}
	if res.DateTime == "" {
		return fmt.Sprintf("Could not get the current time for %s.", location), nil
	}
	return fmt.Sprintf("The current time in %s (%s) is %s", location, tz, res.DateTime), nil
}

func (r *Registry) getDateInfo(ctx context.Context, params map[string]any) (string, error) {
	location := stringParam(params, "location")
	if location == "" {
		now := time.Now()
		zone, _ := now.Zone()
		return fmt.Sprintf("Today's date is %s (%s)", now.Format("Monday, January 2, 2006"), zone), nil
	}

	tz, err := r.lookupTimezone(ctx, location)
	if err != nil {
		return "", err
	}
	var res struct {
		Date      string `json:"date"`
		DayOfWeek string `json:"dayOfWeek"`
	}
	if err := r.getJSON(ctx, "https://timeapi.io/api/Time/current/zone?timeZone="+url.QueryEscape(tz), &res); err != nil {
		return "", err
	}
	if res.Date == "" {
		return fmt.Sprintf("Could not get the date for %s.", location), nil
	}
	return fmt.Sprintf("Today's date in %s (%s) is %s, %s.", location, tz, res.DayOfWeek, res.Date), nil
}

// weatherCodes maps open-meteo condition codes to spoken descriptions.
var weatherCodes = map[int]string{
	0: "clear sky", 1: "mainly clear", 2: "partly cloudy", 3: "overcast",
	45: "foggy", 48: "freezing fog", 51: "light drizzle", 53: "moderate drizzle",
	55: "dense drizzle", 61: "light rain", 63: "moderate rain", 65: "heavy rain",
	71: "light snow", 73: "moderate snow", 75: "heavy snow", 95: "thunderstorm",
}

func (r *Registry) getWeatherInfo(ctx context.Context, params map[string]any) (string, error) {
	location := stringParam(params, "location")
	if location == "" {
		return "Please provide a location.", nil
	}

	lat, lon, err := r.geocode(ctx, location)
	if err != nil {
		return "", err
	}

	var res struct {
		CurrentWeather struct {
			Temperature float64 `json:"temperature"`
			Windspeed   float64 `json:"windspeed"`
			Weathercode int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	weatherURL := fmt.Sprintf("https://api.open-meteo.com/v1/forecast?latitude=%s&longitude=%s&current_weather=true", lat, lon)
	if err := r.getJSON(ctx, weatherURL, &res); err != nil {
		return "", err
	}

	conditions, ok := weatherCodes[res.CurrentWeather.Weathercode]
	if !ok {
		conditions = "unknown conditions"
	}
	return fmt.Sprintf("The current weather in %s is %s with a temperature of %.1f°C and windspeed of %.1f km/h.",
		location, conditions, res.CurrentWeather.Temperature, res.CurrentWeather.Windspeed), nil
}

// geocode resolves a location name to coordinates via Nominatim.
func (r *Registry) geocode(ctx context.Context, location string) (lat, lon string, err error) {
	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	geoURL := "https://nominatim.openstreetmap.org/search?format=json&q=" + url.QueryEscape(location)
	if err := r.getJSON(ctx, geoURL, &results); err != nil {
		return "", "", err
	}
	if len(results) == 0 {
		return "", "", fmt.Errorf("could not find location %q", location)
	}
	return results[0].Lat, results[0].Lon, nil
}

func (r *Registry) lookupTimezone(ctx context.Context, location string) (string, error) {
	lat, lon, err := r.geocode(ctx, location)
	if err != nil {
		return "", err
	}
	var res struct {
		TimeZone string `json:"timeZone"`
	}
	tzURL := fmt.Sprintf("https://timeapi.io/api/TimeZone/coordinate?latitude=%s&longitude=%s", lat, lon)
	if err := r.getJSON(ctx, tzURL, &res); err != nil {
		return "", err
	}
	if res.TimeZone == "" {
		return "", fmt.Errorf("could not find a timezone for %q", location)
	}
	return res.TimeZone, nil
}

func (r *Registry) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CortexVoice/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed: %d - %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
