// Package integrations reaches the third-party lookup APIs behind the
// weather, news, dictionary, joke, translate and gif commands.
package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/cmdbot/core/httpx"
)

var (
	// ErrNotConfigured is returned when the API key for a lookup is missing.
	ErrNotConfigured = errors.New("integrations: api key not configured")
	// ErrNotFound is returned when the API has no result for the query.
	ErrNotFound = errors.New("integrations: no result")
)

// Endpoints are the API URLs; tests point them at local servers.
type Endpoints struct {
	Weather    string
	News       string
	Dictionary string
	Joke       string
	Translate  string
	GIF        string
}

// DefaultEndpoints returns the public API URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Weather:    "https://api.openweathermap.org/data/2.5/weather",
		News:       "https://newsapi.org/v2/everything",
		Dictionary: "https://api.dictionaryapi.dev/api/v2/entries/en/",
		Joke:       "https://v2.jokeapi.dev/joke/Any",
		Translate:  "https://translation.googleapis.com/language/translate/v2",
		GIF:        "https://api.giphy.com/v1/gifs/random",
	}
}

// Config configures a Client.
type Config struct {
	OpenWeatherKey string
	NewsAPIKey     string
	TranslateKey   string
	GiphyKey       string
	Timeout        time.Duration
	// Endpoints defaults to DefaultEndpoints when zero.
	Endpoints  Endpoints
	HTTPClient *http.Client
}

// Client calls the lookup APIs.
type Client struct {
	cfg  Config
	eps  Endpoints
	http *http.Client
}

// New builds a Client.
func New(cfg Config) *Client {
	eps := cfg.Endpoints
	if eps == (Endpoints{}) {
		eps = DefaultEndpoints()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpx.BuildHTTPClient(httpx.Options{Name: "integrations", Timeout: cfg.Timeout})
	}
	return &Client{cfg: cfg, eps: eps, http: hc}
}

// Weather is the current conditions at a location.
type Weather struct {
	Name        string
	TempC       float64
	WindMS      float64
	Humidity    int
	Description string
}

type weatherResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Weather fetches current conditions for location in metric units.
func (c *Client) Weather(ctx context.Context, location string) (Weather, error) {
	if c.cfg.OpenWeatherKey == "" {
		return Weather{}, ErrNotConfigured
	}
	q := url.Values{"q": {location}, "appid": {c.cfg.OpenWeatherKey}, "units": {"metric"}}
	var out weatherResponse
	if err := c.get(ctx, c.eps.Weather, q, &out); err != nil {
		return Weather{}, err
	}
	w := Weather{Name: out.Name, TempC: out.Main.Temp, WindMS: out.Wind.Speed, Humidity: out.Main.Humidity}
	if len(out.Weather) > 0 {
		w.Description = out.Weather[0].Description
	}
	return w, nil
}

// Article is a news headline.
type Article struct {
	Title  string
	URL    string
	Source string
}

type newsResponse struct {
	Articles []struct {
		Title  string `json:"title"`
		URL    string `json:"url"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// News returns up to five most recent articles matching query.
func (c *Client) News(ctx context.Context, query string) ([]Article, error) {
	if c.cfg.NewsAPIKey == "" {
		return nil, ErrNotConfigured
	}
	q := url.Values{"q": {query}, "apiKey": {c.cfg.NewsAPIKey}, "pageSize": {"5"}, "sortBy": {"publishedAt"}}
	var out newsResponse
	if err := c.get(ctx, c.eps.News, q, &out); err != nil {
		return nil, err
	}
	articles := make([]Article, 0, len(out.Articles))
	for _, a := range out.Articles {
		articles = append(articles, Article{Title: a.Title, URL: a.URL, Source: a.Source.Name})
	}
	return articles, nil
}

// Meaning groups definitions of a word by part of speech.
type Meaning struct {
	PartOfSpeech string
	Definitions  []string
}

type dictionaryEntry struct {
	Meanings []struct {
		PartOfSpeech string `json:"partOfSpeech"`
		Definitions  []struct {
			Definition string `json:"definition"`
		} `json:"definitions"`
	} `json:"meanings"`
}

// Define looks up word, keeping at most three meanings with two definitions each.
func (c *Client) Define(ctx context.Context, word string) ([]Meaning, error) {
	var out []dictionaryEntry
	err := c.get(ctx, c.eps.Dictionary+url.PathEscape(strings.ToLower(word)), nil, &out)
	var se *httpx.StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	var meanings []Meaning
	for i, m := range out[0].Meanings {
		if i == 3 {
			break
		}
		meaning := Meaning{PartOfSpeech: m.PartOfSpeech}
		for j, d := range m.Definitions {
			if j == 2 {
				break
			}
			meaning.Definitions = append(meaning.Definitions, d.Definition)
		}
		meanings = append(meanings, meaning)
	}
	return meanings, nil
}

type jokeResponse struct {
	Setup    string `json:"setup"`
	Delivery string `json:"delivery"`
	Joke     string `json:"joke"`
}

// Joke returns a random joke, two-part jokes joined by an ellipsis line.
func (c *Client) Joke(ctx context.Context) (string, error) {
	var out jokeResponse
	if err := c.get(ctx, c.eps.Joke, nil, &out); err != nil {
		return "", err
	}
	if out.Setup != "" {
		return out.Setup + "\n...\n" + out.Delivery, nil
	}
	if out.Joke == "" {
		return "", ErrNotFound
	}
	return out.Joke, nil
}

type translateRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate renders text in the target language code.
func (c *Client) Translate(ctx context.Context, target, text string) (string, error) {
	if c.cfg.TranslateKey == "" {
		return "", ErrNotConfigured
	}
	endpoint := c.eps.Translate + "?" + url.Values{"key": {c.cfg.TranslateKey}}.Encode()
	var out translateResponse
	if err := httpx.DoJSON(ctx, c.http, http.MethodPost, endpoint, nil, translateRequest{Q: text, Target: target}, &out); err != nil {
		return "", err
	}
	if len(out.Data.Translations) == 0 {
		return "", ErrNotFound
	}
	return out.Data.Translations[0].TranslatedText, nil
}

type gifResponse struct {
	// Data is an object, or an empty array when nothing matches the tag.
	Data json.RawMessage `json:"data"`
}

type gifData struct {
	Images struct {
		Original struct {
			URL string `json:"url"`
		} `json:"original"`
	} `json:"images"`
}

// RandomGIF returns the URL of a random GIF tagged with tag.
func (c *Client) RandomGIF(ctx context.Context, tag string) (string, error) {
	if c.cfg.GiphyKey == "" {
		return "", ErrNotConfigured
	}
	q := url.Values{"api_key": {c.cfg.GiphyKey}, "tag": {tag}}
	var out gifResponse
	if err := c.get(ctx, c.eps.GIF, q, &out); err != nil {
		return "", err
	}
	var data gifData
	if len(out.Data) == 0 || out.Data[0] != '{' {
		return "", ErrNotFound
	}
	if err := json.Unmarshal(out.Data, &data); err != nil {
		return "", fmt.Errorf("integrations: decode gif: %w", err)
	}
	if data.Images.Original.URL == "" {
		return "", ErrNotFound
	}
	return data.Images.Original.URL, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	if err := httpx.DoJSON(ctx, c.http, http.MethodGet, endpoint, nil, nil, out); err != nil {
		return fmt.Errorf("integrations: %w", err)
	}
	return nil
}
