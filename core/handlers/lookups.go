package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/command"
	"github.com/m3rciful/cmdbot/core/integrations"
	"github.com/m3rciful/cmdbot/core/logger"
)

// JokeFallback is replied when the joke API is down.
const JokeFallback = "Why did the chicken cross the road? To get to the broken API!"

const notConfigured = "⚠️ This command is not configured on this bot."

func lookups(d Deps) []command.Descriptor {
	return []command.Descriptor{
		{
			Token:       "!weather",
			Usage:       "!weather [location]",
			Description: "Get current weather for a location",
			Category:    CategoryInformation,
			Handler:     command.HandlerFunc(d.weather),
		},
		{
			Token:       "!news",
			Usage:       "!news [query]",
			Description: "Get latest news articles (defaults to technology)",
			Category:    CategoryInformation,
			Handler:     command.HandlerFunc(d.news),
		},
		{
			Token:       "!define",
			Usage:       "!define [word]",
			Description: "Look up word definitions",
			Category:    CategoryInformation,
			Handler:     command.HandlerFunc(d.define),
		},
		{
			Token:       "!translate",
			Usage:       "!translate [lang] [text]",
			Description: "Translate text to different languages",
			Category:    CategoryUtilities,
			Handler:     command.HandlerFunc(d.translate),
		},
		{
			Token:       "!joke",
			Description: "Get a random joke",
			Category:    CategoryFun,
			Handler:     command.HandlerFunc(d.joke),
		},
		{
			Token:       "!gif",
			Usage:       "!gif [tag]",
			Description: "Get a random GIF link",
			Category:    CategoryFun,
			Handler:     command.HandlerFunc(d.gif),
		},
	}
}

// lookupError turns an integration failure into a reply-carrying error.
func lookupError(apology string, err error) error {
	if errors.Is(err, integrations.ErrNotConfigured) {
		return apperr.External(notConfigured, err)
	}
	return apperr.External(apology, err)
}

func (d Deps) weather(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) == 0 {
		return apperr.Validation("Please provide a location. Example: !weather London")
	}
	w, err := d.Lookups.Weather(ctx, strings.Join(args, " "))
	if err != nil {
		return lookupError("Could not fetch weather information. Please check the location name.", err)
	}
	return msg.Reply(ctx, fmt.Sprintf("🌤️ Weather in %s\n\n"+
		"🌡️ Temperature: %d°C\n"+
		"💨 Wind: %s m/s\n"+
		"💧 Humidity: %d%%\n"+
		"🌅 Description: %s",
		w.Name, int(math.Round(w.TempC)), strconv.FormatFloat(w.WindMS, 'f', -1, 64), w.Humidity, w.Description))
}

func (d Deps) news(ctx context.Context, msg chat.Message, args []string) error {
	query := strings.Join(args, " ")
	if query == "" {
		query = "technology"
	}
	articles, err := d.Lookups.News(ctx, query)
	if err != nil {
		return lookupError("Failed to fetch news. Please try again later.", err)
	}
	if len(articles) == 0 {
		return msg.Reply(ctx, "No articles found for your search")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📰 Latest News for %s:\n\n", query)
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. %s - %s\n%s\n", i+1, a.Title, a.Source, a.URL)
	}
	return msg.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (d Deps) define(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) == 0 {
		return apperr.Validation("Please provide a word to look up. Example: !define hello")
	}
	word := strings.ToLower(args[0])
	meanings, err := d.Lookups.Define(ctx, word)
	if err != nil || len(meanings) == 0 {
		if err == nil {
			err = integrations.ErrNotFound
		}
		return lookupError("Could not find definition for that word.", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📚 %s\n", word)
	for _, m := range meanings {
		fmt.Fprintf(&b, "\n%s\n", m.PartOfSpeech)
		for i, def := range m.Definitions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, def)
		}
	}
	return msg.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (d Deps) translate(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) < 2 {
		return apperr.Validation("Usage: !translate [lang] [text]")
	}
	out, err := d.Lookups.Translate(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return lookupError("Translation failed", err)
	}
	return msg.Reply(ctx, out)
}

func (d Deps) joke(ctx context.Context, msg chat.Message, _ []string) error {
	text, err := d.Lookups.Joke(ctx)
	if err != nil {
		logger.Warn(ctx, "handlers", "joke.fallback",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return msg.Reply(ctx, JokeFallback)
	}
	return msg.Reply(ctx, text)
}

func (d Deps) gif(ctx context.Context, msg chat.Message, args []string) error {
	tag := strings.Join(args, " ")
	if tag == "" {
		tag = "funny"
	}
	link, err := d.Lookups.RandomGIF(ctx, tag)
	switch {
	case errors.Is(err, integrations.ErrNotFound):
		return apperr.New(apperr.KindState, apperr.CodeUpstream, "No GIF found for that tag.")
	case err != nil:
		return lookupError("Failed to fetch GIF.", err)
	}
	return msg.Reply(ctx, link)
}
