package discord

import (
	"regexp"
	"strings"
)

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Image struct {
	URL string `json:"url,omitempty"`
}

// Embed is the rich message payload sent to webhooks.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Color       int     `json:"color,omitempty"`
	Image       *Image  `json:"image,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

var rxMention = regexp.MustCompile(`<@[!&]?\d+>`)

// RemoveMentions neutralises user supplied text so it cannot ping anyone.
func RemoveMentions(text string) string {
	text = rxMention.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "@everyone", "@\u200beveryone")

	return strings.ReplaceAll(text, "@here", "@\u200bhere")
}

// Mentions renders role ids as role mentions.
func Mentions(roles []string) string {
	mentions := make([]string, 0, len(roles))
	for _, role := range roles {
		if role == "" {
			continue
		}

		mentions = append(mentions, "<@&"+role+">")
	}

	return strings.Join(mentions, " ")
}
