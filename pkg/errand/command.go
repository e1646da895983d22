package errand

import (
	"fmt"
	"strings"
	"unicode"
)

// CommandTier orders how command keywords compete for one inbound text.
type CommandTier string

const (
	// CommandTierKeyword commands match when their name appears as a token.
	CommandTierKeyword CommandTier = "keyword"
	// CommandTierSecondary commands are considered only when no keyword matched.
	CommandTierSecondary CommandTier = "secondary"
	// CommandTierFallback receives every addressed message nothing else claimed.
	CommandTierFallback CommandTier = "fallback"
)

// Validate checks whether one command tier is supported.
func (t CommandTier) Validate() error {
	switch t {
	case "", CommandTierKeyword, CommandTierSecondary, CommandTierFallback:
		return nil
	default:
		return fmt.Errorf("validate command tier: unsupported tier %q", t)
	}
}

// CommandSpec declares one module command registration.
type CommandSpec struct {
	// Name is the keyword that triggers this command.
	Name string
	// Tier selects the matching pass. Empty means CommandTierKeyword.
	Tier CommandTier
	// Usage is a short argument synopsis rendered by help.
	Usage string
	// Description describes command behavior for help text.
	Description string
}

// EffectiveTier returns the tier with the keyword default applied.
func (s CommandSpec) EffectiveTier() CommandTier {
	if s.Tier == "" {
		return CommandTierKeyword
	}

	return s.Tier
}

// Validate checks the tier and that the name is one alphanumeric word.
func (s CommandSpec) Validate() error {
	if err := s.Tier.Validate(); err != nil {
		return fmt.Errorf("validate command spec %q: %w", s.Name, err)
	}
	name := NormalizeCommandName(s.Name)
	if name == "" {
		return fmt.Errorf("validate command spec: missing name")
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("validate command spec: name %q must be alphanumeric", s.Name)
		}
	}

	return nil
}

// CommandInvocation carries one matched command event payload.
type CommandInvocation struct {
	// Name is the normalized command name.
	Name string
	// Value is the text following the keyword token, trimmed, original casing.
	Value string
	// RawInput stores the original inbound message text.
	RawInput string
	// SourceEventID identifies the inbound source event that produced this command.
	SourceEventID string
	// SourceEventKind identifies the inbound source event kind.
	SourceEventKind EventKind
}

// Validate checks command invocation contract fields.
func (c *CommandInvocation) Validate() error {
	if c == nil {
		return fmt.Errorf("validate command invocation: nil invocation")
	}
	if NormalizeCommandName(c.Name) == "" {
		return fmt.Errorf("validate command invocation: missing name")
	}
	if c.SourceEventID == "" {
		return fmt.Errorf("validate command invocation: missing source_event_id")
	}
	if c.SourceEventKind == "" {
		return fmt.Errorf("validate command invocation: missing source_event_kind")
	}

	return nil
}

// CommandMatch is the result of resolving one text against registered commands.
type CommandMatch struct {
	// Spec is the winning command registration.
	Spec CommandSpec
	// Value is the argument text for the command.
	Value string
}

// MatchCommand resolves text against specs.
//
// Keyword-tier names are compared against whole tokens, and the earliest token
// naming a keyword command wins. Secondary-tier commands get the same scan only
// when no keyword matched. Otherwise the first fallback-tier spec wins with the
// whole text as its value. ok is false when nothing, not even a fallback, applies.
func MatchCommand(text string, specs []CommandSpec) (match CommandMatch, ok bool) {
	tokens := tokenizeCommandText(text)

	for _, tier := range []CommandTier{CommandTierKeyword, CommandTierSecondary} {
		for _, token := range tokens {
			if token.normalized == "" {
				continue
			}
			for _, spec := range specs {
				if spec.EffectiveTier() != tier || NormalizeCommandName(spec.Name) != token.normalized {
					continue
				}
				return CommandMatch{
					Spec:  spec,
					Value: strings.TrimSpace(text[token.end:]),
				}, true
			}
		}
	}

	for _, spec := range specs {
		if spec.EffectiveTier() == CommandTierFallback {
			return CommandMatch{Spec: spec, Value: strings.TrimSpace(text)}, true
		}
	}

	return CommandMatch{}, false
}

// NewCommandInvocation binds a match to the inbound event that produced it.
func NewCommandInvocation(match CommandMatch, sourceEvent *Event) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("new command invocation: nil source event")
	}

	invocation := CommandInvocation{
		Name:            NormalizeCommandName(match.Spec.Name),
		Value:           match.Value,
		SourceEventID:   sourceEvent.ID,
		SourceEventKind: sourceEvent.Kind,
	}
	if sourceEvent.Message != nil {
		invocation.RawInput = sourceEvent.Message.Text
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("new command invocation %s: %w", match.Spec.Name, err)
	}

	return invocation, nil
}

// NormalizeCommandName lower-cases and trims one command name.
func NormalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

type commandToken struct {
	normalized string
	// end is the byte offset just past the token in the source text.
	end int
}

func tokenizeCommandText(text string) []commandToken {
	tokens := make([]commandToken, 0, 8)
	start := -1
	for index, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, commandToken{
					normalized: normalizeCommandToken(text[start:index]),
					end:        index,
				})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = index
		}
	}
	if start >= 0 {
		tokens = append(tokens, commandToken{
			normalized: normalizeCommandToken(text[start:]),
			end:        len(text),
		})
	}

	return tokens
}

// normalizeCommandToken maps "/Todo@bot", "todo," and "TODO" to "todo".
// Mentions of other accounts normalize to the empty string.
func normalizeCommandToken(raw string) string {
	token := strings.ToLower(raw)
	if strings.HasPrefix(token, "@") {
		return ""
	}
	token = strings.TrimPrefix(token, "/")
	if at := strings.Index(token, "@"); at >= 0 {
		token = token[:at]
	}

	return strings.TrimFunc(token, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
