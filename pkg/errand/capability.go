package errand

import "strings"

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	Kinds          []EventKind
	Sources        []SinkRef
	RequireCommand bool
	CommandNames   []string
	RequireAction  bool
	ActionPrefixes []string
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !containsKind(i.Kinds, event.Kind) {
		return false
	}
	if len(i.Sources) > 0 && !sourceMatches(i.Sources, event.Source) {
		return false
	}
	if i.RequireCommand && event.Command == nil {
		return false
	}
	if len(i.CommandNames) > 0 {
		if event.Command == nil || !containsString(i.CommandNames, event.Command.Name) {
			return false
		}
	}
	if i.RequireAction && event.Action == nil {
		return false
	}
	if len(i.ActionPrefixes) > 0 {
		if event.Action == nil || !hasAnyPrefix(event.Action.Data, i.ActionPrefixes) {
			return false
		}
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !allKindsIncluded(filter.Kinds, i.Kinds) {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if len(i.CommandNames) > 0 && !allStringsIncluded(filter.CommandNames, i.CommandNames) {
		return false
	}
	if i.RequireAction && !filter.RequireAction {
		return false
	}
	if len(i.ActionPrefixes) > 0 && !allStringsIncluded(filter.ActionPrefixes, i.ActionPrefixes) {
		return false
	}

	return true
}

func containsKind(kinds []EventKind, target EventKind) bool {
	for _, candidate := range kinds {
		if candidate == target {
			return true
		}
	}

	return false
}

// sourceMatches treats an empty ID as a platform wildcard.
func sourceMatches(sources []SinkRef, source SinkRef) bool {
	for _, candidate := range sources {
		if candidate.Platform != "" && candidate.Platform != source.Platform {
			continue
		}
		if candidate.ID != "" && candidate.ID != source.ID {
			continue
		}
		return true
	}

	return false
}

func containsString(values []string, target string) bool {
	for _, candidate := range values {
		if candidate == target {
			return true
		}
	}

	return false
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}

	return false
}

// allKindsIncluded reports whether subset is fully contained in allowed.
func allKindsIncluded(subset, allowed []EventKind) bool {
	for _, item := range subset {
		if !containsKind(allowed, item) {
			return false
		}
	}

	return true
}

func allStringsIncluded(subset, allowed []string) bool {
	for _, item := range subset {
		if !containsString(allowed, item) {
			return false
		}
	}

	return true
}
