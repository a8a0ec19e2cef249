package models

// Channel names with special routing behaviour.
const (
	ChannelUnclassified = "unclassified"
	ChannelNPHIES       = "nphies"
	ChannelBanking      = "banking"
	ChannelRCM          = "rcm"
)

// ChannelMap maps a channel name to the keywords that route a report into it.
// It is loaded from channels.json.
type ChannelMap map[string][]string

// OwnerEntry names who is responsible for a channel or category.
type OwnerEntry struct {
	Assignees []string `json:"assignees,omitempty" yaml:"assignees,omitempty"`
	Team      string   `json:"team,omitempty" yaml:"team,omitempty"`
}

// Wildcard matches any channel or category in an OwnersConfig.
const Wildcard = "*"

// OwnersConfig maps channel -> category (or Wildcard) -> owner. It is loaded
// from owners.json.
type OwnersConfig map[string]map[string]OwnerEntry

// Resolve looks up the owner for a channel/category pair: exact category
// first, then the channel wildcard, then the global wildcard.
func (o OwnersConfig) Resolve(channel, category string) (OwnerEntry, bool) {
	if byCat, ok := o[channel]; ok {
		if e, ok := byCat[category]; ok {
			return e, true
		}
		if e, ok := byCat[Wildcard]; ok {
			return e, true
		}
	}
	if byCat, ok := o[Wildcard]; ok {
		if e, ok := byCat[Wildcard]; ok {
			return e, true
		}
	}
	return OwnerEntry{}, false
}

// ResolvedConfig lists artifacts an operator wants force-closed. Files are
// paths relative to the pipelines root, IDs are report ids.
type ResolvedConfig struct {
	Files []string `json:"files" yaml:"files"`
	IDs   []string `json:"ids" yaml:"ids"`
}

// Contains reports whether the relative path or id is listed.
func (r ResolvedConfig) Contains(relPath, id string) bool {
	for _, f := range r.Files {
		if f == relPath {
			return true
		}
	}
	if id == "" {
		return false
	}
	for _, i := range r.IDs {
		if i == id {
			return true
		}
	}
	return false
}
