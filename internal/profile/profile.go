package profile

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var ErrNotFound = errors.New("profile not found")

// Profile labels a seat. It is cosmetic and never consulted for authority.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

type Lookup interface {
	Lookup(ctx context.Context, id string) (Profile, error)
}

const maxNameRunes = 24

var palette = []string{"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4", "#46f0f0", "#f032e6"}
var emojis = []string{"🐸", "🦊", "🐙", "🐼", "🦄", "🐢", "🐝", "🐳"}

// Default derives stable cosmetic attributes from the id alone.
func Default(id string) Profile {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	n := int(h.Sum32())
	return Profile{
		ID:    id,
		Name:  "Player " + strings.ToUpper(id[:min(4, len(id))]),
		Color: palette[n%len(palette)],
		Emoji: emojis[n%len(emojis)],
	}
}

// Sanitize normalises a display name to NFC, strips control characters and caps
// its length.
func Sanitize(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if utf8.RuneCountInString(name) <= maxNameRunes {
		return name
	}
	return string([]rune(name)[:maxNameRunes])
}

// Resolve asks l for the profile and falls back to Default, overlaid with any
// hints the client supplied. Lookup failures never block a join.
func Resolve(ctx context.Context, l Lookup, id string, hint Profile) Profile {
	p, found := Default(id), false
	if l != nil {
		if stored, err := l.Lookup(ctx, id); err == nil {
			p, found = stored, true
		}
	}
	if !found && hint.Name != "" {
		p.Name = hint.Name
	}
	if p.Color == "" || (!found && hint.Color != "") {
		p.Color = hint.Color
	}
	if p.Emoji == "" || (!found && hint.Emoji != "") {
		p.Emoji = hint.Emoji
	}
	p.ID = id
	p.Name = Sanitize(p.Name)
	if p.Name == "" {
		p.Name = Default(id).Name
	}
	return p
}
