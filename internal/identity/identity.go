// Package identity canonicalizes sender ids and expands them to every alias
// known for the same person.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
)

// ErrAliasTableMissing is returned by an AliasSource whose backing table has
// not been provisioned yet. Expand treats it as "no aliases".
var ErrAliasTableMissing = errors.New("sender alias table missing")

// AliasSource reads the alias mapping maintained by the ingestion process.
type AliasSource interface {
	// CanonicalOf returns the canonical id id is an alias of, or "" when id is
	// not a known alias.
	CanonicalOf(ctx context.Context, id string) (string, error)
	// AliasesOf returns every alias id mapped to canonical.
	AliasesOf(ctx context.Context, canonical string) ([]string, error)
}

// Canonicalize trims raw and rejects chat JIDs. Empty input stays empty.
func Canonicalize(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if strings.Contains(id, "@") {
		return "", apperr.Invalid("sender_id", "must be the canonical normalized user ID without JID suffix (got %q)", id)
	}
	return id, nil
}

// Expansion is the alias set of one person.
type Expansion struct {
	Canonical  string
	Candidates []string // sorted, always contains Canonical
	// Degraded is set when the alias table was missing and no lookup happened.
	Degraded bool
}

// Ordered returns the candidates with the canonical id first.
func (e Expansion) Ordered() []string {
	out := make([]string, 0, len(e.Candidates))
	out = append(out, e.Canonical)
	for _, c := range e.Candidates {
		if c != e.Canonical {
			out = append(out, c)
		}
	}
	return out
}

// Expand canonicalizes raw and collects its alias set from src. A missing alias
// table degrades to {raw}; any other source error is returned.
func Expand(ctx context.Context, src AliasSource, raw string) (Expansion, error) {
	id, err := Canonicalize(raw)
	if err != nil {
		return Expansion{}, err
	}
	fallback := Expansion{Canonical: id, Candidates: []string{id}, Degraded: true}
	if src == nil || id == "" {
		return fallback, nil
	}

	canonical, err := src.CanonicalOf(ctx, id)
	if errors.Is(err, ErrAliasTableMissing) {
		return fallback, nil
	}
	if err != nil {
		return Expansion{}, fmt.Errorf("resolve alias %q: %w", id, err)
	}
	if canonical == "" {
		canonical = id
	}

	aliases, err := src.AliasesOf(ctx, canonical)
	if errors.Is(err, ErrAliasTableMissing) {
		return fallback, nil
	}
	if err != nil {
		return Expansion{}, fmt.Errorf("list aliases of %q: %w", canonical, err)
	}

	set := map[string]struct{}{canonical: {}}
	for _, a := range aliases {
		if a != "" {
			set[a] = struct{}{}
		}
	}
	candidates := make([]string, 0, len(set))
	for c := range set {
		candidates = append(candidates, c)
	}
	sort.Strings(candidates)
	return Expansion{Canonical: canonical, Candidates: candidates}, nil
}

// DirectChatJID returns the direct-chat JID of a canonical sender id.
func DirectChatJID(senderID string) (string, error) {
	id, err := Canonicalize(senderID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", apperr.Invalid("sender_id", "must not be empty")
	}
	return types.NewJID(id, types.DefaultUserServer).String(), nil
}

// DirectChatJIDs returns the deduplicated union of {id, id@s.whatsapp.net} for
// every candidate, in first-seen order. Direct chats may be stored under either
// form.
func DirectChatJIDs(ids []string) []string {
	seen := make(map[string]struct{}, 2*len(ids))
	var out []string
	add := func(jid string) {
		if _, ok := seen[jid]; ok {
			return
		}
		seen[jid] = struct{}{}
		out = append(out, jid)
	}
	for _, raw := range ids {
		id, err := Canonicalize(raw)
		if err != nil || id == "" {
			continue
		}
		add(id)
		add(types.NewJID(id, types.DefaultUserServer).String())
	}
	return out
}

// IsGroupJID reports whether jid names a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+types.GroupServer)
}
