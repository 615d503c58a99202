package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/krishhrana/whatsapp-mcp/internal/identity"
)

const (
	// MaxContacts caps a contact search.
	MaxContacts = 50
	// Raw rows read before dedupe; several rows can collapse into one contact.
	// The scan uses the same order as the final sort so the cap keeps the head.
	contactScanLimit = 4 * MaxContacts
)

type directRow struct {
	jid  string
	name string
}

// SearchContacts matches direct chats by name or jid, collapses aliased rows
// into one Contact per canonical sender id, and sorts by (lower(name), id).
func (r *Reader) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	p := likePattern(query)
	rows, err := r.conn.QueryContext(ctx, `
		SELECT DISTINCT jid, name
		FROM chats
		WHERE (LOWER(name) LIKE LOWER(?) ESCAPE '\' OR LOWER(jid) LIKE LOWER(?) ESCAPE '\')
		  AND jid NOT LIKE '%@g.us'
		ORDER BY LOWER(COALESCE(name, '')), jid
		LIMIT ?`, p, p, contactScanLimit)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}

	var raw []directRow
	for rows.Next() {
		var jid, name sql.NullString
		if err := rows.Scan(&jid, &name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		raw = append(raw, directRow{jid: strings.TrimSpace(jid.String), name: name.String})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Alias lookups below share this connection.
	_ = rows.Close()

	bySender := make(map[string]*Contact)
	var order []string
	for _, row := range raw {
		if row.jid == "" || identity.IsGroupJID(row.jid) {
			continue
		}
		alias, _, _ := strings.Cut(row.jid, "@")
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		exp, err := r.Expand(ctx, alias)
		if err != nil {
			return nil, err
		}

		existing, ok := bySender[exp.Canonical]
		if !ok {
			bySender[exp.Canonical] = &Contact{SenderID: exp.Canonical, Name: row.name, ChatJID: row.jid}
			order = append(order, exp.Canonical)
			continue
		}
		if existing.Name == "" && row.name != "" {
			existing.Name = row.name
		}
		if jidRank(row.jid, exp.Canonical) < jidRank(existing.ChatJID, exp.Canonical) {
			existing.ChatJID = row.jid
		}
	}

	contacts := make([]Contact, 0, len(order))
	for _, id := range order {
		contacts = append(contacts, *bySender[id])
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		ni, nj := strings.ToLower(contacts[i].Name), strings.ToLower(contacts[j].Name)
		if ni != nj {
			return ni < nj
		}
		return contacts[i].SenderID < contacts[j].SenderID
	})
	if len(contacts) > MaxContacts {
		contacts = contacts[:MaxContacts]
	}
	return contacts, nil
}

// jidRank prefers canonical@s.whatsapp.net, then the bare canonical id, then
// anything else.
func jidRank(jid, canonical string) int {
	if direct, err := identity.DirectChatJID(canonical); err == nil && jid == direct {
		return 0
	}
	if jid == canonical {
		return 1
	}
	return 2
}
