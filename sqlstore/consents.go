package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/consent"
)

// ConsentLedger implements consent.Ledger on the consent_grants table.
type ConsentLedger struct {
	q   querier
	now func() time.Time
}

func (l *ConsentLedger) Grant(ctx context.Context, userID, clientID string, scopes []string) (consent.Grant, error) {
	g, err := consent.NewGrant(userID, clientID, scopes, l.now())
	if err != nil {
		return consent.Grant{}, err
	}
	_, err = l.q.db.ExecContext(ctx, l.q.rebind(
		`INSERT INTO consent_grants (user_id, client_id, scopes, granted_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, client_id) DO UPDATE SET scopes = excluded.scopes, granted_at = excluded.granted_at`),
		g.UserID, g.ClientID, strings.Join(g.Scopes, " "), toMillis(g.GrantedAt),
	)
	if err != nil {
		return consent.Grant{}, fmt.Errorf("%w: upsert grant: %v", consent.ErrUnavailable, err)
	}
	return g, nil
}

func (l *ConsentLedger) HasConsent(ctx context.Context, userID, clientID string, required ...string) (bool, error) {
	var scopes string
	err := l.q.db.QueryRowContext(ctx, l.q.rebind(
		`SELECT scopes FROM consent_grants WHERE user_id = ? AND client_id = ?`), userID, clientID,
	).Scan(&scopes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: select grant: %v", consent.ErrUnavailable, err)
	}
	return len(consent.Missing(strings.Fields(scopes), required)) == 0, nil
}

func (l *ConsentLedger) List(ctx context.Context, userID string) ([]consent.Grant, error) {
	rows, err := l.q.db.QueryContext(ctx, l.q.rebind(
		`SELECT client_id, scopes, granted_at FROM consent_grants WHERE user_id = ? ORDER BY client_id`), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", consent.ErrUnavailable, err)
	}
	defer rows.Close()

	out := []consent.Grant{}
	for rows.Next() {
		var (
			g         = consent.Grant{UserID: userID}
			scopes    string
			grantedAt int64
		)
		if err := rows.Scan(&g.ClientID, &scopes, &grantedAt); err != nil {
			return nil, fmt.Errorf("%w: scan grant: %v", consent.ErrUnavailable, err)
		}
		g.Scopes = consent.NormalizeScopes(strings.Fields(scopes))
		g.GrantedAt = fromMillis(grantedAt)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", consent.ErrUnavailable, err)
	}
	// ORDER BY follows the database collation; keep byte order like the other ledgers.
	consent.SortByClient(out)
	return out, nil
}

func (l *ConsentLedger) Revoke(ctx context.Context, userID, clientID string) (bool, error) {
	res, err := l.q.db.ExecContext(ctx, l.q.rebind(
		`DELETE FROM consent_grants WHERE user_id = ? AND client_id = ?`), userID, clientID)
	if err != nil {
		return false, fmt.Errorf("%w: delete grant: %v", consent.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", consent.ErrUnavailable, err)
	}
	return n > 0, nil
}

var _ consent.Ledger = (*ConsentLedger)(nil)
