package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NebulaLumino/ClipVault/crypto"
)

// UpsertLinkedAccount creates or refreshes a linked account, keyed on
// (user_id, platform). The link web flow calls this on a successful OAuth
// callback; re-linking the same platform replaces the old connection.
// Tokens are encrypted when ENCRYPTION_KEY is configured.
func (s *Store) UpsertLinkedAccount(ctx context.Context, a *LinkedAccount) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.Status == "" {
		a.Status = AccountPending
	}
	access, refresh, encVersion, err := encryptTokens(a.AccessToken, a.RefreshToken)
	if err != nil {
		return err
	}
	err = s.DB.QueryRowContext(ctx,
		`INSERT INTO linked_accounts (id, user_id, platform, platform_account_id, platform_username, status, access_token, refresh_token, token_expiry, encryption_version, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		 ON CONFLICT (user_id, platform) DO UPDATE SET
		   platform_account_id=EXCLUDED.platform_account_id,
		   platform_username=EXCLUDED.platform_username,
		   status=EXCLUDED.status,
		   access_token=EXCLUDED.access_token,
		   refresh_token=EXCLUDED.refresh_token,
		   token_expiry=EXCLUDED.token_expiry,
		   encryption_version=EXCLUDED.encryption_version,
		   updated_at=NOW()
		 RETURNING id`,
		a.ID, a.UserID, string(a.Platform), a.PlatformAccountID, nullStr(a.PlatformUsername),
		string(a.Status), nullStr(access), nullStr(refresh), nullTime(a.TokenExpiry), encVersion).
		Scan(&a.ID)
	if err != nil {
		return err
	}
	// Ensure the 1:1 poll state exists so the account is immediately eligible.
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO poll_states (linked_account_id, polling_enabled) VALUES ($1, TRUE)
		 ON CONFLICT (linked_account_id) DO NOTHING`, a.ID)
	return err
}

// GetLinkedAccount returns the account by id, or nil when absent.
func (s *Store) GetLinkedAccount(ctx context.Context, id string) (*LinkedAccount, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx, selectAccount+` WHERE id=$1`, id))
}

// FindLinkedAccount returns the account for (userID, platform), or nil.
func (s *Store) FindLinkedAccount(ctx context.Context, userID string, platform Platform) (*LinkedAccount, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx, selectAccount+` WHERE user_id=$1 AND platform=$2`, userID, string(platform)))
}

// DeleteLinkedAccount unlinks an account. The poll state row cascades, so the
// next detection sweep no longer sees the account.
func (s *Store) DeleteLinkedAccount(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM linked_accounts WHERE id=$1`, id)
	return err
}

// UpdateLinkedAccountStatus moves the link lifecycle (e.g. linked -> expired
// when a token refresh fails permanently).
func (s *Store) UpdateLinkedAccountStatus(ctx context.Context, id string, status AccountLinkStatus) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE linked_accounts SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), id)
	return err
}

// UpdateLinkedAccountTokens stores refreshed platform tokens.
func (s *Store) UpdateLinkedAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	access, refresh, encVersion, err := encryptTokens(accessToken, refreshToken)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE linked_accounts SET access_token=$1, refresh_token=$2, token_expiry=$3, encryption_version=$4, status=$5, updated_at=NOW() WHERE id=$6`,
		nullStr(access), nullStr(refresh), nullTime(expiry), encVersion, string(AccountLinked), id)
	return err
}

// ListPollableAccounts returns every linked account whose poll state allows
// polling, with the poll state attached. The detection sweep iterates these.
func (s *Store) ListPollableAccounts(ctx context.Context) ([]LinkedAccount, error) {
	rows, err := s.DB.QueryContext(ctx, selectAccount+`
		 JOIN poll_states ps ON ps.linked_account_id = linked_accounts.id
		 WHERE linked_accounts.status=$1 AND ps.polling_enabled`, string(AccountLinked))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LinkedAccount
	for rows.Next() {
		a, err := s.scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListAccountsExpiringWithin returns linked accounts on the given platform
// whose tokens expire within the window and which carry a refresh token.
func (s *Store) ListAccountsExpiringWithin(ctx context.Context, platform Platform, window time.Duration) ([]LinkedAccount, error) {
	rows, err := s.DB.QueryContext(ctx, selectAccount+`
		 WHERE platform=$1 AND status=$2 AND refresh_token IS NOT NULL
		   AND token_expiry IS NOT NULL AND token_expiry <= NOW() + $3::interval`,
		string(platform), string(AccountLinked), fmt.Sprintf("%d seconds", int(window.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LinkedAccount
	for rows.Next() {
		a, err := s.scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetPollState returns the poll cursor for an account, or nil when absent.
func (s *Store) GetPollState(ctx context.Context, linkedAccountID string) (*PollState, error) {
	var (
		ps      PollState
		lastID  sql.NullString
		checked sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT linked_account_id, last_match_id, last_checked_at, polling_enabled FROM poll_states WHERE linked_account_id=$1`,
		linkedAccountID).Scan(&ps.LinkedAccountID, &lastID, &checked, &ps.PollingEnabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ps.LastMatchID = lastID.String
	ps.LastCheckedAt = checked.Time
	return &ps, nil
}

// AdvancePollCursor moves the dedupe cursor to the newest observed match and
// stamps the check time. Called only after a successful poll cycle.
func (s *Store) AdvancePollCursor(ctx context.Context, linkedAccountID, lastMatchID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE poll_states SET last_match_id=$1, last_checked_at=NOW() WHERE linked_account_id=$2`,
		lastMatchID, linkedAccountID)
	return err
}

// TouchPollState stamps the check time without moving the cursor, for cycles
// that observed no new matches.
func (s *Store) TouchPollState(ctx context.Context, linkedAccountID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE poll_states SET last_checked_at=NOW() WHERE linked_account_id=$1`, linkedAccountID)
	return err
}

// SetPollingEnabled toggles polling for an account. Cancellation is
// cooperative: an in-flight cycle finishes, the next one skips the account.
func (s *Store) SetPollingEnabled(ctx context.Context, linkedAccountID string, enabled bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE poll_states SET polling_enabled=$1 WHERE linked_account_id=$2`, enabled, linkedAccountID)
	return err
}

const selectAccount = `SELECT linked_accounts.id, user_id, platform, platform_account_id, platform_username, linked_accounts.status,
	access_token, refresh_token, token_expiry, encryption_version FROM linked_accounts`

type rowScanner interface{ Scan(dest ...any) error }

func (s *Store) scanAccount(row rowScanner) (*LinkedAccount, error) {
	a, err := s.scanAccountRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *Store) scanAccountRows(row rowScanner) (*LinkedAccount, error) {
	var (
		a                        LinkedAccount
		username, access, refresh sql.NullString
		expiry                    sql.NullTime
		encVersion                int
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Platform, &a.PlatformAccountID, &username,
		&a.Status, &access, &refresh, &expiry, &encVersion); err != nil {
		return nil, err
	}
	a.PlatformUsername = username.String
	a.TokenExpiry = expiry.Time
	var err error
	if a.AccessToken, a.RefreshToken, err = decryptTokens(access.String, refresh.String, encVersion); err != nil {
		return nil, err
	}
	return &a, nil
}

// encryptTokens returns the storable token columns plus the encryption version
// marker (1 = encrypted, 0 = plaintext).
func encryptTokens(access, refresh string) (string, string, int, error) {
	enc, err := getEncryptor()
	if err != nil {
		return "", "", 0, fmt.Errorf("get encryptor: %w", err)
	}
	if enc == nil {
		return access, refresh, 0, nil
	}
	encAccess, err := crypto.EncryptString(enc, access)
	if err != nil {
		return "", "", 0, fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := crypto.EncryptString(enc, refresh)
	if err != nil {
		return "", "", 0, fmt.Errorf("encrypt refresh token: %w", err)
	}
	return encAccess, encRefresh, 1, nil
}

func decryptTokens(access, refresh string, encVersion int) (string, string, error) {
	if encVersion == 0 {
		return access, refresh, nil
	}
	enc, err := getEncryptor()
	if err != nil {
		return "", "", fmt.Errorf("get encryptor for decryption: %w", err)
	}
	if enc == nil {
		return "", "", fmt.Errorf("token is encrypted but ENCRYPTION_KEY not configured")
	}
	decAccess, err := crypto.DecryptString(enc, access)
	if err != nil {
		return "", "", fmt.Errorf("decrypt access token: %w", err)
	}
	decRefresh, err := crypto.DecryptString(enc, refresh)
	if err != nil {
		return "", "", fmt.Errorf("decrypt refresh token: %w", err)
	}
	return decAccess, decRefresh, nil
}
