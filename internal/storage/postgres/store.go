package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"daoup/internal/model"
	"daoup/internal/storage"
)

//go:embed schema.sql
var schema string

// Store provides Postgres persistence for campaign snapshots, actions, and sync state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutCampaignBatch inserts or updates campaign snapshots.
func (s *Store) PutCampaignBatch(ctx context.Context, snapshots []model.CampaignSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		syncedAt, err := time.Parse(time.RFC3339Nano, snap.SyncedAt)
		if err != nil {
			return fmt.Errorf("parse synced_at for %s: %w", snap.Address, err)
		}
		data, err := json.Marshal(snap.Campaign)
		if err != nil {
			return fmt.Errorf("marshal campaign %s: %w", snap.Address, err)
		}
		batch.Queue(`
			INSERT INTO campaigns (
				address, name, description, status, creator, hidden, featured, pay_denom,
				goal, pledged, dao_address, gov_token, funding_token, token_price, data, synced_at,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
			ON CONFLICT (address)
			DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				status = EXCLUDED.status,
				hidden = EXCLUDED.hidden,
				featured = EXCLUDED.featured,
				goal = EXCLUDED.goal,
				pledged = EXCLUDED.pledged,
				token_price = EXCLUDED.token_price,
				data = EXCLUDED.data,
				synced_at = EXCLUDED.synced_at,
				updated_at = now()
			WHERE campaigns.synced_at <= EXCLUDED.synced_at
		`,
			snap.Address,
			snap.Name,
			snap.Description,
			string(snap.Status),
			snap.Creator,
			snap.Hidden,
			snap.Featured,
			snap.PayToken.Denom,
			snap.Goal,
			snap.Pledged,
			snap.DAO.Address,
			snap.GovToken.Address,
			snap.FundingToken.Address,
			snap.FundingToken.Price,
			data,
			syncedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutActionBatch inserts action records, ignoring ones already stored.
func (s *Store) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	if len(actions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range actions {
		batch.Queue(`
			INSERT INTO campaign_actions (
				campaign, tx_hash, msg_index, height, action_type, address, amount, ts, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
			ON CONFLICT (campaign, tx_hash, msg_index) DO NOTHING
		`,
			a.Campaign,
			a.TxHash,
			a.MsgIndex,
			a.Height,
			string(a.Type),
			a.Address,
			a.Amount,
			a.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range actions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadCampaign returns the latest stored snapshot of a campaign.
func (s *Store) LoadCampaign(ctx context.Context, address string) (model.CampaignSnapshot, error) {
	var (
		data     []byte
		syncedAt time.Time
	)
	row := s.pool.QueryRow(ctx, `SELECT data, synced_at FROM campaigns WHERE address=$1`, address)
	if err := row.Scan(&data, &syncedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CampaignSnapshot{}, storage.ErrNotFound
		}
		return model.CampaignSnapshot{}, err
	}

	var snap model.CampaignSnapshot
	if err := json.Unmarshal(data, &snap.Campaign); err != nil {
		return model.CampaignSnapshot{}, fmt.Errorf("decode campaign %s: %w", address, err)
	}
	snap.SyncedAt = syncedAt.UTC().Format(time.RFC3339Nano)
	return snap, nil
}

// ListActions returns the stored actions of a campaign, newest first.
func (s *Store) ListActions(ctx context.Context, campaign string) ([]model.ActionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, msg_index, height, action_type, address, amount::text, ts
		FROM campaign_actions
		WHERE campaign=$1
		ORDER BY height DESC, msg_index DESC
	`, campaign)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ActionRecord
	for rows.Next() {
		rec := model.ActionRecord{Campaign: campaign}
		var kind string
		if err := rows.Scan(&rec.TxHash, &rec.MsgIndex, &rec.Height, &kind, &rec.Address, &rec.Amount, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Type = model.ActionType(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadState returns the last synced campaign address for a name.
func (s *Store) LoadState(ctx context.Context, name string) (string, bool, error) {
	if name == "" {
		return "", false, fmt.Errorf("state name required")
	}
	var last string
	row := s.pool.QueryRow(ctx, `SELECT last_address FROM sync_state WHERE name=$1`, name)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return last, true, nil
}

// SaveState upserts the last synced campaign address for a name.
func (s *Store) SaveState(ctx context.Context, name, lastAddress string) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (name, last_address, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_address = EXCLUDED.last_address, updated_at = now()
	`, name, lastAddress)
	return err
}
