package persist

import (
	"context"
	"fmt"
)

// WarRecord is the audit snapshot written when a siege war resolves.
type WarRecord struct {
	CastleID      int32
	DeclaringClan int32
	OwnerClan     int32
	Outcome       string // "captured" or "defended"
	DeclaredTick  int64
	ResolvedTick  int64
}

type SiegeRepo struct {
	db *DB
}

func NewSiegeRepo(db *DB) *SiegeRepo {
	return &SiegeRepo{db: db}
}

// LogWar appends one resolved war to the audit log and updates the castle
// owner in the same transaction.
func (r *SiegeRepo) LogWar(ctx context.Context, rec WarRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("war log begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO siege_war_log
		   (castle_id, declaring_clan, owner_clan, outcome, declared_tick, resolved_tick)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.CastleID, rec.DeclaringClan, rec.OwnerClan, rec.Outcome,
		rec.DeclaredTick, rec.ResolvedTick,
	); err != nil {
		return fmt.Errorf("war log insert: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO castle_owners (castle_id, clan_id, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (castle_id) DO UPDATE SET clan_id = $2, updated_at = now()`,
		rec.CastleID, rec.OwnerClan,
	); err != nil {
		return fmt.Errorf("castle owner upsert: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadOwners returns the persisted castle ownership map.
func (r *SiegeRepo) LoadOwners(ctx context.Context) (map[int32]int32, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT castle_id, clan_id FROM castle_owners`)
	if err != nil {
		return nil, fmt.Errorf("load castle owners: %w", err)
	}
	defer rows.Close()

	owners := make(map[int32]int32)
	for rows.Next() {
		var castleID, clanID int32
		if err := rows.Scan(&castleID, &clanID); err != nil {
			return nil, fmt.Errorf("scan castle owner: %w", err)
		}
		owners[castleID] = clanID
	}
	return owners, rows.Err()
}
