package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type CharacterRow struct {
	ID       int32
	Name     string
	Level    int16
	HP       int16
	MP       int16
	MaxHP    int16
	MaxMP    int16
	Str      int16
	Dex      int16
	Intel    int16
	AC       int16
	MR       int16
	X        int32
	Y        int32
	MapID    int16
	Heading  int16
	ClanID   int32
	ClanRank int16
}

type CharacterRepo struct {
	db *DB
}

func NewCharacterRepo(db *DB) *CharacterRepo {
	return &CharacterRepo{db: db}
}

// LoadByName loads one character, or (nil, nil) when it does not exist.
func (r *CharacterRepo) LoadByName(ctx context.Context, name string) (*CharacterRow, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, level, hp, mp, max_hp, max_mp,
		        str, dex, intel, ac, mr,
		        x, y, map_id, heading, clan_id, clan_rank
		 FROM characters WHERE name = $1`, name)

	var c CharacterRow
	err := row.Scan(&c.ID, &c.Name, &c.Level, &c.HP, &c.MP, &c.MaxHP, &c.MaxMP,
		&c.Str, &c.Dex, &c.Intel, &c.AC, &c.MR,
		&c.X, &c.Y, &c.MapID, &c.Heading, &c.ClanID, &c.ClanRank)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load character %q: %w", name, err)
	}
	return &c, nil
}

// SavePosition persists a character's last known position and vitals. Runs
// off the game loop; callers pass a snapshot, never a live entity.
func (r *CharacterRepo) SavePosition(ctx context.Context, id int32, x, y int32, mapID int16, heading int16, hp, mp int16) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters
		 SET x = $2, y = $3, map_id = $4, heading = $5, hp = $6, mp = $7,
		     last_logout = $8
		 WHERE id = $1`,
		id, x, y, mapID, heading, hp, mp, time.Now())
	if err != nil {
		return fmt.Errorf("save position for character %d: %w", id, err)
	}
	return nil
}

// Create inserts a new character row and returns its ID.
func (r *CharacterRepo) Create(ctx context.Context, c *CharacterRow) (int32, error) {
	row := r.db.Pool.QueryRow(ctx,
		`INSERT INTO characters
		   (name, level, hp, mp, max_hp, max_mp, str, dex, intel, ac, mr,
		    x, y, map_id, heading, clan_id, clan_rank, last_login)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		 RETURNING id`,
		c.Name, c.Level, c.HP, c.MP, c.MaxHP, c.MaxMP, c.Str, c.Dex, c.Intel,
		c.AC, c.MR, c.X, c.Y, c.MapID, c.Heading, c.ClanID, c.ClanRank, time.Now())

	var id int32
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("create character %q: %w", c.Name, err)
	}
	return id, nil
}
