package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/turnclock/go/internal/dbconfig"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

// Seat is one entry of the seating file.
type Seat struct {
	RoomCode   string     `json:"room_code"`
	Slot       int        `json:"slot"`
	OccupantID *uuid.UUID `json:"occupant_id"`
	Label      string     `json:"label"`
	Color      string     `json:"color"`
}

func main() {
	path := "go/internal/assets/seats.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the seating file
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seats []Seat
	if err := json.Unmarshal(data, &seats); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Apply and count. Rows are only touched while the room is idle.
	var (
		total   = len(seats)
		updated int
		skipped int
		errs    int
	)

	for _, s := range seats {
		label, err := turn.NormalizeLabel(s.Slot, s.Label)
		if err != nil {
			fmt.Fprintf(os.Stderr, "slot %s/%d: %v\n", s.RoomCode, s.Slot, err)
			errs++
			continue
		}
		var color *string
		if s.Color != "" {
			c, err := turn.NormalizeColor(s.Color)
			if err != nil {
				fmt.Fprintf(os.Stderr, "slot %s/%d: %v\n", s.RoomCode, s.Slot, err)
				errs++
				continue
			}
			color = &c
		}

		cmdTag, err := pool.Exec(context.Background(), `
            UPDATE player_slots ps
               SET user_id = $3,
                   label   = $4,
                   color   = coalesce($5, ps.color)
              FROM rooms r
             WHERE r.id = ps.room_id
               AND r.code = upper($1)
               AND ps.slot = $2
               AND coalesce((r.state->>'is_running')::boolean, false) = false
        `,
			strings.TrimSpace(s.RoomCode), s.Slot, s.OccupantID, label, color,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seating %s/%d: %v\n", s.RoomCode, s.Slot, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			updated++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Seats seed complete: %d total, %d updated, %d skipped, %d errors\n",
		total, updated, skipped, errs,
	)
}
