package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mcdev12/turnclock/go/internal/dbconfig"
	"github.com/mcdev12/turnclock/go/internal/migrations"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/store/postgres"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

func main() {
	var (
		code    = flag.String("code", "", "room code (random when empty)")
		slots   = flag.Int("slots", 4, "number of participant slots, 4..10")
		phase   = flag.String("phase", "02:00", "default per-slot budget as mm:ss")
		baseURL = flag.String("base-url", "http://localhost:5173/", "web client address used in the printed links")
		migrate = flag.Bool("migrate", false, "apply migrations before creating the room")
	)
	flag.Parse()

	phaseSeconds, err := turn.ParseClock(*phase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -phase: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	if *migrate {
		if err := migrations.Migrate(ctx, cfg.DSN()); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}
	st, err := postgres.Open(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	// 2) Create the room and its slots
	room, token, err := st.CreateRoom(ctx, store.CreateRoomParams{
		Code:                *code,
		SlotCount:           *slots,
		PhaseDefaultSeconds: phaseSeconds,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create room: %v\n", err)
		os.Exit(1)
	}

	// 3) Print the links. The DM token is not stored in clear and cannot be shown again.
	participant, dm := links(*baseURL, room.Code, token)
	fmt.Printf("Room %s created with %d slots of %s\n", room.Code, *slots, turn.FormatClock(phaseSeconds))
	fmt.Printf("  participants: %s\n", participant)
	fmt.Printf("  dm:           %s\n", dm)
}

func links(base, code, token string) (string, string) {
	q := url.Values{}
	q.Set("room", code)
	participant := base + "?" + q.Encode()
	q.Set("dm", token)
	return participant, base + "?" + q.Encode()
}
