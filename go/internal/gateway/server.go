package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// NewServer wraps handler with CORS and h2c. An empty origin list allows any origin.
func NewServer(port int, handler http.Handler, allowedOrigins []string) *http.Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"Content-Type", HeaderOccupantID, HeaderDMToken},
	})

	return &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     h2c.NewHandler(c.Handler(handler), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}
