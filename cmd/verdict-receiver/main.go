package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Tiny webhook endpoint for exercising the webhook sink locally.
func main() {
	addr := flag.String("addr", ":8099", "listen address for verdict receiver")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/verdicts", handleVerdict)
	mux.HandleFunc("/", handleVerdict)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("verdict receiver listening on %s (POST JSON to /verdicts)...", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("receiver error: %v", err)
	}
}

func handleVerdict(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	log.Printf("received verdict event: path=%s content-type=%s len=%d\n%s", r.URL.Path, r.Header.Get("Content-Type"), len(body), string(body))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}
