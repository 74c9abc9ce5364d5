package main

import (
	"flag"
	"net/http"
	"time"

	"garrison-gate/core/rbac"
	"garrison-gate/core/utils"
	"garrison-gate/devbackend"
)

// Standalone authentication stub for local development. Seeds a few
// accounts, one of them unverified, so the whole verification flow can
// be exercised without a real backend.
func main() {
	addr := flag.String("addr", "127.0.0.1:8490", "listen address")
	cooldown := flag.Duration("cooldown", 120*time.Second, "resend cooldown window")
	flag.Parse()

	logger := utils.NewLogger()
	srv := devbackend.NewServer(*cooldown, logger)
	srv.AddAccount("admin", "admin@garrison.local", "admin", []string{rbac.RoleAdmin}, true)
	srv.AddAccount("mona", "mona@garrison.local", "manager", []string{rbac.RoleManager}, true)
	srv.AddAccount("user99", "user99@garrison.local", "client", []string{rbac.RoleClient}, false)

	logger.Printf("DEVBACKEND listening on %s", *addr)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		logger.Fatalf("devbackend: %v", err)
	}
}
