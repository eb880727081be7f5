package main

import (
	"github.com/tenghuan/EaseBPMate/internal/config" // Custom import path (Config)
	"github.com/tenghuan/EaseBPMate/internal/db"     // Custom import path (Database)
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	db.Migrate(cfg.DSN())      // Create or update the users and readings tables
}
