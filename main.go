// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🚀 go-calsync - Calendar Synchronization & Reminder Engine")
	fmt.Println("==========================================================")
	fmt.Println()
	fmt.Println("go-calsync keeps external calendars (Google Calendar, Outlook) in sync with")
	fmt.Println("field reservations and schedules per-user reminder notifications, with")
	fmt.Println("webhook-driven inbound change detection and an append-only audit log.")
	fmt.Println()

	fmt.Println("📚 Available Examples:")
	fmt.Println()
	fmt.Println("1. 🌐 Sync Server Example (examples/syncserver/)")
	fmt.Println("   A complete sync + reminder server wired to PostgreSQL")
	fmt.Println("   Features: provider webhooks, cron-driven reminder dispatch, ICS export")
	fmt.Println("   Run: cd examples/syncserver && go run .")
	fmt.Println()

	fmt.Println("📦 Packages:")
	fmt.Println()
	fmt.Println("   calsync/ - sync engine, provider adapters, reminders, webhooks")
	fmt.Println("   tzcal/   - timezone resolution, DST transitions, VTIMEZONE rendering")
	fmt.Println()
}
