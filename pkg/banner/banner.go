package banner

import (
	"fmt"

	"tradetalk/pkg/config"
)

const banner = `
████████╗██████╗  █████╗ ██████╗ ███████╗████████╗ █████╗ ██╗     ██╗  ██╗
╚══██╔══╝██╔══██╗██╔══██╗██╔══██╗██╔════╝╚══██╔══╝██╔══██╗██║     ██║ ██╔╝
   ██║   ██████╔╝███████║██║  ██║█████╗     ██║   ███████║██║     █████╔╝
   ██║   ██╔══██╗██╔══██║██║  ██║██╔══╝     ██║   ██╔══██║██║     ██╔═██╗
   ██║   ██║  ██║██║  ██║██████╔╝███████╗   ██║   ██║  ██║███████╗██║  ██╗
   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚══════╝   ╚═╝   ╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`

// Print renders the startup banner using the effective config.
func Print(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/messages                          - send a message")
	fmt.Println("GET  /v1/messages/conversations            - inbox projections")
	fmt.Println("GET  /v1/messages/conversation/{otherRef}  - history (marks read; ?peek=1 to skip)")
	fmt.Println("PUT  /v1/messages/{id}/read                - read receipt")
	fmt.Println("GET  /v1/ws                                - realtime channel")

	fmt.Println("\n== Production? =================================================")
	be, fe, ak := 0, 0, 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	if eff.Config != nil && eff.Config.Retention.Enabled {
		info := ""
		if eff.Config.Retention.Cron != "" {
			info = " (cron=" + eff.Config.Retention.Cron + ")"
		}
		fmt.Printf("- Retention: enabled%s\n", info)
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
