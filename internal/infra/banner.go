package infra

import (
	"fmt"
)

// ANSI Color Codes
const (
	ColorReset = "\033[0m"
	ColorCyan  = "\033[36m"
)

// PrintBanner displays the startup banner.
func PrintBanner(cfg *Config) {
	fmt.Println()
	fmt.Printf("%s###########################################################%s\n", ColorCyan, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", ColorCyan, ColorReset)
	fmt.Printf("%s#              🔁 SwapGo Execution Simulator              #%s\n", ColorCyan, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", ColorCyan, ColorReset)
	fmt.Printf("%s#   VERSION: %-36s #%s\n", ColorCyan, cfg.App.Version, ColorReset)
	fmt.Printf("%s#   LISTEN:  %-36s #%s\n", ColorCyan, cfg.Server.Addr, ColorReset)
	fmt.Printf("%s#   VENUES:  %-36s #%s\n", ColorCyan, "raydium, meteora (simulated)", ColorReset)
	fmt.Printf("%s#                                                         #%s\n", ColorCyan, ColorReset)
	fmt.Printf("%s###########################################################%s\n", ColorCyan, ColorReset)
	fmt.Println()
}
