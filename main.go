package main

import (
	"fmt"

	_ "github.com/agentuity/go-memocache/cache"
	_ "github.com/agentuity/go-memocache/config"
	_ "github.com/agentuity/go-memocache/docstore"
	_ "github.com/agentuity/go-memocache/logger"
	_ "github.com/agentuity/go-memocache/resilience"
	_ "github.com/agentuity/go-memocache/telemetry"
	_ "github.com/agentuity/go-memocache/tui"
	_ "github.com/agentuity/go-memocache/web"
)

func main() {
	fmt.Println("memocache: run ./cmd/memocache")
}
