package main

import (
	"altwriter/cmd/handlers"
	"altwriter/internal/logger"
)

func main() {
	logger.Init("info")
	handlers.Execute()
}
