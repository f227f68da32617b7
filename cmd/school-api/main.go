package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/noah-isme/school-suite-api/api/swagger"
)

// @title School Suite API
// @version 1.0.0
// @description Multi-tenant school management: academic structure, enrollments, payments and documents.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
