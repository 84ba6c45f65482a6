package main

import (
	"flag"
	"log"

	"github.com/tech-arch1tect/portfolio/app"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	builder := app.NewApp().WithAutoConfig()

	if *migrateOnly {
		db, err := builder.DB()
		if err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		log.Println("database migrated")
		return
	}

	application, err := builder.Build()
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}
	if err := application.Run(); err != nil {
		log.Fatalf("%v", err)
	}
}
