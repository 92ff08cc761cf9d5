package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"

	"groupwork-server-go/config"
	"groupwork-server-go/db"
	"groupwork-server-go/grouping"
	"groupwork-server-go/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	// Initialize Redis Client
	redisClient := db.InitializeRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Create Redis Service (class and student directory)
	redisService := db.NewRedisService(redisClient)

	if cfg.SeedData {
		checkAndSeedData(redisService)
	}

	records, closeRecords := openGroupingRecords(cfg, redisService)
	defer closeRecords()

	store := grouping.NewStore(records, redisService)
	apiHandler := handlers.NewAPIHandler(redisService, store, grouping.NewSessions(cfg.SessionIdle), grouping.NewPartitioner(nil))

	// Initialize Gin router
	router := gin.Default()
	apiHandler.RegisterRoutes(router.Group("/api"))

	log.Printf("Starting server on %s (grouping store: %s)", cfg.Addr(), cfg.GroupStore)
	if err := router.Run(cfg.Addr()); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

// openGroupingRecords picks the grouping backend named by the configuration.
func openGroupingRecords(cfg *config.Config, redisService *db.RedisService) (grouping.Records, func()) {
	if cfg.GroupStore == config.StoreSQLite {
		records, err := db.OpenSQLiteGroupingRecords(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open SQLite grouping store at %s: %v", cfg.SQLitePath, err)
		}
		return records, func() {
			if err := records.Close(); err != nil {
				log.Printf("Error closing SQLite grouping store: %v", err)
			}
		}
	}
	return db.NewRedisGroupingRecords(redisService.Client), func() {}
}

// checkAndSeedData adds demo classes when Redis holds no class yet
func checkAndSeedData(service *db.RedisService) {
	ctx := context.Background()
	hasClasses, err := service.HasClasses(ctx)
	if err != nil {
		log.Printf("Warning: could not check for existing classes: %v. Skipping seed data.", err)
		return
	}
	if hasClasses {
		log.Println("Found existing class data in Redis. Skipping seed data.")
		return
	}
	log.Println("No class data found in Redis. Adding initial test data...")
	service.SeedData(ctx)
}
