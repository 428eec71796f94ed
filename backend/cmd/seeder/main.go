package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"lms_core/backend/internal/gateway"
	"lms_core/backend/internal/shared"
)

// Common Credentials
const CommonPassword = "password"

// Fixed ids so the printed dev tokens stay valid across reseeds
var (
	AdminID      = mustID("650000000000000000000001")
	InstructorID = mustID("650000000000000000000002")
	StudentID1   = mustID("650000000000000000000003")
	StudentID2   = mustID("650000000000000000000004")
)

// SourceSeed is a graded item score records can point at
type SourceSeed struct {
	Collection string
	ID         primitive.ObjectID
	Title      string
	TotalMarks float64
}

func mustID(hex string) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		panic(err)
	}
	return id
}

func main() {
	log.Println("Starting Database Seeder...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := shared.LoadServiceConfig("seeder")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client, db, err := shared.ConnectMongoDB(&cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer shared.DisconnectMongoDB(client)

	// Drop all collections to ensure a clean start
	if err := db.Drop(context.Background()); err != nil {
		log.Fatalf("Failed to drop database: %v", err)
	}
	log.Println("Database cleared successfully.")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := shared.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	// --- 1. Seed Users ---
	users := seedUsers(ctx, db, cfg.Security.BCryptCost)

	// --- 2. Seed Graded Items ---
	seedSources(ctx, db, []SourceSeed{
		{shared.CollectionAssessments, mustID("660000000000000000000001"), "Listening Quiz 1", 20},
		{shared.CollectionAssessments, mustID("660000000000000000000002"), "Vocabulary Test", 40},
		{shared.CollectionAssignments, mustID("670000000000000000000001"), "Task 1 Report", 50},
		{shared.CollectionAssignments, mustID("670000000000000000000002"), "Task 2 Essay", 100},
	})

	// --- 3. Print development tokens ---
	printTokens(cfg, users)

	log.Println("All data seeding completed successfully.")
}

// ============================================================================
// SEEDING FUNCTIONS
// ============================================================================

func seedUsers(ctx context.Context, db *mongo.Database, cost int) []shared.User {
	log.Println("--- Seeding Users ---")
	usersCol := db.Collection(shared.CollectionUsers)

	now := time.Now().UTC()
	users := []shared.User{
		{ID: AdminID, Name: "Super Admin", Email: "admin@example.com", Role: shared.RoleAdmin, CreatedAt: now},
		{ID: InstructorID, Name: "Dr. Ama Serwaa", Email: "instructor@example.com", Role: shared.RoleInstructor, CreatedAt: now},
		{ID: StudentID1, Name: "John Student", Email: "student@example.com", Role: shared.RoleStudent, CreatedAt: now},
		{ID: StudentID2, Name: "Alice Wonderland", Email: "student2@example.com", Role: shared.RoleStudent, CreatedAt: now},
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(CommonPassword), cost)
	if err != nil {
		log.Fatalf("Error hashing password: %v", err)
	}
	hashedPassword := string(hashedBytes)

	for _, u := range users {
		u.PasswordHash = hashedPassword
		filter := bson.M{"email": u.Email}
		update := bson.M{"$set": u}
		opts := options.Update().SetUpsert(true)

		if _, err := usersCol.UpdateOne(ctx, filter, update, opts); err != nil {
			log.Fatalf("Error seeding user %s: %v", u.Email, err)
		}
		log.Printf("Seeded %s: %s", u.Role, u.Email)
	}
	return users
}

func seedSources(ctx context.Context, db *mongo.Database, seeds []SourceSeed) {
	log.Println("--- Seeding Assessments and Assignments ---")

	for _, s := range seeds {
		doc := bson.M{
			"_id":         s.ID,
			"title":       s.Title,
			"total_marks": s.TotalMarks,
			"created_by":  InstructorID,
			"created_at":  time.Now().UTC(),
		}
		if _, err := db.Collection(s.Collection).InsertOne(ctx, doc); err != nil {
			log.Fatalf("Error seeding %s %q: %v", s.Collection, s.Title, err)
		}
		log.Printf("Seeded %s: %s (%s)", s.Collection, s.Title, s.ID.Hex())
	}
}

func printTokens(cfg *shared.ServiceConfig, users []shared.User) {
	if cfg.Security.JWTSecret == "" {
		log.Println("JWT_SECRET not set; skipping development tokens.")
		return
	}

	log.Println("--- Development Tokens (valid 24h) ---")
	for _, u := range users {
		token, err := gateway.IssueToken(cfg.Security.JWTSecret, u.ID.Hex(), u.Role, 24*time.Hour)
		if err != nil {
			log.Fatalf("Error issuing token for %s: %v", u.Email, err)
		}
		fmt.Printf("%-10s %s\n  %s\n", u.Role, u.Email, token)
	}
}
