package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rollcall/internal/model"
	"rollcall/internal/repository"
)

func main() {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	database := os.Getenv("MONGO_DATABASE")
	if database == "" {
		database = "rollcall"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	roster := repository.NewRosterRepo(client.Database(database))

	class := &model.Class{
		ID:   "cs101-fall",
		Name: "CS101 Introduction to Programming (Fall)",
	}
	if err := roster.AddClass(ctx, class); err != nil {
		log.Fatalf("Failed to insert class: %v", err)
	}

	subjects := []model.Enrollment{
		{ClassID: class.ID, SubjectID: "s-1001", Name: "Ada Lindqvist"},
		{ClassID: class.ID, SubjectID: "s-1002", Name: "Brayan Ortiz"},
		{ClassID: class.ID, SubjectID: "s-1003", Name: "Chidi Okafor"},
		{ClassID: class.ID, SubjectID: "s-1004", Name: "Daria Melnyk"},
		{ClassID: class.ID, SubjectID: "s-1005", Name: "Emre Kaya"},
		{ClassID: class.ID, SubjectID: "s-1006", Name: "Fatima al-Rashid"},
		{ClassID: class.ID, SubjectID: "s-1007", Name: "Greta Novak"},
		{ClassID: class.ID, SubjectID: "s-1008", Name: "Hiro Tanaka"},
	}
	for i := range subjects {
		if err := roster.Enroll(ctx, &subjects[i]); err != nil {
			log.Fatalf("Failed to enroll %s: %v", subjects[i].SubjectID, err)
		}
	}

	fmt.Printf("Seeded class %q with %d enrolled subjects\n", class.ID, len(subjects))
}
